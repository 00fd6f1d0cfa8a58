package sharecatalog

import "fmt"

// Key schema for the share catalog's own key spaces (§3, §4.2 of
// SPEC_FULL.md). Each kind gets a disjoint, fixed prefix; changing any of
// these breaks on-disk compatibility, exactly as the schema is a persisted
// contract.

func shareNameKey(tenant, shareName string) string {
	return fmt.Sprintf("share_name/%s/%s", tenant, shareName)
}

func shareNameListPrefix(tenant string) string {
	return fmt.Sprintf("share_name/%s/", tenant)
}

func shareIDKey(shareID uint64) string {
	return fmt.Sprintf("share_id/%d", shareID)
}

func shareIDToNameKey(shareID uint64) string {
	return fmt.Sprintf("share_id_to_name/%d", shareID)
}

func shareAccountKey(account string, shareID uint64) string {
	return fmt.Sprintf("share_account/%s/%d", account, shareID)
}

// shareAccountListPrefix realizes the spec's
// "ShareAccountNameIdent{account, share_id: 0} as a list-prefix" directly:
// share_id is simply omitted from the prefix.
func shareAccountListPrefix(account string) string {
	return fmt.Sprintf("share_account/%s/", account)
}

func shareObjectKey(objectKey string) string {
	return "share_object/" + objectKey
}

// ShareGrantObjectKind tags a ShareGrantObject variant.
type ShareGrantObjectKind int

const (
	GrantObjectDatabase ShareGrantObjectKind = iota
	GrantObjectTable
)

// ShareGrantObject is the tagged-variant object a GrantEntry refers to.
type ShareGrantObject struct {
	Kind   ShareGrantObjectKind `json:"kind"`
	DBID   uint64               `json:"db_id"`
	TableID uint64              `json:"table_id,omitempty"`
}

// CanonicalKey returns the string used both as a ShareMeta.Entries map key
// and as the ObjectSharedByShareIds key, matching the original source's
// tagged-variant-to-string convention (see SPEC_FULL.md §10).
func (o ShareGrantObject) CanonicalKey() string {
	switch o.Kind {
	case GrantObjectDatabase:
		return fmt.Sprintf("db/%d", o.DBID)
	case GrantObjectTable:
		return fmt.Sprintf("table/%d", o.TableID)
	default:
		return fmt.Sprintf("unknown/%d", o.DBID)
	}
}

func (o ShareGrantObject) String() string { return o.CanonicalKey() }

const idGenShareID = "share_id"
