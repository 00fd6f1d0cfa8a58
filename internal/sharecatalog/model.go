package sharecatalog

import "time"

// ShareGrantPrivilege is the fixed privilege bitset, named in the idiom of
// internal/acl's Permission constants. The core treats the bits opaquely
// except for OR / AND-NOT.
type ShareGrantPrivilege uint64

const (
	PrivilegeUsage ShareGrantPrivilege = 1 << iota
	PrivilegeSelect
	PrivilegeReferenceUsage
)

// ShareNameIdent is the logical (tenant, share_name) handle.
type ShareNameIdent struct {
	Tenant    string `json:"tenant"`
	ShareName string `json:"share_name"`
}

// GrantEntry is one grant inside a ShareMeta: an object, the privileges
// held on it, and when it was granted.
type GrantEntry struct {
	Object     ShareGrantObject    `json:"object"`
	Privileges ShareGrantPrivilege `json:"privileges"`
	GrantOn    time.Time           `json:"grant_on"`
}

// ShareMeta is the authoritative state of a share.
type ShareMeta struct {
	CreateOn time.Time              `json:"create_on"`
	UpdateOn time.Time              `json:"update_on"`
	Comment  string                 `json:"comment,omitempty"`
	Accounts map[string]struct{}    `json:"accounts"`
	Database *GrantEntry            `json:"database,omitempty"`
	Entries  map[string]*GrantEntry `json:"entries"`
}

// NewShareMeta builds an empty ShareMeta, matching
// ShareMeta::new(create_on, comment, accounts={}, database=None, entries={}).
func NewShareMeta(createOn time.Time, comment string) *ShareMeta {
	return &ShareMeta{
		CreateOn: createOn,
		UpdateOn: createOn,
		Comment:  comment,
		Accounts: map[string]struct{}{},
		Entries:  map[string]*GrantEntry{},
	}
}

// HasAccount reports whether a is a current recipient of the share.
func (m *ShareMeta) HasAccount(a string) bool {
	_, ok := m.Accounts[a]
	return ok
}

// AddAccount inserts a into the recipient set.
func (m *ShareMeta) AddAccount(a string) {
	if m.Accounts == nil {
		m.Accounts = map[string]struct{}{}
	}
	m.Accounts[a] = struct{}{}
}

// DelAccount removes a from the recipient set.
func (m *ShareMeta) DelAccount(a string) {
	delete(m.Accounts, a)
}

// GetAccounts returns the current recipient set as a slice.
func (m *ShareMeta) GetAccounts() []string {
	out := make([]string, 0, len(m.Accounts))
	for a := range m.Accounts {
		out = append(out, a)
	}
	return out
}

// GetGrantEntry returns the stored grant entry for object, if any.
func (m *ShareMeta) GetGrantEntry(object ShareGrantObject) *GrantEntry {
	if object.Kind == GrantObjectDatabase {
		return m.Database
	}
	return m.Entries[object.CanonicalKey()]
}

// GrantObjectPrivileges applies a grant, per SPEC_FULL.md §4.3.
func (m *ShareMeta) GrantObjectPrivileges(object ShareGrantObject, privileges ShareGrantPrivilege, grantOn time.Time) error {
	if object.Kind == GrantObjectDatabase {
		if m.Database != nil && m.Database.Object.DBID != object.DBID {
			return &WrongShareObjectError{Object: object, Reason: "a different database is already shared"}
		}
		m.Database = &GrantEntry{Object: object, Privileges: privileges, GrantOn: grantOn}
		return nil
	}

	key := object.CanonicalKey()
	if entry, ok := m.Entries[key]; ok {
		entry.Privileges |= privileges
		entry.GrantOn = grantOn
		return nil
	}
	if m.Entries == nil {
		m.Entries = map[string]*GrantEntry{}
	}
	m.Entries[key] = &GrantEntry{Object: object, Privileges: privileges, GrantOn: grantOn}
	return nil
}

// RevokeObjectPrivileges applies a revoke, per SPEC_FULL.md §4.3.
func (m *ShareMeta) RevokeObjectPrivileges(object ShareGrantObject, privileges ShareGrantPrivilege, updateOn time.Time) error {
	if object.Kind == GrantObjectDatabase {
		if m.Database == nil {
			return nil
		}
		m.Database.Privileges &^= privileges
		if m.Database.Privileges == 0 {
			if len(m.Entries) > 0 {
				return &WrongShareObjectError{Object: object, Reason: "cannot revoke database while table grants remain"}
			}
			m.Database = nil
		}
		return nil
	}

	key := object.CanonicalKey()
	entry, ok := m.Entries[key]
	if !ok {
		return nil
	}
	entry.Privileges &^= privileges
	if entry.Privileges == 0 {
		delete(m.Entries, key)
	}
	return nil
}

// HasGrantedPrivileges reports whether object (already resolved from its
// name by the caller) currently holds every bit of privileges. It fails
// WrongShareObject if object diverges from the one stored in the matching
// grant entry — e.g. the name was dropped and recreated as a different
// underlying id.
func (m *ShareMeta) HasGrantedPrivileges(object ShareGrantObject, privileges ShareGrantPrivilege) (bool, error) {
	entry := m.GetGrantEntry(object)
	if entry == nil {
		return false, nil
	}
	if entry.Object != object {
		return false, &WrongShareObjectError{Object: object, Reason: "resolved object id diverges from the stored grant"}
	}
	return entry.Privileges&privileges == privileges, nil
}

// ShareAccountMeta is the per-(account, share) membership record.
type ShareAccountMeta struct {
	Account  string    `json:"account"`
	ShareID  uint64    `json:"share_id"`
	ShareOn  time.Time `json:"share_on"`
}

// ObjectSharedByShareIds is the reverse index of an object to the shares
// referencing it.
type ObjectSharedByShareIds struct {
	ShareIDs map[uint64]struct{} `json:"share_ids"`
}

// NewObjectSharedByShareIds returns an empty index value (seq 0 default).
func NewObjectSharedByShareIds() *ObjectSharedByShareIds {
	return &ObjectSharedByShareIds{ShareIDs: map[uint64]struct{}{}}
}

// Add inserts shareID into the index.
func (o *ObjectSharedByShareIds) Add(shareID uint64) {
	if o.ShareIDs == nil {
		o.ShareIDs = map[uint64]struct{}{}
	}
	o.ShareIDs[shareID] = struct{}{}
}

// Remove deletes shareID from the index.
func (o *ObjectSharedByShareIds) Remove(shareID uint64) {
	delete(o.ShareIDs, shareID)
}

// Contains reports whether shareID is already indexed.
func (o *ObjectSharedByShareIds) Contains(shareID uint64) bool {
	_, ok := o.ShareIDs[shareID]
	return ok
}
