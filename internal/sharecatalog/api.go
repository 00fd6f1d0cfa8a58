package sharecatalog

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/shareforge/metastore/internal/catalog"
	"github.com/sirupsen/logrus"
)

// Options configures a Catalog. Zero value is valid; MaxRetryTimes falls
// back to DefaultMaxRetryTimes.
type Options struct {
	MaxRetryTimes int `mapstructure:"max_retry_times"`
}

// Catalog is the share catalog: the ten operations of SPEC_FULL.md §4.5
// over a KV and a catalog.Catalog collaborator.
type Catalog struct {
	kv       KV
	resolver *Resolver
	catalogSvc *catalog.Catalog
	opts     Options
	logger   *logrus.Logger
	metrics  *Metrics
}

// NewCatalog wires a Catalog over kv, using cat to resolve object names and
// to mutate DatabaseMeta.SharedBy. A nil logger/metrics gets a usable
// default/no-op value.
func NewCatalog(kv KV, cat *catalog.Catalog, opts Options, logger *logrus.Logger, metrics *Metrics) *Catalog {
	if logger == nil {
		logger = logrus.New()
	}
	return &Catalog{
		kv:         kv,
		resolver:   NewResolver(cat),
		catalogSvc: cat,
		opts:       opts,
		logger:     logger,
		metrics:    metrics,
	}
}

func (c *Catalog) resolveShareID(ctx context.Context, tenant, name string) (seq, id uint64, err error) {
	return c.kv.GetU64(ctx, shareNameKey(tenant, name))
}

func (c *Catalog) loadShareMeta(ctx context.Context, shareID uint64) (uint64, *ShareMeta, error) {
	var meta ShareMeta
	seq, found, err := c.kv.GetStruct(ctx, shareIDKey(shareID), &meta)
	if err != nil {
		return 0, nil, err
	}
	if !found {
		return 0, nil, &WrongShareError{Name: strconv.FormatUint(shareID, 10), Reason: "share id has no meta record"}
	}
	return seq, &meta, nil
}

// checkShareObject enforces I-level grant ordering: a database must be
// shared before any of its tables, and a share may never straddle two
// databases.
func checkShareObject(database *GrantEntry, object ShareGrantObject) error {
	if database != nil {
		if object.DBID != database.Object.DBID {
			return &WrongShareObjectError{Object: object, Reason: "share already grants a different database"}
		}
		return nil
	}
	if object.Kind != GrantObjectDatabase {
		return &WrongShareObjectError{Object: object, Reason: "a database must be shared before any of its tables"}
	}
	return nil
}

// CreateShare implements create_share.
func (c *Catalog) CreateShare(ctx context.Context, req CreateShareRequest) (*CreateShareReply, error) {
	nameKey := shareNameKey(req.Tenant, req.ShareName)
	var reply CreateShareReply

	err := c.retryLoop(ctx, "create_share", func(ctx context.Context) (bool, error) {
		seq, existingID, err := c.kv.GetU64(ctx, nameKey)
		if err != nil {
			return false, err
		}
		if seq != 0 {
			if req.IfNotExists {
				reply = CreateShareReply{ShareID: existingID}
				return true, nil
			}
			return false, &ShareAlreadyExistsError{Tenant: req.Tenant, Name: req.ShareName}
		}

		id, err := c.kv.FetchID(ctx, idGenShareID)
		if err != nil {
			return false, err
		}
		meta := NewShareMeta(req.CreateOn, req.Comment)

		txnReply, err := c.kv.Txn(ctx, TxnRequest{
			Condition: []TxnCondition{
				{Key: nameKey, Op: Eq, ExpectSeq: 0},
				{Key: shareIDKey(id), Op: Eq, ExpectSeq: 0},
			},
			IfThen: []TxnOp{
				{Kind: OpPut, Key: nameKey, Value: EncodeU64(id)},
				{Kind: OpPut, Key: shareIDKey(id), Value: MustMarshal(meta)},
				{Kind: OpPut, Key: shareIDToNameKey(id), Value: MustMarshal(ShareNameIdent{Tenant: req.Tenant, ShareName: req.ShareName})},
			},
		})
		if err != nil {
			return false, err
		}
		if !txnReply.Succeeded {
			return false, nil
		}
		reply = CreateShareReply{ShareID: id}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return &reply, nil
}

// DropShare implements drop_share. It deletes only the share's three identity
// records and its account records; the share id stays in the share_object
// reverse index and in DatabaseMeta.SharedBy for every object the share still
// grants, matching the original implementation's behavior (see SPEC_FULL.md §9).
func (c *Catalog) DropShare(ctx context.Context, req DropShareRequest) (*DropShareReply, error) {
	err := c.retryLoop(ctx, "drop_share", func(ctx context.Context) (bool, error) {
		nameSeq, id, err := c.kv.GetU64(ctx, shareNameKey(req.Tenant, req.ShareName))
		if err != nil {
			return false, err
		}
		if nameSeq == 0 {
			if req.IfExists {
				return true, nil
			}
			return false, &UnknownShareError{Tenant: req.Tenant, Name: req.ShareName}
		}

		metaSeq, meta, err := c.loadShareMeta(ctx, id)
		if err != nil {
			return false, err
		}

		reverseSeq, _, err := c.kv.GetStruct(ctx, shareIDToNameKey(id), &ShareNameIdent{})
		if err != nil {
			return false, err
		}

		conditions := []TxnCondition{
			{Key: shareNameKey(req.Tenant, req.ShareName), Op: Eq, ExpectSeq: nameSeq},
			{Key: shareIDKey(id), Op: Eq, ExpectSeq: metaSeq},
			{Key: shareIDToNameKey(id), Op: Eq, ExpectSeq: reverseSeq},
		}
		ops := []TxnOp{
			{Kind: OpDelete, Key: shareNameKey(req.Tenant, req.ShareName)},
			{Kind: OpDelete, Key: shareIDKey(id)},
			{Kind: OpDelete, Key: shareIDToNameKey(id)},
		}

		for _, account := range meta.GetAccounts() {
			accKey := shareAccountKey(account, id)
			accSeq, found, err := c.kv.GetStruct(ctx, accKey, &ShareAccountMeta{})
			if err != nil {
				return false, err
			}
			if !found {
				continue
			}
			conditions = append(conditions, TxnCondition{Key: accKey, Op: Eq, ExpectSeq: accSeq})
			ops = append(ops, TxnOp{Kind: OpDelete, Key: accKey})
		}

		txnReply, err := c.kv.Txn(ctx, TxnRequest{Condition: conditions, IfThen: ops})
		if err != nil {
			return false, err
		}
		return txnReply.Succeeded, nil
	})
	if err != nil {
		return nil, err
	}
	return &DropShareReply{}, nil
}

// AddShareTenants implements add_share_tenants.
func (c *Catalog) AddShareTenants(ctx context.Context, req AddShareTenantsRequest) (*AddShareTenantsReply, error) {
	err := c.retryLoop(ctx, "add_share_tenants", func(ctx context.Context) (bool, error) {
		nameSeq, id, err := c.kv.GetU64(ctx, shareNameKey(req.Tenant, req.ShareName))
		if err != nil {
			return false, err
		}
		if nameSeq == 0 {
			return false, &UnknownShareError{Tenant: req.Tenant, Name: req.ShareName}
		}
		metaSeq, meta, err := c.loadShareMeta(ctx, id)
		if err != nil {
			return false, err
		}

		var fresh []string
		for _, account := range req.Accounts {
			if account == req.Tenant {
				continue // I7: a share may never grant its own owner
			}
			if meta.HasAccount(account) {
				continue
			}
			fresh = append(fresh, account)
		}
		if len(fresh) == 0 {
			return false, &ShareAccountsAlreadyExistsError{Accounts: req.Accounts}
		}

		conditions := []TxnCondition{
			{Key: shareNameKey(req.Tenant, req.ShareName), Op: Eq, ExpectSeq: nameSeq},
			{Key: shareIDKey(id), Op: Eq, ExpectSeq: metaSeq},
		}
		ops := []TxnOp{}
		for _, account := range fresh {
			accKey := shareAccountKey(account, id)
			conditions = append(conditions, TxnCondition{Key: accKey, Op: Eq, ExpectSeq: 0})
			ops = append(ops, TxnOp{
				Kind: OpPut,
				Key:  accKey,
				Value: MustMarshal(ShareAccountMeta{Account: account, ShareID: id, ShareOn: req.ShareOn}),
			})
			meta.AddAccount(account)
		}
		ops = append(ops, TxnOp{Kind: OpPut, Key: shareIDKey(id), Value: MustMarshal(meta)})

		txnReply, err := c.kv.Txn(ctx, TxnRequest{Condition: conditions, IfThen: ops})
		if err != nil {
			return false, err
		}
		return txnReply.Succeeded, nil
	})
	if err != nil {
		return nil, err
	}
	return &AddShareTenantsReply{}, nil
}

// RemoveShareTenants implements remove_share_tenants.
func (c *Catalog) RemoveShareTenants(ctx context.Context, req RemoveShareTenantsRequest) (*RemoveShareTenantsReply, error) {
	err := c.retryLoop(ctx, "remove_share_tenants", func(ctx context.Context) (bool, error) {
		nameSeq, id, err := c.kv.GetU64(ctx, shareNameKey(req.Tenant, req.ShareName))
		if err != nil {
			return false, err
		}
		if nameSeq == 0 {
			return false, &UnknownShareError{Tenant: req.Tenant, Name: req.ShareName}
		}
		metaSeq, meta, err := c.loadShareMeta(ctx, id)
		if err != nil {
			return false, err
		}

		var present []string
		for _, account := range req.Accounts {
			if meta.HasAccount(account) {
				present = append(present, account)
			}
		}
		if len(present) == 0 {
			return false, &UnknownShareAccountsError{Accounts: req.Accounts, ShareID: id}
		}

		conditions := []TxnCondition{
			{Key: shareNameKey(req.Tenant, req.ShareName), Op: Eq, ExpectSeq: nameSeq},
			{Key: shareIDKey(id), Op: Eq, ExpectSeq: metaSeq},
		}
		ops := []TxnOp{}
		for _, account := range present {
			accKey := shareAccountKey(account, id)
			accSeq, found, err := c.kv.GetStruct(ctx, accKey, &ShareAccountMeta{})
			if err != nil {
				return false, err
			}
			if found {
				conditions = append(conditions, TxnCondition{Key: accKey, Op: Eq, ExpectSeq: accSeq})
				ops = append(ops, TxnOp{Kind: OpDelete, Key: accKey})
			}
			meta.DelAccount(account)
		}
		ops = append(ops, TxnOp{Kind: OpPut, Key: shareIDKey(id), Value: MustMarshal(meta)})

		txnReply, err := c.kv.Txn(ctx, TxnRequest{Condition: conditions, IfThen: ops})
		if err != nil {
			return false, err
		}
		return txnReply.Succeeded, nil
	})
	if err != nil {
		return nil, err
	}
	return &RemoveShareTenantsReply{}, nil
}

// GrantShareObject implements grant_share_object.
func (c *Catalog) GrantShareObject(ctx context.Context, req GrantShareObjectRequest) (*GrantShareObjectReply, error) {
	err := c.retryLoop(ctx, "grant_share_object", func(ctx context.Context) (bool, error) {
		nameSeq, id, err := c.kv.GetU64(ctx, shareNameKey(req.Tenant, req.ShareName))
		if err != nil {
			return false, err
		}
		if nameSeq == 0 {
			return false, &UnknownShareError{Tenant: req.Tenant, Name: req.ShareName}
		}
		metaSeq, meta, err := c.loadShareMeta(ctx, id)
		if err != nil {
			return false, err
		}

		seqAndID, err := c.resolver.Resolve(ctx, req.Tenant, req.Object)
		if err != nil {
			return false, err
		}
		if err := checkShareObject(meta.Database, seqAndID.Object); err != nil {
			return false, err
		}

		has, err := meta.HasGrantedPrivileges(seqAndID.Object, req.Privileges)
		if err != nil {
			return false, err
		}
		if has {
			return true, nil // no-op: already granted
		}

		shareObjKey := shareObjectKey(seqAndID.Object.CanonicalKey())
		var objIdx ObjectSharedByShareIds
		objSeq, found, err := c.kv.GetStruct(ctx, shareObjKey, &objIdx)
		if err != nil {
			return false, err
		}
		if !found {
			objIdx = *NewObjectSharedByShareIds()
		}
		objIdx.Add(id)

		if err := meta.GrantObjectPrivileges(seqAndID.Object, req.Privileges, req.GrantOn); err != nil {
			return false, err
		}
		meta.UpdateOn = req.GrantOn

		conditions := []TxnCondition{
			{Key: shareNameKey(req.Tenant, req.ShareName), Op: Eq, ExpectSeq: nameSeq},
			{Key: shareIDKey(id), Op: Eq, ExpectSeq: metaSeq},
			{Key: shareObjKey, Op: Eq, ExpectSeq: objSeq},
		}
		ops := []TxnOp{
			{Kind: OpPut, Key: shareIDKey(id), Value: MustMarshal(meta)},
			{Kind: OpPut, Key: shareObjKey, Value: MustMarshal(objIdx)},
		}

		if seqAndID.Object.Kind == GrantObjectDatabase {
			dbSeq, dbMeta, err := c.catalogSvc.GetDatabaseMeta(ctx, seqAndID.Object.DBID)
			if err != nil {
				return false, err
			}
			conditions = append(conditions, c.catalogSvc.DatabaseMetaCondition(seqAndID.Object.DBID, dbSeq))
			if _, shared := dbMeta.SharedBy[id]; !shared {
				if dbMeta.SharedBy == nil {
					dbMeta.SharedBy = map[uint64]struct{}{}
				}
				dbMeta.SharedBy[id] = struct{}{}
				ops = append(ops, c.catalogSvc.PutDatabaseMeta(ctx, seqAndID.Object.DBID, dbSeq, dbMeta))
			}
		} else {
			conditions = append(conditions, c.catalogSvc.TableMetaCondition(seqAndID.Object.TableID, seqAndID.TableMetaSeq))
		}

		txnReply, err := c.kv.Txn(ctx, TxnRequest{Condition: conditions, IfThen: ops})
		if err != nil {
			return false, err
		}
		return txnReply.Succeeded, nil
	})
	if err != nil {
		return nil, err
	}
	return &GrantShareObjectReply{}, nil
}

// RevokeShareObject implements revoke_share_object. When revoking a
// database grant, the DbMeta.shared_by put is always emitted, even if the
// share id was not present, mirroring the original's asymmetric behavior
// (see SPEC_FULL.md §9).
func (c *Catalog) RevokeShareObject(ctx context.Context, req RevokeShareObjectRequest) (*RevokeShareObjectReply, error) {
	err := c.retryLoop(ctx, "revoke_share_object", func(ctx context.Context) (bool, error) {
		nameSeq, id, err := c.kv.GetU64(ctx, shareNameKey(req.Tenant, req.ShareName))
		if err != nil {
			return false, err
		}
		if nameSeq == 0 {
			return false, &UnknownShareError{Tenant: req.Tenant, Name: req.ShareName}
		}
		metaSeq, meta, err := c.loadShareMeta(ctx, id)
		if err != nil {
			return false, err
		}

		seqAndID, err := c.resolver.Resolve(ctx, req.Tenant, req.Object)
		if err != nil {
			return false, err
		}

		has, err := meta.HasGrantedPrivileges(seqAndID.Object, req.Privileges)
		if err != nil {
			return false, err
		}
		if !has {
			return true, nil // no-op: nothing to revoke
		}

		if err := meta.RevokeObjectPrivileges(seqAndID.Object, req.Privileges, req.UpdateOn); err != nil {
			return false, err
		}
		meta.UpdateOn = req.UpdateOn

		shareObjKey := shareObjectKey(seqAndID.Object.CanonicalKey())
		var objIdx ObjectSharedByShareIds
		objSeq, found, err := c.kv.GetStruct(ctx, shareObjKey, &objIdx)
		if err != nil {
			return false, err
		}
		if !found {
			objIdx = *NewObjectSharedByShareIds()
		} else {
			objIdx.Remove(id)
		}

		conditions := []TxnCondition{
			{Key: shareNameKey(req.Tenant, req.ShareName), Op: Eq, ExpectSeq: nameSeq},
			{Key: shareIDKey(id), Op: Eq, ExpectSeq: metaSeq},
			{Key: shareObjKey, Op: Eq, ExpectSeq: objSeq},
		}
		ops := []TxnOp{
			{Kind: OpPut, Key: shareIDKey(id), Value: MustMarshal(meta)},
			{Kind: OpPut, Key: shareObjKey, Value: MustMarshal(objIdx)},
		}

		if seqAndID.Object.Kind == GrantObjectDatabase {
			dbSeq, dbMeta, err := c.catalogSvc.GetDatabaseMeta(ctx, seqAndID.Object.DBID)
			if err != nil {
				return false, err
			}
			conditions = append(conditions, c.catalogSvc.DatabaseMetaCondition(seqAndID.Object.DBID, dbSeq))
			delete(dbMeta.SharedBy, id)
			ops = append(ops, c.catalogSvc.PutDatabaseMeta(ctx, seqAndID.Object.DBID, dbSeq, dbMeta))
		} else {
			conditions = append(conditions, c.catalogSvc.TableMetaCondition(seqAndID.Object.TableID, seqAndID.TableMetaSeq))
		}

		txnReply, err := c.kv.Txn(ctx, TxnRequest{Condition: conditions, IfThen: ops})
		if err != nil {
			return false, err
		}
		return txnReply.Succeeded, nil
	})
	if err != nil {
		return nil, err
	}
	return &RevokeShareObjectReply{}, nil
}

// GetShareGrantObjects implements get_share_grant_objects. It is read-only
// and so is not wrapped in the retry loop — there is nothing to retry
// against, only a point-in-time view to assemble.
func (c *Catalog) GetShareGrantObjects(ctx context.Context, req GetShareGrantObjectsRequest) (*GetShareGrantObjectsReply, error) {
	seq, id, err := c.resolveShareID(ctx, req.Tenant, req.ShareName)
	if err != nil {
		return nil, err
	}
	if seq == 0 {
		return nil, &UnknownShareError{Tenant: req.Tenant, Name: req.ShareName}
	}
	_, meta, err := c.loadShareMeta(ctx, id)
	if err != nil {
		return nil, err
	}

	var out []ShareGrantObjectInfo
	if meta.Database != nil {
		if _, dbName, derr := c.catalogSvc.GetDatabaseName(ctx, meta.Database.Object.DBID); derr == nil {
			out = append(out, ShareGrantObjectInfo{
				Object:     meta.Database.Object,
				Name:       dbName,
				Privileges: meta.Database.Privileges,
				GrantOn:    meta.Database.GrantOn,
			})
		} else if !errors.Is(derr, catalog.ErrDatabaseNotFound) {
			return nil, derr
		}
	}

	for _, entry := range meta.Entries {
		dbID, tableName, terr := c.catalogSvc.GetTableName(ctx, entry.Object.TableID)
		if terr != nil {
			if errors.Is(terr, catalog.ErrTableNotFound) {
				continue
			}
			return nil, terr
		}
		_, dbName, derr := c.catalogSvc.GetDatabaseName(ctx, dbID)
		if derr != nil {
			if errors.Is(derr, catalog.ErrDatabaseNotFound) {
				continue
			}
			return nil, derr
		}
		out = append(out, ShareGrantObjectInfo{
			Object:     entry.Object,
			Name:       dbName + "." + tableName,
			Privileges: entry.Privileges,
			GrantOn:    entry.GrantOn,
		})
	}

	return &GetShareGrantObjectsReply{Objects: out}, nil
}

// GetGrantTenantsOfShare implements get_grant_tenants_of_share.
func (c *Catalog) GetGrantTenantsOfShare(ctx context.Context, req GetGrantTenantsOfShareRequest) (*GetGrantTenantsOfShareReply, error) {
	seq, id, err := c.resolveShareID(ctx, req.Tenant, req.ShareName)
	if err != nil {
		return nil, err
	}
	if seq == 0 {
		return nil, &UnknownShareError{Tenant: req.Tenant, Name: req.ShareName}
	}
	_, meta, err := c.loadShareMeta(ctx, id)
	if err != nil {
		return nil, err
	}
	return &GetGrantTenantsOfShareReply{Accounts: meta.GetAccounts()}, nil
}

// GetGrantPrivilegesOfObject implements get_grant_privileges_of_object.
func (c *Catalog) GetGrantPrivilegesOfObject(ctx context.Context, req GetGrantPrivilegesOfObjectRequest) (*GetGrantPrivilegesOfObjectReply, error) {
	seqAndID, err := c.resolver.Resolve(ctx, req.Tenant, req.Object)
	if err != nil {
		return nil, err
	}

	var objIdx ObjectSharedByShareIds
	_, found, err := c.kv.GetStruct(ctx, shareObjectKey(seqAndID.Object.CanonicalKey()), &objIdx)
	if err != nil {
		return nil, err
	}
	if !found {
		return &GetGrantPrivilegesOfObjectReply{}, nil
	}

	var grants []ShareGrantOfObject
	for shareID := range objIdx.ShareIDs {
		var ident ShareNameIdent
		_, found, err := c.kv.GetStruct(ctx, shareIDToNameKey(shareID), &ident)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		_, meta, err := c.loadShareMeta(ctx, shareID)
		if err != nil {
			continue
		}
		entry := meta.GetGrantEntry(seqAndID.Object)
		if entry == nil {
			continue
		}
		grants = append(grants, ShareGrantOfObject{
			ShareName:  ident.ShareName,
			Privileges: entry.Privileges,
			GrantOn:    entry.GrantOn,
		})
	}
	return &GetGrantPrivilegesOfObjectReply{Grants: grants}, nil
}

// ShowShares implements show_shares. Outbound entries whose metadata cannot
// be read are logged and dropped; inbound entries that cannot be resolved
// back to a share name are propagated as an error — the asymmetry matches
// the original implementation (see SPEC_FULL.md §9).
func (c *Catalog) ShowShares(ctx context.Context, req ShowSharesRequest) (*ShowSharesReply, error) {
	var reply ShowSharesReply

	outbound, err := c.kv.ListKeys(ctx, shareNameListPrefix(req.Tenant))
	if err != nil {
		return nil, err
	}
	prefix := shareNameListPrefix(req.Tenant)
	for _, entry := range outbound {
		id, perr := strconv.ParseUint(string(entry.Value), 10, 64)
		if perr != nil {
			c.logger.WithError(perr).WithField("key", entry.Key).Warn("sharecatalog: dropping unparseable share_name entry")
			continue
		}
		_, meta, merr := c.loadShareMeta(ctx, id)
		if merr != nil {
			c.logger.WithError(merr).WithField("share_id", id).Warn("sharecatalog: dropping unreadable outbound share")
			continue
		}
		info := OutboundShareInfo{
			ShareName: strings.TrimPrefix(entry.Key, prefix),
			Accounts:  meta.GetAccounts(),
		}
		if meta.Database != nil {
			if _, dbName, derr := c.catalogSvc.GetDatabaseName(ctx, meta.Database.Object.DBID); derr == nil {
				info.Database = dbName
			}
		}
		reply.OutboundAccounts = append(reply.OutboundAccounts, info)
	}

	inbound, err := c.kv.ListKeys(ctx, shareAccountListPrefix(req.Tenant))
	if err != nil {
		return nil, err
	}
	for _, entry := range inbound {
		var acctMeta ShareAccountMeta
		if err := json.Unmarshal(entry.Value, &acctMeta); err != nil {
			return nil, err
		}

		var ident ShareNameIdent
		_, found, err := c.kv.GetStruct(ctx, shareIDToNameKey(acctMeta.ShareID), &ident)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, &UnknownShareIDError{ShareID: acctMeta.ShareID}
		}
		reply.InboundAccounts = append(reply.InboundAccounts, InboundShareInfo{
			ShareName:   ident.ShareName,
			OwnerTenant: ident.Tenant,
		})
	}

	return &reply, nil
}
