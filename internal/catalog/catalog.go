// Package catalog is a minimal stand-in for "the database catalog"
// mentioned in SPEC_FULL.md §1/§3 as an external collaborator: it owns
// DatabaseMeta/TableMeta and the name<->id key spaces the share catalog's
// Object Resolver reads from. It is deliberately thin — create/get database,
// create/get table, nothing else — since the SQL planner, DDL execution,
// and full catalog feature set are out of this repository's scope.
//
// Grounded on internal/bucket's CRUD-over-metadata.Store shape, adapted to
// use the same kvstore.KV capability set as the share catalog (see
// SPEC_FULL.md §9's dynamic-dispatch design note). The share catalog's
// Object Resolver reads through a *Catalog from this package.
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/shareforge/metastore/internal/kvstore"
	"github.com/sirupsen/logrus"
)

// Sentinel errors, in the idiom of internal/bucket/types.go.
var (
	ErrDatabaseNotFound      = fmt.Errorf("database not found")
	ErrDatabaseAlreadyExists = fmt.Errorf("database already exists")
	ErrTableNotFound         = fmt.Errorf("table not found")
	ErrTableAlreadyExists    = fmt.Errorf("table already exists")
)

// DatabaseMeta is the authoritative state of a database. SharedBy is the
// one field the share catalog is allowed to mutate (I6).
type DatabaseMeta struct {
	CreatedOn time.Time           `json:"created_on"`
	Comment   string              `json:"comment,omitempty"`
	SharedBy  map[uint64]struct{} `json:"shared_by,omitempty"`
}

// TableMeta is the authoritative state of a table. The share catalog only
// ever reads a TableMeta record's seq (via GetStruct) to pin it in transaction
// conditions; it never mutates a TableMeta.
type TableMeta struct {
	CreatedOn time.Time `json:"created_on"`
	Comment   string    `json:"comment,omitempty"`
}

func dbNameKey(tenant, name string) string      { return fmt.Sprintf("db_name/%s/%s", tenant, name) }
func dbIDKey(id uint64) string                  { return fmt.Sprintf("db_id/%d", id) }
func dbIDToNameKey(id uint64) string            { return fmt.Sprintf("db_id_to_name/%d", id) }
func tableNameKey(dbID uint64, name string) string {
	return fmt.Sprintf("tbl_name/%d/%s", dbID, name)
}
func tableIDKey(id uint64) string       { return fmt.Sprintf("tbl_id/%d", id) }
func tableIDToNameKey(id uint64) string { return fmt.Sprintf("tbl_id_to_name/%d", id) }

const (
	idGenDatabaseID = "db_id"
	idGenTableID    = "table_id"
)

// Catalog is the minimal database/table metadata service.
type Catalog struct {
	kv     kvstore.KV
	logger *logrus.Logger
}

// New constructs a Catalog over the given KV capability set.
func New(kv kvstore.KV, logger *logrus.Logger) *Catalog {
	if logger == nil {
		logger = logrus.New()
	}
	return &Catalog{kv: kv, logger: logger}
}

// dbNameIdent mirrors sharecatalog's name->id records for reverse lookup.
type dbNameIdent struct {
	Tenant string `json:"tenant"`
	Name   string `json:"name"`
}

type tableNameIdent struct {
	DBID uint64 `json:"db_id"`
	Name string `json:"name"`
}

// CreateDatabase allocates a fresh db_id and stores the three records
// (forward name, meta, reverse name), matching the create_share pattern of
// SPEC_FULL.md §4.5.
func (c *Catalog) CreateDatabase(ctx context.Context, tenant, name, comment string) (uint64, error) {
	nameKey := dbNameKey(tenant, name)
	seq, _, err := c.kv.GetU64(ctx, nameKey)
	if err != nil {
		return 0, err
	}
	if seq != 0 {
		return 0, ErrDatabaseAlreadyExists
	}

	id, err := c.kv.FetchID(ctx, idGenDatabaseID)
	if err != nil {
		return 0, err
	}

	meta := DatabaseMeta{CreatedOn: time.Now().UTC(), Comment: comment}
	reply, err := c.kv.Txn(ctx, kvstore.TxnRequest{
		Condition: []kvstore.TxnCondition{
			{Key: nameKey, Op: kvstore.Eq, ExpectSeq: 0},
			{Key: dbIDKey(id), Op: kvstore.Eq, ExpectSeq: 0},
		},
		IfThen: []kvstore.TxnOp{
			{Kind: kvstore.OpPut, Key: nameKey, Value: kvstore.EncodeU64(id)},
			{Kind: kvstore.OpPut, Key: dbIDKey(id), Value: kvstore.MustMarshal(meta)},
			{Kind: kvstore.OpPut, Key: dbIDToNameKey(id), Value: kvstore.MustMarshal(dbNameIdent{Tenant: tenant, Name: name})},
		},
	})
	if err != nil {
		return 0, err
	}
	if !reply.Succeeded {
		return 0, ErrDatabaseAlreadyExists
	}
	return id, nil
}

// ResolveDatabaseID resolves a database name to its id and current seq.
func (c *Catalog) ResolveDatabaseID(ctx context.Context, tenant, name string) (seq, id uint64, err error) {
	s, v, err := c.kv.GetU64(ctx, dbNameKey(tenant, name))
	if err != nil {
		return 0, 0, err
	}
	if s == 0 {
		return 0, 0, ErrDatabaseNotFound
	}
	return s, v, nil
}

// GetDatabaseMeta reads a database's metadata and its sequence number.
func (c *Catalog) GetDatabaseMeta(ctx context.Context, id uint64) (uint64, *DatabaseMeta, error) {
	var meta DatabaseMeta
	seq, found, err := c.kv.GetStruct(ctx, dbIDKey(id), &meta)
	if err != nil {
		return 0, nil, err
	}
	if !found {
		return 0, nil, ErrDatabaseNotFound
	}
	return seq, &meta, nil
}

// GetDatabaseName resolves a database id back to its (tenant, name).
func (c *Catalog) GetDatabaseName(ctx context.Context, id uint64) (string, string, error) {
	var ident dbNameIdent
	_, found, err := c.kv.GetStruct(ctx, dbIDToNameKey(id), &ident)
	if err != nil {
		return "", "", err
	}
	if !found {
		return "", "", ErrDatabaseNotFound
	}
	return ident.Tenant, ident.Name, nil
}

// PutDatabaseMeta builds the put op that writes back meta, used by the share
// catalog to mutate DatabaseMeta.SharedBy (I6). The op carries no condition
// of its own: the caller pins seq with DatabaseMetaCondition in the same
// TxnRequest so the write cannot race a concurrent catalog-side update.
func (c *Catalog) PutDatabaseMeta(ctx context.Context, id, seq uint64, meta *DatabaseMeta) kvstore.TxnOp {
	return kvstore.TxnOp{Kind: kvstore.OpPut, Key: dbIDKey(id), Value: kvstore.MustMarshal(meta)}
}

// DatabaseMetaCondition pins id's current seq in a caller-built TxnRequest.
func (c *Catalog) DatabaseMetaCondition(id, seq uint64) kvstore.TxnCondition {
	return kvstore.TxnCondition{Key: dbIDKey(id), Op: kvstore.Eq, ExpectSeq: seq}
}

// CreateTable allocates a fresh table_id under dbID.
func (c *Catalog) CreateTable(ctx context.Context, dbID uint64, name, comment string) (uint64, error) {
	nameKey := tableNameKey(dbID, name)
	seq, _, err := c.kv.GetU64(ctx, nameKey)
	if err != nil {
		return 0, err
	}
	if seq != 0 {
		return 0, ErrTableAlreadyExists
	}

	id, err := c.kv.FetchID(ctx, idGenTableID)
	if err != nil {
		return 0, err
	}

	meta := TableMeta{CreatedOn: time.Now().UTC(), Comment: comment}
	reply, err := c.kv.Txn(ctx, kvstore.TxnRequest{
		Condition: []kvstore.TxnCondition{
			{Key: nameKey, Op: kvstore.Eq, ExpectSeq: 0},
			{Key: tableIDKey(id), Op: kvstore.Eq, ExpectSeq: 0},
		},
		IfThen: []kvstore.TxnOp{
			{Kind: kvstore.OpPut, Key: nameKey, Value: kvstore.EncodeU64(id)},
			{Kind: kvstore.OpPut, Key: tableIDKey(id), Value: kvstore.MustMarshal(meta)},
			{Kind: kvstore.OpPut, Key: tableIDToNameKey(id), Value: kvstore.MustMarshal(tableNameIdent{DBID: dbID, Name: name})},
		},
	})
	if err != nil {
		return 0, err
	}
	if !reply.Succeeded {
		return 0, ErrTableAlreadyExists
	}
	return id, nil
}

// ResolveTableID resolves a table name (scoped to dbID) to its id.
func (c *Catalog) ResolveTableID(ctx context.Context, dbID uint64, name string) (seq, id uint64, err error) {
	s, v, err := c.kv.GetU64(ctx, tableNameKey(dbID, name))
	if err != nil {
		return 0, 0, err
	}
	if s == 0 {
		return 0, 0, ErrTableNotFound
	}
	return s, v, nil
}

// GetTableMeta reads a table's metadata and its sequence number. The share
// catalog's resolver uses only the seq, to pin its condition; it ignores the
// payload.
func (c *Catalog) GetTableMeta(ctx context.Context, id uint64) (uint64, *TableMeta, error) {
	var meta TableMeta
	seq, found, err := c.kv.GetStruct(ctx, tableIDKey(id), &meta)
	if err != nil {
		return 0, nil, err
	}
	if !found {
		return 0, nil, ErrTableNotFound
	}
	return seq, &meta, nil
}

// GetTableName resolves a table id back to its (db_id, name).
func (c *Catalog) GetTableName(ctx context.Context, id uint64) (uint64, string, error) {
	var ident tableNameIdent
	_, found, err := c.kv.GetStruct(ctx, tableIDToNameKey(id), &ident)
	if err != nil {
		return 0, "", err
	}
	if !found {
		return 0, "", ErrTableNotFound
	}
	return ident.DBID, ident.Name, nil
}

// TableMetaCondition pins id's current seq in a caller-built TxnRequest.
func (c *Catalog) TableMetaCondition(id, seq uint64) kvstore.TxnCondition {
	return kvstore.TxnCondition{Key: tableIDKey(id), Op: kvstore.Eq, ExpectSeq: seq}
}
