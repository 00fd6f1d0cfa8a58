package sharecatalog

import (
	"context"
	"errors"

	"github.com/shareforge/metastore/internal/catalog"
)

// ObjectName is the surface syntax an operation receives: either a bare
// database name or a "db.table" pair.
type ObjectName struct {
	Database string
	Table    string // empty for a database-only reference
}

// IsTable reports whether the name refers to a table.
func (n ObjectName) IsTable() bool { return n.Table != "" }

// ShareGrantObjectSeqAndId carries every sequence number the final
// transaction needs to pin the external record in its conditions, per
// SPEC_FULL.md §4.4.
type ShareGrantObjectSeqAndId struct {
	Object      ShareGrantObject
	DBMetaSeq   uint64 // always populated: the parent (or own) database's DbMeta seq
	TableMetaSeq uint64 // populated only when Object.Kind == GrantObjectTable
}

// Resolver translates object names into sequenced object ids plus the
// ambient DbMeta/TableMeta needed for transaction conditions. It depends
// only on internal/catalog, which in turn depends only on the shared
// kvstore.KV capability — not on sharecatalog itself.
type Resolver struct {
	catalog *catalog.Catalog
}

// NewResolver builds a Resolver over cat.
func NewResolver(cat *catalog.Catalog) *Resolver {
	return &Resolver{catalog: cat}
}

// Resolve implements SPEC_FULL.md §4.4 exactly.
func (r *Resolver) Resolve(ctx context.Context, tenant string, name ObjectName) (ShareGrantObjectSeqAndId, error) {
	_, dbID, err := r.catalog.ResolveDatabaseID(ctx, tenant, name.Database)
	if err != nil {
		if errors.Is(err, catalog.ErrDatabaseNotFound) {
			return ShareGrantObjectSeqAndId{}, &UnknownDatabaseError{Name: name.Database}
		}
		return ShareGrantObjectSeqAndId{}, err
	}
	dbMetaSeq, _, err := r.catalog.GetDatabaseMeta(ctx, dbID)
	if err != nil {
		if errors.Is(err, catalog.ErrDatabaseNotFound) {
			return ShareGrantObjectSeqAndId{}, &UnknownDatabaseError{Name: name.Database}
		}
		return ShareGrantObjectSeqAndId{}, err
	}

	if !name.IsTable() {
		return ShareGrantObjectSeqAndId{
			Object:    ShareGrantObject{Kind: GrantObjectDatabase, DBID: dbID},
			DBMetaSeq: dbMetaSeq,
		}, nil
	}

	_, tableID, err := r.catalog.ResolveTableID(ctx, dbID, name.Table)
	if err != nil {
		if errors.Is(err, catalog.ErrTableNotFound) {
			return ShareGrantObjectSeqAndId{}, &UnknownTableError{DB: name.Database, Table: name.Table}
		}
		return ShareGrantObjectSeqAndId{}, err
	}
	tableMetaSeq, _, err := r.catalog.GetTableMeta(ctx, tableID)
	if err != nil {
		if errors.Is(err, catalog.ErrTableNotFound) {
			return ShareGrantObjectSeqAndId{}, &UnknownTableError{DB: name.Database, Table: name.Table}
		}
		return ShareGrantObjectSeqAndId{}, err
	}

	return ShareGrantObjectSeqAndId{
		Object:       ShareGrantObject{Kind: GrantObjectTable, DBID: dbID, TableID: tableID},
		DBMetaSeq:    dbMetaSeq,
		TableMetaSeq: tableMetaSeq,
	}, nil
}

// parentDBID returns the db_id a resolved object belongs to, whether it is
// itself a database or a table.
func (s ShareGrantObjectSeqAndId) parentDBID() uint64 { return s.Object.DBID }
