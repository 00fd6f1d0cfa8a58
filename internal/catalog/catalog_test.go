package catalog

import (
	"context"
	"testing"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/shareforge/metastore/internal/kvstore"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	opts := badger.DefaultOptions(t.TempDir()).WithLogger(nil)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return New(kvstore.NewBadgerKV(db, logger), logger)
}

func TestCreateAndResolveDatabase(t *testing.T) {
	cat := setupTestCatalog(t)
	ctx := context.Background()

	id, err := cat.CreateDatabase(ctx, "tenant1", "sales", "quarterly figures")
	require.NoError(t, err)
	assert.NotZero(t, id)

	_, gotID, err := cat.ResolveDatabaseID(ctx, "tenant1", "sales")
	require.NoError(t, err)
	assert.Equal(t, id, gotID)

	tenant, name, err := cat.GetDatabaseName(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "tenant1", tenant)
	assert.Equal(t, "sales", name)
}

func TestCreateDatabaseAlreadyExists(t *testing.T) {
	cat := setupTestCatalog(t)
	ctx := context.Background()

	_, err := cat.CreateDatabase(ctx, "tenant1", "sales", "")
	require.NoError(t, err)

	_, err = cat.CreateDatabase(ctx, "tenant1", "sales", "")
	assert.ErrorIs(t, err, ErrDatabaseAlreadyExists)
}

func TestResolveDatabaseIDNotFound(t *testing.T) {
	cat := setupTestCatalog(t)
	ctx := context.Background()

	_, _, err := cat.ResolveDatabaseID(ctx, "tenant1", "nope")
	assert.ErrorIs(t, err, ErrDatabaseNotFound)
}

func TestCreateAndResolveTable(t *testing.T) {
	cat := setupTestCatalog(t)
	ctx := context.Background()

	dbID, err := cat.CreateDatabase(ctx, "tenant1", "sales", "")
	require.NoError(t, err)

	tblID, err := cat.CreateTable(ctx, dbID, "orders", "")
	require.NoError(t, err)
	assert.NotZero(t, tblID)

	_, gotID, err := cat.ResolveTableID(ctx, dbID, "orders")
	require.NoError(t, err)
	assert.Equal(t, tblID, gotID)

	gotDBID, name, err := cat.GetTableName(ctx, tblID)
	require.NoError(t, err)
	assert.Equal(t, dbID, gotDBID)
	assert.Equal(t, "orders", name)
}

func TestPutDatabaseMetaRoundTrip(t *testing.T) {
	cat := setupTestCatalog(t)
	ctx := context.Background()

	dbID, err := cat.CreateDatabase(ctx, "tenant1", "sales", "")
	require.NoError(t, err)

	seq, meta, err := cat.GetDatabaseMeta(ctx, dbID)
	require.NoError(t, err)
	meta.SharedBy = map[uint64]struct{}{42: {}}

	op := cat.PutDatabaseMeta(ctx, dbID, seq, meta)
	cond := cat.DatabaseMetaCondition(dbID, seq)

	reply, err := cat.kv.Txn(ctx, kvstore.TxnRequest{
		Condition: []kvstore.TxnCondition{cond},
		IfThen:    []kvstore.TxnOp{op},
	})
	require.NoError(t, err)
	assert.True(t, reply.Succeeded)

	_, updated, err := cat.GetDatabaseMeta(ctx, dbID)
	require.NoError(t, err)
	_, shared := updated.SharedBy[42]
	assert.True(t, shared)
}
