package kvstore

import (
	"context"
	"testing"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestKV(t *testing.T) *BadgerKV {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	opts := badger.DefaultOptions(t.TempDir()).WithLogger(nil)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewBadgerKV(db, logger)
}

func TestGetU64MissingKey(t *testing.T) {
	kv := setupTestKV(t)
	ctx := context.Background()

	seq, val, err := kv.GetU64(ctx, "missing")
	require.NoError(t, err)
	assert.Zero(t, seq)
	assert.Zero(t, val)
}

func TestTxnPutThenGetStruct(t *testing.T) {
	kv := setupTestKV(t)
	ctx := context.Background()

	type widget struct {
		Name string `json:"name"`
	}

	reply, err := kv.Txn(ctx, TxnRequest{
		Condition: []TxnCondition{{Key: "w/1", Op: Eq, ExpectSeq: 0}},
		IfThen:    []TxnOp{{Kind: OpPut, Key: "w/1", Value: MustMarshal(widget{Name: "bolt"})}},
	})
	require.NoError(t, err)
	assert.True(t, reply.Succeeded)

	var got widget
	seq, found, err := kv.GetStruct(ctx, "w/1", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, uint64(1), seq)
	assert.Equal(t, "bolt", got.Name)
}

func TestTxnConditionFailureTakesElseThen(t *testing.T) {
	kv := setupTestKV(t)
	ctx := context.Background()

	reply, err := kv.Txn(ctx, TxnRequest{
		Condition: []TxnCondition{{Key: "missing", Op: Eq, ExpectSeq: 5}},
		IfThen:    []TxnOp{{Kind: OpPut, Key: "should-not-exist", Value: EncodeU64(1)}},
		ElseThen:  []TxnOp{{Kind: OpPut, Key: "conflict-marker", Value: EncodeU64(1)}},
	})
	require.NoError(t, err)
	assert.False(t, reply.Succeeded)

	seq, _, err := kv.GetU64(ctx, "should-not-exist")
	require.NoError(t, err)
	assert.Zero(t, seq)

	seq, _, err = kv.GetU64(ctx, "conflict-marker")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)
}

func TestFetchIDMonotonic(t *testing.T) {
	kv := setupTestKV(t)
	ctx := context.Background()

	first, err := kv.FetchID(ctx, "widget_id")
	require.NoError(t, err)
	second, err := kv.FetchID(ctx, "widget_id")
	require.NoError(t, err)
	third, err := kv.FetchID(ctx, "widget_id")
	require.NoError(t, err)

	assert.Equal(t, uint64(1), first)
	assert.Equal(t, uint64(2), second)
	assert.Equal(t, uint64(3), third)
}

func TestListKeysPrefixScan(t *testing.T) {
	kv := setupTestKV(t)
	ctx := context.Background()

	for _, k := range []string{"p/a", "p/b", "p/c", "q/a"} {
		_, err := kv.Txn(ctx, TxnRequest{
			Condition: []TxnCondition{{Key: k, Op: Eq, ExpectSeq: 0}},
			IfThen:    []TxnOp{{Kind: OpPut, Key: k, Value: EncodeU64(1)}},
		})
		require.NoError(t, err)
	}

	entries, err := kv.ListKeys(ctx, "p/")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for _, e := range entries {
		assert.Equal(t, uint64(1), e.Seq)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	kv := setupTestKV(t)
	ctx := context.Background()

	reply, err := kv.Txn(ctx, TxnRequest{
		IfThen: []TxnOp{{Kind: OpDelete, Key: "never-existed"}},
	})
	require.NoError(t, err)
	assert.True(t, reply.Succeeded)
}
