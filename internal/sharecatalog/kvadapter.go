// Package sharecatalog implements the transactional, strongly-consistent
// metadata subsystem for cross-tenant data shares (see SPEC_FULL.md).
package sharecatalog

import "github.com/shareforge/metastore/internal/kvstore"

// The KV Adapter's types live in internal/kvstore so internal/catalog can
// depend on the same capability set without importing this package (which
// itself depends on internal/catalog for the Object Resolver). Aliased here
// so the rest of this package can keep writing the short names SPEC_FULL.md
// §4.1 uses.
type (
	KV           = kvstore.KV
	TxnRequest   = kvstore.TxnRequest
	TxnReply     = kvstore.TxnReply
	TxnCondition = kvstore.TxnCondition
	TxnOp        = kvstore.TxnOp
	TxnOpKind    = kvstore.TxnOpKind
	CompareOp    = kvstore.CompareOp
	KVEntry      = kvstore.Entry
	BadgerKV     = kvstore.BadgerKV
)

const (
	Eq       = kvstore.Eq
	OpPut    = kvstore.OpPut
	OpDelete = kvstore.OpDelete
)

var (
	NewBadgerKV = kvstore.NewBadgerKV
	EncodeU64   = kvstore.EncodeU64
	MustMarshal = kvstore.MustMarshal
)
