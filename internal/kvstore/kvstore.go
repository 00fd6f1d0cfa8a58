// Package kvstore is the KV Adapter of SPEC_FULL.md §4.1: a small,
// engine-agnostic capability set (GetU64/GetStruct/ListKeys/FetchID/Txn)
// shared by internal/catalog and internal/sharecatalog, grounded on
// internal/metadata's RawKVStore capability (GetRaw/PutRaw/RawBatch/RawScan)
// and BadgerStore implementation. It lives in its own package so both
// consumers can depend on the interface without depending on each other.
package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

// CompareOp is the predicate used by a TxnCondition. The core only ever
// needs equality on a key's sequence number, but the type is kept open so a
// future backend swap is not a breaking change.
type CompareOp int

// Eq is the only comparison the core issues: seq == expected.
const Eq CompareOp = 0

// TxnCondition pins the sequence number a transaction expects a key to
// have. A seq of 0 means "the key must be absent".
type TxnCondition struct {
	Key       string
	Op        CompareOp
	ExpectSeq uint64
}

// TxnOpKind distinguishes a put from a delete inside a TxnRequest.
type TxnOpKind int

const (
	OpPut TxnOpKind = iota
	OpDelete
)

// TxnOp is one write inside a TxnRequest's if_then/else_then list.
type TxnOp struct {
	Kind  TxnOpKind
	Key   string
	Value []byte // ignored for OpDelete
}

// TxnRequest is a single atomic conditional multi-write: if every Condition
// holds, every IfThen op applies; otherwise every ElseThen op applies.
// Either branch may be empty.
type TxnRequest struct {
	Condition []TxnCondition
	IfThen    []TxnOp
	ElseThen  []TxnOp
}

// TxnReply reports which branch ran.
type TxnReply struct {
	Succeeded bool
}

// Entry is one (key, seq, value) triple returned by ListKeys.
type Entry struct {
	Key   string
	Seq   uint64
	Value []byte
}

// KV is the capability set consumed by the share catalog and the catalog
// packages. It is taken by reference everywhere so both are generic over
// whatever engine implements it — no inheritance hierarchy, per the
// "dynamic dispatch over KV backends" design note.
type KV interface {
	// GetU64 returns (0, 0, nil) if the key is absent.
	GetU64(ctx context.Context, key string) (seq uint64, val uint64, err error)

	// GetStruct decodes the stored envelope into out. found is false if the
	// key is absent; out is left untouched in that case.
	GetStruct(ctx context.Context, key string, out any) (seq uint64, found bool, err error)

	// ListKeys returns every entry whose key has the given prefix, in
	// lexicographic order.
	ListKeys(ctx context.Context, prefix string) ([]Entry, error)

	// FetchID atomically allocates the next value from a named counter.
	// It never returns the same value twice, even across process restarts.
	FetchID(ctx context.Context, generator string) (uint64, error)

	// Txn performs a single atomic conditional multi-write.
	Txn(ctx context.Context, req TxnRequest) (TxnReply, error)
}

// envelope is the on-disk wrapper giving every value a sequence number,
// since BadgerDB itself exposes no per-key version counter to callers.
type envelope struct {
	Seq  uint64          `json:"seq"`
	Data json.RawMessage `json:"data"`
}

// BadgerKV implements KV on top of a BadgerDB handle. One db.Update call
// backs one Txn call, so condition checks and writes happen inside the same
// serializable BadgerDB transaction — there is no window in which a
// concurrent writer could invalidate a condition after it was checked here.
type BadgerKV struct {
	db     *badger.DB
	logger *logrus.Logger
}

// NewBadgerKV wraps an already-open BadgerDB handle.
func NewBadgerKV(db *badger.DB, logger *logrus.Logger) *BadgerKV {
	if logger == nil {
		logger = logrus.New()
	}
	return &BadgerKV{db: db, logger: logger}
}

func readEnvelope(txn *badger.Txn, key string) (envelope, bool, error) {
	item, err := txn.Get([]byte(key))
	if err == badger.ErrKeyNotFound {
		return envelope{}, false, nil
	}
	if err != nil {
		return envelope{}, false, fmt.Errorf("read %q: %w", key, err)
	}

	var env envelope
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &env)
	})
	if err != nil {
		return envelope{}, false, fmt.Errorf("decode %q: %w", key, err)
	}
	return env, true, nil
}

func writeEnvelope(txn *badger.Txn, key string, nextSeq uint64, data []byte) error {
	env := envelope{Seq: nextSeq, Data: json.RawMessage(data)}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	return txn.Set([]byte(key), raw)
}

// GetU64 reads a uint64 counter value.
func (b *BadgerKV) GetU64(ctx context.Context, key string) (uint64, uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	var seq, val uint64
	err := b.db.View(func(txn *badger.Txn) error {
		env, found, err := readEnvelope(txn, key)
		if err != nil || !found {
			return err
		}
		seq = env.Seq
		n, perr := strconv.ParseUint(string(env.Data), 10, 64)
		if perr != nil {
			return fmt.Errorf("parse u64 %q: %w", key, perr)
		}
		val = n
		return nil
	})
	return seq, val, err
}

// GetStruct decodes the JSON-encoded value stored at key into out.
func (b *BadgerKV) GetStruct(ctx context.Context, key string, out any) (uint64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	var seq uint64
	var found bool
	err := b.db.View(func(txn *badger.Txn) error {
		env, ok, err := readEnvelope(txn, key)
		if err != nil || !ok {
			found = ok
			return err
		}
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("unmarshal %q: %w", key, err)
		}
		seq = env.Seq
		found = true
		return nil
	})
	return seq, found, err
}

// ListKeys scans every key under prefix, in lexicographic order.
func (b *BadgerKV) ListKeys(ctx context.Context, prefix string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var entries []Entry
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			item := it.Item()
			key := string(item.KeyCopy(nil))

			var env envelope
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &env)
			})
			if err != nil {
				return fmt.Errorf("decode %q: %w", key, err)
			}

			entries = append(entries, Entry{Key: key, Seq: env.Seq, Value: env.Data})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

const idGenPrefix = "_id_gen/"

// FetchID performs a tiny internal CAS loop against the reserved counter
// key. It is itself expressed as a Txn so the only place concurrency is
// handled is the Txn implementation below.
func (b *BadgerKV) FetchID(ctx context.Context, generator string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	key := idGenPrefix + generator

	for {
		seq, cur, err := b.GetU64(ctx, key)
		if err != nil {
			return 0, err
		}
		next := cur + 1

		reply, err := b.Txn(ctx, TxnRequest{
			Condition: []TxnCondition{{Key: key, Op: Eq, ExpectSeq: seq}},
			IfThen: []TxnOp{
				{Kind: OpPut, Key: key, Value: []byte(strconv.FormatUint(next, 10))},
			},
		})
		if err != nil {
			return 0, err
		}
		if reply.Succeeded {
			return next, nil
		}
		// lost the race against a concurrent allocator; retry with fresh seq
	}
}

// Txn applies req atomically inside a single BadgerDB transaction.
func (b *BadgerKV) Txn(ctx context.Context, req TxnRequest) (TxnReply, error) {
	if err := ctx.Err(); err != nil {
		return TxnReply{}, err
	}
	var reply TxnReply

	err := b.db.Update(func(txn *badger.Txn) error {
		ok := true
		for _, cond := range req.Condition {
			env, found, err := readEnvelope(txn, cond.Key)
			if err != nil {
				return err
			}
			seq := uint64(0)
			if found {
				seq = env.Seq
			}
			if seq != cond.ExpectSeq {
				ok = false
				break
			}
		}

		ops := req.IfThen
		if !ok {
			ops = req.ElseThen
		}

		for _, op := range ops {
			switch op.Kind {
			case OpPut:
				env, found, err := readEnvelope(txn, op.Key)
				if err != nil {
					return err
				}
				next := uint64(1)
				if found {
					next = env.Seq + 1
				}
				if err := writeEnvelope(txn, op.Key, next, op.Value); err != nil {
					return err
				}
			case OpDelete:
				if err := txn.Delete([]byte(op.Key)); err != nil && err != badger.ErrKeyNotFound {
					return fmt.Errorf("delete %q: %w", op.Key, err)
				}
			}
		}

		reply.Succeeded = ok
		return nil
	})
	if err != nil {
		if errors.Is(err, badger.ErrConflict) {
			// BadgerDB's own SSI conflict detection fired on commit, not one
			// of our seq conditions: treat it the same as a condition miss
			// so the caller's retryLoop re-reads and retries, matching
			// spec.md §5's "any concurrent writer ... forces a retry".
			b.logger.WithField("op", "txn").Debug("kvstore: badger SSI conflict, signaling retry")
			return TxnReply{Succeeded: false}, nil
		}
		b.logger.WithError(err).Debug("kvstore: txn failed")
		return TxnReply{}, err
	}
	return reply, nil
}

// EncodeU64 formats a uint64 as the raw value stored by a u64 counter key.
func EncodeU64(v uint64) []byte {
	return []byte(strconv.FormatUint(v, 10))
}

// MustMarshal JSON-encodes v, panicking only on a programmer error (a type
// that cannot be marshaled at all) — every struct using this helper is
// plain data and always encodes cleanly.
func MustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("kvstore: unencodable value: %v", err))
	}
	return data
}
