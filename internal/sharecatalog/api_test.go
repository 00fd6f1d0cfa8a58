package sharecatalog

import (
	"context"
	"sync"
	"testing"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/shareforge/metastore/internal/catalog"
	"github.com/shareforge/metastore/internal/kvstore"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testHarness struct {
	cat  *catalog.Catalog
	sc   *Catalog
}

func setupTestCatalog(t *testing.T) testHarness {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	opts := badger.DefaultOptions(t.TempDir()).WithLogger(nil)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	kv := kvstore.NewBadgerKV(db, logger)
	cat := catalog.New(kv, logger)
	sc := NewCatalog(kv, cat, Options{MaxRetryTimes: DefaultMaxRetryTimes}, logger, NewMetrics())
	return testHarness{cat: cat, sc: sc}
}

func TestCreateShareThenDuplicateFails(t *testing.T) {
	h := setupTestCatalog(t)
	ctx := context.Background()
	now := time.Now().UTC()

	reply, err := h.sc.CreateShare(ctx, CreateShareRequest{Tenant: "acme", ShareName: "partners", CreateOn: now})
	require.NoError(t, err)
	assert.NotZero(t, reply.ShareID)

	_, err = h.sc.CreateShare(ctx, CreateShareRequest{Tenant: "acme", ShareName: "partners", CreateOn: now})
	var alreadyExists *ShareAlreadyExistsError
	require.ErrorAs(t, err, &alreadyExists)
}

func TestCreateShareIfNotExistsReturnsExisting(t *testing.T) {
	h := setupTestCatalog(t)
	ctx := context.Background()
	now := time.Now().UTC()

	first, err := h.sc.CreateShare(ctx, CreateShareRequest{Tenant: "acme", ShareName: "partners", CreateOn: now})
	require.NoError(t, err)

	second, err := h.sc.CreateShare(ctx, CreateShareRequest{Tenant: "acme", ShareName: "partners", CreateOn: now, IfNotExists: true})
	require.NoError(t, err)
	assert.Equal(t, first.ShareID, second.ShareID)
}

func TestDropShareUnknown(t *testing.T) {
	h := setupTestCatalog(t)
	ctx := context.Background()

	_, err := h.sc.DropShare(ctx, DropShareRequest{Tenant: "acme", ShareName: "nope"})
	var unknown *UnknownShareError
	require.ErrorAs(t, err, &unknown)

	_, err = h.sc.DropShare(ctx, DropShareRequest{Tenant: "acme", ShareName: "nope", IfExists: true})
	require.NoError(t, err)
}

func TestDropShareRemovesAccountRecords(t *testing.T) {
	h := setupTestCatalog(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := h.sc.CreateShare(ctx, CreateShareRequest{Tenant: "acme", ShareName: "partners", CreateOn: now})
	require.NoError(t, err)
	_, err = h.sc.AddShareTenants(ctx, AddShareTenantsRequest{Tenant: "acme", ShareName: "partners", Accounts: []string{"globex"}, ShareOn: now})
	require.NoError(t, err)

	_, err = h.sc.DropShare(ctx, DropShareRequest{Tenant: "acme", ShareName: "partners"})
	require.NoError(t, err)

	show, err := h.sc.ShowShares(ctx, ShowSharesRequest{Tenant: "globex"})
	require.NoError(t, err)
	assert.Empty(t, show.InboundAccounts)
}

func TestAddShareTenantsRejectsSelfAndDuplicates(t *testing.T) {
	h := setupTestCatalog(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := h.sc.CreateShare(ctx, CreateShareRequest{Tenant: "acme", ShareName: "partners", CreateOn: now})
	require.NoError(t, err)

	// Granting the owner itself is silently dropped, leaving nothing fresh.
	_, err = h.sc.AddShareTenants(ctx, AddShareTenantsRequest{Tenant: "acme", ShareName: "partners", Accounts: []string{"acme"}, ShareOn: now})
	var alreadyExists *ShareAccountsAlreadyExistsError
	require.ErrorAs(t, err, &alreadyExists)

	_, err = h.sc.AddShareTenants(ctx, AddShareTenantsRequest{Tenant: "acme", ShareName: "partners", Accounts: []string{"globex"}, ShareOn: now})
	require.NoError(t, err)

	_, err = h.sc.AddShareTenants(ctx, AddShareTenantsRequest{Tenant: "acme", ShareName: "partners", Accounts: []string{"globex"}, ShareOn: now})
	require.ErrorAs(t, err, &alreadyExists)
}

func TestRemoveShareTenantsUnknownAccounts(t *testing.T) {
	h := setupTestCatalog(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := h.sc.CreateShare(ctx, CreateShareRequest{Tenant: "acme", ShareName: "partners", CreateOn: now})
	require.NoError(t, err)

	_, err = h.sc.RemoveShareTenants(ctx, RemoveShareTenantsRequest{Tenant: "acme", ShareName: "partners", Accounts: []string{"globex"}})
	var unknownAccounts *UnknownShareAccountsError
	require.ErrorAs(t, err, &unknownAccounts)
}

func TestGrantTableBeforeDatabaseFails(t *testing.T) {
	h := setupTestCatalog(t)
	ctx := context.Background()
	now := time.Now().UTC()

	dbID, err := h.cat.CreateDatabase(ctx, "acme", "sales", "")
	require.NoError(t, err)
	_, err = h.cat.CreateTable(ctx, dbID, "orders", "")
	require.NoError(t, err)
	_, err = h.sc.CreateShare(ctx, CreateShareRequest{Tenant: "acme", ShareName: "partners", CreateOn: now})
	require.NoError(t, err)

	_, err = h.sc.GrantShareObject(ctx, GrantShareObjectRequest{
		Tenant: "acme", ShareName: "partners",
		Object:     ObjectName{Database: "sales", Table: "orders"},
		Privileges: PrivilegeSelect,
		GrantOn:    now,
	})
	var wrongObject *WrongShareObjectError
	require.ErrorAs(t, err, &wrongObject)
}

func TestGrantDatabaseThenTableThenRevoke(t *testing.T) {
	h := setupTestCatalog(t)
	ctx := context.Background()
	now := time.Now().UTC()

	dbID, err := h.cat.CreateDatabase(ctx, "acme", "sales", "")
	require.NoError(t, err)
	_, err = h.cat.CreateTable(ctx, dbID, "orders", "")
	require.NoError(t, err)
	_, err = h.sc.CreateShare(ctx, CreateShareRequest{Tenant: "acme", ShareName: "partners", CreateOn: now})
	require.NoError(t, err)

	_, err = h.sc.GrantShareObject(ctx, GrantShareObjectRequest{
		Tenant: "acme", ShareName: "partners",
		Object:     ObjectName{Database: "sales"},
		Privileges: PrivilegeUsage,
		GrantOn:    now,
	})
	require.NoError(t, err)

	_, err = h.sc.GrantShareObject(ctx, GrantShareObjectRequest{
		Tenant: "acme", ShareName: "partners",
		Object:     ObjectName{Database: "sales", Table: "orders"},
		Privileges: PrivilegeSelect,
		GrantOn:    now,
	})
	require.NoError(t, err)

	_, dbMeta, err := h.cat.GetDatabaseMeta(ctx, dbID)
	require.NoError(t, err)
	_, shared := dbMeta.SharedBy[1]
	assert.True(t, shared)

	objects, err := h.sc.GetShareGrantObjects(ctx, GetShareGrantObjectsRequest{Tenant: "acme", ShareName: "partners"})
	require.NoError(t, err)
	require.Len(t, objects.Objects, 2)

	grants, err := h.sc.GetGrantPrivilegesOfObject(ctx, GetGrantPrivilegesOfObjectRequest{
		Tenant: "acme",
		Object: ObjectName{Database: "sales", Table: "orders"},
	})
	require.NoError(t, err)
	require.Len(t, grants.Grants, 1)
	assert.Equal(t, "partners", grants.Grants[0].ShareName)

	// Revoking the database while the table grant remains must fail.
	_, err = h.sc.RevokeShareObject(ctx, RevokeShareObjectRequest{
		Tenant: "acme", ShareName: "partners",
		Object:     ObjectName{Database: "sales"},
		Privileges: PrivilegeUsage,
		UpdateOn:   now,
	})
	var wrongObject *WrongShareObjectError
	require.ErrorAs(t, err, &wrongObject)

	_, err = h.sc.RevokeShareObject(ctx, RevokeShareObjectRequest{
		Tenant: "acme", ShareName: "partners",
		Object:     ObjectName{Database: "sales", Table: "orders"},
		Privileges: PrivilegeSelect,
		UpdateOn:   now,
	})
	require.NoError(t, err)

	_, err = h.sc.RevokeShareObject(ctx, RevokeShareObjectRequest{
		Tenant: "acme", ShareName: "partners",
		Object:     ObjectName{Database: "sales"},
		Privileges: PrivilegeUsage,
		UpdateOn:   now,
	})
	require.NoError(t, err)

	_, dbMeta, err = h.cat.GetDatabaseMeta(ctx, dbID)
	require.NoError(t, err)
	_, shared = dbMeta.SharedBy[1]
	assert.False(t, shared)
}

func TestGrantCrossDatabaseRejected(t *testing.T) {
	h := setupTestCatalog(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := h.cat.CreateDatabase(ctx, "acme", "sales", "")
	require.NoError(t, err)
	_, err = h.cat.CreateDatabase(ctx, "acme", "marketing", "")
	require.NoError(t, err)
	_, err = h.sc.CreateShare(ctx, CreateShareRequest{Tenant: "acme", ShareName: "partners", CreateOn: now})
	require.NoError(t, err)

	_, err = h.sc.GrantShareObject(ctx, GrantShareObjectRequest{
		Tenant: "acme", ShareName: "partners",
		Object:     ObjectName{Database: "sales"},
		Privileges: PrivilegeUsage,
		GrantOn:    now,
	})
	require.NoError(t, err)

	_, err = h.sc.GrantShareObject(ctx, GrantShareObjectRequest{
		Tenant: "acme", ShareName: "partners",
		Object:     ObjectName{Database: "marketing"},
		Privileges: PrivilegeUsage,
		GrantOn:    now,
	})
	var wrongObject *WrongShareObjectError
	require.ErrorAs(t, err, &wrongObject)
}

func TestGrantShareObjectNoOpWhenAlreadyGranted(t *testing.T) {
	h := setupTestCatalog(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := h.cat.CreateDatabase(ctx, "acme", "sales", "")
	require.NoError(t, err)
	_, err = h.sc.CreateShare(ctx, CreateShareRequest{Tenant: "acme", ShareName: "partners", CreateOn: now})
	require.NoError(t, err)

	req := GrantShareObjectRequest{
		Tenant: "acme", ShareName: "partners",
		Object:     ObjectName{Database: "sales"},
		Privileges: PrivilegeUsage,
		GrantOn:    now,
	}
	_, err = h.sc.GrantShareObject(ctx, req)
	require.NoError(t, err)
	_, err = h.sc.GrantShareObject(ctx, req)
	require.NoError(t, err)
}

func TestShowSharesOutboundAndInbound(t *testing.T) {
	h := setupTestCatalog(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := h.cat.CreateDatabase(ctx, "acme", "sales", "")
	require.NoError(t, err)
	_, err = h.sc.CreateShare(ctx, CreateShareRequest{Tenant: "acme", ShareName: "partners", CreateOn: now})
	require.NoError(t, err)
	_, err = h.sc.GrantShareObject(ctx, GrantShareObjectRequest{
		Tenant: "acme", ShareName: "partners",
		Object:     ObjectName{Database: "sales"},
		Privileges: PrivilegeUsage,
		GrantOn:    now,
	})
	require.NoError(t, err)
	_, err = h.sc.AddShareTenants(ctx, AddShareTenantsRequest{Tenant: "acme", ShareName: "partners", Accounts: []string{"globex"}, ShareOn: now})
	require.NoError(t, err)

	outbound, err := h.sc.ShowShares(ctx, ShowSharesRequest{Tenant: "acme"})
	require.NoError(t, err)
	require.Len(t, outbound.OutboundAccounts, 1)
	assert.Equal(t, "partners", outbound.OutboundAccounts[0].ShareName)
	assert.Equal(t, "sales", outbound.OutboundAccounts[0].Database)
	assert.Equal(t, []string{"globex"}, outbound.OutboundAccounts[0].Accounts)

	inbound, err := h.sc.ShowShares(ctx, ShowSharesRequest{Tenant: "globex"})
	require.NoError(t, err)
	require.Len(t, inbound.InboundAccounts, 1)
	assert.Equal(t, "partners", inbound.InboundAccounts[0].ShareName)
	assert.Equal(t, "acme", inbound.InboundAccounts[0].OwnerTenant)
}

func TestGetGrantTenantsOfShareUnknown(t *testing.T) {
	h := setupTestCatalog(t)
	ctx := context.Background()

	_, err := h.sc.GetGrantTenantsOfShare(ctx, GetGrantTenantsOfShareRequest{Tenant: "acme", ShareName: "nope"})
	var unknown *UnknownShareError
	require.ErrorAs(t, err, &unknown)
}

func TestCreateShareDistinctTenantsDoNotCollide(t *testing.T) {
	h := setupTestCatalog(t)
	ctx := context.Background()
	now := time.Now().UTC()

	tenantA := "tenant-" + uuid.New().String()
	tenantB := "tenant-" + uuid.New().String()

	replyA, err := h.sc.CreateShare(ctx, CreateShareRequest{Tenant: tenantA, ShareName: "partners", CreateOn: now})
	require.NoError(t, err)
	replyB, err := h.sc.CreateShare(ctx, CreateShareRequest{Tenant: tenantB, ShareName: "partners", CreateOn: now})
	require.NoError(t, err)
	assert.NotEqual(t, replyA.ShareID, replyB.ShareID)
}

func TestGrantShareObjectUnknownDatabase(t *testing.T) {
	h := setupTestCatalog(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := h.sc.CreateShare(ctx, CreateShareRequest{Tenant: "acme", ShareName: "partners", CreateOn: now})
	require.NoError(t, err)

	_, err = h.sc.GrantShareObject(ctx, GrantShareObjectRequest{
		Tenant: "acme", ShareName: "partners",
		Object:     ObjectName{Database: "ghost"},
		Privileges: PrivilegeUsage,
		GrantOn:    now,
	})
	var unknownDB *UnknownDatabaseError
	require.ErrorAs(t, err, &unknownDB)
}

// TestConcurrentCreateShareYieldsExactlyOne is P6: N parallel create_share
// calls with the same name must yield exactly one CreateShareReply with all
// others failing ShareAlreadyExists, and exactly one share must exist in
// the final state.
func TestConcurrentCreateShareYieldsExactlyOne(t *testing.T) {
	h := setupTestCatalog(t)
	ctx := context.Background()
	now := time.Now().UTC()

	const n = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	var successes int
	var alreadyExists int

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.sc.CreateShare(ctx, CreateShareRequest{Tenant: "acme", ShareName: "partners", CreateOn: now})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			var exists *ShareAlreadyExistsError
			if assert.ErrorAs(t, err, &exists) {
				alreadyExists++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, n-1, alreadyExists)

	outbound, err := h.sc.ShowShares(ctx, ShowSharesRequest{Tenant: "acme"})
	require.NoError(t, err)
	assert.Len(t, outbound.OutboundAccounts, 1)
}

// alwaysConflictKV decorates a KV and makes every Txn report a conflict
// without ever writing, simulating the adversarial KV of P7: a writer that
// invalidates every commit attempt.
type alwaysConflictKV struct {
	kvstore.KV
}

func (a alwaysConflictKV) Txn(ctx context.Context, req kvstore.TxnRequest) (kvstore.TxnReply, error) {
	return kvstore.TxnReply{Succeeded: false}, nil
}

// TestRetryBudgetExhausted is P7: under an adversarial KV whose every commit
// attempt fails, an operation gives up after its retry budget
// (Options.MaxRetryTimes, 3 here) with TxnRetryMaxTimes reporting that budget.
func TestRetryBudgetExhausted(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	opts := badger.DefaultOptions(t.TempDir()).WithLogger(nil)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	kv := alwaysConflictKV{KV: kvstore.NewBadgerKV(db, logger)}
	cat := catalog.New(kv, logger)
	sc := NewCatalog(kv, cat, Options{MaxRetryTimes: 3}, logger, NewMetrics())

	_, err = sc.CreateShare(context.Background(), CreateShareRequest{
		Tenant: "acme", ShareName: "partners", CreateOn: time.Now().UTC(),
	})
	var retryErr *TxnRetryMaxTimesError
	require.ErrorAs(t, err, &retryErr)
	assert.Equal(t, 3, retryErr.Attempts)
}
