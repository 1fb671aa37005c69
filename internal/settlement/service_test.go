package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/abdusco/linkpay/internal"
	"github.com/abdusco/linkpay/internal/db"
	"github.com/abdusco/linkpay/internal/gen"
	"github.com/abdusco/linkpay/internal/money"
	"github.com/abdusco/linkpay/internal/repo"
	"github.com/abdusco/linkpay/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	ownerID = int64(10)
	adminID = int64(1)
)

type fixture struct {
	db       *db.DB
	svc      *Service
	users    *repo.UsersRepo
	walletTx *repo.WalletTxRepo
}

func newFixture(t *testing.T, balance string) *fixture {
	t.Helper()

	d := testutil.NewTestDB(t)
	testutil.CreateUser(t, d, testutil.User{ID: adminID, Role: "admin"})
	testutil.CreateUser(t, d, testutil.User{ID: ownerID, Balance: money.MustParse(balance)})

	ids, err := gen.NewSnowflakeNode(2)
	require.NoError(t, err)

	users := repo.NewUsersRepo(d)
	walletTx := repo.NewWalletTxRepo(d)
	svc := NewService(d, users, repo.NewPayoutsRepo(d), walletTx, ids, Policy{
		MinPayout:      money.MustParse("700.00"),
		CommissionRate: decimal.RequireFromString("0.10"),
	}).WithClock(func() time.Time {
		return time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	})

	return &fixture{db: d, svc: svc, users: users, walletTx: walletTx}
}

func (f *fixture) balance(t *testing.T) money.Micros {
	t.Helper()

	w, err := f.users.GetWallet(context.Background(), f.db, ownerID)
	require.NoError(t, err)
	return w.Balance
}

func TestRequestPayout(t *testing.T) {
	f := newFixture(t, "800.00")
	ctx := context.Background()

	p, err := f.svc.RequestPayout(ctx, ownerID)
	require.NoError(t, err)

	assert.Equal(t, internal.PayoutPending, p.Status)
	assert.Equal(t, money.MustParse("800.00"), p.Gross)
	assert.Equal(t, money.MustParse("80.00"), p.Commission)
	assert.Equal(t, money.MustParse("720.00"), p.Net)
	assert.Equal(t, p.Gross, p.Commission+p.Net)
	assert.Zero(t, f.balance(t))

	txs, err := f.walletTx.ListByUser(ctx, f.db, ownerID, 10)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, internal.TxPayoutRequest, txs[0].Type)
	assert.Equal(t, -p.Gross, txs[0].Delta)
	assert.Zero(t, txs[0].BalanceAfter)
	assert.Equal(t, p.ID, txs[0].ReferenceID)

	history, err := f.svc.History(ctx, ownerID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, p.ID, history[0].ID)

	_, err = f.svc.RequestPayout(ctx, ownerID)
	assert.True(t, errors.Is(err, internal.ErrInsufficientBalance), "balance is empty after a request")
}

func TestRequestPayout_BelowMinimum(t *testing.T) {
	f := newFixture(t, "699.99")

	_, err := f.svc.RequestPayout(context.Background(), ownerID)
	assert.True(t, errors.Is(err, internal.ErrInsufficientBalance))
	assert.Equal(t, money.MustParse("699.99"), f.balance(t))
}

func TestRequestPayout_ExactMinimum(t *testing.T) {
	f := newFixture(t, "700.00")

	p, err := f.svc.RequestPayout(context.Background(), ownerID)
	require.NoError(t, err)
	assert.Equal(t, money.MustParse("630.00"), p.Net)
}

func TestRequestPayout_BannedOwner(t *testing.T) {
	f := newFixture(t, "900.00")
	testutil.Exec(t, f.db, "UPDATE users SET is_banned = TRUE WHERE id = ?", ownerID)

	_, err := f.svc.RequestPayout(context.Background(), ownerID)
	assert.True(t, errors.Is(err, internal.ErrOwnerSuspended))
	assert.Equal(t, money.MustParse("900.00"), f.balance(t))
}

func TestApprove(t *testing.T) {
	f := newFixture(t, "750.00")
	ctx := context.Background()

	p, err := f.svc.RequestPayout(ctx, ownerID)
	require.NoError(t, err)

	approved, err := f.svc.Approve(ctx, adminID, p.ID, "sent via bank")
	require.NoError(t, err)
	assert.Equal(t, internal.PayoutApproved, approved.Status)
	assert.Equal(t, "sent via bank", approved.AdminNote)
	require.NotNil(t, approved.ProcessedBy)
	assert.Equal(t, adminID, *approved.ProcessedBy)
	require.NotNil(t, approved.ProcessedAt)
	assert.Zero(t, f.balance(t))

	_, err = f.svc.Approve(ctx, adminID, p.ID, "")
	assert.True(t, errors.Is(err, internal.ErrPayoutProcessed))

	_, err = f.svc.Reject(ctx, adminID, p.ID, "")
	assert.True(t, errors.Is(err, internal.ErrPayoutProcessed))
	assert.Zero(t, f.balance(t), "a processed request is never refunded")
}

func TestReject_Refunds(t *testing.T) {
	f := newFixture(t, "750.00")
	ctx := context.Background()

	p, err := f.svc.RequestPayout(ctx, ownerID)
	require.NoError(t, err)

	rejected, err := f.svc.Reject(ctx, adminID, p.ID, "invalid payment details")
	require.NoError(t, err)
	assert.Equal(t, internal.PayoutRejected, rejected.Status)
	assert.Equal(t, money.MustParse("750.00"), f.balance(t))

	txs, err := f.walletTx.ListByUser(ctx, f.db, ownerID, 10)
	require.NoError(t, err)
	require.Len(t, txs, 2)

	sum, err := f.walletTx.SumByUser(ctx, f.db, ownerID)
	require.NoError(t, err)
	assert.Zero(t, sum, "request and refund cancel out")
}

func TestReject_ConcurrentRefundsOnce(t *testing.T) {
	f := newFixture(t, "1000.00")
	ctx := context.Background()

	p, err := f.svc.RequestPayout(ctx, ownerID)
	require.NoError(t, err)

	const workers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		processed int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Reject(ctx, adminID, p.ID, "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, internal.ErrPayoutProcessed):
				processed++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, processed)
	assert.Equal(t, money.MustParse("1000.00"), f.balance(t))
}

func TestProcess_UnknownPayout(t *testing.T) {
	f := newFixture(t, "0")

	_, err := f.svc.Process(context.Background(), adminID, 424242, internal.PayoutApproved, "")
	assert.True(t, errors.Is(err, internal.ErrPayoutNotFound))

	_, err = f.svc.Process(context.Background(), adminID, 424242, internal.PayoutRejected, "")
	assert.True(t, errors.Is(err, internal.ErrPayoutNotFound))
}

func TestConservation(t *testing.T) {
	f := newFixture(t, "2000.00")
	ctx := context.Background()
	initial := f.balance(t)

	first, err := f.svc.RequestPayout(ctx, ownerID)
	require.NoError(t, err)
	_, err = f.svc.Reject(ctx, adminID, first.ID, "")
	require.NoError(t, err)

	second, err := f.svc.RequestPayout(ctx, ownerID)
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, adminID, second.ID, "")
	require.NoError(t, err)

	pending, err := f.svc.List(ctx, internal.PayoutPending)
	require.NoError(t, err)
	assert.Empty(t, pending)

	all, err := f.svc.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)

	var paidOut money.Micros
	for _, p := range all {
		if p.Status == internal.PayoutApproved {
			paidOut += p.Gross
		}
	}
	assert.Equal(t, initial, f.balance(t)+paidOut)
}

func TestWalletSummary(t *testing.T) {
	f := newFixture(t, "710.00")

	summary, err := f.svc.Wallet(context.Background(), ownerID)
	require.NoError(t, err)
	assert.Equal(t, money.MustParse("710.00"), summary.Wallet.Balance)
	assert.True(t, summary.CanRequestPayout)
	assert.Empty(t, summary.RecentTransactions)
}
