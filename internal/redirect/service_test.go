package redirect

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/abdusco/linkpay/internal"
	"github.com/abdusco/linkpay/internal/db"
	"github.com/abdusco/linkpay/internal/fraud"
	"github.com/abdusco/linkpay/internal/repo"
	"github.com/abdusco/linkpay/internal/testutil"
	"github.com/abdusco/linkpay/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	ownerID   = int64(1)
	ownerIP   = "192.0.2.10"
	browserUA = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15"
)

type fixture struct {
	db     *db.DB
	svc    *Service
	links  *repo.LinksRepo
	clicks *repo.ClicksRepo
	users  *repo.UsersRepo
	tokens *token.Issuer
}

func newFixture(t *testing.T, ownerScore int) *fixture {
	t.Helper()

	d := testutil.NewTestDB(t)
	testutil.CreateUser(t, d, testutil.User{ID: ownerID, LastLoginIP: ownerIP, FraudScore: ownerScore})
	testutil.CreateLink(t, d, testutil.Link{ID: 10, Code: "paid", OwnerID: ownerID, Monetized: true, AdFormatID: testutil.AdFormatMultitag})
	testutil.CreateLink(t, d, testutil.Link{ID: 11, Code: "plain", OwnerID: ownerID})
	testutil.CreateLink(t, d, testutil.Link{ID: 12, Code: "anon", Monetized: true, AdFormatID: testutil.AdFormatMultitag})
	testutil.CreateLink(t, d, testutil.Link{ID: 13, Code: "off", OwnerID: ownerID, Inactive: true})
	testutil.CreateLink(t, d, testutil.Link{ID: 14, Code: "noformat", OwnerID: ownerID, Monetized: true})

	ids := testutil.NewSnowflake(t)
	f := &fixture{
		db:     d,
		links:  repo.NewLinksRepo(d),
		clicks: repo.NewClicksRepo(d, ids),
		users:  repo.NewUsersRepo(d),
		tokens: token.NewIssuer("secret", 5*time.Minute),
	}

	evaluator := fraud.NewEvaluator(f.clicks, f.users, fraud.Policy{
		BanThreshold:     50,
		SelfClickPenalty: 10,
		RateAbusePenalty: 5,
		HourlyClickLimit: 15,
	})
	f.svc = NewService(d, f.links, f.clicks, evaluator, f.tokens, 5*time.Second)
	return f
}

func (f *fixture) clickCount(t *testing.T, linkID int64) int64 {
	t.Helper()

	link, err := f.links.GetByID(context.Background(), linkID)
	require.NoError(t, err)
	return link.ClickCount
}

func visitor(ip string) internal.Visitor {
	return internal.Visitor{IP: ip, UserAgent: browserUA}
}

func TestVisit_Errors(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	_, err := f.svc.Visit(ctx, "missing", visitor("1.1.1.1"))
	assert.True(t, errors.Is(err, internal.ErrLinkNotFound))

	_, err = f.svc.Visit(ctx, "off", visitor("1.1.1.1"))
	assert.True(t, errors.Is(err, internal.ErrLinkInactive))
}

func TestVisit_FastPath(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	for code, id := range map[string]int64{"plain": 11, "anon": 12, "noformat": 14} {
		out, err := f.svc.Visit(ctx, code, visitor("1.1.1.1"))
		require.NoError(t, err, code)
		assert.Equal(t, KindRedirect, out.Kind, code)
		assert.Equal(t, "https://example.com/"+code, out.Destination)
		assert.Equal(t, int64(1), f.clickCount(t, id), code)
	}

	recent, err := f.clicks.CountByIPSince(ctx, "1.1.1.1", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, recent, "fast path visits are not logged as monetized clicks")
}

func TestVisit_Bot(t *testing.T) {
	f := newFixture(t, 0)

	out, err := f.svc.Visit(context.Background(), "paid", internal.Visitor{IP: ownerIP, UserAgent: "curl/8.0"})
	require.NoError(t, err)
	assert.Equal(t, KindRedirect, out.Kind)
	assert.Equal(t, fraud.VerdictBot, out.Verdict)
	assert.Zero(t, f.clickCount(t, 10))

	w, err := f.users.GetWallet(context.Background(), f.db, ownerID)
	require.NoError(t, err)
	assert.Zero(t, w.FraudScore)
}

func TestVisit_CleanGetsToken(t *testing.T) {
	f := newFixture(t, 0)

	out, err := f.svc.Visit(context.Background(), "paid", visitor("203.0.113.5"))
	require.NoError(t, err)
	assert.Equal(t, KindInterstitial, out.Kind)
	assert.Equal(t, fraud.VerdictClean, out.Verdict)
	assert.Equal(t, 5*time.Second, out.Delay)
	require.NotEmpty(t, out.Token)
	assert.Equal(t, int64(1), f.clickCount(t, 10))

	claims, err := f.tokens.Parse(out.Token)
	require.NoError(t, err)
	assert.Equal(t, int64(10), claims.LinkID)
	assert.Equal(t, ownerID, claims.OwnerID)
	assert.Equal(t, "203.0.113.5", claims.VisitorIP)
	assert.Equal(t, int64(120_000), claims.AmountMicros)
}

func TestVisit_SelfClick(t *testing.T) {
	f := newFixture(t, 0)

	out, err := f.svc.Visit(context.Background(), "paid", visitor(ownerIP))
	require.NoError(t, err)
	assert.Equal(t, KindInterstitial, out.Kind, "fraud is served the same page")
	assert.Equal(t, fraud.VerdictSelfClick, out.Verdict)
	assert.Empty(t, out.Token)

	w, err := f.users.GetWallet(context.Background(), f.db, ownerID)
	require.NoError(t, err)
	assert.Equal(t, 10, w.FraudScore)
	assert.False(t, w.Banned)
}

func TestVisit_SelfClickBansAtThreshold(t *testing.T) {
	f := newFixture(t, 40)
	ctx := context.Background()

	_, err := f.svc.Visit(ctx, "paid", visitor(ownerIP))
	assert.True(t, errors.Is(err, internal.ErrOwnerSuspended))

	_, err = f.svc.Visit(ctx, "paid", visitor("203.0.113.5"))
	assert.True(t, errors.Is(err, internal.ErrOwnerSuspended))

	_, err = f.svc.Visit(ctx, "plain", visitor("203.0.113.5"))
	assert.True(t, errors.Is(err, internal.ErrOwnerSuspended), "ban covers every link of the owner")
}

func TestVisit_StrangerSpam(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	spammer := "198.51.100.99"

	for i := range 15 {
		out, err := f.svc.Visit(ctx, "paid", visitor(spammer))
		require.NoError(t, err)
		assert.NotEmpty(t, out.Token, fmt.Sprintf("click %d is under the limit", i+1))
	}

	out, err := f.svc.Visit(ctx, "paid", visitor(spammer))
	require.NoError(t, err)
	assert.Equal(t, fraud.VerdictRateAbuse, out.Verdict)
	assert.Empty(t, out.Token)

	w, err := f.users.GetWallet(ctx, f.db, ownerID)
	require.NoError(t, err)
	assert.Zero(t, w.FraudScore, "strangers cannot hurt the owner's standing")
	assert.Equal(t, int64(16), f.clickCount(t, 10))
}
