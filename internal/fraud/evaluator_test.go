package fraud

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/abdusco/linkpay/internal"
	"github.com/abdusco/linkpay/internal/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const browserUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

type fakeClicks struct {
	count int64
	since time.Time
}

func (f *fakeClicks) CountByIPSince(_ context.Context, _ string, since time.Time) (int64, error) {
	f.since = since
	return f.count, nil
}

type fakePenalizer struct {
	score  int
	banned bool
	calls  []int
}

func (f *fakePenalizer) AddFraudPenalty(_ context.Context, userID int64, penalty, banThreshold int) (*internal.Wallet, error) {
	f.calls = append(f.calls, penalty)
	f.score += penalty
	if f.score >= banThreshold {
		f.banned = true
	}
	return &internal.Wallet{UserID: userID, FraudScore: f.score, Banned: f.banned}, nil
}

var testPolicy = Policy{
	BanThreshold:     50,
	SelfClickPenalty: 10,
	RateAbusePenalty: 5,
	HourlyClickLimit: 15,
}

func monetizedLink(ownerIP string) *internal.ResolvedLink {
	return &internal.ResolvedLink{
		ID:          1,
		Code:        "abc",
		Destination: "https://example.com",
		Monetized:   true,
		Active:      true,
		AdFormat: &internal.AdFormat{
			ID:      1,
			Markup:  "<script></script>",
			CPMRate: money.MustParse("120.00"),
			Active:  true,
		},
		Owner: &internal.Owner{ID: 7, LastLoginIP: ownerIP},
	}
}

func TestEvaluate_Bot(t *testing.T) {
	clicks := &fakeClicks{count: 100}
	penalizer := &fakePenalizer{}
	e := NewEvaluator(clicks, penalizer, testPolicy)

	a, err := e.Evaluate(context.Background(), monetizedLink("1.1.1.1"), internal.Visitor{IP: "1.1.1.1", UserAgent: "curl/8.0"})
	require.NoError(t, err)

	assert.Equal(t, VerdictBot, a.Verdict)
	assert.False(t, a.Payable)
	assert.Empty(t, penalizer.calls, "bots never affect the owner")
}

func TestEvaluate_Clean(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clicks := &fakeClicks{count: 3}
	penalizer := &fakePenalizer{}
	e := NewEvaluator(clicks, penalizer, testPolicy).WithClock(func() time.Time { return now })

	a, err := e.Evaluate(context.Background(), monetizedLink("9.9.9.9"), internal.Visitor{IP: "1.2.3.4", UserAgent: browserUA})
	require.NoError(t, err)

	assert.Equal(t, VerdictClean, a.Verdict)
	assert.True(t, a.Payable)
	assert.Zero(t, a.Penalty)
	assert.Equal(t, now.Add(-time.Hour), clicks.since)
}

func TestEvaluate_SelfClick(t *testing.T) {
	penalizer := &fakePenalizer{}
	e := NewEvaluator(&fakeClicks{}, penalizer, testPolicy)

	a, err := e.Evaluate(context.Background(), monetizedLink("1.2.3.4"), internal.Visitor{IP: "1.2.3.4", UserAgent: browserUA})
	require.NoError(t, err)

	assert.Equal(t, VerdictSelfClick, a.Verdict)
	assert.False(t, a.Payable)
	assert.Equal(t, []int{10}, penalizer.calls)
}

func TestEvaluate_SelfClickOverLimitStacksPenalties(t *testing.T) {
	penalizer := &fakePenalizer{}
	e := NewEvaluator(&fakeClicks{count: 15}, penalizer, testPolicy)

	a, err := e.Evaluate(context.Background(), monetizedLink("1.2.3.4"), internal.Visitor{IP: "1.2.3.4", UserAgent: browserUA})
	require.NoError(t, err)

	assert.Equal(t, VerdictSelfClick, a.Verdict)
	assert.Equal(t, 15, a.Penalty)
	assert.Equal(t, []int{15}, penalizer.calls)
}

func TestEvaluate_StrangerSpamDoesNotPenalizeOwner(t *testing.T) {
	penalizer := &fakePenalizer{}
	e := NewEvaluator(&fakeClicks{count: 15}, penalizer, testPolicy)

	a, err := e.Evaluate(context.Background(), monetizedLink("9.9.9.9"), internal.Visitor{IP: "5.5.5.5", UserAgent: browserUA})
	require.NoError(t, err)

	assert.Equal(t, VerdictRateAbuse, a.Verdict)
	assert.False(t, a.Payable)
	assert.Empty(t, penalizer.calls)
}

func TestEvaluate_UnderLimitIsClean(t *testing.T) {
	e := NewEvaluator(&fakeClicks{count: 14}, &fakePenalizer{}, testPolicy)

	a, err := e.Evaluate(context.Background(), monetizedLink("9.9.9.9"), internal.Visitor{IP: "5.5.5.5", UserAgent: browserUA})
	require.NoError(t, err)
	assert.Equal(t, VerdictClean, a.Verdict)
}

func TestEvaluate_BanAtThreshold(t *testing.T) {
	penalizer := &fakePenalizer{score: 40}
	e := NewEvaluator(&fakeClicks{}, penalizer, testPolicy)

	_, err := e.Evaluate(context.Background(), monetizedLink("1.2.3.4"), internal.Visitor{IP: "1.2.3.4", UserAgent: browserUA})
	assert.True(t, errors.Is(err, internal.ErrOwnerSuspended))
	assert.True(t, penalizer.banned)
}

func TestEvaluate_InactiveAdFormatNotPayable(t *testing.T) {
	link := monetizedLink("9.9.9.9")
	link.AdFormat.Active = false
	e := NewEvaluator(&fakeClicks{}, &fakePenalizer{}, testPolicy)

	a, err := e.Evaluate(context.Background(), link, internal.Visitor{IP: "5.5.5.5", UserAgent: browserUA})
	require.NoError(t, err)
	assert.Equal(t, VerdictClean, a.Verdict)
	assert.False(t, a.Payable)
}
