// Package fraud classifies visits to monetized links and escalates the
// fraud score of owners caught inflating their own traffic.
package fraud

import (
	"context"
	"fmt"
	"time"

	"github.com/abdusco/linkpay/internal"
	"github.com/rs/zerolog/log"
)

type Verdict string

const (
	VerdictBot       Verdict = "bot"
	VerdictSelfClick Verdict = "self_click"
	VerdictRateAbuse Verdict = "rate_abuse"
	VerdictClean     Verdict = "clean"
)

// Assessment is the outcome of evaluating one visit.
type Assessment struct {
	Verdict Verdict
	// Penalty is what was added to the owner's fraud score.
	Penalty int
	// Payable is true only for clean visits to monetizable links of owners
	// in good standing.
	Payable bool
}

type ClickCounter interface {
	CountByIPSince(ctx context.Context, ip string, since time.Time) (int64, error)
}

type Penalizer interface {
	AddFraudPenalty(ctx context.Context, userID int64, penalty, banThreshold int) (*internal.Wallet, error)
}

type Policy struct {
	BanThreshold     int
	SelfClickPenalty int
	RateAbusePenalty int
	HourlyClickLimit int
}

type Evaluator struct {
	clicks    ClickCounter
	penalizer Penalizer
	policy    Policy
	now       func() time.Time
}

func NewEvaluator(clicks ClickCounter, penalizer Penalizer, policy Policy) *Evaluator {
	return &Evaluator{
		clicks:    clicks,
		penalizer: penalizer,
		policy:    policy,
		now:       time.Now,
	}
}

// WithClock replaces the evaluator's time source.
func (e *Evaluator) WithClock(now func() time.Time) *Evaluator {
	e.now = now
	return e
}

// Evaluate classifies a visit, checking for bots, then self-clicks, then
// rate abuse. Any penalty is applied to the owner before returning; if it
// pushes the owner over the ban threshold, Evaluate returns
// internal.ErrOwnerSuspended along with the assessment.
//
// The visit being evaluated must not be recorded yet.
func (e *Evaluator) Evaluate(ctx context.Context, link *internal.ResolvedLink, visitor internal.Visitor) (Assessment, error) {
	if IsBot(visitor.UserAgent) {
		return Assessment{Verdict: VerdictBot}, nil
	}

	owner := link.Owner
	selfClick := owner != nil && owner.LastLoginIP != "" && owner.LastLoginIP == visitor.IP

	recent, err := e.clicks.CountByIPSince(ctx, visitor.IP, e.now().Add(-time.Hour))
	if err != nil {
		return Assessment{}, fmt.Errorf("failed to count recent clicks: %w", err)
	}
	overLimit := recent >= int64(e.policy.HourlyClickLimit)

	var a Assessment
	switch {
	case selfClick:
		a.Verdict = VerdictSelfClick
		a.Penalty = e.policy.SelfClickPenalty
		if overLimit {
			a.Penalty += e.policy.RateAbusePenalty
		}
	case overLimit:
		// A stranger hammering the link is not the owner's fault.
		a.Verdict = VerdictRateAbuse
	default:
		a.Verdict = VerdictClean
	}

	if a.Penalty > 0 {
		wallet, err := e.penalizer.AddFraudPenalty(ctx, owner.ID, a.Penalty, e.policy.BanThreshold)
		if err != nil {
			return Assessment{}, fmt.Errorf("failed to penalize owner %d: %w", owner.ID, err)
		}
		if wallet.Banned {
			log.Warn().
				Int64("owner_id", owner.ID).
				Int("fraud_score", wallet.FraudScore).
				Msg("owner banned for fraud")
			return a, internal.ErrOwnerSuspended
		}
	}

	a.Payable = a.Verdict == VerdictClean &&
		link.Active &&
		link.Monetizable() &&
		owner != nil && !owner.Banned

	log.Debug().
		Int64("link_id", link.ID).
		Str("ip", visitor.IP).
		Str("verdict", string(a.Verdict)).
		Int("penalty", a.Penalty).
		Bool("payable", a.Payable).
		Msg("visit evaluated")

	return a, nil
}
