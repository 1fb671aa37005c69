// Package redirect decides what a visitor to a short link gets: a plain
// redirect, or the ad interstitial with an optional payout token.
package redirect

import (
	"context"
	"errors"
	"time"

	"github.com/abdusco/linkpay/internal"
	"github.com/abdusco/linkpay/internal/db"
	"github.com/abdusco/linkpay/internal/fraud"
	"github.com/abdusco/linkpay/internal/repo"
	"github.com/abdusco/linkpay/internal/token"
	"github.com/doug-martin/goqu/v9"
	"github.com/rs/zerolog/log"
)

type Kind int

const (
	KindRedirect Kind = iota
	KindInterstitial
)

type Outcome struct {
	Kind        Kind
	Destination string
	Link        *internal.ResolvedLink
	Verdict     fraud.Verdict
	// Token is empty for visits that cannot earn. The interstitial looks the
	// same either way.
	Token string
	Delay time.Duration
}

type Service struct {
	db        *db.DB
	links     *repo.LinksRepo
	clicks    *repo.ClicksRepo
	evaluator *fraud.Evaluator
	tokens    *token.Issuer
	delay     time.Duration
	now       func() time.Time
}

func NewService(
	d *db.DB,
	links *repo.LinksRepo,
	clicks *repo.ClicksRepo,
	evaluator *fraud.Evaluator,
	tokens *token.Issuer,
	delay time.Duration,
) *Service {
	return &Service{
		db:        d,
		links:     links,
		clicks:    clicks,
		evaluator: evaluator,
		tokens:    tokens,
		delay:     delay,
		now:       time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Visit handles one request for code. It returns internal.ErrLinkNotFound,
// internal.ErrLinkInactive or internal.ErrOwnerSuspended when the visitor
// must not be sent anywhere.
func (s *Service) Visit(ctx context.Context, code string, visitor internal.Visitor) (*Outcome, error) {
	link, err := s.links.Resolve(ctx, code)
	if err != nil {
		return nil, err
	}
	if !link.Active {
		return nil, internal.ErrLinkInactive
	}
	if link.Owner != nil && link.Owner.Banned {
		return nil, internal.ErrOwnerSuspended
	}

	redirect := &Outcome{Kind: KindRedirect, Destination: link.Destination, Link: link}

	if !link.Monetizable() {
		if err := s.links.IncrementClicks(ctx, s.db, link.ID); err != nil {
			log.Error().Err(err).Str("code", code).Msg("failed to count click")
		}
		return redirect, nil
	}

	assessment, evalErr := s.evaluator.Evaluate(ctx, link, visitor)
	if evalErr != nil && !errors.Is(evalErr, internal.ErrOwnerSuspended) {
		return nil, evalErr
	}
	if assessment.Verdict == fraud.VerdictBot {
		log.Debug().Str("code", code).Str("ua", visitor.UserAgent).Msg("bot redirected")
		redirect.Verdict = fraud.VerdictBot
		return redirect, nil
	}

	s.recordClick(ctx, link, visitor, assessment.Verdict)

	if evalErr != nil {
		return nil, evalErr
	}

	out := &Outcome{
		Kind:        KindInterstitial,
		Destination: link.Destination,
		Link:        link,
		Verdict:     assessment.Verdict,
		Delay:       s.delay,
	}

	if assessment.Payable {
		raw, _, err := s.tokens.Issue(link, visitor)
		if err != nil {
			return nil, err
		}
		out.Token = raw
	}

	return out, nil
}

func (s *Service) recordClick(ctx context.Context, link *internal.ResolvedLink, visitor internal.Visitor, verdict fraud.Verdict) {
	err := s.db.WithTx(ctx, func(tx *goqu.TxDatabase) error {
		if err := s.clicks.Create(ctx, tx, link.ID, visitor.IP, visitor.UserAgent, string(verdict), s.now()); err != nil {
			return err
		}
		return s.links.IncrementClicks(ctx, tx, link.ID)
	})
	if err != nil {
		log.Error().Err(err).Int64("link_id", link.ID).Msg("failed to record click")
	}
}
