// Package token mints and checks payout tokens: short-lived signed promises
// that a visitor who waits out the interstitial earns the owner one
// impression.
package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/abdusco/linkpay/internal"
	"github.com/abdusco/linkpay/internal/money"
	"github.com/golang-jwt/jwt/v5"
)

// Audience keeps payout tokens and session tokens from being accepted in
// place of each other even if the secrets were ever shared.
const Audience = "payout-token"

type Claims struct {
	LinkID           int64  `json:"lid"`
	OwnerID          int64  `json:"oid"`
	AdFormatID       int64  `json:"afid"`
	AmountMicros     int64  `json:"amt"`
	VisitorIP        string `json:"ip"`
	VisitorUserAgent string `json:"ua"`
	jwt.RegisteredClaims
}

func (c *Claims) Amount() money.Micros {
	return money.Micros(c.AmountMicros)
}

type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// WithClock replaces the issuer's time source for both minting and
// validation.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	i.now = now
	return i
}

// Issue mints a token for one view of link by visitor. It has no side
// effects; nothing is stored.
func (i *Issuer) Issue(link *internal.ResolvedLink, visitor internal.Visitor) (string, *Claims, error) {
	if link.Owner == nil || link.AdFormat == nil {
		return "", nil, errors.New("link is not monetizable")
	}

	now := i.now()
	claims := &Claims{
		LinkID:           link.ID,
		OwnerID:          link.Owner.ID,
		AdFormatID:       link.AdFormat.ID,
		AmountMicros:     int64(link.AdFormat.CPMRate.PerImpression()),
		VisitorIP:        visitor.IP,
		VisitorUserAgent: visitor.UserAgent,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(link.ID, 10),
			Audience:  jwt.ClaimStrings{Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign payout token: %w", err)
	}
	return signed, claims, nil
}

// Parse validates signature, algorithm, audience and expiry. Every failure
// wraps internal.ErrInvalidToken.
func (i *Issuer) Parse(raw string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(Audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", internal.ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, internal.ErrInvalidToken
	}
	if claims.LinkID == 0 || claims.OwnerID == 0 || claims.AmountMicros <= 0 {
		return nil, fmt.Errorf("%w: incomplete claims", internal.ErrInvalidToken)
	}
	return claims, nil
}
