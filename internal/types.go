package internal

import (
	"time"

	"github.com/abdusco/linkpay/internal/money"
)

type AdFormat struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	DisplayName string       `json:"display_name"`
	Markup      string       `json:"-"`
	CPMRate     money.Micros `json:"cpm_rate"`
	Active      bool         `json:"is_active"`
}

// Owner is the slice of user state the redirect path needs. LastLoginIP is
// written by the external login flow and must be read fresh per request.
type Owner struct {
	ID          int64
	Banned      bool
	FraudScore  int
	LastLoginIP string
}

// ResolvedLink is a short link joined with its ad format and owner.
type ResolvedLink struct {
	ID          int64
	Code        string
	Destination string
	Monetized   bool
	Active      bool
	AdFormat    *AdFormat
	Owner       *Owner
}

// Monetizable reports whether a visit to the link can earn anything at all.
// Links failing this go straight to the destination.
func (l *ResolvedLink) Monetizable() bool {
	return l.Monetized &&
		l.Owner != nil &&
		l.AdFormat != nil &&
		l.AdFormat.Active &&
		l.AdFormat.CPMRate > 0 &&
		l.AdFormat.Markup != ""
}

type Visitor struct {
	IP        string
	UserAgent string
}

type Wallet struct {
	UserID        int64        `json:"user_id"`
	Balance       money.Micros `json:"wallet_balance"`
	TotalEarnings money.Micros `json:"total_earnings"`
	FraudScore    int          `json:"fraud_score"`
	Banned        bool         `json:"is_banned"`
}

type Impression struct {
	ID               int64        `json:"id,string"`
	LinkID           int64        `json:"link_id"`
	OwnerID          int64        `json:"owner_id"`
	AdFormatID       int64        `json:"ad_format_id"`
	VisitorIP        string       `json:"visitor_ip"`
	VisitorUserAgent string       `json:"visitor_user_agent"`
	Amount           money.Micros `json:"earned_amount"`
	CreatedAt        time.Time    `json:"created_at"`
}

type TransactionType string

const (
	TxImpressionCredit TransactionType = "impression_credit"
	TxPayoutRequest    TransactionType = "payout_request"
	TxPayoutRefund     TransactionType = "payout_refund"
)

// WalletTransaction is one append-only row of the wallet audit trail.
type WalletTransaction struct {
	ID           int64           `json:"id,string"`
	UserID       int64           `json:"user_id"`
	Type         TransactionType `json:"type"`
	Delta        money.Micros    `json:"delta"`
	BalanceAfter money.Micros    `json:"balance_after"`
	ReferenceID  int64           `json:"reference_id,string"`
	CreatedAt    time.Time       `json:"created_at"`
}

type PayoutStatus string

const (
	PayoutPending  PayoutStatus = "pending"
	PayoutApproved PayoutStatus = "approved"
	PayoutRejected PayoutStatus = "rejected"
)

// Ids minted by this service are snowflakes, too large for a JSON number to
// hold exactly in browsers, so they are encoded as strings.
type PayoutRequest struct {
	ID          int64        `json:"id,string"`
	UserID      int64        `json:"user_id"`
	Gross       money.Micros `json:"gross_amount"`
	Commission  money.Micros `json:"commission_amount"`
	Net         money.Micros `json:"net_amount"`
	Status      PayoutStatus `json:"status"`
	RequestedAt time.Time    `json:"requested_at"`
	ProcessedAt *time.Time   `json:"processed_at,omitempty"`
	ProcessedBy *int64       `json:"processed_by,omitempty"`
	AdminNote   string       `json:"admin_note,omitempty"`
}

// DailyStats is one day of impressions for a link.
type DailyStats struct {
	Day         time.Time    `json:"date"`
	Impressions int64        `json:"impressions"`
	Earned      money.Micros `json:"earned"`
}
