package internal

import "errors"

var ErrLinkNotFound = errors.New("link not found")
var ErrLinkInactive = errors.New("link has been disabled")

// ErrOwnerSuspended is returned for every link of a banned owner. The
// message shown to visitors must stay vague.
var ErrOwnerSuspended = errors.New("link owner suspended")

// ErrInvalidToken covers bad signatures, expired tokens and tokens redeemed
// from an IP other than the one they were minted for.
var ErrInvalidToken = errors.New("invalid payout token")

var ErrInsufficientBalance = errors.New("insufficient balance for payout")
var ErrPayoutNotFound = errors.New("payout request not found")
var ErrPayoutProcessed = errors.New("payout request already processed")
var ErrUserNotFound = errors.New("user not found")
