package domain

import "errors"

// CreditBalance mirrors the ledger's balance view for one user.
type CreditBalance struct {
	Total     float64 `json:"total"`
	Used      float64 `json:"used"`
	Available float64 `json:"available"`
	Plan      string  `json:"plan,omitempty"`
}

// DebitRequest is one billable spend against a user's balance.
type DebitRequest struct {
	Amount      float64
	Reason      string
	ReferenceID string
}

type DebitReceipt struct {
	Remaining float64
}

// ErrInsufficientCredits is returned by the ledger when a debit is declined.
var ErrInsufficientCredits = errors.New("insufficient credits")
