package model

import (
	"bytes"
	"encoding/json"
)

// Snowflake is a Discord id. Older documents stored ids as JSON numbers, so
// both forms are accepted when decoding.
type Snowflake string

func (s *Snowflake) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = Snowflake(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*s = Snowflake(n.String())
	return nil
}

// PendingTransaction is a purchase awaiting staff payment verification.
type PendingTransaction struct {
	UserID          Snowflake `json:"user_id"`
	ProductID       string    `json:"product_id"`
	OptionName      string    `json:"option_name,omitempty"`
	CreditUsed      float64   `json:"credit_used"`
	TransactionCode string    `json:"transaction_code"`
}

// PendingCashout is a withdrawal request awaiting staff approval. Its credit
// has already been deducted from the user.
type PendingCashout struct {
	UserID         Snowflake `json:"user_id"`
	CreditToDeduct float64   `json:"credit_to_deduct"`
	EurosToSend    float64   `json:"euros_to_send"`
	PaypalEmail    string    `json:"paypal_email"`
}

// PendingActions is the document stored in data/pending_actions.json.
// Transactions are keyed by transaction id, cashouts by request message id.
type PendingActions struct {
	Transactions map[string]PendingTransaction `json:"transactions"`
	Cashouts     map[string]PendingCashout     `json:"cashouts"`
}

func NewPendingActions() *PendingActions {
	return &PendingActions{
		Transactions: make(map[string]PendingTransaction),
		Cashouts:     make(map[string]PendingCashout),
	}
}

// CommunityChallenge is the free-form document kept in data/current_challenge.json.
type CommunityChallenge map[string]any
