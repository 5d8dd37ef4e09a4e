package economy

import (
	"errors"
	"fmt"
)

// Rule violations reported back to members.
var (
	ErrCashoutDisabled     = errors.New("cashout disabled")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrAccountTooNew       = errors.New("account too new")
	ErrLevelTooLow         = errors.New("level too low")
	ErrBelowThreshold      = errors.New("below withdrawal threshold")
	ErrInsufficientCredit  = errors.New("insufficient credit")
	ErrUnknownProduct      = errors.New("unknown product")
	ErrVariablePrice       = errors.New("variable price product")
	ErrPendingNotFound     = errors.New("pending action not found")
	ErrNoActiveChallenge   = errors.New("no active challenge")
	ErrChallengeInProgress = errors.New("challenge already in progress")
	ErrConfigNotLoaded     = errors.New("config not loaded")
)

// RuleError carries the configured limit a request failed against.
type RuleError struct {
	Err   error
	Limit float64
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("%v (limit %g)", e.Err, e.Limit)
}

func (e *RuleError) Unwrap() error { return e.Err }

func ruleErr(err error, limit float64) error {
	return &RuleError{Err: err, Limit: limit}
}
