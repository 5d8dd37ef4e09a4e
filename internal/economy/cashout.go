package economy

import (
	"math"

	"resellboost/internal/model"
)

// RequestCashout validates a withdrawal and deducts the credit up front. The
// returned request is refunded by DenyCashout if staff refuse it.
func (s *Session) RequestCashout(userID string, amount float64, paypalEmail string) (model.PendingCashout, error) {
	cs := s.conf().Gamification.Cashout
	if !cs.Enabled {
		return model.PendingCashout{}, ErrCashoutDisabled
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return model.PendingCashout{}, ErrInvalidAmount
	}

	u := s.user(userID)
	if s.nowUnix()-u.JoinTimestamp < cs.MinimumAccountAgeDays*secondsPerDay {
		return model.PendingCashout{}, ruleErr(ErrAccountTooNew, cs.MinimumAccountAgeDays)
	}
	if u.Level < cs.MinimumLevel {
		return model.PendingCashout{}, ruleErr(ErrLevelTooLow, float64(cs.MinimumLevel))
	}
	if threshold := cs.ThresholdForLevel(u.Level); amount < threshold {
		return model.PendingCashout{}, ruleErr(ErrBelowThreshold, threshold)
	}
	if amount > u.StoreCredit {
		return model.PendingCashout{}, ruleErr(ErrInsufficientCredit, u.StoreCredit)
	}

	pending := model.PendingCashout{
		UserID:         model.Snowflake(userID),
		CreditToDeduct: amount,
		EurosToSend:    amount * cs.CreditToEURRate,
		PaypalEmail:    paypalEmail,
	}
	s.addTx(u, "store_credit", -amount, "Demande de retrait")
	s.emit(CashoutRequested{UserID: userID, Pending: pending})
	return pending, nil
}

func (s *Session) ApproveCashout(p model.PendingCashout) {
	id := string(p.UserID)
	u := s.user(id)
	s.addTx(u, "cashout_count", 1, "Approbation de retrait")
	s.emit(CashoutApproved{UserID: id, Euros: p.EurosToSend, PaypalEmail: p.PaypalEmail})
	s.CheckAchievements(id)
}

func (s *Session) DenyCashout(p model.PendingCashout) {
	id := string(p.UserID)
	u := s.user(id)
	s.addTx(u, "store_credit", p.CreditToDeduct, "Remboursement suite au refus de retrait")
	s.emit(CashoutDenied{UserID: id, Credit: p.CreditToDeduct})
}
