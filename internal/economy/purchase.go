package economy

import (
	"fmt"
	"math"

	"resellboost/internal/config"
	"resellboost/internal/model"
)

type PurchaseInput struct {
	UserID     string
	BuyerName  string
	ProductID  string
	OptionName string
	CreditUsed float64
	Code       string
}

// ResolveProduct finds the product and, when named, its option.
func ResolveProduct(cfg *config.Snapshot, productID, optionName string) (config.Product, *config.ProductOption, error) {
	product, ok := cfg.Product(productID)
	if !ok {
		return config.Product{}, nil, fmt.Errorf("%w: %s", ErrUnknownProduct, productID)
	}
	if optionName == "" {
		return product, nil, nil
	}
	opt, ok := product.Option(optionName)
	if !ok {
		return config.Product{}, nil, fmt.Errorf("%w: %s (%s)", ErrUnknownProduct, productID, optionName)
	}
	return product, &opt, nil
}

// RecordPurchase books a confirmed payment: counters, credit spent, XP and
// the referrer's commission. Subscriptions activate VIP instead.
func (s *Session) RecordPurchase(in PurchaseInput) error {
	product, opt, err := ResolveProduct(s.Cfg, in.ProductID, in.OptionName)
	if err != nil {
		return err
	}
	price := product.PriceFor(opt)
	if price < 0 {
		return ErrVariablePrice
	}

	if product.IsSubscription() {
		s.ApplyVIPPurchase(in.UserID, in.BuyerName, product)
		return nil
	}

	u := s.user(in.UserID)
	name := product.DisplayName(opt)
	s.addTx(u, "purchase_count", 1, "Achat: "+name)
	s.addTx(u, "purchase_total_value", price, "Achat: "+name)
	if in.CreditUsed > 0 {
		s.addTx(u, "store_credit", -in.CreditUsed, "Achat avec crédit: "+name)
	}

	xpPerEuro := s.conf().Gamification.XPSystem.XPPerEuroSpent
	s.GrantXP(in.UserID, int(price*xpPerEuro), "Achat: "+name)

	s.emit(PurchaseRecorded{
		UserID:     in.UserID,
		BuyerName:  in.BuyerName,
		Product:    name,
		Price:      price,
		Currency:   product.CurrencyCode(),
		CreditUsed: in.CreditUsed,
		Code:       in.Code,
	})

	if u.Referrer != "" && u.Referrer != in.UserID {
		s.payCommission(u.Referrer, in, product, opt, price)
	}

	s.CheckAchievements(in.UserID)
	return nil
}

func (s *Session) payCommission(referrerID string, in PurchaseInput, product config.Product, opt *config.ProductOption, price float64) {
	commissionable := price
	if product.MarginType == "net" {
		if cost := product.CostFor(opt); cost >= 0 {
			commissionable = math.Max(0, price-cost)
		}
	}

	ref := s.user(referrerID)
	rate := s.CommissionRate(ref)
	amount := commissionable * rate

	desc := "Commission sur achat de " + in.BuyerName
	s.addTx(ref, "store_credit", amount, desc)
	s.addTx(ref, "affiliate_earnings", amount, desc)
	s.addTx(ref, "weekly_affiliate_earnings", amount, desc)
	s.addTx(ref, "affiliate_sale_count", 1, "Vente via "+in.BuyerName)

	s.emit(CommissionEarned{
		ReferrerID: referrerID,
		BuyerID:    in.UserID,
		BuyerName:  in.BuyerName,
		Amount:     amount,
		Rate:       rate,
	})

	s.CheckAchievements(referrerID)
	s.UpdateMissionProgress(referrerID, "affiliate_sale", 1)
	s.UpdateMissionProgress(referrerID, "affiliate_earn", amount)
}

// CommissionRate stacks the tier rate, weekly booster, loyalty bonus and VIP
// bonus of a referrer.
func (s *Session) CommissionRate(ref *model.UserRecord) float64 {
	g := s.conf().Gamification
	rate := g.Affiliate.RateForLevel(ref.Level) + ref.AffiliateBooster
	if ref.PermanentAffiliateBonus {
		rate += g.Affiliate.LoyaltyBonus.Rate
	}
	return rate + s.vipPerk(ref, g.VIPSystem.Premium.CommissionBonus)
}
