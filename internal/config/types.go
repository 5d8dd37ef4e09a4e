package config

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// ─── config.json ───

type Config struct {
	GuildID            string             `json:"GUILD_ID"`
	Roles              Roles              `json:"ROLES"`
	Channels           Channels           `json:"CHANNELS"`
	Gamification       GamificationConfig `json:"GAMIFICATION_CONFIG"`
	MissionSystem      MissionSystem      `json:"MISSION_SYSTEM"`
	TicketSystem       TicketSystem       `json:"TICKET_SYSTEM"`
	TransactionLog     TransactionLog     `json:"TRANSACTION_LOG_CONFIG"`
	AIProcessing       AIProcessing       `json:"AI_PROCESSING_CONFIG"`
	ServerSetup        ServerSetupConfig  `json:"SERVER_SETUP_CONFIG"`
	ServerRules        json.RawMessage    `json:"SERVER_RULES,omitempty"`
	VerificationSystem json.RawMessage    `json:"VERIFICATION_SYSTEM,omitempty"`
	ProfileCard        *ProfileCardConfig `json:"PROFILE_CARD_CONFIG,omitempty"`
	PaymentInfo        PaymentInfo        `json:"PAYMENT_INFO"`
}

type Roles struct {
	Verified          string   `json:"VERIFIED"`
	Unverified        string   `json:"UNVERIFIED"`
	Staff             []string `json:"STAFF"`
	Support           []string `json:"SUPPORT"`
	LeaderboardTop1XP string   `json:"LEADERBOARD_TOP_1_XP"`
	LeaderboardTop2XP string   `json:"LEADERBOARD_TOP_2_XP"`
	LeaderboardTop3XP string   `json:"LEADERBOARD_TOP_3_XP"`
}

// TopXPRoles returns the podium role names indexed by rank-1.
func (r Roles) TopXPRoles() [3]string {
	return [3]string{r.LeaderboardTop1XP, r.LeaderboardTop2XP, r.LeaderboardTop3XP}
}

type Channels struct {
	LevelUpAnnouncements           string `json:"LEVEL_UP_ANNOUNCEMENTS"`
	AchievementAnnouncements       string `json:"ACHIEVEMENT_ANNOUNCEMENTS"`
	WeeklyLeaderboardAnnouncements string `json:"WEEKLY_LEADERBOARD_ANNOUNCEMENTS"`
	CashoutRequests                string `json:"CASHOUT_REQUESTS"`
	TransactionLogs                string `json:"TRANSACTION_LOGS"`
	TicketLogs                     string `json:"TICKET_LOGS"`
	StaffChat                      string `json:"STAFF_CHAT"`
	Rules                          string `json:"RULES"`
	Verification                   string `json:"VERIFICATION"`
}

type GamificationConfig struct {
	XPSystem       XPSystem                 `json:"XP_SYSTEM"`
	PrestigeLevels map[string]PrestigeLevel `json:"PRESTIGE_LEVELS"`
	LevelRewards   map[string]LevelReward   `json:"LEVEL_REWARDS"`
	Affiliate      AffiliateSystem          `json:"AFFILIATE_SYSTEM"`
	VIPSystem      VIPSystem                `json:"VIP_SYSTEM"`
	Cashout        CashoutSystem            `json:"CASHOUT_SYSTEM"`
}

type XPSystem struct {
	Enabled                  bool    `json:"ENABLED"`
	XPPerMessage             [2]int  `json:"XP_PER_MESSAGE"`
	AntiFarmCooldownSeconds  float64 `json:"ANTI_FARM_COOLDOWN_SECONDS"`
	AntiFarmMinWords         int     `json:"ANTI_FARM_MIN_WORDS"`
	LevelUpFormulaBaseXP     float64 `json:"LEVEL_UP_FORMULA_BASE_XP"`
	LevelUpFormulaMultiplier float64 `json:"LEVEL_UP_FORMULA_MULTIPLIER"`
	XPPerEuroSpent           float64 `json:"XP_PER_EURO_SPENT"`
	XPPerVerifiedInvite      int     `json:"XP_PER_VERIFIED_INVITE"`
	XPBonusReferralHitsLvl5  int     `json:"XP_BONUS_REFERRAL_HITS_LVL_5"`
	XPBonusReferralBuysVIP   int     `json:"XP_BONUS_REFERRAL_BUYS_VIP"`
	ReferralLvl5DaysLimit    float64 `json:"REFERRAL_LVL_5_DAYS_LIMIT"`
}

// Threshold is the total XP needed to advance past level.
func (x XPSystem) Threshold(level int) int {
	return int(x.LevelUpFormulaBaseXP * math.Pow(x.LevelUpFormulaMultiplier, float64(level)))
}

// Progress returns the XP earned inside the current level and the XP that
// level spans.
func (x XPSystem) Progress(xp float64, level int) (inLevel, needed int) {
	current := 0
	if level > 1 {
		current = x.Threshold(level - 1)
	}
	next := x.Threshold(level)
	return int(xp) - current, next - current
}

// AverageMessageXP is the expected XP of one eligible message.
func (x XPSystem) AverageMessageXP() float64 {
	return float64(x.XPPerMessage[0]+x.XPPerMessage[1]) / 2
}

type PrestigeLevel struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	XPBonus     float64 `json:"xp_bonus"`
}

type LevelReward struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// SortedPrestige returns prestige levels in ascending order. Keys that are
// not integers are skipped.
func (g GamificationConfig) SortedPrestige() []PrestigeEntry {
	entries := make([]PrestigeEntry, 0, len(g.PrestigeLevels))
	for key, lvl := range g.PrestigeLevels {
		n, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil {
			continue
		}
		entries = append(entries, PrestigeEntry{Level: n, PrestigeLevel: lvl})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Level < entries[j].Level })
	return entries
}

type PrestigeEntry struct {
	Level int
	PrestigeLevel
}

// RoleRewardsBetween returns the role names rewarded for levels in (from, to].
func (g GamificationConfig) RoleRewardsBetween(from, to int) []string {
	type entry struct {
		level int
		role  string
	}
	var found []entry
	for key, reward := range g.LevelRewards {
		n, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil || reward.Type != "role" || reward.Value == "" {
			continue
		}
		if from < n && n <= to {
			found = append(found, entry{n, reward.Value})
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].level < found[j].level })
	roles := make([]string, len(found))
	for i, e := range found {
		roles[i] = e.role
	}
	return roles
}

type AffiliateSystem struct {
	CommissionTiers []CommissionTier `json:"COMMISSION_TIERS"`
	WeeklyBoosters  WeeklyBoosters   `json:"WEEKLY_BOOSTERS"`
	LoyaltyBonus    LoyaltyBonus     `json:"PERMANENT_LOYALTY_BONUS"`
}

type CommissionTier struct {
	Level int     `json:"level"`
	Rate  float64 `json:"rate"`
}

// RateForLevel is the base commission of the highest tier reached.
func (a AffiliateSystem) RateForLevel(level int) float64 {
	rate := 0.0
	best := math.MinInt
	for _, t := range a.CommissionTiers {
		if level >= t.Level && t.Level > best {
			best, rate = t.Level, t.Rate
		}
	}
	return rate
}

// NextTier is the lowest commission tier strictly above level.
func (a AffiliateSystem) NextTier(level int) (CommissionTier, bool) {
	var next CommissionTier
	found := false
	for _, t := range a.CommissionTiers {
		if level < t.Level && (!found || t.Level < next.Level) {
			next, found = t, true
		}
	}
	return next, found
}

type WeeklyBoosters struct {
	Enabled   bool    `json:"ENABLED"`
	Top1Boost float64 `json:"TOP_1_BOOST"`
	Top2Boost float64 `json:"TOP_2_BOOST"`
	Top3Boost float64 `json:"TOP_3_BOOST"`
}

// ForRank returns the booster for a 1-based podium rank.
func (w WeeklyBoosters) ForRank(rank int) float64 {
	switch rank {
	case 1:
		return w.Top1Boost
	case 2:
		return w.Top2Boost
	case 3:
		return w.Top3Boost
	}
	return 0
}

type LoyaltyBonus struct {
	Rate     float64 `json:"RATE"`
	RoleName string  `json:"ROLE_NAME"`
}

type VIPSystem struct {
	Premium VIPPremiumConfig `json:"PREMIUM"`
}

type VIPPremiumConfig struct {
	RoleName                     string      `json:"ROLE_NAME"`
	DurationDays                 float64     `json:"DURATION_DAYS"`
	GracePeriodDays              float64     `json:"GRACE_PERIOD_DAYS"`
	RenewalWindowDays            float64     `json:"RENEWAL_WINDOW_DAYS"`
	GracePeriodBenefitMultiplier *float64    `json:"GRACE_PERIOD_BENEFIT_MULTIPLIER,omitempty"`
	XPBoostTiers                 []MonthTier `json:"XP_BOOST_TIERS"`
	CommissionBonusTiers         []MonthTier `json:"COMMISSION_BONUS_TIERS"`
}

// MonthTier is a VIP loyalty step. Boost is read for XP tiers and Bonus for
// commission tiers.
type MonthTier struct {
	ConsecutiveMonths int     `json:"consecutive_months"`
	Boost             float64 `json:"boost,omitempty"`
	Bonus             float64 `json:"bonus,omitempty"`
}

// GraceMultiplier scales VIP perks while the subscription is in grace.
func (v VIPPremiumConfig) GraceMultiplier() float64 {
	if v.GracePeriodBenefitMultiplier == nil {
		return 0.5
	}
	return *v.GracePeriodBenefitMultiplier
}

func (v VIPPremiumConfig) XPBoost(months int) float64 {
	return bestMonthTier(v.XPBoostTiers, months, func(t MonthTier) float64 { return t.Boost })
}

func (v VIPPremiumConfig) CommissionBonus(months int) float64 {
	return bestMonthTier(v.CommissionBonusTiers, months, func(t MonthTier) float64 { return t.Bonus })
}

func bestMonthTier(tiers []MonthTier, months int, value func(MonthTier) float64) float64 {
	result := 0.0
	best := math.MinInt
	for _, t := range tiers {
		if months >= t.ConsecutiveMonths && t.ConsecutiveMonths > best {
			best, result = t.ConsecutiveMonths, value(t)
		}
	}
	return result
}

type CashoutSystem struct {
	Enabled               bool                  `json:"ENABLED"`
	MinimumAccountAgeDays float64               `json:"MINIMUM_ACCOUNT_AGE_DAYS"`
	MinimumLevel          int                   `json:"MINIMUM_LEVEL"`
	WithdrawalThresholds  []WithdrawalThreshold `json:"WITHDRAWAL_THRESHOLDS"`
	CreditToEURRate       float64               `json:"CREDIT_TO_EUR_RATE"`
}

type WithdrawalThreshold struct {
	Level     int     `json:"level"`
	Threshold float64 `json:"threshold"`
}

// ThresholdForLevel is the minimum withdrawal at level; +Inf when no tier applies.
func (c CashoutSystem) ThresholdForLevel(level int) float64 {
	threshold := math.Inf(1)
	best := math.MinInt
	for _, t := range c.WithdrawalThresholds {
		if level >= t.Level && t.Level > best {
			best, threshold = t.Level, t.Threshold
		}
	}
	return threshold
}

type MissionSystem struct {
	Enabled      bool              `json:"ENABLED"`
	OptInDefault *bool             `json:"OPT_IN_DEFAULT,omitempty"`
	Templates    []MissionTemplate `json:"TEMPLATES"`
}

// OptIn is the mission DM preference given to new members.
func (m MissionSystem) OptIn() bool {
	return m.OptInDefault == nil || *m.OptInDefault
}

// Mission template types.
const (
	MissionDaily  = "daily"
	MissionWeekly = "weekly"
)

type MissionTemplate struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	Description   string `json:"description"`
	TargetRange   [2]int `json:"target_range"`
	RewardXPRange [2]int `json:"reward_xp_range"`
}

// TemplatesOf filters templates by type.
func (m MissionSystem) TemplatesOf(kind string) []MissionTemplate {
	var out []MissionTemplate
	for _, t := range m.Templates {
		if t.Type == kind {
			out = append(out, t)
		}
	}
	return out
}

// PurchaseTicketLabel names the ticket type reserved for catalogue purchases.
const PurchaseTicketLabel = "Achat de Produit"

type TicketSystem struct {
	TicketCategoryName string       `json:"TICKET_CATEGORY_NAME"`
	TicketTypes        []TicketType `json:"TICKET_TYPES"`
	AISummaryPrompt    string       `json:"AI_SUMMARY_PROMPT"`
}

type TicketType struct {
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
	PingRole    string `json:"ping_role,omitempty"`
	Emoji       string `json:"emoji,omitempty"`
}

// Type looks a ticket type up by label.
func (t TicketSystem) Type(label string) (TicketType, bool) {
	for _, tt := range t.TicketTypes {
		if tt.Label == label {
			return tt, true
		}
	}
	return TicketType{}, false
}

// ManualTypes are the ticket types members may open themselves.
func (t TicketSystem) ManualTypes() []TicketType {
	var out []TicketType
	for _, tt := range t.TicketTypes {
		if tt.Label != PurchaseTicketLabel {
			out = append(out, tt)
		}
	}
	return out
}

type TransactionLog struct {
	Enabled        bool `json:"ENABLED"`
	MaxUserLogSize int  `json:"MAX_USER_LOG_SIZE"`
}

type AIProcessing struct {
	Model                         string `json:"MODEL,omitempty"`
	AIChannelSetupPrompt          string `json:"AI_CHANNEL_SETUP_PROMPT"`
	AIWeeklyCoachPrompt           string `json:"AI_WEEKLY_COACH_PROMPT"`
	AIPersonalizedChallengePrompt string `json:"AI_PERSONALIZED_CHALLENGE_PROMPT"`
	AIChallengeValidationPrompt   string `json:"AI_CHALLENGE_VALIDATION_PROMPT"`
}

type ServerSetupConfig struct {
	Roles      []RoleSetup       `json:"ROLES"`
	Categories OrderedCategories `json:"CATEGORIES"`
}

type RoleSetup struct {
	Name        string          `json:"name"`
	Permissions map[string]bool `json:"permissions,omitempty"`
	Color       string          `json:"color,omitempty"`
	Hoist       bool            `json:"hoist,omitempty"`
}

// PermissionSet maps a role name (or "@everyone") to permission flags.
type PermissionSet map[string]map[string]bool

type CategorySetup struct {
	Name        string         `json:"-"`
	Permissions PermissionSet  `json:"permissions,omitempty"`
	Channels    []ChannelSetup `json:"channels"`
}

type ChannelSetup struct {
	Name        string        `json:"name"`
	Type        string        `json:"type,omitempty"`
	Permissions PermissionSet `json:"permissions,omitempty"`
}

// OrderedCategories keeps categories in document order, which a plain map
// would lose.
type OrderedCategories []CategorySetup

func (o *OrderedCategories) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(strings.NewReader(string(b)))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*o = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("CATEGORIES: expected object")
	}
	var out OrderedCategories
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)
		var cat CategorySetup
		if err := dec.Decode(&cat); err != nil {
			return fmt.Errorf("CATEGORIES.%s: %w", key, err)
		}
		cat.Name = key
		out = append(out, cat)
	}
	*o = out
	return nil
}

func (o OrderedCategories) MarshalJSON() ([]byte, error) {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, c := range o {
		if i > 0 {
			sb.WriteByte(',')
		}
		k, _ := json.Marshal(c.Name)
		v, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		sb.Write(k)
		sb.WriteByte(':')
		sb.Write(v)
	}
	sb.WriteByte('}')
	return []byte(sb.String()), nil
}

type ProfileCardConfig struct {
	DefaultPalette Palette        `json:"DEFAULT_PALETTE"`
	LevelPalettes  []LevelPalette `json:"LEVEL_PALETTES"`
}

type Palette struct {
	Background string `json:"background"`
	Surface    string `json:"surface"`
	Text       string `json:"text"`
	Accent     string `json:"accent"`
}

type LevelPalette struct {
	Level   int     `json:"level"`
	Palette Palette `json:"palette"`
}

// PaletteFor picks the palette of the highest level tier reached.
func (p ProfileCardConfig) PaletteFor(level int) Palette {
	selected := p.DefaultPalette
	best := math.MinInt
	for _, lp := range p.LevelPalettes {
		if level >= lp.Level && lp.Level > best {
			best, selected = lp.Level, lp.Palette
		}
	}
	return selected
}

type PaymentInfo struct {
	PaypalMeLink string `json:"PAYPAL_ME_LINK"`
	PaypalEmail  string `json:"PAYPAL_EMAIL"`
}

// GuildConfigured is false while GUILD_ID still holds the template placeholder.
func (c *Config) GuildConfigured() bool {
	id := strings.TrimSpace(c.GuildID)
	return id != "" && id != "VOTRE_VRAI_ID_DE_SERVEUR_ICI"
}

// MaxLogSize is the per-user transaction log bound.
func (c *Config) MaxLogSize() int {
	if c.TransactionLog.MaxUserLogSize > 0 {
		return c.TransactionLog.MaxUserLogSize
	}
	return 50
}

// applyDefaults fills the values the bot relies on when a document omits them.
func (c *Config) applyDefaults() {
	vip := &c.Gamification.VIPSystem.Premium
	if vip.DurationDays == 0 {
		vip.DurationDays = 7
	}
	if vip.GracePeriodDays == 0 {
		vip.GracePeriodDays = 7
	}
	if vip.RenewalWindowDays == 0 {
		vip.RenewalWindowDays = 3
	}
	if c.Gamification.XPSystem.ReferralLvl5DaysLimit == 0 {
		c.Gamification.XPSystem.ReferralLvl5DaysLimit = 7
	}
	if c.TicketSystem.TicketCategoryName == "" {
		c.TicketSystem.TicketCategoryName = "Tickets"
	}
}

// ─── products.json ───

type Product struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	Category     string          `json:"category"`
	Type         string          `json:"type,omitempty"`
	Price        float64         `json:"price"`
	PriceText    string          `json:"price_text,omitempty"`
	Currency     string          `json:"currency,omitempty"`
	ImageURL     string          `json:"image_url,omitempty"`
	MarginType   string          `json:"margin_type,omitempty"`
	PurchaseCost *float64        `json:"purchase_cost,omitempty"`
	Options      []ProductOption `json:"options,omitempty"`
}

type ProductOption struct {
	Name         string   `json:"name"`
	Price        float64  `json:"price"`
	PurchaseCost *float64 `json:"purchase_cost,omitempty"`
}

// ProductTypeSubscription marks VIP subscription products.
const ProductTypeSubscription = "subscription"

func (p Product) IsSubscription() bool { return p.Type == ProductTypeSubscription }

func (p Product) CurrencyCode() string {
	if p.Currency == "" {
		return "EUR"
	}
	return p.Currency
}

// Option looks an option up by name.
func (p Product) Option(name string) (ProductOption, bool) {
	for _, o := range p.Options {
		if o.Name == name {
			return o, true
		}
	}
	return ProductOption{}, false
}

// PriceFor returns the option price when an option is given.
func (p Product) PriceFor(opt *ProductOption) float64 {
	if opt != nil {
		return opt.Price
	}
	return p.Price
}

// CostFor returns the purchase cost, preferring the option's own.
func (p Product) CostFor(opt *ProductOption) float64 {
	if opt != nil && opt.PurchaseCost != nil {
		return *opt.PurchaseCost
	}
	if p.PurchaseCost != nil {
		return *p.PurchaseCost
	}
	return 0
}

// DisplayName appends the option name in parentheses.
func (p Product) DisplayName(opt *ProductOption) string {
	if opt == nil {
		return p.Name
	}
	return fmt.Sprintf("%s (%s)", p.Name, opt.Name)
}

// DisplayPrice renders the catalogue price field.
func (p Product) DisplayPrice() string {
	cur := p.CurrencyCode()
	if len(p.Options) > 0 {
		min := p.Options[0].Price
		for _, o := range p.Options[1:] {
			if o.Price < min {
				min = o.Price
			}
		}
		return fmt.Sprintf("À partir de `%.2f %s`", min, cur)
	}
	if p.PriceText != "" {
		return fmt.Sprintf("`%s`", p.PriceText)
	}
	if p.Price < 0 {
		return "`Prix sur demande`"
	}
	return fmt.Sprintf("`%.2f %s`", p.Price, cur)
}

// ─── achievements_config.json ───

type Achievement struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Trigger     Trigger `json:"trigger"`
	RewardXP    int     `json:"reward_xp"`
}

type Trigger struct {
	Type  string  `json:"type"`
	Value float64 `json:"value"`
}

// ─── credit_shop_items.json ───

type CreditShopItem struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Icon        string  `json:"icon,omitempty"`
	Cost        float64 `json:"cost"`
	Unit        string  `json:"unit,omitempty"`
}
