package bot

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"resellboost/internal/economy"
	"resellboost/internal/store"
)

var (
	errNotStaff      = errors.New("staff only")
	errGuildOnly     = errors.New("guild only")
	errAIUnavailable = errors.New("ai unavailable")
)

// cooldownError is returned when a member repeats a throttled command too fast.
type cooldownError struct {
	retry time.Duration
}

func (e *cooldownError) Error() string {
	return fmt.Sprintf("cooldown, retry in %s", e.retry)
}

const genericErrorMessage = "Une erreur inattendue est survenue. Veuillez réessayer plus tard."

// ErrorHandler turns handler errors into ephemeral replies.
type ErrorHandler struct {
	api    discordAPI
	logger *zap.Logger
}

func NewErrorHandler(api discordAPI, logger *zap.Logger) *ErrorHandler {
	return &ErrorHandler{api: api, logger: logger.Named("errors")}
}

// Message is the French text shown for err, and whether err is an expected
// rule violation.
func Message(err error) (string, bool) {
	var rule *economy.RuleError
	limit := 0.0
	if errors.As(err, &rule) {
		limit = rule.Limit
	}
	var cd *cooldownError

	switch {
	case errors.As(err, &cd):
		return fmt.Sprintf("⏳ Doucement ! Réessayez dans %d secondes.", int(math.Ceil(cd.retry.Seconds()))), true
	case errors.Is(err, errNotStaff):
		return "❌ Cette action est réservée au staff.", true
	case errors.Is(err, errGuildOnly):
		return "❌ Cette commande doit être utilisée sur le serveur.", true
	case errors.Is(err, errAIUnavailable):
		return "Le juge IA est actuellement indisponible. Veuillez contacter le staff.", true
	case errors.Is(err, economy.ErrConfigNotLoaded):
		return "⚙️ La configuration du bot n'est pas encore chargée.", true
	case errors.Is(err, economy.ErrCashoutDisabled):
		return "❌ Les retraits sont actuellement désactivés.", true
	case errors.Is(err, economy.ErrInvalidAmount):
		return "❌ Le montant indiqué est invalide.", true
	case errors.Is(err, economy.ErrAccountTooNew):
		return fmt.Sprintf("❌ Vous devez être membre depuis au moins %g jours pour demander un retrait.", limit), true
	case errors.Is(err, economy.ErrLevelTooLow):
		return fmt.Sprintf("❌ Vous devez atteindre le niveau %g pour demander un retrait.", limit), true
	case errors.Is(err, economy.ErrBelowThreshold):
		if math.IsInf(limit, 1) {
			return "❌ Aucun seuil de retrait n'est disponible pour votre niveau.", true
		}
		return fmt.Sprintf("❌ Le montant minimum de retrait pour votre niveau est de %.2f crédits.", limit), true
	case errors.Is(err, economy.ErrInsufficientCredit):
		return fmt.Sprintf("❌ Crédits insuffisants. Votre solde est de %.2f crédits.", limit), true
	case errors.Is(err, economy.ErrUnknownProduct):
		return "❌ Ce produit n'existe pas ou n'est plus disponible.", true
	case errors.Is(err, economy.ErrVariablePrice):
		return "❌ Le prix de ce produit doit être confirmé par le staff.", true
	case errors.Is(err, economy.ErrPendingNotFound):
		return "❌ Cette demande a déjà été traitée ou n'existe plus.", true
	case errors.Is(err, economy.ErrNoActiveChallenge):
		return "Vous n'avez pas de défi actif à soumettre.", true
	case errors.Is(err, economy.ErrChallengeInProgress):
		return "Vous avez déjà un défi en cours ! Terminez-le avec /soumettre_defi avant d'en demander un nouveau.", true
	case errors.Is(err, store.ErrClosed):
		return "⚙️ Le bot redémarre, veuillez réessayer dans un instant.", true
	}
	return genericErrorMessage, false
}

// Handle replies to the interaction with the message for err. Unexpected
// errors are logged.
func (h *ErrorHandler) Handle(i *discordgo.InteractionCreate, err error) {
	msg, expected := Message(err)
	if !expected {
		h.logger.Error("interaction failed", zap.String("user_id", interactionUserID(i)), zap.Error(err))
	} else {
		h.logger.Debug("interaction rejected", zap.String("user_id", interactionUserID(i)), zap.Error(err))
	}

	rerr := h.api.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: msg, Flags: discordgo.MessageFlagsEphemeral},
	})
	if rerr == nil {
		return
	}
	// already acknowledged
	if _, ferr := h.api.FollowupMessageCreate(i.Interaction, false, &discordgo.WebhookParams{
		Content: msg,
		Flags:   discordgo.MessageFlagsEphemeral,
	}); ferr != nil {
		h.logger.Warn("could not report error to user", zap.Error(ferr))
	}
}
