package bot

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"resellboost/internal/config"
	"resellboost/internal/economy"
	"resellboost/internal/model"
)

// Discord accepts at most 25 options per select menu.
const maxSelectOptions = 25

var transactionFooter = regexp.MustCompile(`ID de Transaction: ([a-f0-9-]+)`)

// CatalogueCog lets members browse products and open purchase tickets that
// staff confirm once the payment arrived.
type CatalogueCog struct {
	b *Bot
}

func NewCatalogueCog() *CatalogueCog { return &CatalogueCog{} }

func (c *CatalogueCog) Name() string { return "catalogue" }

func (c *CatalogueCog) Commands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{Name: "catalogue", Description: "Affiche les produits disponibles de manière interactive."},
		{
			Name:        "produit",
			Description: "Affiche les détails d'un produit par son ID.",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "id", Description: "L'ID unique du produit (ex: vbucks)", Required: true},
			},
		},
	}
}

func (c *CatalogueCog) Register(b *Bot) {
	c.b = b
	b.RegisterCommand("catalogue", c.catalogue)
	b.RegisterCommand("produit", c.product)
	b.RegisterComponent(idCategorySelect, c.selectCategory)
	b.RegisterComponent(idProductSelect, c.selectProduct)
	b.RegisterComponent(idOptionSelect, c.selectOption)
	b.RegisterComponent(idBuyProduct, c.buy)
	b.RegisterComponent(idConfirmPayment, c.verifyPayment)
	b.RegisterComponent(idDenyPayment, c.verifyPayment)
}

func (c *CatalogueCog) snapshot() (*config.Snapshot, error) {
	snap := c.b.cfg.Get()
	if snap == nil {
		return nil, economy.ErrConfigNotLoaded
	}
	return snap, nil
}

func productEmbed(p config.Product) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title:       "🛒 " + orDefault(p.Name, "Produit sans nom"),
		Description: orDefault(p.Description, "Pas de description."),
		Color:       colorBlue,
		Footer:      &discordgo.MessageEmbedFooter{Text: "ID du produit : " + p.ID},
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Prix", Value: p.DisplayPrice(), Inline: true},
			{Name: "Catégorie", Value: orDefault(p.Category, "N/A"), Inline: true},
		},
	}
	if p.ImageURL != "" {
		e.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: p.ImageURL}
	}
	return e
}

// productActions is the option select for products with options, or the
// buy button otherwise.
func productActions(p config.Product) discordgo.MessageComponent {
	if len(p.Options) == 0 {
		return discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{Label: "🛒 Acheter ce produit", Style: discordgo.SuccessButton, CustomID: idBuyProduct + ":" + p.ID},
		}}
	}
	options := make([]discordgo.SelectMenuOption, 0, len(p.Options))
	for _, o := range p.Options {
		if len(options) == maxSelectOptions {
			break
		}
		options = append(options, discordgo.SelectMenuOption{
			Label: truncate(fmt.Sprintf("%s (%.2f %s)", o.Name, o.Price, p.CurrencyCode()), 100),
			Value: o.Name,
		})
	}
	return discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		discordgo.SelectMenu{CustomID: idOptionSelect + ":" + p.ID, Placeholder: "Choisissez une option...", Options: options},
	}}
}

func categoryRow(categories []string) discordgo.MessageComponent {
	options := make([]discordgo.SelectMenuOption, 0, len(categories))
	for _, cat := range categories {
		if len(options) == maxSelectOptions {
			break
		}
		options = append(options, discordgo.SelectMenuOption{Label: truncate(cat, 100), Value: cat})
	}
	return discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		discordgo.SelectMenu{CustomID: idCategorySelect, Placeholder: "Choisissez une catégorie...", Options: options},
	}}
}

func productRow(products []config.Product) discordgo.MessageComponent {
	options := make([]discordgo.SelectMenuOption, 0, len(products))
	for _, p := range products {
		if len(options) == maxSelectOptions {
			break
		}
		options = append(options, discordgo.SelectMenuOption{Label: truncate(p.Name, 100), Value: p.ID})
	}
	return discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		discordgo.SelectMenu{CustomID: idProductSelect, Placeholder: "Choisissez un produit pour voir les détails...", Options: options},
	}}
}

func (c *CatalogueCog) catalogue(_ context.Context, i *discordgo.InteractionCreate) error {
	snap, err := c.snapshot()
	if err != nil {
		return err
	}
	categories := snap.Categories()
	if len(categories) == 0 {
		return c.b.respond(i, "Le catalogue est vide pour le moment.", true)
	}
	return c.b.respondEmbed(i, &discordgo.MessageEmbed{
		Title:       "Bienvenue au Catalogue ResellBoost",
		Description: "Veuillez choisir une catégorie dans le menu déroulant pour commencer.",
		Color:       colorPurple,
	}, []discordgo.MessageComponent{categoryRow(categories)}, true)
}

func (c *CatalogueCog) product(_ context.Context, i *discordgo.InteractionCreate) error {
	snap, err := c.snapshot()
	if err != nil {
		return err
	}
	id := ""
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "id" {
			id = strings.TrimSpace(opt.StringValue())
		}
	}
	p, ok := snap.Product(id)
	if !ok {
		return c.b.respond(i, "Ce produit est introuvable.", true)
	}
	return c.b.respondEmbed(i, productEmbed(p), []discordgo.MessageComponent{productActions(p)}, true)
}

func (c *CatalogueCog) selectCategory(_ context.Context, i *discordgo.InteractionCreate) error {
	snap, err := c.snapshot()
	if err != nil {
		return err
	}
	values := i.MessageComponentData().Values
	if len(values) == 0 {
		return nil
	}
	category := values[0]
	components := []discordgo.MessageComponent{categoryRow(snap.Categories())}
	if products := snap.ProductsIn(category); len(products) > 0 {
		components = append(components, productRow(products))
	}
	return c.b.updateMessage(i, &discordgo.InteractionResponseData{
		Embeds: []*discordgo.MessageEmbed{{
			Title:       "Catalogue - " + category,
			Description: "Veuillez sélectionner un produit dans le menu ci-dessous pour afficher ses détails et l'acheter.",
			Color:       colorBlue,
		}},
		Components: components,
	})
}

func (c *CatalogueCog) selectProduct(_ context.Context, i *discordgo.InteractionCreate) error {
	snap, err := c.snapshot()
	if err != nil {
		return err
	}
	values := i.MessageComponentData().Values
	if len(values) == 0 {
		return nil
	}
	p, ok := snap.Product(values[0])
	if !ok {
		return c.b.updateMessage(i, &discordgo.InteractionResponseData{
			Content:    "Ce produit n'existe plus.",
			Embeds:     []*discordgo.MessageEmbed{},
			Components: []discordgo.MessageComponent{},
		})
	}
	return c.b.updateMessage(i, &discordgo.InteractionResponseData{
		Embeds: []*discordgo.MessageEmbed{productEmbed(p)},
		Components: []discordgo.MessageComponent{
			categoryRow(snap.Categories()),
			productRow(snap.ProductsIn(p.Category)),
			productActions(p),
		},
	})
}

func (c *CatalogueCog) selectOption(ctx context.Context, i *discordgo.InteractionCreate) error {
	data := i.MessageComponentData()
	_, productID, _ := strings.Cut(data.CustomID, ":")
	if len(data.Values) == 0 {
		return nil
	}
	return c.openPurchase(ctx, i, productID, data.Values[0])
}

func (c *CatalogueCog) buy(ctx context.Context, i *discordgo.InteractionCreate) error {
	_, productID, _ := strings.Cut(i.MessageComponentData().CustomID, ":")
	return c.openPurchase(ctx, i, productID, "")
}

// transactionCode derives the short code buyers put in their payment note.
func transactionCode(id string) string {
	if len(id) > 4 {
		id = id[:4]
	}
	return "RB-" + strings.ToUpper(id)
}

func purchaseEmbed(user *discordgo.User, p config.Product, opt *config.ProductOption, pay config.PaymentInfo, id, code string) *discordgo.MessageEmbed {
	price := p.PriceFor(opt)
	cur := p.CurrencyCode()
	return &discordgo.MessageEmbed{
		Title:       "Nouvelle Commande : " + p.Name,
		Description: fmt.Sprintf("Cette transaction concerne le produit **%s**.", p.DisplayName(opt)),
		Color:       colorGold,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Utilisateur", Value: fmt.Sprintf("%s (`%s`)", mention(user.ID), user.ID)},
			{Name: "**Total à payer**", Value: fmt.Sprintf("**%.2f %s**", price, cur), Inline: true},
			{
				Name: "Instructions de paiement",
				Value: fmt.Sprintf("Veuillez envoyer `%.2f %s` à notre [PayPal.Me](%s) ou directement à l'adresse `%s`.",
					price, cur, pay.PaypalMeLink, pay.PaypalEmail),
			},
			{
				Name:  "⚠️ Code de Transaction",
				Value: fmt.Sprintf("Veuillez **IMPÉRATIVEMENT** inclure ce code dans la note de votre paiement PayPal :\n**`%s`**", code),
			},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: "ID de Transaction: " + id},
	}
}

func paymentButtons() discordgo.MessageComponent {
	return discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		discordgo.Button{Label: "✅ Confirmer Paiement", Style: discordgo.SuccessButton, CustomID: idConfirmPayment},
		discordgo.Button{Label: "❌ Refuser", Style: discordgo.DangerButton, CustomID: idDenyPayment},
	}}
}

func (c *CatalogueCog) openPurchase(_ context.Context, i *discordgo.InteractionCreate, productID, optionName string) error {
	b := c.b
	snap, err := c.snapshot()
	if err != nil {
		return err
	}
	p, opt, err := economy.ResolveProduct(snap, productID, optionName)
	if err != nil {
		return err
	}
	if len(p.Options) > 0 && opt == nil {
		return b.respondData(i, &discordgo.InteractionResponseData{
			Content:    "Ce produit a plusieurs options. Veuillez en choisir une :",
			Components: []discordgo.MessageComponent{productActions(p)},
		}, true)
	}
	if p.PriceFor(opt) < 0 {
		return economy.ErrVariablePrice
	}
	tt, ok := snap.Config.TicketSystem.Type(config.PurchaseTicketLabel)
	if !ok {
		return b.respond(i, "Erreur: Le type de ticket 'Achat de Produit' n'est pas configuré.", true)
	}
	if err := b.deferReply(i, true); err != nil {
		return err
	}

	user := interactionUser(i)
	id := uuid.NewString()
	code := transactionCode(id)
	tx := model.PendingTransaction{
		UserID:          model.Snowflake(user.ID),
		ProductID:       p.ID,
		TransactionCode: code,
	}
	if opt != nil {
		tx.OptionName = opt.Name
	}
	if err := b.pending.PutTransaction(id, tx); err != nil {
		return err
	}

	embed := purchaseEmbed(user, p, opt, snap.Config.PaymentInfo, id, code)
	ch, err := b.openTicket(user, tt, embed, []discordgo.MessageComponent{paymentButtons()})
	if err != nil {
		b.logger.Error("purchase ticket failed", zap.String("user_id", user.ID), zap.String("product", p.ID), zap.Error(err))
		if _, _, terr := b.pending.TakeTransaction(id); terr != nil {
			b.logger.Warn("cannot drop orphan transaction", zap.String("transaction_id", id), zap.Error(terr))
		}
		return b.followup(i, &discordgo.WebhookParams{Content: "Impossible de créer le ticket d'achat. Veuillez contacter un administrateur."}, true)
	}
	b.logger.Info("purchase ticket opened", zap.String("user_id", user.ID), zap.String("product", p.ID), zap.String("code", code))
	return b.followup(i, &discordgo.WebhookParams{Content: fmt.Sprintf("Votre ticket d'achat a été créé : <#%s>", ch.ID)}, true)
}

// transactionID reads the id back from a purchase embed footer.
func transactionID(m *discordgo.Message) (string, bool) {
	if m == nil || len(m.Embeds) == 0 || m.Embeds[0].Footer == nil {
		return "", false
	}
	match := transactionFooter.FindStringSubmatch(m.Embeds[0].Footer.Text)
	if match == nil {
		return "", false
	}
	return match[1], true
}

func deliveryEmbed(p config.Product) *discordgo.MessageEmbed {
	if p.IsSubscription() {
		return &discordgo.MessageEmbed{
			Title:       "✅ Abonnement Activé",
			Description: fmt.Sprintf("Merci pour votre soutien ! Votre abonnement **%s** est maintenant actif. Profitez de vos avantages exclusifs !", p.Name),
			Color:       colorGreen,
		}
	}
	return &discordgo.MessageEmbed{
		Title:       "✅ Commande Complétée",
		Description: fmt.Sprintf("Merci pour votre achat de **%s**!\nUn administrateur va vous contacter dans ce ticket pour vous livrer votre produit.", p.Name),
		Color:       colorGreen,
	}
}

func (c *CatalogueCog) verifyPayment(ctx context.Context, i *discordgo.InteractionCreate) error {
	b := c.b
	if err := b.requireStaff(i); err != nil {
		return err
	}
	confirm := i.MessageComponentData().CustomID == idConfirmPayment

	id, ok := transactionID(i.Message)
	if !ok {
		return b.respond(i, "ID de transaction introuvable dans le message.", true)
	}
	tx, ok, err := b.pending.TakeTransaction(id)
	if err != nil {
		return err
	}
	if !ok {
		return b.updateMessage(i, &discordgo.InteractionResponseData{
			Content:    "Cette transaction est introuvable ou a déjà été traitée.",
			Embeds:     i.Message.Embeds,
			Components: []discordgo.MessageComponent{},
		})
	}

	staff := displayName(interactionUser(i))
	footer := i.Message.Embeds[0].Footer.Text
	buyerID := string(tx.UserID)

	if !confirm {
		b.logger.Info("payment denied", zap.String("transaction_id", id), zap.String("user_id", buyerID))
		if err := b.updateMessage(i, &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{{
				Title:  "❌ Commande Refusée",
				Color:  colorRed,
				Footer: &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("Refusé par %s | %s", staff, footer)},
			}},
			Components: []discordgo.MessageComponent{},
		}); err != nil {
			return err
		}
		_, err := b.api.ChannelMessageSendComplex(i.ChannelID, &discordgo.MessageSend{
			Content:    "Cette commande a été refusée.",
			Components: []discordgo.MessageComponent{closeTicketRow(false)},
		})
		return err
	}

	snap, err := c.snapshot()
	if err != nil {
		return err
	}
	p, _, err := economy.ResolveProduct(snap, tx.ProductID, tx.OptionName)
	if err == nil {
		_, err = b.engine.RecordPurchase(ctx, economy.PurchaseInput{
			UserID:     buyerID,
			BuyerName:  b.applier.nameOf(buyerID),
			ProductID:  tx.ProductID,
			OptionName: tx.OptionName,
			CreditUsed: tx.CreditUsed,
			Code:       tx.TransactionCode,
		})
	}
	if err != nil {
		if perr := b.pending.PutTransaction(id, tx); perr != nil {
			b.logger.Error("cannot restore transaction", zap.String("transaction_id", id), zap.Error(perr))
		}
		return err
	}

	if err := b.updateMessage(i, &discordgo.InteractionResponseData{
		Embeds: []*discordgo.MessageEmbed{{
			Title:       "✅ Commande Validée",
			Description: fmt.Sprintf("Le paiement pour le produit `%s` a été validé.", p.Name),
			Color:       colorGreen,
			Footer:      &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("Validé par %s | %s", staff, footer)},
		}},
		Components: []discordgo.MessageComponent{},
	}); err != nil {
		return err
	}
	_, err = b.api.ChannelMessageSendComplex(i.ChannelID, &discordgo.MessageSend{
		Content:    mention(buyerID),
		Embeds:     []*discordgo.MessageEmbed{deliveryEmbed(p)},
		Components: []discordgo.MessageComponent{closeTicketRow(false)},
	})
	return err
}
