package bot

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resellboost/internal/config"
	"resellboost/internal/economy"
	"resellboost/internal/model"
)

func staffMember() *discordgo.Member {
	return member("9", "modo", "role-Modérateur")
}

func TestVerifyButton(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "100", model.NewUserRecord(testNow, true))
	u := model.NewUserRecord(testNow, true)
	u.Referrer = "100"
	env.seed(t, "7", u)

	require.NoError(t, env.run(t, componentClick(member("7", "lea"), "ch-verification", nil, idVerifyMember)))

	assert.Contains(t, env.discord.roleAdds, "7:role-Membre")
	assert.Contains(t, env.discord.roleRemoves, "7:role-Non vérifié")
	resp := env.discord.lastResponse()
	require.NotNil(t, resp)
	assert.Contains(t, resp.Data.Content, "vérifié")
	assert.NotZero(t, resp.Data.Flags&discordgo.MessageFlagsEphemeral)

	assert.Positive(t, env.user(t, "100").XP, "referrer rewarded")
}

func cashoutUser() *model.UserRecord {
	u := model.NewUserRecord(testNow.Add(-30*24*time.Hour), true)
	u.Level = 6
	u.StoreCredit = 100
	return u
}

func TestCashoutRequestAndApproval(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "7", cashoutUser())

	require.NoError(t, env.run(t, modalSubmit(member("7", "lea"), modalCashout, map[string]string{
		"amount":       "60",
		"paypal_email": "lea@example.com",
	})))
	assert.InDelta(t, 40, env.user(t, "7").StoreCredit, 1e-9)

	request := env.discord.message(t, "ch-cashout", 0)
	require.Len(t, request.Embeds, 1)
	p, ok, err := env.pending.GetCashout(request.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.Snowflake("7"), p.UserID)
	assert.InDelta(t, 54, p.EurosToSend, 1e-9)

	// members without a staff role cannot review
	err = env.run(t, componentClick(member("8", "bob"), "ch-cashout", request, idApproveCashout))
	assert.ErrorIs(t, err, errNotStaff)

	require.NoError(t, env.run(t, componentClick(staffMember(), "ch-cashout", request, idApproveCashout)))
	resp := env.discord.lastResponse()
	assert.Equal(t, discordgo.InteractionResponseUpdateMessage, resp.Type)
	require.Len(t, resp.Data.Embeds, 1)
	assert.Equal(t, "✅ Approuvé par modo", resp.Data.Embeds[0].Footer.Text)
	assert.Empty(t, resp.Data.Components)
	assert.Equal(t, float64(1), env.user(t, "7").CashoutCount)

	_, ok, err = env.pending.GetCashout(request.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	err = env.run(t, componentClick(staffMember(), "ch-cashout", request, idApproveCashout))
	assert.ErrorIs(t, err, economy.ErrPendingNotFound)
}

func TestCashoutDenyRefunds(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "7", cashoutUser())

	require.NoError(t, env.run(t, modalSubmit(member("7", "lea"), modalCashout, map[string]string{
		"amount":       "50,5",
		"paypal_email": "lea@example.com",
	})))
	request := env.discord.message(t, "ch-cashout", 0)

	require.NoError(t, env.run(t, componentClick(staffMember(), "ch-cashout", request, idDenyCashout)))
	assert.InDelta(t, 100, env.user(t, "7").StoreCredit, 1e-9)
	assert.Equal(t, "❌ Refusé par modo", env.discord.lastResponse().Data.Embeds[0].Footer.Text)
}

func TestCashoutRefundedWhenRequestCannotBePosted(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "7", cashoutUser())
	env.discord.failSendTo["ch-cashout"] = true

	err := env.run(t, modalSubmit(member("7", "lea"), modalCashout, map[string]string{
		"amount":       "60",
		"paypal_email": "lea@example.com",
	}))
	require.Error(t, err)
	assert.InDelta(t, 100, env.user(t, "7").StoreCredit, 1e-9)
}

func TestCashoutRules(t *testing.T) {
	env := newTestEnv(t)
	u := cashoutUser()
	u.Level = 3
	env.seed(t, "7", u)

	err := env.run(t, modalSubmit(member("7", "lea"), modalCashout, map[string]string{
		"amount":       "60",
		"paypal_email": "lea@example.com",
	}))
	assert.ErrorIs(t, err, economy.ErrLevelTooLow)

	err = env.run(t, modalSubmit(member("7", "lea"), modalCashout, map[string]string{
		"amount":       "beaucoup",
		"paypal_email": "lea@example.com",
	}))
	assert.ErrorIs(t, err, economy.ErrInvalidAmount)
	assert.Empty(t, env.discord.sentTo("ch-cashout"))
}

func openPurchaseTicket(t *testing.T, env *testEnv, productID string) (*discordgo.Channel, *discordgo.Message) {
	t.Helper()
	require.NoError(t, env.run(t, componentClick(member("7", "lea"), "ch-general", nil, idBuyProduct+":"+productID)))
	ch := env.discord.channelNamed(t, "achat-de-produit-lea")
	return ch, env.discord.message(t, ch.ID, 0)
}

func TestPurchaseTicketConfirm(t *testing.T) {
	env := newTestEnv(t)
	env.discord.members["7"] = member("7", "lea")

	ch, greeting := openPurchaseTicket(t, env, "guide_nike")

	require.NotEmpty(t, env.discord.created)
	data := env.discord.created[len(env.discord.created)-1]
	assert.Equal(t, "cat-support", data.ParentID)
	require.Len(t, data.PermissionOverwrites, 5)
	assert.Equal(t, testGuild, data.PermissionOverwrites[0].ID)
	assert.Equal(t, int64(discordgo.PermissionViewChannel), data.PermissionOverwrites[0].Deny)
	assert.Equal(t, "7", data.PermissionOverwrites[1].ID)
	assert.Equal(t, discordgo.PermissionOverwriteTypeMember, data.PermissionOverwrites[1].Type)

	assert.Equal(t, "Bienvenue <@7> ! <@&role-Admin>", greeting.Content)
	id, ok := transactionID(greeting)
	require.True(t, ok)
	tx, ok, err := env.pending.GetTransaction(id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "guide_nike", tx.ProductID)
	assert.Equal(t, transactionCode(id), tx.TransactionCode)
	assert.Contains(t, env.discord.lastFollowup().Content, "<#"+ch.ID+">")

	// buyers cannot confirm their own payment
	assert.ErrorIs(t, env.run(t, componentClick(member("7", "lea"), ch.ID, greeting, idConfirmPayment)), errNotStaff)

	require.NoError(t, env.run(t, componentClick(staffMember(), ch.ID, greeting, idConfirmPayment)))
	resp := env.discord.lastResponse()
	assert.Equal(t, discordgo.InteractionResponseUpdateMessage, resp.Type)
	assert.Equal(t, "✅ Commande Validée", resp.Data.Embeds[0].Title)
	assert.Contains(t, resp.Data.Embeds[0].Footer.Text, "Validé par modo | ID de Transaction: "+id)

	delivery := env.discord.message(t, ch.ID, 1)
	assert.Equal(t, "<@7>", delivery.Content)
	assert.Equal(t, "✅ Commande Complétée", delivery.Embeds[0].Title)

	u := env.user(t, "7")
	assert.Equal(t, float64(1), u.PurchaseCount)
	assert.InDelta(t, 20, u.PurchaseTotalValue, 1e-9)

	_, ok, err = env.pending.GetTransaction(id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPurchaseTicketDeny(t *testing.T) {
	env := newTestEnv(t)
	ch, greeting := openPurchaseTicket(t, env, "guide_nike")

	require.NoError(t, env.run(t, componentClick(staffMember(), ch.ID, greeting, idDenyPayment)))
	assert.Equal(t, "❌ Commande Refusée", env.discord.lastResponse().Data.Embeds[0].Title)
	assert.Equal(t, "Cette commande a été refusée.", env.discord.message(t, ch.ID, 1).Content)

	u, ok, err := env.bot.engine.User(context.Background(), "7")
	require.NoError(t, err)
	if ok {
		assert.Zero(t, u.PurchaseCount)
	}

	// already handled
	require.NoError(t, env.run(t, componentClick(staffMember(), ch.ID, greeting, idConfirmPayment)))
	assert.Equal(t, "Cette transaction est introuvable ou a déjà été traitée.", env.discord.lastResponse().Data.Content)
}

func TestPurchaseNeedsOptionOrFixedPrice(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.run(t, componentClick(member("7", "lea"), "ch-general", nil, idBuyProduct+":bot_aio")))
	resp := env.discord.lastResponse()
	assert.Equal(t, "Ce produit a plusieurs options. Veuillez en choisir une :", resp.Data.Content)
	assert.Empty(t, env.discord.created)

	err := env.run(t, componentClick(member("7", "lea"), "ch-general", nil, idBuyProduct+":coaching"))
	assert.ErrorIs(t, err, economy.ErrVariablePrice)

	err = env.run(t, componentClick(member("7", "lea"), "ch-general", nil, idBuyProduct+":nope"))
	assert.ErrorIs(t, err, economy.ErrUnknownProduct)

	require.NoError(t, env.run(t, componentClick(member("7", "lea"), "ch-general", nil, "option_select:bot_aio", "À vie")))
	ch := env.discord.channelNamed(t, "achat-de-produit-lea")
	greeting := env.discord.message(t, ch.ID, 0)
	assert.Contains(t, greeting.Embeds[0].Description, "Bot AIO (À vie)")
}

func TestCatalogueBrowsing(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.run(t, slashCommand(member("7", "lea"), "catalogue")))
	resp := env.discord.lastResponse()
	menu := resp.Data.Components[0].(discordgo.ActionsRow).Components[0].(discordgo.SelectMenu)
	var cats []string
	for _, o := range menu.Options {
		cats = append(cats, o.Value)
	}
	assert.Equal(t, []string{"Abonnements", "Guides", "Outils"}, cats)

	require.NoError(t, env.run(t, componentClick(member("7", "lea"), "", nil, idCategorySelect, "Guides")))
	resp = env.discord.lastResponse()
	assert.Equal(t, "Catalogue - Guides", resp.Data.Embeds[0].Title)
	require.Len(t, resp.Data.Components, 2)
	products := resp.Data.Components[1].(discordgo.ActionsRow).Components[0].(discordgo.SelectMenu)
	assert.Len(t, products.Options, 2)

	require.NoError(t, env.run(t, componentClick(member("7", "lea"), "", nil, idProductSelect, "guide_nike")))
	resp = env.discord.lastResponse()
	assert.Equal(t, "🛒 Guide Nike", resp.Data.Embeds[0].Title)
	require.Len(t, resp.Data.Components, 3)
}

func TestTicketLifecycle(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.run(t, componentClick(member("7", "lea"), "ch-general", nil, idCreateTicket)))
	menu := env.discord.lastResponse().Data.Components[0].(discordgo.ActionsRow).Components[0].(discordgo.SelectMenu)
	require.Len(t, menu.Options, 1, "purchase tickets are not offered")
	assert.Equal(t, "Question", menu.Options[0].Value)

	require.NoError(t, env.run(t, componentClick(member("7", "lea"), "ch-general", nil, idTicketType, "Question")))
	ch := env.discord.channelNamed(t, "question-lea")
	greeting := env.discord.message(t, ch.ID, 0)
	assert.Equal(t, "Bienvenue <@7> ! <@&role-Support>", greeting.Content)

	start := time.Date(2026, 3, 4, 9, 30, 0, 0, time.UTC)
	env.discord.history = []*discordgo.Message{
		{Content: "réglé", Timestamp: start.Add(time.Minute), Author: &discordgo.User{Username: "modo"}},
		{Content: "j'ai une question", Timestamp: start, Author: &discordgo.User{Username: "lea"}},
	}

	require.NoError(t, env.run(t, componentClick(staffMember(), ch.ID, greeting, idCloseTicket)))
	resp := env.discord.lastResponse()
	assert.Equal(t, discordgo.InteractionResponseUpdateMessage, resp.Type)
	btn := resp.Data.Components[0].(discordgo.ActionsRow).Components[0].(discordgo.Button)
	assert.True(t, btn.Disabled)

	logs := env.discord.sentTo("ch-tickets-logs")
	require.Len(t, logs, 1)
	assert.Equal(t, "Log de Ticket Fermé : question-lea", logs[0].Embeds[0].Title)
	assert.Equal(t, "<@9>", logs[0].Embeds[0].Fields[0].Value)
	assert.Contains(t, logs[0].Embeds[0].Fields[1].Value, "IA non disponible pour le résumé.")
	require.Len(t, logs[0].Files, 1)
	assert.Equal(t, "transcript-question-lea.txt", logs[0].Files[0].Name)

	assert.Equal(t, []string{ch.ID}, env.discord.deleted)
}

func TestApplierLevelUp(t *testing.T) {
	env := newTestEnv(t)
	env.bot.applier.Apply(context.Background(), economy.LevelUp{
		UserID:      "7",
		Old:         4,
		New:         5,
		RoleRewards: []string{"Apprenti"},
		NextTier:    &config.CommissionTier{Level: 15, Rate: 0.15},
	})

	announce := env.discord.sentTo("ch-level-up")
	require.Len(t, announce, 1)
	assert.Contains(t, announce[0].Content, "niveau **5**")
	assert.Contains(t, env.discord.roleAdds, "7:role-Apprenti")

	dm := env.discord.sentTo("dm-7")
	require.Len(t, dm, 1)
	last := dm[0].Embeds[0].Fields[len(dm[0].Embeds[0].Fields)-1]
	assert.Contains(t, last.Value, "**15%**")
}

func TestApplierRotatesPodiumRoles(t *testing.T) {
	env := newTestEnv(t)
	env.discord.members["1"] = member("1", "ancien", "role-Top 1 XP")
	env.discord.members["2"] = member("2", "nouveau")

	env.bot.applier.Apply(context.Background(), economy.WeekClosed{Result: economy.WeeklyResult{
		XPWinners: []economy.Standing{{Rank: 1, UserID: "2", Value: 500}},
		XPRoles:   [3]string{"Top 1 XP", "Top 2 XP", "Top 3 XP"},
	}})

	assert.Contains(t, env.discord.roleRemoves, "1:role-Top 1 XP")
	assert.Contains(t, env.discord.roleAdds, "2:role-Top 1 XP")
	require.Len(t, env.discord.sentTo("ch-classement"), 1)
}

func TestApplierTransactionLog(t *testing.T) {
	env := newTestEnv(t)
	env.discord.members["100"] = member("100", "parrain")

	env.bot.applier.Apply(context.Background(), economy.CommissionEarned{ReferrerID: "100", BuyerID: "7", BuyerName: "lea", Amount: 2, Rate: 0.1})

	require.Len(t, env.discord.sentTo("dm-100"), 1)
	require.Len(t, env.discord.sentTo("ch-transactions"), 1)
}

func TestMemberJoinRecordsReferral(t *testing.T) {
	env := newTestEnv(t)
	inviter := &discordgo.User{ID: "100"}
	env.discord.invites = []*discordgo.Invite{{Code: "abc", Uses: 1, Inviter: inviter}}
	env.bot.refreshInvites()

	env.discord.invites = []*discordgo.Invite{{Code: "abc", Uses: 2, Inviter: inviter}}
	cog := &ManagerCog{b: env.bot}
	cog.memberJoined(context.Background(), member("7", "lea"))

	assert.Contains(t, env.discord.roleAdds, "7:role-Non vérifié")
	assert.Equal(t, "100", env.user(t, "7").Referrer)
	assert.Equal(t, float64(1), env.user(t, "100").ReferralCount)
}

func TestAssignMissionsOnlyForPresentMembers(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "7", model.NewUserRecord(testNow, true))
	env.seed(t, "8", model.NewUserRecord(testNow, true))
	env.discord.members["7"] = member("7", "lea")

	require.NoError(t, env.bot.assignMissions(context.Background()))
	assert.NotNil(t, env.user(t, "7").CurrentDailyMission)
	assert.Nil(t, env.user(t, "8").CurrentDailyMission)
}

func TestTasks(t *testing.T) {
	env := newTestEnv(t)
	got := map[string]time.Duration{}
	for _, task := range env.bot.Tasks() {
		got[task.Name] = task.Interval
	}
	assert.Equal(t, map[string]time.Duration{
		"missions": 24 * time.Hour,
		"vip":      24 * time.Hour,
		"weekly":   168 * time.Hour,
	}, got)
}

func TestSetupCreatesMissingStructure(t *testing.T) {
	old := rolesSettle
	rolesSettle = 0
	t.Cleanup(func() { rolesSettle = old })

	env := newTestEnv(t)
	var roles []*discordgo.Role
	for _, r := range env.discord.roles {
		if r.Name != "Admin" {
			roles = append(roles, r)
		}
	}
	env.discord.roles = roles

	report := &setupReport{}
	require.NoError(t, env.bot.runSetup(context.Background(), env.bot.conf(), report))
	out := report.String()

	require.Len(t, env.discord.createdRoles, 1)
	created := env.discord.createdRoles[0]
	assert.Equal(t, "Admin", created.Name)
	assert.Equal(t, 0xe74c3c, *created.Color)
	assert.True(t, *created.Hoist)
	assert.Equal(t, int64(discordgo.PermissionAdministrator), *created.Permissions)

	var names []string
	for _, c := range env.discord.created {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"Bienvenue", "Communauté", "entraide"}, names)
	assert.Equal(t, discordgo.ChannelTypeGuildForum, env.discord.created[2].Type)
	assert.Len(t, env.discord.created[0].PermissionOverwrites, 3, "@everyone plus both staff roles")

	require.Len(t, env.discord.edits, 3, "regles, verification and general are moved")
	assert.True(t, *env.discord.edits[0].Data.LockPermissions)

	for _, line := range []string{
		"✅ Rôle **Admin** créé.",
		"☑️ Rôle **Membre** existe déjà.",
		"✅ Catégorie **Bienvenue** créée.",
		"➡️ Canal **#regles** déplacé vers **Bienvenue**.",
		"✅ Canal **#entraide** (forum) créé.",
	} {
		assert.True(t, strings.Contains(out, line), line)
	}
}
