package bot

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/require"

	"resellboost/internal/config"
	"resellboost/internal/economy"
	"resellboost/internal/model"
	"resellboost/internal/ratelimit"
	"resellboost/internal/store"
)

const testGuild = "111111111111111111"

var testNow = time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

type sentMessage struct {
	ID        string
	ChannelID string
	Msg       *discordgo.MessageSend
}

type channelEdit struct {
	ChannelID string
	Data      *discordgo.ChannelEdit
}

// fakeDiscord records every call the bot makes.
type fakeDiscord struct {
	mu sync.Mutex

	roles    []*discordgo.Role
	channels []*discordgo.Channel
	members  map[string]*discordgo.Member
	invites  []*discordgo.Invite
	history  []*discordgo.Message

	sent         []sentMessage
	roleAdds     []string
	roleRemoves  []string
	responses    []*discordgo.InteractionResponse
	followups    []*discordgo.WebhookParams
	created      []discordgo.GuildChannelCreateData
	createdRoles []*discordgo.RoleParams
	edits        []channelEdit
	deleted      []string
	overwritten  []*discordgo.ApplicationCommand

	failSendTo map[string]bool
	nextID     int
}

func newFakeDiscord() *fakeDiscord {
	f := &fakeDiscord{
		members:    make(map[string]*discordgo.Member),
		failSendTo: make(map[string]bool),
	}
	for _, name := range []string{"Admin", "Modérateur", "Support", "Membre", "Non vérifié", "Apprenti", "Top 1 XP", "Top 2 XP", "Top 3 XP"} {
		f.roles = append(f.roles, &discordgo.Role{ID: "role-" + name, Name: name})
	}
	f.channels = append(f.channels, &discordgo.Channel{ID: "cat-support", Name: "Support", Type: discordgo.ChannelTypeGuildCategory})
	for _, name := range []string{"level-up", "succes", "classement", "cashout", "transactions", "tickets-logs", "staff", "regles", "verification", "general"} {
		f.channels = append(f.channels, &discordgo.Channel{ID: "ch-" + name, Name: name, Type: discordgo.ChannelTypeGuildText})
	}
	return f
}

func (f *fakeDiscord) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s%d", prefix, f.nextID)
}

func (f *fakeDiscord) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	return f.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{Content: content})
}

func (f *fakeDiscord) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSendTo[channelID] {
		return nil, errors.New("missing access")
	}
	id := f.id("msg-")
	f.sent = append(f.sent, sentMessage{ID: id, ChannelID: channelID, Msg: data})
	return &discordgo.Message{ID: id, ChannelID: channelID, Content: data.Content, Embeds: data.Embeds}, nil
}

func (f *fakeDiscord) ChannelMessageEditComplex(m *discordgo.MessageEdit, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	return &discordgo.Message{ID: m.ID, ChannelID: m.Channel}, nil
}

func (f *fakeDiscord) ChannelMessages(string, int, string, string, string, ...discordgo.RequestOption) ([]*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.history, nil
}

func (f *fakeDiscord) ChannelDelete(channelID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, channelID)
	return &discordgo.Channel{ID: channelID}, nil
}

func (f *fakeDiscord) ChannelEditComplex(channelID string, data *discordgo.ChannelEdit, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, channelEdit{ChannelID: channelID, Data: data})
	return &discordgo.Channel{ID: channelID}, nil
}

func (f *fakeDiscord) UserChannelCreate(recipientID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	return &discordgo.Channel{ID: "dm-" + recipientID, Type: discordgo.ChannelTypeDM}, nil
}

func (f *fakeDiscord) GuildRoles(string, ...discordgo.RequestOption) ([]*discordgo.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*discordgo.Role(nil), f.roles...), nil
}

func (f *fakeDiscord) GuildRoleCreate(_ string, data *discordgo.RoleParams, _ ...discordgo.RequestOption) (*discordgo.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createdRoles = append(f.createdRoles, data)
	r := &discordgo.Role{ID: "role-" + data.Name, Name: data.Name}
	f.roles = append(f.roles, r)
	return r, nil
}

func (f *fakeDiscord) GuildChannels(string, ...discordgo.RequestOption) ([]*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*discordgo.Channel(nil), f.channels...), nil
}

func (f *fakeDiscord) GuildChannelCreateComplex(_ string, data discordgo.GuildChannelCreateData, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, data)
	ch := &discordgo.Channel{ID: f.id("new-"), Name: data.Name, Type: data.Type, ParentID: data.ParentID}
	f.channels = append(f.channels, ch)
	return ch, nil
}

func (f *fakeDiscord) GuildMember(_, userID string, _ ...discordgo.RequestOption) (*discordgo.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[userID]
	if !ok {
		return nil, errors.New("unknown member")
	}
	return m, nil
}

func (f *fakeDiscord) GuildMembers(_ string, after string, _ int, _ ...discordgo.RequestOption) ([]*discordgo.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if after != "" {
		return nil, nil
	}
	out := make([]*discordgo.Member, 0, len(f.members))
	for _, m := range f.members {
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeDiscord) GuildMemberRoleAdd(_, userID, roleID string, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roleAdds = append(f.roleAdds, userID+":"+roleID)
	return nil
}

func (f *fakeDiscord) GuildMemberRoleRemove(_, userID, roleID string, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roleRemoves = append(f.roleRemoves, userID+":"+roleID)
	return nil
}

func (f *fakeDiscord) GuildInvites(string, ...discordgo.RequestOption) ([]*discordgo.Invite, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.invites, nil
}

func (f *fakeDiscord) InteractionRespond(_ *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, resp)
	return nil
}

func (f *fakeDiscord) FollowupMessageCreate(_ *discordgo.Interaction, _ bool, data *discordgo.WebhookParams, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.followups = append(f.followups, data)
	return &discordgo.Message{ID: f.id("followup-")}, nil
}

func (f *fakeDiscord) ApplicationCommandBulkOverwrite(_, _ string, cmds []*discordgo.ApplicationCommand, _ ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overwritten = cmds
	return cmds, nil
}

func (f *fakeDiscord) sentTo(channelID string) []*discordgo.MessageSend {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*discordgo.MessageSend
	for _, s := range f.sent {
		if s.ChannelID == channelID {
			out = append(out, s.Msg)
		}
	}
	return out
}

// message returns the n-th message posted in channelID as the gateway
// would deliver it back.
func (f *fakeDiscord) message(t *testing.T, channelID string, n int) *discordgo.Message {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := 0
	for _, s := range f.sent {
		if s.ChannelID != channelID {
			continue
		}
		if seen == n {
			return &discordgo.Message{ID: s.ID, ChannelID: channelID, Content: s.Msg.Content, Embeds: s.Msg.Embeds}
		}
		seen++
	}
	t.Fatalf("no message %d in %s", n, channelID)
	return nil
}

func (f *fakeDiscord) channelNamed(t *testing.T, name string) *discordgo.Channel {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.channels {
		if ch.Name == name {
			return ch
		}
	}
	t.Fatalf("no channel %s", name)
	return nil
}

func (f *fakeDiscord) lastResponse() *discordgo.InteractionResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.responses) == 0 {
		return nil
	}
	return f.responses[len(f.responses)-1]
}

func (f *fakeDiscord) lastFollowup() *discordgo.WebhookParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.followups) == 0 {
		return nil
	}
	return f.followups[len(f.followups)-1]
}

type testEnv struct {
	bot     *Bot
	discord *fakeDiscord
	users   *store.JSONStore
	pending *store.PendingStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	snap, err := config.ReadDir("../config/testdata")
	require.NoError(t, err)
	cfg := config.NewStatic(snap)

	dir := t.TempDir()
	users := store.NewJSONStore(filepath.Join(dir, "user_data.json"), nil)
	pending := store.NewPendingStore(filepath.Join(dir, "pending_actions.json"))
	engine := economy.NewEngine(users, cfg, nil, nil, economy.WithClock(func() time.Time { return testNow }))

	fake := newFakeDiscord()
	b := newBot(fake, Options{
		Engine:  engine,
		Config:  cfg,
		Pending: pending,
		Limiter: ratelimit.New(),
	})
	b.RegisterCog(NewManagerCog())
	b.RegisterCog(NewTicketCog())
	b.RegisterCog(NewCatalogueCog())
	return &testEnv{bot: b, discord: fake, users: users, pending: pending}
}

// seed stores u under id.
func (e *testEnv) seed(t *testing.T, id string, u *model.UserRecord) {
	t.Helper()
	require.NoError(t, e.users.Update(context.Background(), func(us model.Users) error {
		us[id] = u
		return nil
	}))
}

func (e *testEnv) user(t *testing.T, id string) *model.UserRecord {
	t.Helper()
	u, ok, err := e.bot.engine.User(context.Background(), id)
	require.NoError(t, err)
	require.True(t, ok, "user %s missing", id)
	return u
}

// run routes i the way the gateway handler does and returns the handler
// error.
func (e *testEnv) run(t *testing.T, i *discordgo.InteractionCreate) error {
	t.Helper()
	_, _, h := e.bot.route(i)
	require.NotNil(t, h, "no handler for interaction")
	return h(context.Background(), i)
}

func member(id, username string, roles ...string) *discordgo.Member {
	return &discordgo.Member{User: &discordgo.User{ID: id, Username: username}, Roles: roles}
}

func componentClick(m *discordgo.Member, channelID string, msg *discordgo.Message, customID string, values ...string) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		ID:        "interaction",
		Type:      discordgo.InteractionMessageComponent,
		GuildID:   testGuild,
		ChannelID: channelID,
		Member:    m,
		Message:   msg,
		Data:      discordgo.MessageComponentInteractionData{CustomID: customID, Values: values},
	}}
}

func modalSubmit(m *discordgo.Member, customID string, fields map[string]string) *discordgo.InteractionCreate {
	var rows []discordgo.MessageComponent
	for id, v := range fields {
		rows = append(rows, &discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			&discordgo.TextInput{CustomID: id, Value: v},
		}})
	}
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		ID:      "interaction",
		Type:    discordgo.InteractionModalSubmit,
		GuildID: testGuild,
		Member:  m,
		Data:    discordgo.ModalSubmitInteractionData{CustomID: customID, Components: rows},
	}}
}

func slashCommand(m *discordgo.Member, name string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		ID:      "interaction",
		Type:    discordgo.InteractionApplicationCommand,
		GuildID: testGuild,
		Member:  m,
		Data:    discordgo.ApplicationCommandInteractionData{Name: name, Options: opts},
	}}
}

func testProduct(t *testing.T, id string) config.Product {
	t.Helper()
	snap, err := config.ReadDir("../config/testdata")
	require.NoError(t, err)
	p, ok := snap.Product(id)
	require.True(t, ok, id)
	return p
}

func testPayment() config.PaymentInfo {
	return config.PaymentInfo{PaypalMeLink: "https://paypal.me/resellboost", PaypalEmail: "pay@resellboost.test"}
}
