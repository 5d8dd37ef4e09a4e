// Package bot connects the economy to Discord: slash commands, components,
// gateway listeners, scheduled tasks and the effect applier.
package bot

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"resellboost/internal/ai"
	"resellboost/internal/config"
	"resellboost/internal/economy"
	"resellboost/internal/events"
	"resellboost/internal/ratelimit"
	"resellboost/internal/store"
)

const handlerTimeout = 2 * time.Minute

// Intents the bot needs for messages, members and invite tracking.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsMessageContent |
	discordgo.IntentsGuildInvites

type CommandHandler func(ctx context.Context, i *discordgo.InteractionCreate) error

// Cog groups commands, components and listeners of one feature.
type Cog interface {
	Name() string
	Commands() []*discordgo.ApplicationCommand
	Register(b *Bot)
}

type ConfigSource interface {
	Get() *config.Snapshot
}

// InteractionObserver counts handled interactions.
type InteractionObserver interface {
	ObserveInteraction(kind, name string)
}

type Options struct {
	Token   string
	Engine  *economy.Engine
	Config  ConfigSource
	Pending *store.PendingStore
	AI      *ai.Service
	Bus     *events.Bus
	Limiter *ratelimit.Limiter
	Metrics InteractionObserver
	HTTP    *http.Client
	Logger  *zap.Logger
}

type Bot struct {
	mu         sync.RWMutex
	session    *discordgo.Session
	api        discordAPI
	engine     *economy.Engine
	cfg        ConfigSource
	pending    *store.PendingStore
	ai         *ai.Service
	limiter    *ratelimit.Limiter
	observer   InteractionObserver
	http       *http.Client
	logger     *zap.Logger
	guild      *guildCache
	invites    *inviteTracker
	errs       *ErrorHandler
	applier    *Applier
	appID      string
	commands   map[string]CommandHandler
	components map[string]CommandHandler
	modals     map[string]CommandHandler
	cogs       map[string]Cog
	cogOrder   []string
}

// New creates the bot and its discordgo session. The gateway is opened by
// Run.
func New(opts Options) (*Bot, error) {
	session, err := discordgo.New("Bot " + opts.Token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = Intents
	b := newBot(session, opts)
	b.session = session
	return b, nil
}

func newBot(api discordAPI, opts Options) *Bot {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = ratelimit.New()
	}
	httpClient := opts.HTTP
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	b := &Bot{
		api:        api,
		engine:     opts.Engine,
		cfg:        opts.Config,
		pending:    opts.Pending,
		ai:         opts.AI,
		limiter:    limiter,
		observer:   opts.Metrics,
		http:       httpClient,
		logger:     logger.Named("bot"),
		commands:   make(map[string]CommandHandler),
		components: make(map[string]CommandHandler),
		modals:     make(map[string]CommandHandler),
		cogs:       make(map[string]Cog),
	}
	b.guild = newGuildCache(api, b.guildID)
	b.invites = newInviteTracker()
	b.errs = NewErrorHandler(api, b.logger)
	b.applier = NewApplier(b)
	if opts.Bus != nil {
		b.applier.Subscribe(opts.Bus)
	}
	configureLimits(limiter)
	return b
}

func (b *Bot) conf() *config.Config {
	snap := b.cfg.Get()
	if snap == nil {
		return nil
	}
	return &snap.Config
}

func (b *Bot) guildID() string {
	if c := b.conf(); c != nil {
		return c.GuildID
	}
	return ""
}

func (b *Bot) Applier() *Applier { return b.applier }

func (b *Bot) RegisterCog(cog Cog) {
	b.mu.Lock()
	if _, ok := b.cogs[cog.Name()]; !ok {
		b.cogOrder = append(b.cogOrder, cog.Name())
	}
	b.cogs[cog.Name()] = cog
	b.mu.Unlock()
	cog.Register(b)
}

func (b *Bot) RegisterCommand(name string, h CommandHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.commands[name] = h
}

// RegisterComponent routes a custom id, or every custom id of the form
// "prefix:arg", to h.
func (b *Bot) RegisterComponent(prefix string, h CommandHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.components[prefix] = h
}

func (b *Bot) RegisterModal(customID string, h CommandHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.modals[customID] = h
}

// AddHandler registers a gateway listener when a live session exists.
func (b *Bot) AddHandler(h any) {
	if b.session != nil {
		b.session.AddHandler(h)
	}
}

// Commands lists the slash commands of every cog, in registration order.
func (b *Bot) Commands() []*discordgo.ApplicationCommand {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []*discordgo.ApplicationCommand
	for _, name := range b.cogOrder {
		out = append(out, b.cogs[name].Commands()...)
	}
	return out
}

// SyncCommands overwrites the guild's slash commands with ours.
func (b *Bot) SyncCommands() (int, error) {
	guildID := b.guildID()
	if guildID == "" || b.appID == "" {
		return 0, fmt.Errorf("sync commands: guild or application id unknown")
	}
	created, err := b.api.ApplicationCommandBulkOverwrite(b.appID, guildID, b.Commands())
	if err != nil {
		return 0, fmt.Errorf("sync commands: %w", err)
	}
	return len(created), nil
}

// Run opens the gateway and blocks until ctx ends.
func (b *Bot) Run(ctx context.Context) error {
	if b.session == nil {
		return fmt.Errorf("bot has no discord session")
	}
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onInteraction)

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open gateway: %w", err)
	}
	b.logger.Info("gateway connected", zap.Int("cogs", len(b.cogs)), zap.Int("commands", len(b.commands)))

	go b.applier.Run(ctx)

	<-ctx.Done()
	b.logger.Info("closing gateway")
	return b.session.Close()
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.mu.Lock()
	b.appID = r.User.ID
	b.mu.Unlock()
	b.logger.Info("logged in", zap.String("user", r.User.Username), zap.String("id", r.User.ID))

	c := b.conf()
	if c == nil || !c.GuildConfigured() {
		b.logger.Warn("GUILD_ID is not configured, commands not synced")
		return
	}
	n, err := b.SyncCommands()
	if err != nil {
		b.logger.Error("command sync failed", zap.Error(err))
	} else {
		b.logger.Info("commands synced", zap.Int("count", n))
	}
	b.refreshInvites()
}

func (b *Bot) onInteraction(_ *discordgo.Session, i *discordgo.InteractionCreate) {
	kind, name, h := b.route(i)
	if h == nil {
		b.logger.Debug("unhandled interaction", zap.String("kind", kind), zap.String("name", name))
		return
	}
	go b.dispatch(kind, name, h, i)
}

func (b *Bot) route(i *discordgo.InteractionCreate) (kind, name string, h CommandHandler) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		name = i.ApplicationCommandData().Name
		return "command", name, b.commands[name]
	case discordgo.InteractionMessageComponent:
		name = i.MessageComponentData().CustomID
		if h, ok := b.components[name]; ok {
			return "component", name, h
		}
		prefix, _, _ := strings.Cut(name, ":")
		return "component", prefix, b.components[prefix]
	case discordgo.InteractionModalSubmit:
		name = i.ModalSubmitData().CustomID
		return "modal", name, b.modals[name]
	}
	return "unknown", "", nil
}

func (b *Bot) dispatch(kind, name string, h CommandHandler, i *discordgo.InteractionCreate) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("handler panic",
				zap.String("kind", kind),
				zap.String("name", name),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
		}
	}()

	if b.observer != nil {
		b.observer.ObserveInteraction(kind, name)
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()
	if err := h(ctx, i); err != nil {
		b.errs.Handle(i, err)
	}
}
