// Command resellboost runs the ResellBoost Discord bot and its tooling.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"resellboost/internal/ai"
	"resellboost/internal/bot"
	"resellboost/internal/config"
	"resellboost/internal/economy"
	"resellboost/internal/events"
	"resellboost/internal/metrics"
	"resellboost/internal/ratelimit"
	"resellboost/internal/store"
	"resellboost/internal/web"
)

const (
	cacheSize     = 1000
	cacheTTL      = 5 * time.Minute
	cachePurge    = time.Minute
	aiMinInterval = time.Second
)

type options struct {
	configDir string
	dataDir   string
	verbose   bool
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			fmt.Fprintf(os.Stderr, "PANIC: %v\n%s\n", r, buf[:n])
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "resellboost",
		Short:         "ResellBoost community bot",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnv(cmd, opts)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd.Context(), opts)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configDir, "config-dir", "config", "Directory holding config.json, products.json and achievements_config.json (env RESELLBOOST_CONFIG_DIR)")
	cmd.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "data", "Directory holding user_data.json and the pending actions (env RESELLBOOST_DATA_DIR)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Connect to Discord and serve the dashboard API",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runBot(cmd.Context(), opts)
			},
		},
		simulateCmd(opts),
		migrateCmd(opts),
		checkConfigCmd(opts),
	)
	return cmd
}

// loadEnv reads .env when present and lets the environment fill flags the
// user did not set.
func loadEnv(cmd *cobra.Command, opts *options) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	if v := os.Getenv("RESELLBOOST_CONFIG_DIR"); v != "" && !cmd.Flags().Changed("config-dir") {
		opts.configDir = v
	}
	if v := os.Getenv("RESELLBOOST_DATA_DIR"); v != "" && !cmd.Flags().Changed("data-dir") {
		opts.dataDir = v
	}
	return nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}

func envPort() (int, error) {
	v := os.Getenv("PORT")
	if v == "" {
		return web.DefaultPort, nil
	}
	port, err := strconv.Atoi(v)
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("invalid PORT %q", v)
	}
	return port, nil
}

// openStore connects to MongoDB when MONGO_URI is set and falls back to the
// JSON document otherwise.
func openStore(ctx context.Context, dataDir string, logger *zap.Logger) (store.UserStore, error) {
	if uri := os.Getenv("MONGO_URI"); uri != "" {
		return store.ConnectMongo(ctx, store.MongoConfig{URI: uri, Database: os.Getenv("MONGO_DATABASE")}, logger)
	}
	return store.NewJSONStore(filepath.Join(dataDir, store.UsersFile), logger), nil
}

func newAI(ctx context.Context, snap *config.Snapshot, m *metrics.Metrics, logger *zap.Logger) *ai.Service {
	key := os.Getenv("GEMINI_API_KEY")
	if key == "" {
		logger.Warn("GEMINI_API_KEY not set, AI features disabled")
		return ai.NewService(nil, m, logger)
	}
	model := ""
	if snap != nil {
		model = snap.Config.AIProcessing.Model
	}
	client, err := ai.NewClient(ctx, key, model)
	if err != nil {
		logger.Error("AI client unavailable, AI features disabled", zap.Error(err))
		return ai.NewService(nil, m, logger)
	}
	logger.Info("AI enabled", zap.String("model", client.Model()))
	return ai.NewService(ai.NewPaced(client, aiMinInterval), m, logger)
}

func runBot(ctx context.Context, opts *options) error {
	logger, err := newLogger(opts.verbose)
	if err != nil {
		return err
	}
	defer logger.Sync()

	token := os.Getenv("DISCORD_TOKEN")
	if token == "" {
		return errors.New("DISCORD_TOKEN is not set")
	}
	port, err := envPort()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.NewManager(opts.configDir, logger)
	if err := cfg.Load(); err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	m := metrics.New()
	bus := events.NewBus(logger)
	m.Subscribe(bus)

	inner, err := openStore(ctx, opts.dataDir, logger)
	if err != nil {
		return err
	}
	users := store.NewCachedStore(inner, store.NewCache(cacheSize, cacheTTL), logger)
	users.SetObserver(m)
	if err := users.Load(ctx); err != nil {
		return fmt.Errorf("load users: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := users.Close(closeCtx); err != nil {
			logger.Error("closing user store", zap.Error(err))
		}
	}()

	limiter := ratelimit.New()
	engine := economy.NewEngine(users, cfg, bus, logger)

	b, err := bot.New(bot.Options{
		Token:   token,
		Engine:  engine,
		Config:  cfg,
		Pending: store.NewPendingStore(filepath.Join(opts.dataDir, store.PendingFile)),
		AI:      newAI(ctx, cfg.Get(), m, logger),
		Bus:     bus,
		Limiter: limiter,
		Metrics: m,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	b.RegisterCog(bot.NewManagerCog())
	b.RegisterCog(bot.NewTicketCog())
	b.RegisterCog(bot.NewCatalogueCog())

	srv := web.NewServer(web.Options{
		Port:         port,
		Config:       cfg,
		Leaderboards: web.CachedLeaderboards{Store: users},
		Challenges:   store.NewChallengeStore(filepath.Join(opts.dataDir, store.ChallengeFile)),
		Backend:      inner.Backend(),
		Metrics:      m.Handler(),
		Limiter:      limiter,
		Logger:       logger,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.Run(ctx) })
	g.Go(func() error { return b.RunTasks(ctx) })
	g.Go(func() error { return srv.Run(ctx) })
	g.Go(func() error { return config.NewWatcher(cfg, logger).Run(ctx) })
	g.Go(func() error {
		users.Cache().Run(ctx, cachePurge)
		return nil
	})

	logger.Info("resellboost started",
		zap.String("config_dir", opts.configDir),
		zap.String("backend", inner.Backend()),
		zap.Int("port", port))
	err = g.Wait()
	logger.Info("resellboost stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func simulateCmd(opts *options) *cobra.Command {
	var in economy.SimInput
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Estimate the XP and commission earned for an activity level",
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := config.ReadDir(opts.configDir)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), economy.Simulate(&snap.Config, in))
		},
	}
	cmd.Flags().IntVar(&in.Messages, "messages", 0, "Messages sent")
	cmd.Flags().Float64Var(&in.Sales, "sales", 0, "Euro value of purchases by referred members")
	cmd.Flags().IntVar(&in.VIPReferrals, "vip-referrals", 0, "Referred members who bought VIP")
	cmd.Flags().IntVar(&in.Level, "level", 1, "Level used for the commission rate")
	return cmd
}

func migrateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Copy user_data.json into the MongoDB users collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(opts.verbose)
			if err != nil {
				return err
			}
			defer logger.Sync()

			uri := os.Getenv("MONGO_URI")
			if uri == "" {
				return errors.New("MONGO_URI is not set")
			}
			ctx := cmd.Context()
			from := store.NewJSONStore(filepath.Join(opts.dataDir, store.UsersFile), logger)
			if err := from.Load(ctx); err != nil {
				return err
			}
			to, err := store.ConnectMongo(ctx, store.MongoConfig{URI: uri, Database: os.Getenv("MONGO_DATABASE")}, logger)
			if err != nil {
				return err
			}
			defer to.Close(context.Background())

			n, err := store.Migrate(ctx, from, to)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrated %d users\n", n)
			return nil
		},
	}
}

func checkConfigCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Parse every config document and report what was found",
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := config.ReadDir(opts.configDir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config:       %s\n", snap.Source)
			fmt.Fprintf(out, "products:     %d\n", len(snap.Products))
			fmt.Fprintf(out, "categories:   %d\n", len(snap.Categories()))
			fmt.Fprintf(out, "achievements: %d\n", len(snap.Achievements))
			fmt.Fprintf(out, "credit shop:  %d\n", len(snap.CreditShop))
			if !snap.Config.GuildConfigured() {
				fmt.Fprintln(out, "warning: GUILD_ID is not configured")
			}
			seen := make(map[string]bool, len(snap.Products))
			for _, p := range snap.Products {
				if seen[p.ID] {
					return fmt.Errorf("duplicate product id %q", p.ID)
				}
				seen[p.ID] = true
			}
			return nil
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
