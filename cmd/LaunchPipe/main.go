package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/BTreeMap/LaunchPipe/internal/api"
	"github.com/BTreeMap/LaunchPipe/internal/bot"
	"github.com/BTreeMap/LaunchPipe/internal/discord"
	"github.com/BTreeMap/LaunchPipe/internal/interaction"
	"github.com/BTreeMap/LaunchPipe/internal/launchlibrary"
	"github.com/BTreeMap/LaunchPipe/internal/lockfile"
	"github.com/BTreeMap/LaunchPipe/internal/metrics"
	"github.com/BTreeMap/LaunchPipe/internal/notify"
	"github.com/BTreeMap/LaunchPipe/internal/poller"
	"github.com/BTreeMap/LaunchPipe/internal/scheduler"
	"github.com/BTreeMap/LaunchPipe/internal/session"
	"github.com/BTreeMap/LaunchPipe/internal/snapshot"
	"github.com/BTreeMap/LaunchPipe/internal/store"
	"github.com/BTreeMap/LaunchPipe/internal/subscription"
	"github.com/BTreeMap/LaunchPipe/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for LaunchPipe state data
	DefaultStateDir = "/var/lib/launchpipe"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "launchpipe.db"
)

func main() {
	initializeLogger(os.Getenv("LAUNCHPIPE_LOG_LEVEL"))

	config := loadEnvironmentConfig()

	flags, err := parseCommandLineFlags(flag.CommandLine, os.Args[1:], config)
	if err != nil {
		slog.Error("Failed to parse flags", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping LaunchPipe")
	slog.Debug("Final configuration", "state_dir", flags.stateDir, "dsn_set", flags.dbDSN != "", "api_addr", flags.apiAddr, "guild", flags.guildID)
	if err := run(ctx, flags); err != nil {
		slog.Error("LaunchPipe failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("LaunchPipe exited successfully")
}

// Config holds environment configuration
type Config struct {
	DiscordToken     string
	GuildID          string
	DatabaseURL      string
	StateDir         string
	APIAddr          string
	FeedURL          string
	StaleAfter       time.Duration
	RegisterCommands bool
}

// Flags holds command line flag values
type Flags struct {
	token            string
	guildID          string
	stateDir         string
	dbDSN            string
	apiAddr          string
	feedURL          string
	tickSpec         string
	staleAfter       time.Duration
	registerCommands bool
}

// parseLogLevel maps a level name onto slog; unknown names give info.
func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// initializeLogger installs the default structured logger
func initializeLogger(level string) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(level)}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DiscordToken:     util.EnvOrDefault("DISCORD_TOKEN", ""),
		GuildID:          util.EnvOrDefault("DISCORD_GUILD_ID", ""),
		DatabaseURL:      util.EnvOrDefault("DATABASE_URL", ""),
		StateDir:         util.EnvOrDefault("LAUNCHPIPE_STATE_DIR", DefaultStateDir),
		APIAddr:          util.EnvOrDefault("API_ADDR", ""),
		FeedURL:          util.EnvOrDefault("LAUNCH_FEED_URL", ""),
		StaleAfter:       util.ParseDurationEnv("LAUNCHPIPE_STALE_AFTER", api.DefaultStaleAfter),
		RegisterCommands: util.ParseBoolEnv("LAUNCHPIPE_REGISTER_COMMANDS", true),
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No DATABASE_URL provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DISCORD_TOKEN_SET", config.DiscordToken != "",
		"DISCORD_GUILD_ID", config.GuildID,
		"LAUNCHPIPE_STATE_DIR", config.StateDir,
		"API_ADDR", config.APIAddr,
		"LAUNCH_FEED_URL", config.FeedURL,
		"LAUNCHPIPE_STALE_AFTER", config.StaleAfter,
		"LAUNCHPIPE_REGISTER_COMMANDS", config.RegisterCommands)
	return config
}

// parseCommandLineFlags parses args with environment defaults
func parseCommandLineFlags(fs *flag.FlagSet, args []string, config Config) (Flags, error) {
	var flags Flags
	fs.StringVar(&flags.token, "token", config.DiscordToken, "Discord bot token (overrides $DISCORD_TOKEN)")
	fs.StringVar(&flags.guildID, "guild", config.GuildID, "register commands in this guild only (overrides $DISCORD_GUILD_ID)")
	fs.StringVar(&flags.stateDir, "state-dir", config.StateDir, "state directory for LaunchPipe data (overrides $LAUNCHPIPE_STATE_DIR)")
	fs.StringVar(&flags.dbDSN, "db-dsn", config.DatabaseURL, "database DSN, a Postgres URL or SQLite path (overrides $DATABASE_URL)")
	fs.StringVar(&flags.apiAddr, "api-addr", config.APIAddr, "operational API address (overrides $API_ADDR)")
	fs.StringVar(&flags.feedURL, "feed-url", config.FeedURL, "upcoming launches endpoint (overrides $LAUNCH_FEED_URL)")
	fs.StringVar(&flags.tickSpec, "tick", poller.DefaultTickSpec, "cron spec of the poll tick")
	fs.DurationVar(&flags.staleAfter, "stale-after", config.StaleAfter, "snapshot age at which /healthz degrades (overrides $LAUNCHPIPE_STALE_AFTER)")
	fs.BoolVar(&flags.registerCommands, "register-commands", config.RegisterCommands, "overwrite slash commands at startup (overrides $LAUNCHPIPE_REGISTER_COMMANDS)")
	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}

	// A default SQLite path follows -state-dir.
	if flags.dbDSN == filepath.Join(config.StateDir, DefaultDBFileName) && flags.stateDir != config.StateDir {
		flags.dbDSN = filepath.Join(flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", flags.stateDir)
	}
	slog.Debug("flags parsed", "stateDir", flags.stateDir, "dbDSN_set", flags.dbDSN != "", "apiAddr", flags.apiAddr, "tick", flags.tickSpec)
	return flags, nil
}

// openStore picks the store backend from the DSN
func openStore(dsn string) (store.Store, error) {
	if dsn == "" {
		slog.Warn("No database DSN provided, subscriber settings will not survive a restart")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		pg, err := store.NewPostgresStore(store.WithPostgresDSN(dsn))
		if err != nil {
			return nil, err
		}
		return pg, nil
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", dsn)
	sq, err := store.NewSQLiteStore(store.WithSQLiteDSN(dsn))
	if err != nil {
		return nil, err
	}
	return sq, nil
}

// buildFeedOptions constructs launch feed options
func buildFeedOptions(flags Flags) []launchlibrary.Option {
	var opts []launchlibrary.Option
	if flags.feedURL != "" {
		opts = append(opts, launchlibrary.WithBaseURL(flags.feedURL))
	}
	return opts
}

// buildAPIOptions constructs API server options
func buildAPIOptions(flags Flags, engine *session.Engine) []api.Option {
	opts := []api.Option{api.WithEngine(engine)}
	if flags.staleAfter > 0 {
		opts = append(opts, api.WithStaleAfter(flags.staleAfter))
	}
	if flags.apiAddr != "" {
		opts = append(opts, api.WithAddr(flags.apiAddr))
	}
	return opts
}

// run wires every component and blocks until ctx is cancelled.
func run(ctx context.Context, flags Flags) error {
	if flags.token == "" {
		return discord.ErrNoToken
	}

	lock, err := lockfile.AcquireLock(flags.stateDir, "api="+flags.apiAddr)
	if err != nil {
		return err
	}
	defer lock.Release()

	st, err := openStore(flags.dbDSN)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	m := metrics.Default()
	client, err := discord.NewClient(discord.WithToken(flags.token))
	if err != nil {
		return err
	}
	registry := interaction.NewRegistry(interaction.WithAcknowledger(client))
	engine := session.NewEngine(client, session.WithRegistry(registry), session.WithMetrics(m))
	snap := snapshot.New()

	fanout, err := notify.NewFanout(client, st, notify.WithMetrics(m))
	if err != nil {
		return err
	}
	p := poller.New(launchlibrary.NewClient(buildFeedOptions(flags)...), snap, fanout,
		poller.WithMetrics(m),
		poller.WithRegistry(registry),
		poller.WithDeliveryPruner(st),
	)
	b := bot.New(engine, snap, subscription.NewService(st))

	if err := client.Start(ctx); err != nil {
		return err
	}
	defer client.Stop()
	b.Start(ctx, client.Interactions(), client.Deletions())

	if flags.registerCommands {
		if err := client.RegisterCommands(ctx, flags.guildID, b.Commands()); err != nil {
			slog.Warn("Slash command registration failed, continuing with existing commands", "error", err)
		}
	}

	sched := scheduler.NewScheduler()
	defer sched.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.Run(gctx, sched, flags.tickSpec) })
	g.Go(func() error { return api.NewServer(snap, buildAPIOptions(flags, engine)...).Run(gctx) })
	err = g.Wait()

	b.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
