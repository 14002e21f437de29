package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/violetwave/leadpipe/internal/api"
	"github.com/violetwave/leadpipe/internal/flow"
	"github.com/violetwave/leadpipe/internal/genai"
	"github.com/violetwave/leadpipe/internal/messaging"
	"github.com/violetwave/leadpipe/internal/outreach"
	"github.com/violetwave/leadpipe/internal/scheduler"
	"github.com/violetwave/leadpipe/internal/scraper"
	"github.com/violetwave/leadpipe/internal/slack"
	"github.com/violetwave/leadpipe/internal/store"
	"github.com/violetwave/leadpipe/internal/twiliowhatsapp"
	"github.com/violetwave/leadpipe/internal/util"
	"github.com/violetwave/leadpipe/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for leadpipe state data
	DefaultStateDir = "/var/lib/leadpipe"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "leadpipe.db"
	// DefaultOutreachSchedule runs the outreach job daily at 10:00
	DefaultOutreachSchedule = "0 10 * * *"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	if err := run(config, flags); err != nil {
		slog.Error("leadpipe failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("leadpipe exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL      string
	StateDir         string
	OpenAIKey        string
	APIAddr          string
	OutreachCron     string
	SlackWebhookURL  string
	BookingLink      string
	AgentName        string
	CompanyName      string
	Niche            string
	MessagingBackend string
	WhatsAppDSN      string
	MinTurns         int
	PhoneSuffixLen   int
}

// Flags holds command line flag values
type Flags struct {
	qrOutput     *string
	numeric      *bool
	stateDir     *string
	dbDSN        *string
	openaiKey    *string
	apiAddr      *string
	outreachCron *string
	backend      *string
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
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
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		StateDir:         os.Getenv("LEADPIPE_STATE_DIR"),
		OpenAIKey:        os.Getenv("OPENAI_API_KEY"),
		APIAddr:          os.Getenv("API_ADDR"),
		OutreachCron:     util.GetEnvDefault("OUTREACH_SCHEDULE", DefaultOutreachSchedule),
		SlackWebhookURL:  os.Getenv("SLACK_WEBHOOK_URL"),
		BookingLink:      os.Getenv("BOOKING_LINK"),
		AgentName:        os.Getenv("AGENT_NAME"),
		CompanyName:      os.Getenv("COMPANY_NAME"),
		Niche:            os.Getenv("NICHE"),
		MessagingBackend: util.GetEnvDefault("MESSAGING_BACKEND", "twilio"),
		WhatsAppDSN:      os.Getenv("WHATSAPP_DB_DSN"),
		MinTurns:         util.ParseIntEnv("HANDOFF_MIN_TURNS", flow.DefaultMinTurnsForHandoff),
		PhoneSuffixLen:   util.ParseIntEnv("PHONE_MATCH_SUFFIX_LEN", store.DefaultPhoneSuffixLen),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No LEADPIPE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"LEADPIPE_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"OUTREACH_SCHEDULE", config.OutreachCron,
		"SLACK_WEBHOOK_URL_SET", config.SlackWebhookURL != "",
		"MESSAGING_BACKEND", config.MessagingBackend)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput:     flag.String("qr-output", "", "path to write login QR code (whatsmeow backend)"),
		numeric:      flag.Bool("numeric-code", false, "use numeric login code instead of QR code (whatsmeow backend)"),
		stateDir:     flag.String("state-dir", config.StateDir, "state directory for leadpipe data (overrides $LEADPIPE_STATE_DIR)"),
		dbDSN:        flag.String("db-dsn", config.DatabaseURL, "database DSN for the lead directory (overrides $DATABASE_URL)"),
		openaiKey:    flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:      flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		outreachCron: flag.String("outreach-cron", config.OutreachCron, "cron schedule for the outreach job (overrides $OUTREACH_SCHEDULE)"),
		backend:      flag.String("messaging-backend", config.MessagingBackend, "messaging backend: twilio or whatsmeow (overrides $MESSAGING_BACKEND)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"outreachCron", *flags.outreachCron,
		"backend", *flags.backend)

	// Update database DSN if not explicitly set but state directory is provided
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if !strings.Contains(*flags.dbDSN, "postgres://") && !strings.Contains(*flags.dbDSN, "host=") {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// buildStore selects the directory backend from the DSN.
func buildStore(config Config, flags Flags) (store.Store, error) {
	suffixOpt := store.WithPhoneSuffixLen(config.PhoneSuffixLen)
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithPostgresDSN(*flags.dbDSN), suffixOpt)
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
	return store.NewSQLiteStore(store.WithSQLiteDSN(*flags.dbDSN), suffixOpt)
}

// buildMessagingService wires the configured messaging backend.
func buildMessagingService(config Config, flags Flags) (messaging.Service, error) {
	if *flags.backend == "whatsmeow" {
		var waOpts []whatsapp.Option
		if config.WhatsAppDSN != "" {
			waOpts = append(waOpts, whatsapp.WithDBDSN(config.WhatsAppDSN))
		} else {
			waOpts = append(waOpts, whatsapp.WithDBDSN(filepath.Join(*flags.stateDir, "whatsmeow.db")))
		}
		if *flags.qrOutput != "" {
			waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
		}
		if *flags.numeric {
			waOpts = append(waOpts, whatsapp.WithNumericCode())
		}
		waClient, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return nil, err
		}
		return messaging.NewWhatsAppService(waClient), nil
	}

	twClient, err := twiliowhatsapp.NewClient()
	if err != nil {
		return nil, err
	}
	return messaging.NewTwilioService(twClient), nil
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(config Config, flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	if config.AgentName != "" {
		genaiOpts = append(genaiOpts, genai.WithAgentName(config.AgentName))
	}
	if config.CompanyName != "" {
		genaiOpts = append(genaiOpts, genai.WithCompanyName(config.CompanyName))
	}
	if config.Niche != "" {
		genaiOpts = append(genaiOpts, genai.WithNiche(config.Niche))
	}
	return genaiOpts
}

// run wires every module together and blocks until shutdown.
func run(config Config, flags Flags) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := buildStore(config, flags)
	if err != nil {
		return err
	}
	defer st.Close()

	msgService, err := buildMessagingService(config, flags)
	if err != nil {
		return err
	}
	if err := msgService.Start(ctx); err != nil {
		return err
	}
	defer msgService.Stop()

	gaClient, err := genai.NewClient(buildGenAIOptions(config, flags)...)
	if err != nil {
		return err
	}

	notifier := slack.NewNotifier(slack.WithWebhookURL(config.SlackWebhookURL))

	engineOpts := []flow.Option{
		flow.WithStore(st),
		flow.WithGenAI(gaClient),
		flow.WithSender(msgService),
		flow.WithNotifier(notifier),
		flow.WithMinTurnsForHandoff(config.MinTurns),
	}
	if config.BookingLink != "" {
		engineOpts = append(engineOpts, flow.WithBookingLink(config.BookingLink))
	}
	engine, err := flow.NewEngine(engineOpts...)
	if err != nil {
		return err
	}

	outreachJob, err := outreach.NewJob(
		outreach.WithStore(st),
		outreach.WithGenAI(gaClient),
		outreach.WithSender(msgService),
	)
	if err != nil {
		return err
	}

	leadScraper, err := scraper.NewScraper(scraper.WithStore(st))
	if err != nil {
		return err
	}

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if err := sched.AddJob(*flags.outreachCron, func() {
		if _, err := outreachJob.Run(ctx); err != nil {
			slog.Error("Scheduled outreach run failed", "error", err)
		}
	}); err != nil {
		return err
	}
	slog.Info("Outreach job scheduled", "cron", *flags.outreachCron)

	var apiOpts []api.Option
	apiOpts = append(apiOpts,
		api.WithEngine(engine),
		api.WithOutreach(outreachJob),
		api.WithScraper(leadScraper),
		api.WithMessagingService(msgService),
	)
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	server, err := api.NewServer(apiOpts...)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
		return server.Stop(context.Background())
	case err := <-errCh:
		return err
	}
}
