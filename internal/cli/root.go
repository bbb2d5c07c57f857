package cli

import (
	"errors"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"rvol-scanner/internal/config"
	"rvol-scanner/internal/logging"
	"rvol-scanner/internal/notify"
	"rvol-scanner/internal/quote"
	"rvol-scanner/internal/rate"
	"rvol-scanner/internal/scan"
	"rvol-scanner/internal/store"
)

// Version information
const (
	Version = "0.1.0"
)

// App holds the application dependencies.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Store  store.DataStore
	Bucket *rate.TokenBucket
	Quotes quote.Fetcher
	Sink   *notify.Sink
	Engine *scan.Engine
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	dataStore, err := store.NewSQLiteStore(config.DefaultDBPath())
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to initialize store, some features may be unavailable")
	} else {
		app.Store = dataStore
		logger.Debug().Msg("SQLite store initialized")
	}

	app.Bucket = rate.NewTokenBucket(cfg.Watch.QuotesPerMin)
	app.Quotes = quote.NewClient(cfg.Finnhub.BaseURL, cfg.Finnhub.APIKey, cfg.Finnhub.Timeout)

	if app.Store != nil {
		telegram := notify.NewTelegramSender(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.Enabled)
		app.Sink = notify.NewSink(app.Store, logger, telegram)
		app.Engine = scan.NewEngine(app.Store, app.Sink, logger)
	}

	rootCmd := &cobra.Command{
		Use:   "scanner",
		Short: "RVOL Scanner - market scan screener and price watcher",
		Long: `RVOL Scanner filters and scores relative-volume market scans, keeps a
deduplicated top-pick list per trading day, and watches live prices
against position alerts with Telegram notifications.

Use 'scanner help <command>' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/rvol-scanner)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newServeCmd(app))
	rootCmd.AddCommand(newWatchCmd(app))
	rootCmd.AddCommand(newIngestCmd(app))
	rootCmd.AddCommand(newCandidatesCmd(app))
	rootCmd.AddCommand(newPositionsCmd(app))
	rootCmd.AddCommand(newAlertsCmd(app))
	rootCmd.AddCommand(newPortfolioCmd(app))
	rootCmd.AddCommand(newSettingsCmd(app))
	rootCmd.AddCommand(newNotifyCmd(app))

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"version": Version})
			} else {
				output.Printf("RVOL Scanner v%s\n", Version)
			}
		},
	}
}

var errStoreUnavailable = errors.New("store not initialized, check database path and permissions")

// requireStore guards commands that need persistence.
func (a *App) requireStore() error {
	if a.Store == nil {
		return errStoreUnavailable
	}
	return nil
}
