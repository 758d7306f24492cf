// Command plotos fetches stock metadata from Yahoo Finance for the tickers in
// a remote feed and caches it in a local SQLite database.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"plotos/internal/config"
	"plotos/internal/feed"
	"plotos/internal/httpapi"
	"plotos/internal/refresh"
	"plotos/internal/store"
	"plotos/internal/util"
	"plotos/internal/yahoo"
)

func main() {
	// A local .env is optional; real environments set variables directly.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string

	rootCmd := &cobra.Command{
		Use:           "plotos",
		Short:         "Stock metadata fetch-and-cache pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "configuration file path")

	rootCmd.AddCommand(newRefreshCmd(&cfgPath))
	rootCmd.AddCommand(newGetCmd(&cfgPath))
	rootCmd.AddCommand(newListCmd(&cfgPath))
	rootCmd.AddCommand(newTickersCmd(&cfgPath))
	rootCmd.AddCommand(newCheckCmd(&cfgPath))
	rootCmd.AddCommand(newExportCmd(&cfgPath))
	rootCmd.AddCommand(newServeCmd(&cfgPath))

	return rootCmd
}

// loadConfig resolves the configuration: --config flag, then PLOTOS_CONFIG,
// then config/plotos.yaml, falling back to built-in defaults when no file
// exists. Logging is initialized as a side effect.
func loadConfig(flagPath string) (*config.Config, error) {
	path := flagPath
	if path == "" {
		path = os.Getenv("PLOTOS_CONFIG")
	}
	if path == "" {
		path = "config/plotos.yaml"
	}

	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) && flagPath == "" {
		cfg, err = config.Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}

	util.SetDefault(util.NewLogger(cfg.Logging.Level, cfg.Logging.Format))
	return cfg, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// normalizeSymbol matches the normalization the feed and store apply, so a
// lower-case argument still hits the cached row.
func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// ---------------------------------------------------------------------------
// Wiring helpers
// ---------------------------------------------------------------------------

func buildClient(cfg *config.Config) *yahoo.Client {
	backoff := util.ExponentialBackoff(cfg.Refresh.BackoffBase.Std())
	if cfg.Refresh.Backoff == "constant" {
		backoff = util.ConstantBackoff(cfg.Refresh.BackoffBase.Std())
	}
	return yahoo.NewClient(yahoo.Options{
		CookieURL:    cfg.Yahoo.CookieURL,
		CrumbURL:     cfg.Yahoo.CrumbURL,
		QuoteURL:     cfg.Yahoo.QuoteURL,
		SummaryURL:   cfg.Yahoo.SummaryURL,
		ChartURL:     cfg.Yahoo.ChartURL,
		UserAgent:    cfg.Yahoo.UserAgent,
		Fields:       cfg.Yahoo.Fields,
		Modules:      cfg.Yahoo.Modules,
		MaxAttempts:  cfg.Refresh.MaxAttempts,
		Backoff:      backoff,
		StorePartial: cfg.Refresh.StorePartial,
	})
}

func buildOrchestrator(cfg *config.Config, st store.StockStore) *refresh.Orchestrator {
	opts := refresh.Options{SkipCached: cfg.Refresh.SkipCached}
	if cfg.Refresh.RateLimitPerMin > 0 {
		opts.Limiter = util.NewRateLimiter(cfg.Refresh.RateLimitPerMin)
	}
	return refresh.NewOrchestrator(
		feed.NewLoader(cfg.Feed.URL, cfg.Feed.Delimiter),
		buildClient(cfg),
		st,
		opts,
	)
}

// ---------------------------------------------------------------------------
// Subcommands
// ---------------------------------------------------------------------------

func newRefreshCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Fetch every feed ticker and update the cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}

			st, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx, cancel := signalContext()
			defer cancel()

			report, err := buildOrchestrator(cfg, st).RefreshAll(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("updated %d, skipped %d, failed %d\n",
				len(report.Updated), len(report.Skipped), len(report.Failed))
			for _, f := range report.Failed {
				fmt.Printf("  FAILED %s: %s\n", f.Symbol, f.Reason)
			}
			if len(report.Failed) > 0 {
				return fmt.Errorf("%d symbols failed", len(report.Failed))
			}
			return nil
		},
	}
}

func newGetCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "get SYMBOL",
		Short: "Print the cached bundle for a symbol as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}

			st, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
			if err != nil {
				return err
			}
			defer st.Close()

			bundle, err := st.Get(cmd.Context(), normalizeSymbol(args[0]))
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(bundle)
		},
	}
}

func newListCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all cached symbols",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}

			st, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
			if err != nil {
				return err
			}
			defer st.Close()

			entries, err := st.ListAll(cmd.Context())
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Println(e.Symbol)
			}
			return nil
		},
	}
}

func newTickersCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "tickers",
		Short: "Print the current ticker feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}

			tickers, err := feed.NewLoader(cfg.Feed.URL, cfg.Feed.Delimiter).Load(cmd.Context())
			if err != nil {
				return err
			}
			for _, tk := range tickers {
				fmt.Printf("%s\t%s\n", tk.Symbol, tk.Name)
			}
			return nil
		},
	}
}

func newCheckCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify connectivity to the data provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			if err := buildClient(cfg).Check(ctx); err != nil {
				return fmt.Errorf("provider check failed: %w", err)
			}
			fmt.Println("provider ok")
			return nil
		},
	}
}

func newExportCmd(cfgPath *string) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "export PATH",
		Short: "Export the cache to a Parquet file or a SQLite snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}

			st, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
			if err != nil {
				return err
			}
			defer st.Close()

			switch format {
			case "parquet":
				n, err := store.ExportParquet(cmd.Context(), st, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("exported %d rows to %s\n", n, args[0])
			case "sqlite":
				if err := st.Snapshot(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Printf("snapshot written to %s\n", args[0])
			default:
				return fmt.Errorf("unknown format %q (want parquet or sqlite)", format)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "parquet", "export format: parquet or sqlite")
	return cmd
}

func newServeCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the cache and refresh pipeline over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}

			st, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
			if err != nil {
				return err
			}
			defer st.Close()

			client := buildClient(cfg)
			api := httpapi.NewServer(
				st,
				buildOrchestrator(cfg, st),
				feed.NewLoader(cfg.Feed.URL, cfg.Feed.Delimiter),
				client,
				nil,
			)

			addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
			srv := &http.Server{Addr: addr, Handler: api.Handler()}

			ctx, cancel := signalContext()
			defer cancel()
			go func() {
				<-ctx.Done()
				shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
				defer stop()
				srv.Shutdown(shutdownCtx)
			}()

			fmt.Printf("plotos serving on %s\n", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
}
