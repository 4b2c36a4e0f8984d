package main

import (
	"bufio"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"traffic-ingester/internal/auth"
	"traffic-ingester/internal/config"
	"traffic-ingester/internal/fetch"
	"traffic-ingester/internal/metrics"
	"traffic-ingester/internal/normalize"
	"traffic-ingester/internal/partition"
	"traffic-ingester/internal/pipeline"
	"traffic-ingester/internal/store"
)

// Version is set at build time via -ldflags "-X main.Version=..."
var Version = "dev"

var (
	cfgPath      string
	flagToken    string
	promptToken  bool
	flagFormat   string
	flagDatasets []string
	flagDataDir  string
	metricsAddr  string
	verbose      bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "traffic-ingester",
	Short: "Fetch Linz WebGIS traffic datasets and store them partitioned by day",
	Long: `traffic-ingester retrieves traffic-sensor measurements from the Linz
WebGIS portal's authenticated data API, normalizes the response into JSON or
CSV, and persists results into per-day files under the data directory.

A bearer token can be supplied with --token, entered interactively with
--prompt-token, or acquired automatically from the portal's token endpoint.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: run,
}

func init() {
	rootCmd.Flags().StringVar(&cfgPath, "config", "", "path to YAML config (defaults apply when omitted)")
	rootCmd.Flags().StringVar(&flagToken, "token", "", "bearer token for authentication")
	rootCmd.Flags().BoolVar(&promptToken, "prompt-token", false, "prompt for a bearer token")
	rootCmd.Flags().StringVar(&flagFormat, "format", "", "output format (json or csv)")
	rootCmd.Flags().StringSliceVar(&flagDatasets, "datasets", nil, "restrict to specific configured datasets")
	rootCmd.Flags().StringVar(&flagDataDir, "data-dir", "", "directory for persisted files")
	rootCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "expose Prometheus /metrics on this address during the run")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug logging")
}

func run(cmd *cobra.Command, args []string) error {
	logger.Info("traffic-ingester starting", zap.String("version", Version))

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if flagFormat != "" {
		cfg.Format = config.Format(strings.ToLower(flagFormat))
	}
	if flagDataDir != "" {
		cfg.DataDir = flagDataDir
	}
	if metricsAddr != "" {
		cfg.Metrics.ListenAddress = metricsAddr
	}
	if len(flagDatasets) > 0 {
		restricted, err := restrictDatasets(cfg.Datasets, flagDatasets)
		if err != nil {
			return err
		}
		cfg.Datasets = restricted
		fmt.Printf("Will fetch only the following datasets: %s\n", strings.Join(restricted, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	fmt.Printf("Output format set to: %s\n", cfg.Format)

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	mets := metrics.New()
	if addr := cfg.Metrics.ListenAddress; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", mets.Handler())
		go func() {
			logger.Info("serving /metrics", zap.String("addr", addr))
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Warn("metrics listener stopped", zap.Error(err))
			}
		}()
	}

	am := auth.NewManager(cfg.Portal, cfg.Auth, logger, mets)
	switch {
	case flagToken != "":
		am.SetToken(flagToken)
	case promptToken:
		token, err := promptForToken(cfg.Auth.TokenPrefix)
		if err != nil {
			return err
		}
		am.SetToken(token)
	default:
		fmt.Println("No authentication token provided, will attempt to obtain one automatically.")
		if _, err := am.Acquire(ctx); err != nil {
			logger.Warn("automatic token acquisition failed", zap.Error(err))
			fmt.Println("\nFailed to obtain authentication token automatically.")
			fmt.Println("Would you like to enter a token manually? (y/n)")
			if readsLikeYes() {
				token, perr := promptForToken(cfg.Auth.TokenPrefix)
				if perr != nil {
					return perr
				}
				am.SetToken(token)
			}
		}
	}

	norm := normalize.New(logger)
	client := fetch.NewClient(cfg, am, norm, logger, mets)
	writer, err := store.NewWriter(cfg.DataDir, cfg.Format, logger, mets)
	if err != nil {
		return err
	}
	orch := pipeline.New(client, partition.New(logger, mets), writer, cfg.Fetch.Pause, logger)

	sum := orch.Run(ctx, cfg.Datasets)
	if ctx.Err() != nil {
		fmt.Println("\nOperation cancelled by user.")
		return fmt.Errorf("operation cancelled")
	}

	fmt.Printf("\nSuccessfully processed %d out of %d datasets\n", sum.Succeeded, sum.Total)
	if !sum.OK() {
		fmt.Println("\nNo datasets were successfully fetched.")
		fmt.Println("You may need to provide a new authentication token.")
		fmt.Println("Run again with the --token or --prompt-token flag.")
	}
	return nil
}

// restrictDatasets keeps only requested names, rejecting any that are not in
// the configured set.
func restrictDatasets(configured, requested []string) ([]string, error) {
	known := make(map[string]bool, len(configured))
	for _, d := range configured {
		known[d] = true
	}
	out := make([]string, 0, len(requested))
	for _, d := range requested {
		if !known[d] {
			return nil, fmt.Errorf("unknown dataset %q (configured: %s)", d, strings.Join(configured, ", "))
		}
		out = append(out, d)
	}
	return out, nil
}

func promptForToken(prefix string) (string, error) {
	fmt.Println("\nPlease enter a new Bearer token for authentication:")
	fmt.Println("(You can get this from the Network tab in browser developer tools)")
	if prefix != "" {
		fmt.Printf("Token should start with %q and is quite long.\n\n", prefix)
	}
	fmt.Print("Bearer token: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read token: %w", err)
	}
	token := strings.TrimSpace(line)
	if token == "" {
		return "", fmt.Errorf("no token provided")
	}
	return token, nil
}

func readsLikeYes() bool {
	line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(line)), "y")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
