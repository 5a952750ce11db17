package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	// Build info (set via ldflags)
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// cli holds the state shared by all commands
type cli struct {
	configPath string
	logLevel   string
	logJSON    bool

	cfg    Config
	logger *slog.Logger
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func main() {
	if err := newRootCmd(os.Stdin, os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	c := &cli{stdin: stdin, stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:          "docnav",
		Short:        "Serve a markdown document tree and mirror it live",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd)
		},
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "YAML config file")
	flags.StringVar(&c.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flags.BoolVar(&c.logJSON, "log-json", false, "log as JSON")

	root.AddCommand(c.serveCmd(), c.mirrorCmd(), c.versionCmd())
	return root
}

// setup loads the config and applies flags that were set explicitly
func (c *cli) setup(cmd *cobra.Command) error {
	cfg, err := loadConfig(c.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = c.logLevel
	}
	if flags.Changed("log-json") {
		cfg.Log.JSON = c.logJSON
	}
	logger, err := newLogger(c.stderr, cfg.Log.Level, cfg.Log.JSON)
	if err != nil {
		return err
	}
	c.cfg = cfg
	c.logger = logger
	return nil
}

func (c *cli) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "docnav %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func (c *cli) serveCmd() *cobra.Command {
	var addr, basePath, home string
	cmd := &cobra.Command{
		Use:   "serve [root]",
		Short: "Serve the navigation tree, rendered documents and push events",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := c.cfg.Serve
			if len(args) == 1 {
				cfg.Root = args[0]
			}
			flags := cmd.Flags()
			if flags.Changed("addr") {
				cfg.Addr = addr
			}
			if flags.Changed("base-path") {
				cfg.BasePath = basePath
			}
			if flags.Changed("home") {
				cfg.Home = home
			}

			info, err := os.Stat(cfg.Root)
			if err != nil {
				return fmt.Errorf("document root: %w", err)
			}
			if !info.IsDir() {
				return fmt.Errorf("document root %s is not a directory", cfg.Root)
			}
			root, err := filepath.Abs(cfg.Root)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return newDocServer(root, cfg.Home, cfg.BasePath, c.logger).run(ctx, cfg.Addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, localhost:3456)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "URL prefix for all routes (default /docnav)")
	cmd.Flags().StringVar(&home, "home", "", "document shown for the empty route (default Home.md)")
	return cmd
}

func (c *cli) mirrorCmd() *cobra.Command {
	var route, out, metricsAddr, home string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "mirror [base-url]",
		Short: "Mirror a docnav server's navigation and content live",
		Long: "Mirror keeps a local copy of the server's navigation tree in sync with push\n" +
			"events and renders the active document. Lines on stdin navigate: a\n" +
			"fragment such as #guide/Intro.md, :resync to reload the snapshot or\n" +
			":tree to print the outline again.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := c.cfg.Mirror
			if len(args) == 1 {
				cfg.BaseURL = args[0]
			}
			flags := cmd.Flags()
			if flags.Changed("route") {
				cfg.Route = route
			}
			if flags.Changed("out") {
				cfg.Out = out
			}
			if flags.Changed("metrics-addr") {
				cfg.MetricsAddr = metricsAddr
			}
			if flags.Changed("home") {
				cfg.Home = home
			}
			if flags.Changed("timeout") {
				cfg.Timeout = timeout
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return c.runMirror(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&route, "route", "", "initial route fragment")
	cmd.Flags().StringVar(&out, "out", "", "write the rendered page to this HTML file instead of printing an outline")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().StringVar(&home, "home", "", "document shown for the empty route (default Home.md)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "HTTP request timeout (default 10s)")
	return cmd
}

func (c *cli) runMirror(ctx context.Context, cfg MirrorConfig) error {
	e, err := newEndpoints(cfg.BaseURL)
	if err != nil {
		return err
	}

	var sink pageSink = outlineSink{w: c.stdout}
	if cfg.Out != "" {
		sink = fileSink{path: cfg.Out}
	}

	m := newMirror(
		cfg.Home,
		cfg.Route,
		newSnapshotLoader(e, cfg.Timeout, cfg.SnapshotRetry, c.logger),
		newContentClient(e, cfg.Timeout),
		newEventChannel(e, cfg.Reconnect, c.logger),
		sink,
		c.logger,
	)

	c.logger.Info("Mirroring", "base_url", cfg.BaseURL, "route", cfg.Route)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return m.Run(ctx, c.stdin)
	})
	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			return serveMetrics(ctx, cfg.MetricsAddr, c.logger)
		})
	}
	return g.Wait()
}

// serveMetrics exposes /metrics until ctx is cancelled
func serveMetrics(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Metrics server shutdown error", "error", err)
		}
	}()

	logger.Info("Serving metrics", "addr", addr)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
