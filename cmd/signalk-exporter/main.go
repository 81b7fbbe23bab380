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
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/obsidianstack/signalk-exporter/internal/alerts"
	"github.com/obsidianstack/signalk-exporter/internal/api"
	"github.com/obsidianstack/signalk-exporter/internal/auth"
	"github.com/obsidianstack/signalk-exporter/internal/config"
	"github.com/obsidianstack/signalk-exporter/internal/engine"
	"github.com/obsidianstack/signalk-exporter/internal/fetch"
	"github.com/obsidianstack/signalk-exporter/internal/poller"
	"github.com/obsidianstack/signalk-exporter/internal/security"
	"github.com/obsidianstack/signalk-exporter/internal/signalk"
	"github.com/obsidianstack/signalk-exporter/internal/store"
	"github.com/obsidianstack/signalk-exporter/internal/telemetry"
	"github.com/obsidianstack/signalk-exporter/internal/ws"
)

var CLI struct {
	Config     string `short:"c" help:"Configuration file path (optional when --signalk-url is set)"`
	SignalKURL string `name:"signalk-url" env:"SIGNALK_URL" help:"SignalK API URL, e.g. http://127.0.0.1:3000/signalk/v1/api/vessels/self"`
	Verbose    bool   `short:"v" help:"Enable verbose logging"`
	LogFormat  string `help:"Log output format" enum:"text,json" default:"text"`
	NoComments bool   `help:"Omit # HELP and # TYPE lines"`

	Print struct {
		Source string `short:"s" help:"Only print this source id"`
		Input  string `short:"i" help:"Convert a saved SignalK JSON document instead of fetching (- for stdin)"`
	} `cmd:"" default:"1" help:"Fetch once and print the metrics to stdout"`

	Serve struct {
		Listen string `short:"l" help:"Listen address (overrides exporter.listen)"`
	} `cmd:"" help:"Poll continuously and serve /metrics over HTTP"`
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("signalk-exporter"),
		kong.Description("Export SignalK vessel data as Prometheus metrics."),
	)

	slog.SetDefault(newLogger(os.Stderr, CLI.LogFormat, CLI.Verbose))

	var err error
	switch ctx.Command() {
	case "print":
		err = runPrint(os.Stdout)
	case "serve":
		err = runServe()
	default:
		err = fmt.Errorf("unknown command %q", ctx.Command())
	}
	if err != nil {
		slog.Error("signalk-exporter failed", "err", err)
		os.Exit(1)
	}
}

// newLogger builds the process logger. Logs go to stderr so print output
// stays clean.
func newLogger(w io.Writer, format string, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// loadConfig resolves the configuration from --config or --signalk-url.
// --signalk-url replaces the sources of a config file when both are set.
func loadConfig() (*config.Config, error) {
	switch {
	case CLI.Config != "":
		cfg, err := config.Load(CLI.Config)
		if err != nil {
			return nil, err
		}
		if CLI.SignalKURL != "" {
			single, err := config.ForURL(CLI.SignalKURL)
			if err != nil {
				return nil, err
			}
			cfg.Sources = single.Sources
		}
		return cfg, nil
	case CLI.SignalKURL != "":
		return config.ForURL(CLI.SignalKURL)
	default:
		return nil, errors.New("either --config or --signalk-url is required")
	}
}

// optionsFor returns the render options for each source of the config cur
// currently points to.
func optionsFor(cur *atomic.Pointer[config.Config], noComments bool) engine.OptionsFunc {
	return func(id string) engine.Options {
		cfg := cur.Load()
		src, _ := cfg.Source(id)
		return engine.Options{
			Comments:     cfg.Exporter.Comments && !noComments,
			Labels:       cfg.Labels(src),
			VesselLabels: cfg.Exporter.VesselLabels,
		}
	}
}

func runPrint(out io.Writer) error {
	if CLI.Print.Input != "" {
		return printFile(out, CLI.Print.Input)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	var cur atomic.Pointer[config.Config]
	cur.Store(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return printSources(ctx, out, cfg, CLI.Print.Source, optionsFor(&cur, CLI.NoComments))
}

// printSources fetches each selected source once and writes its metrics to
// out. A source answering 404 is skipped with a warning.
func printSources(ctx context.Context, out io.Writer, cfg *config.Config, only string, options engine.OptionsFunc) error {
	var bodies []string
	matched := false
	for _, src := range cfg.Sources {
		if only != "" && src.ID != only {
			continue
		}
		matched = true

		c, err := fetch.New(src)
		if err != nil {
			return err
		}
		doc, err := c.Document(ctx)
		if errors.Is(err, fetch.ErrNotFound) {
			slog.Warn("sensors not turned on", "source", src.ID)
			continue
		}
		if err != nil {
			return err
		}
		if text := engine.Text(doc, options(src.ID)); text != "" {
			bodies = append(bodies, text)
		}
	}
	if !matched {
		return fmt.Errorf("no source with id %q", only)
	}
	if len(bodies) == 0 {
		return nil
	}
	_, err := fmt.Fprintln(out, strings.Join(bodies, "\n"))
	return err
}

// printFile converts a saved document using the exporter defaults.
func printFile(out io.Writer, path string) error {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	doc, err := signalk.Parse(data)
	if err != nil {
		return err
	}

	opts := engine.Options{Comments: !CLI.NoComments, VesselLabels: true}
	if CLI.Config != "" {
		cfg, err := config.Load(CLI.Config)
		if err != nil {
			return err
		}
		opts.Comments = cfg.Exporter.Comments && !CLI.NoComments
		opts.VesselLabels = cfg.Exporter.VesselLabels
		opts.Labels = cfg.Labels(config.Source{})
	}
	if text := engine.Text(doc, opts); text != "" {
		_, err = fmt.Fprintln(out, text)
	}
	return err
}

func runServe() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if CLI.Serve.Listen != "" {
		cfg.Exporter.Listen = CLI.Serve.Listen
	}

	slog.Info("config loaded",
		"listen", cfg.Exporter.Listen,
		"sources", len(cfg.Sources),
		"scrape_interval", cfg.Exporter.ScrapeInterval,
		"auth_mode", cfg.Exporter.Auth.Mode,
		"alert_rules", len(cfg.Alerts.Rules),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var cur atomic.Pointer[config.Config]
	cur.Store(cfg)
	options := optionsFor(&cur, CLI.NoComments)

	// Hot reload swaps render options only; sources are built once.
	if CLI.Config != "" {
		go func() {
			err := config.Watch(ctx, CLI.Config, func(updated *config.Config) {
				updated.Sources = cfg.Sources
				cur.Store(updated)
				slog.Info("config hot-reloaded", "comments", updated.Exporter.Comments)
			})
			if err != nil {
				slog.Error("config watcher stopped", "err", err)
			}
		}()
	}

	st := store.New(cfg.Exporter.SnapshotTTL)
	go st.Run(ctx)

	rec := telemetry.New()
	rec.TrackDocuments(st.Count)

	fetchers := make([]poller.Fetcher, 0, len(cfg.Sources))
	ids := make([]string, 0, len(cfg.Sources))
	usable := make([]config.Source, 0, len(cfg.Sources))
	for _, src := range cfg.Sources {
		c, err := fetch.New(src)
		if err != nil {
			slog.Error("skipping source, could not build client", "source", src.ID, "err", err)
			continue
		}
		fetchers = append(fetchers, c)
		ids = append(ids, src.ID)
		usable = append(usable, src)
		slog.Info("registered source", "id", src.ID, "url", src.URL)
	}
	if len(fetchers) == 0 {
		return errors.New("no usable sources")
	}

	alertEngine := alerts.New(cfg.Alerts)
	go poller.New(fetchers, st, rec, options, cfg.Exporter.ScrapeInterval).WithAlerts(alertEngine).Run(ctx)

	certs := security.NewMonitor(usable, rec, security.DefaultInterval)
	go certs.Run(ctx)

	apiHandler := api.New(api.Deps{
		Store:    st,
		Recorder: rec,
		Sources:  ids,
		Options:  options,
		Certs:    certs,
		Alerts:   alertEngine,
	})
	hub := ws.New(ws.NewFeed(st, ids, options), cfg.Exporter.StreamInterval)
	rec.TrackStreamClients(hub.Count)
	go hub.Run(ctx)

	httpMux := http.NewServeMux()
	httpMux.Handle("/", apiHandler)
	httpMux.Handle("/ws/stream", hub)

	mw := auth.APIKey(cfg.Exporter.Auth.Mode, cfg.Exporter.Auth.EffectiveHeader(), cfg.Exporter.Auth.Key())
	httpSrv := &http.Server{
		Addr:              cfg.Exporter.Listen,
		Handler:           mw(httpMux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", cfg.Exporter.Listen)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)
	}

	slog.Info("signalk-exporter shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	return httpSrv.Shutdown(shutdownCtx)
}
