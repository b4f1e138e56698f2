// Command trackctl drives the tracking client from the command line. It
// keeps the visitor identity in a local SQLite file so repeated runs act as
// a returning visitor.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Priya8975/trackflow/internal/domain"
	"github.com/Priya8975/trackflow/internal/tracker"
)

type options struct {
	endpoint  string
	statePath string
	logLevel  string
	userAgent string
	language  string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:          "trackctl",
		Short:        "Send TrackFlow events as a simulated visitor",
		SilenceUsage: true,
	}

	def := tracker.DefaultConfig()
	flags := root.PersistentFlags()
	flags.StringVar(&opts.endpoint, "endpoint", envOr("TRACKFLOW_ENDPOINT", def.Endpoint), "collector track endpoint")
	flags.StringVar(&opts.statePath, "state", envOr("TRACKFLOW_STATE", "trackctl.db"), "SQLite file holding the visitor identity")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flags.StringVar(&opts.userAgent, "user-agent", "trackctl/1.0", "user agent reported in browser_info")
	flags.StringVar(&opts.language, "language", "en-US", "language reported in browser_info")

	root.AddCommand(
		newIdentityCmd(opts),
		newConversionCmd(opts),
		newReplayCmd(opts),
	)
	return root
}

// client bundles a tracker with the resources it owns.
type client struct {
	identity  *tracker.Identity
	tracker   *tracker.Tracker
	state     *tracker.SQLiteStorage
	transport *tracker.HTTPTransport
}

func (o *options) open(browser domain.BrowserContext) (*client, error) {
	logger := newLogger(o.logLevel)

	state, err := tracker.OpenSQLiteStorage(o.statePath)
	if err != nil {
		return nil, err
	}

	cfg := tracker.DefaultConfig()
	cfg.Endpoint = o.endpoint
	// scripted scrolls arrive one at a time, nothing to coalesce
	cfg.ScrollDebounce = 0

	// the visitor id persists in SQLite, the session only for this run
	identity := tracker.NewIdentity(state, tracker.NewMemoryStorage(cfg.SessionTTL), logger)
	transport := tracker.NewHTTPTransport(cfg.Endpoint, cfg.BeaconQueueSize, cfg.RequestTimeout, logger)

	if browser.UserAgent == "" {
		browser.UserAgent = o.userAgent
	}
	if browser.Language == "" {
		browser.Language = o.language
	}

	return &client{
		identity:  identity,
		tracker:   tracker.New(cfg, identity, transport, browser, logger),
		state:     state,
		transport: transport,
	}, nil
}

// Close flushes queued events and releases the state file.
func (c *client) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	err := c.tracker.Close(ctx)
	if cerr := c.state.Close(); err == nil {
		err = cerr
	}
	return err
}

func newIdentityCmd(opts *options) *cobra.Command {
	var reset bool

	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Print the stored visitor id and a session id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.open(domain.BrowserContext{})
			if err != nil {
				return err
			}
			defer c.Close()

			ctx := cmd.Context()
			if reset {
				if err := c.state.Delete(ctx, tracker.VisitorKey); err != nil {
					return err
				}
				c.identity.Reset(ctx)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "visitor_id: %s\n", c.identity.VisitorID(ctx))
			fmt.Fprintf(out, "session_id: %s\n", c.identity.SessionID(ctx))
			return nil
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "forget the stored visitor before printing")
	return cmd
}

func newConversionCmd(opts *options) *cobra.Command {
	var (
		conversionType string
		value          float64
	)

	cmd := &cobra.Command{
		Use:   "conversion",
		Short: "Send a conversion event for the stored visitor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if conversionType == "" {
				return fmt.Errorf("--type is required")
			}
			c, err := opts.open(domain.BrowserContext{})
			if err != nil {
				return err
			}

			var v *float64
			if cmd.Flags().Changed("value") {
				v = &value
			}
			visitorID := c.identity.VisitorID(cmd.Context())
			c.tracker.TrackConversion(cmd.Context(), conversionType, v, nil)

			if err := c.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "conversion %q sent for %s\n", conversionType, visitorID)
			return nil
		},
	}
	cmd.Flags().StringVar(&conversionType, "type", "", "conversion type, for example purchase or signup")
	cmd.Flags().Float64Var(&value, "value", 0, "conversion value")
	return cmd
}

func newReplayCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "replay <scenario.yaml>",
		Short: "Replay a scripted visit through the tracker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			sc, err := LoadScenario(f)
			if err != nil {
				return fmt.Errorf("loading %s: %w", args[0], err)
			}

			c, err := opts.open(sc.Browser.Context())
			if err != nil {
				return err
			}
			visitorID := c.identity.VisitorID(cmd.Context())
			replayErr := replay(cmd.Context(), c.tracker, sc)
			if err := c.Close(); err != nil && replayErr == nil {
				replayErr = err
			}
			if replayErr != nil {
				return replayErr
			}
			fmt.Fprintf(cmd.OutOrStdout(), "replayed %d pages for %s\n", len(sc.Pages), visitorID)
			return nil
		},
	}
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
