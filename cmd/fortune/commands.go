package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"horoscope/internal/client"
	"horoscope/internal/fortune"
	"horoscope/internal/localstore"
)

var errNoFortuneToday = errors.New("no fortune cached for today")

type cliOptions struct {
	server  string
	data    string
	tz      string
	timeout time.Duration
	verbose bool
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func defaultDataPath() string {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), "horoscope", "fortune.db")
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "horoscope", "fortune.db")
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}

	root := &cobra.Command{
		Use:           "fortune",
		Short:         "Reveal today's fortune",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.server, "server", envOr("FORTUNE_SERVER", "http://localhost:3000"), "fortune server URL (FORTUNE_SERVER)")
	flags.StringVar(&opts.data, "data", envOr("FORTUNE_DATA", defaultDataPath()), "local cache database (FORTUNE_DATA)")
	flags.StringVar(&opts.tz, "tz", "", "IANA time zone that defines a day (default local)")
	flags.DurationVar(&opts.timeout, "timeout", fortune.DefaultTimeout, "fetch timeout")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log cache and network activity")
	flags.BoolVar(&noColor, "no-color", os.Getenv("NO_COLOR") != "", "disable colored output")

	root.AddCommand(
		newTodayCmd(opts),
		newHasTodayCmd(opts),
		newClearCmd(opts),
		newWatchCmd(opts),
		newRandomCmd(opts),
	)
	return root
}

func (o *cliOptions) location() (*time.Location, error) {
	if o.tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(o.tz)
	if err != nil {
		return nil, fmt.Errorf("unknown time zone %q: %w", o.tz, err)
	}
	return loc, nil
}

func (o *cliOptions) logger(cmd *cobra.Command) zerolog.Logger {
	level := zerolog.WarnLevel
	if o.verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), NoColor: noColor, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger().Level(level)
}

// openGate builds and starts a gate over the local cache. The returned
// function releases it.
func (o *cliOptions) openGate(cmd *cobra.Command, extra ...fortune.Option) (*fortune.Gate, func(), error) {
	loc, err := o.location()
	if err != nil {
		return nil, nil, err
	}

	store, err := localstore.OpenSQLite(o.data)
	if err != nil {
		return nil, nil, err
	}

	gateOpts := append([]fortune.Option{
		fortune.WithLocation(loc),
		fortune.WithLogger(o.logger(cmd)),
		fortune.WithTimeout(o.timeout),
	}, extra...)
	gate := fortune.New(client.New(o.server), store, gateOpts...)

	release := func() {
		gate.Close()
		store.Close()
	}
	if err := gate.Start(cmd.Context()); err != nil {
		release()
		return nil, nil, err
	}
	return gate, release, nil
}

func newTodayCmd(opts *cliOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "today",
		Short: "Show today's fortune, drawing it if needed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			gate, release, err := opts.openGate(cmd)
			if err != nil {
				return err
			}
			defer release()

			h, err := gate.RequestFortune(cmd.Context(), fortune.RequestOptions{Force: force})
			if err != nil {
				return describe(err)
			}
			printFortune(cmd.OutOrStdout(), h)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "draw again even if today's fortune is cached")
	return cmd
}

func newHasTodayCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "has-today",
		Short: "Report whether today's fortune is cached (exit 1 if not)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			gate, release, err := opts.openGate(cmd)
			if err != nil {
				return err
			}
			defer release()

			if !gate.HasToday(cmd.Context()) {
				fmt.Fprintln(cmd.OutOrStdout(), "no")
				return errNoFortuneToday
			}
			fmt.Fprintln(cmd.OutOrStdout(), "yes")
			return nil
		},
	}
}

func newClearCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Forget today's fortune",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			gate, release, err := opts.openGate(cmd)
			if err != nil {
				return err
			}
			defer release()

			if err := gate.ClearTodayCache(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Today's fortune cleared.")
			return nil
		},
	}
}

func newWatchCmd(opts *cliOptions) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Show today's fortune and reveal a new one after each midnight",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var (
				mu      sync.Mutex
				lastDay string
			)
			newDay := make(chan struct{}, 1)
			observer := func(st fortune.State) {
				mu.Lock()
				defer mu.Unlock()
				if lastDay != "" && st.DateKey != lastDay {
					select {
					case newDay <- struct{}{}:
					default:
					}
				}
				lastDay = st.DateKey
			}

			gate, release, err := opts.openGate(cmd, fortune.WithObserver(observer))
			if err != nil {
				return err
			}
			defer release()

			loc, _ := opts.location()
			out := cmd.OutOrStdout()
			reveal := func() {
				h, err := gate.RequestFortune(ctx, fortune.RequestOptions{})
				if err != nil {
					if ctx.Err() == nil {
						fmt.Fprintln(out, colorize(colorRed, "✗ "+describe(err).Error()))
					}
					return
				}
				printFortune(out, h)
			}
			countdown := func() {
				left := fortune.UntilMidnight(time.Now(), loc)
				fmt.Fprintln(out, colorize(colorDim, "New fortune in "+formatCountdown(left)))
			}

			reveal()
			countdown()

			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-newDay:
					fmt.Fprintln(out)
					reveal()
				case <-ticker.C:
					if st := gate.State(); st.Value == nil && !st.Loading {
						reveal()
					}
					countdown()
				}
			}
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", time.Minute, "how often to print the countdown")
	return cmd
}

func newRandomCmd(opts *cliOptions) *cobra.Command {
	var exclude int64

	cmd := &cobra.Command{
		Use:   "random",
		Short: "Draw a random horoscope directly, bypassing the daily cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			h, err := client.New(opts.server).Random(ctx, exclude)
			if err != nil {
				return describe(err)
			}
			printFortune(cmd.OutOrStdout(), h)
			return nil
		},
	}
	cmd.Flags().Int64Var(&exclude, "exclude", 0, "horoscope id to leave out")
	return cmd
}

// describe turns fetch failures into messages for people.
func describe(err error) error {
	switch {
	case errors.Is(err, fortune.ErrNotFound):
		return fmt.Errorf("no fortunes have been written yet: %w", err)
	case errors.Is(err, fortune.ErrTimeout):
		return fmt.Errorf("the fortune server took too long, try again: %w", err)
	case errors.Is(err, fortune.ErrUnavailable):
		return fmt.Errorf("the fortune server is unavailable, try again shortly: %w", err)
	default:
		return err
	}
}
