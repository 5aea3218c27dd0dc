package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/flowrise/focusync/internal/api"
	"github.com/flowrise/focusync/internal/collector"
	"github.com/flowrise/focusync/internal/config"
	fslog "github.com/flowrise/focusync/internal/log"
	"github.com/flowrise/focusync/internal/recorder"
	"github.com/flowrise/focusync/internal/session"
	"github.com/flowrise/focusync/internal/store"
	"github.com/flowrise/focusync/internal/sweep"
	"github.com/flowrise/focusync/internal/transport"
	"github.com/flowrise/focusync/internal/version"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		os.Exit(0)
	}

	// Development convenience; a missing .env is not an error.
	_ = godotenv.Load()

	cfg := config.FromEnv()
	logCfg := fslog.Config{
		Level:   cfg.LogLevel,
		Service: "focusyncd",
		Version: version.Version,
	}
	if cfg.LogPretty {
		logCfg.Output = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	fslog.Configure(logCfg)

	base := fslog.L()
	base.Info().
		Str("commit", version.Commit).
		Str("built", version.Date).
		Msg("starting focusyncd")

	logger := fslog.WithComponent("daemon")

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Fatal().Err(err).Msg("daemon exited with error")
	}
	logger.Info().Msg("daemon stopped")
}

func run(ctx context.Context, cfg config.Config) error {
	logger := fslog.WithComponent("daemon")

	st, err := store.Open(cfg.StoreBackend, cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn().Err(err).Msg("store close failed")
		}
	}()

	// The transport asks the tracker for the active session; the tracker
	// pushes boundaries through the transport. The guarded closure breaks
	// the construction cycle: the transport may ask before the tracker
	// exists.
	var (
		trackerMu sync.Mutex
		tracker   *session.Tracker
	)
	tp := transport.Dial(transport.Options{
		URL:             cfg.ChannelURL,
		ReconnectDelay:  cfg.ReconnectDelay,
		SyntheticWindow: cfg.SyntheticWindow,
		ActiveSession: func() (string, bool) {
			trackerMu.Lock()
			t := tracker
			trackerMu.Unlock()
			if t == nil {
				return "", false
			}
			s := t.Active()
			if s == nil {
				return "", false
			}
			return s.ID, true
		},
	})
	defer func() {
		if err := tp.Close(); err != nil {
			logger.Warn().Err(err).Msg("transport close failed")
		}
	}()

	rec := recorder.New(st, recorder.NewHTTPSender(cfg.BatchURL, cfg.RequestTimeout), cfg.FlushThreshold, cfg.FlushInterval)
	sw := sweep.New(st, sweep.NewHTTPSender(cfg.ContentURL, cfg.RequestTimeout), cfg.SweepInterval, cfg.RetryMaxAttempts)

	trackerMu.Lock()
	tracker = session.NewTracker(
		session.NewFilter(cfg.InterruptionCap),
		rec,
		collector.NewTransportNotifier(tp),
		collector.NewHistoryWriter(st, cfg.HistoryLimit),
	)
	trackerMu.Unlock()

	col := collector.New(tracker, sw, tp, nil, func(closed *session.Session) {
		// Downstream prompt hook: UI surfaces poll history and prompt
		// for the captured learning themselves.
		logger.Info().
			Str(fslog.FieldSessionID, closed.ID).
			Msg("session closed, learning capture available")
	})

	srv := api.New(api.Config{
		ListenAddr:      cfg.ListenAddr,
		RateLimitPerMin: cfg.RateLimitPerMin,
	}, col, rec, st, tp)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		col.Run(ctx)
		return nil
	})
	g.Go(func() error {
		rec.Run(ctx)
		return nil
	})
	g.Go(func() error {
		sw.Run(ctx)
		return nil
	})
	g.Go(func() error {
		err := srv.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
