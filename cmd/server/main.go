package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/Meet/internal/adapters/http"
	"github.com/dkeye/Meet/internal/adapters/rtc"
	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/app/orch"
	"github.com/dkeye/Meet/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Human-friendly output until the config says otherwise.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("server failed")
		cancel()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "meet-server",
		Short:         "Call coordination and signaling relay for peer-to-peer video calls",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cmd.Flags())
		},
	}
	cmd.Flags().AddFlagSet(config.Flags())
	return cmd
}

func run(ctx context.Context, flags *pflag.FlagSet) error {
	if err := godotenv.Load(); err == nil {
		log.Info().Str("module", "main").Msg("loaded .env")
	}

	cfg, v, err := config.Load(flags)
	if err != nil {
		return err
	}
	setupLogger(cfg)
	config.Watch(v, func(c *config.Config) { applyLevel(c.Log.Level) })

	ice := rtc.ICEServers(cfg.ICE.Servers)
	if err := rtc.Validate(ice); err != nil {
		return err
	}

	engine := app.NewEngine(app.Limits{
		GroupCapacity:  cfg.Calls.GroupCapacity,
		PendingTimeout: cfg.Calls.PendingTimeout,
	})
	o := orch.New(engine,
		orch.WithBuffer(cfg.EventBuffer),
		orch.WithSweepInterval(cfg.Calls.SweepInterval),
	)

	g, gctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router.SetupRouter(gctx, cfg, o),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error { return o.Run(gctx) })
	g.Go(func() error {
		log.Info().Str("module", "main").Str("addr", srv.Addr).Msg("Meet server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Str("module", "main").Msg("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Str("module", "main").Msg("Server forced to shutdown")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Str("module", "main").Msg("Server exited gracefully")
	return nil
}

func setupLogger(cfg *config.Config) {
	if cfg.Mode == "release" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	applyLevel(cfg.Log.Level)
}

func applyLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		log.Warn().Err(err).Str("module", "main").Str("level", level).Msg("unknown log level")
		return
	}
	zerolog.SetGlobalLevel(lvl)
	log.Info().Str("module", "main").Str("level", lvl.String()).Msg("log level set")
}
