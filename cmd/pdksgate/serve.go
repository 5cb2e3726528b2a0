package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pdkslab/pdksgate/internal/config"
	"github.com/pdkslab/pdksgate/internal/gate/relay"
	"github.com/pdkslab/pdksgate/internal/gate/service"
	"github.com/pdkslab/pdksgate/internal/grpcapi"
	"github.com/pdkslab/pdksgate/internal/httpapi"
	"github.com/pdkslab/pdksgate/internal/publisher"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP decision endpoint and the gRPC health service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a.cfg, a.log)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	b, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.close()

	pub, err := newPublisher(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer pub.Close()

	opts := service.Options{
		LookupTimeout: cfg.LookupTimeout,
		RecordTimeout: cfg.RecordTimeout,
		DedupeWindow:  cfg.DedupeWindow,
		Location:      cfg.Location,
		Publisher:     pub,
		Logger:        log.WithField("component", "access"),
	}
	access := service.NewAccessService(b.stores, opts)
	defer access.Close()

	confirmations := service.NewConfirmationService(
		b.stores.Events, cfg.ConfirmWindow, cfg.RecordTimeout, cfg.ConfirmQueue,
		log.WithField("component", "confirmations"),
	)
	defer confirmations.Close()

	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:        log.WithField("component", "http"),
		Addr:          cfg.HTTPAddr,
		AccessService: access,
		CheckService:  service.NewCheckService(b.stores, opts),
		Confirmations: confirmations,
		Selector:      relay.Selector{Default: cfg.Dialect, Overrides: cfg.DialectOverrides},
		Health:        b.health,
		RateLimit: httpapi.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
		},
	})

	// Bind every listener before starting anything, so a bad address fails
	// startup while nothing is running yet.
	httpLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	var grpcLis net.Listener
	if cfg.GRPCAddr != "" {
		grpcLis, err = net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			_ = httpLis.Close()
			return fmt.Errorf("grpc listen: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.WithFields(logrus.Fields{
			"addr":      httpLis.Addr().String(),
			"backend":   cfg.StoreBackend,
			"publisher": pub.Name(),
		}).Info("listening")
		if err := srv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if grpcLis != nil {
		hs := grpcapi.NewHealthServer(b.health, 10*time.Second, log.WithField("component", "grpc"))
		g.Go(func() error {
			log.WithField("addr", grpcLis.Addr().String()).Info("grpc health listening")
			return hs.Serve(grpcLis)
		})
		g.Go(func() error {
			hs.Run(gctx)
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			hs.Stop()
			return nil
		})
	}

	err = g.Wait()
	log.Info("shutting down")
	return err
}

func newPublisher(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (publisher.Publisher, error) {
	switch cfg.Publisher {
	case "kafka":
		k, err := publisher.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic, log.WithField("component", "kafka"))
		if err != nil {
			return nil, err
		}
		return k, nil
	case "redis":
		r := publisher.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Channel)
		if err := r.Ping(ctx); err != nil {
			// Events are advisory; the engine still serves swipes.
			log.WithError(err).Warn("redis unreachable at startup")
		}
		return r, nil
	}
	return publisher.Noop{}, nil
}
