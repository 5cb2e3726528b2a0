// Package grpcapi exposes the standard gRPC health service so load balancers
// and orchestrators can tell whether the engine can reach its stores.
package grpcapi

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/pdkslab/pdksgate/internal/gate/store"
)

// ServiceName is the health-checked service besides the server-wide "".
const ServiceName = "pdksgate.AccessGate"

type HealthServer struct {
	server   *grpc.Server
	health   *health.Server
	pinger   store.Pinger
	interval time.Duration
	log      logrus.FieldLogger
}

func NewHealthServer(p store.Pinger, interval time.Duration, log logrus.FieldLogger) *HealthServer {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	hs := health.NewServer()
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	h := &HealthServer{server: srv, health: hs, pinger: p, interval: interval, log: log}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// Serve blocks until Stop. Stopping before Serve starts is not an error.
func (h *HealthServer) Serve(lis net.Listener) error {
	if err := h.server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Run probes the store until ctx ends, updating the served status.
func (h *HealthServer) Run(ctx context.Context) {
	h.Probe(ctx)
	t := time.NewTicker(h.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			h.Probe(ctx)
		}
	}
}

// Probe pings the store once and publishes the result.
func (h *HealthServer) Probe(ctx context.Context) {
	if h.pinger == nil {
		h.set(healthpb.HealthCheckResponse_SERVING)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, h.interval)
	defer cancel()

	if err := h.pinger.Ping(ctx); err != nil {
		h.log.WithError(err).Warn("store ping failed, reporting NOT_SERVING")
		h.set(healthpb.HealthCheckResponse_NOT_SERVING)
		return
	}
	h.set(healthpb.HealthCheckResponse_SERVING)
}

func (h *HealthServer) set(status healthpb.HealthCheckResponse_ServingStatus) {
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(ServiceName, status)
}

// Stop marks every service NOT_SERVING and drains in-flight RPCs.
func (h *HealthServer) Stop() {
	h.health.Shutdown()
	h.server.GracefulStop()
}
