package httpapi

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/pdkslab/pdksgate/internal/gate/relay"
	"github.com/pdkslab/pdksgate/internal/gate/service"
	"github.com/pdkslab/pdksgate/internal/gate/store"
)

type Dependencies struct {
	Logger        logrus.FieldLogger
	Addr          string
	AccessService *service.AccessService
	CheckService  *service.CheckService
	Confirmations *service.ConfirmationService
	Selector      relay.Selector
	// Health is probed by /healthz; nil reports healthy.
	Health    store.Pinger
	RateLimit RateLimitConfig
	// Clock stamps receipt times; defaults to time.Now.
	Clock func() time.Time
}

type Server struct {
	httpServer    *http.Server
	logger        logrus.FieldLogger
	accessService *service.AccessService
	checkService  *service.CheckService
	confirmations *service.ConfirmationService
	selector      relay.Selector
	health        store.Pinger
	now           func() time.Time
}

func NewServer(d Dependencies) *Server {
	s := &Server{
		logger:        d.Logger,
		accessService: d.AccessService,
		checkService:  d.CheckService,
		confirmations: d.Confirmations,
		selector:      d.Selector,
		health:        d.Health,
		now:           d.Clock,
	}
	if s.now == nil {
		s.now = time.Now
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(loggingMiddleware(d.Logger))
	r.Use(chimw.Recoverer)
	r.Use(corsMiddleware())

	r.MethodNotAllowed(handleMethodNotAllowed)
	r.Options("/*", handlePreflight)

	r.Post("/card-reader", s.handleCardReader)
	r.Post("/confirm-relay", s.handleConfirmRelay)
	r.With(RateLimiter(d.RateLimit)).Post("/check-access", s.handleCheckAccess)
	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		// Readers wait synchronously; nothing legitimate takes this long.
		WriteTimeout: 15 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Serve accepts connections on lis until Shutdown.
func (s *Server) Serve(lis net.Listener) error {
	return s.httpServer.Serve(lis)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
