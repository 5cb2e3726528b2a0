package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pdkslab/pdksgate/internal/gate/store"
	"github.com/pdkslab/pdksgate/internal/metrics"
)

// RelayConfirmation is a reader's report that it physically opened the relay.
// It carries either the event id from the decision response or the swipe's
// card/serial pair.
type RelayConfirmation struct {
	EventID      string
	CardNumber   string
	DeviceSerial string
	ReceivedAt   time.Time
}

// ConfirmationService correlates confirmations with recorded Allow events on
// its own goroutine, so the decision path never waits on it. Confirmations
// are advisory: a full queue drops them.
type ConfirmationService struct {
	events  store.AccessEventStore
	window  time.Duration
	timeout time.Duration
	log     logrus.FieldLogger

	mu     sync.RWMutex
	closed bool
	queue  chan RelayConfirmation
	done   chan struct{}
}

func NewConfirmationService(
	events store.AccessEventStore,
	window, timeout time.Duration,
	queueSize int,
	log logrus.FieldLogger,
) *ConfirmationService {
	if queueSize <= 0 {
		queueSize = 256
	}
	s := &ConfirmationService{
		events:  events,
		window:  window,
		timeout: timeout,
		log:     log,
		queue:   make(chan RelayConfirmation, queueSize),
		done:    make(chan struct{}),
	}
	go s.loop()
	return s
}

// Submit enqueues c and reports whether it was accepted.
func (s *ConfirmationService) Submit(c RelayConfirmation) bool {
	c.EventID = strings.TrimSpace(c.EventID)
	if c.EventID == "" && (c.CardNumber == "" || c.DeviceSerial == "") {
		metrics.RelayConfirmations.WithLabelValues("uncorrelatable").Inc()
		return false
	}
	if c.ReceivedAt.IsZero() {
		c.ReceivedAt = time.Now().UTC()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.queue <- c:
		metrics.ConfirmationQueueDepth.Inc()
		return true
	default:
		metrics.RelayConfirmations.WithLabelValues("dropped").Inc()
		s.log.WithField("event_id", c.EventID).Warn("confirmation queue full, dropping")
		return false
	}
}

// Close stops accepting confirmations and drains the queue.
func (s *ConfirmationService) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	<-s.done
}

func (s *ConfirmationService) loop() {
	defer close(s.done)
	for c := range s.queue {
		metrics.ConfirmationQueueDepth.Dec()
		result := s.correlate(c)
		metrics.RelayConfirmations.WithLabelValues(result).Inc()
	}
}

func (s *ConfirmationService) correlate(c RelayConfirmation) string {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	log := s.log.WithFields(logrus.Fields{
		"event_id":      c.EventID,
		"device_serial": c.DeviceSerial,
		"card":          c.CardNumber,
	})

	eventID := c.EventID
	if eventID == "" {
		ev, err := s.events.LatestAllowed(ctx, c.DeviceSerial, c.CardNumber, c.ReceivedAt.Add(-s.window))
		if err != nil {
			log.WithError(err).Warn("confirmation lookup failed")
			return "error"
		}
		if ev == nil {
			log.Debug("confirmation matched no recent allow")
			return "unmatched"
		}
		eventID = ev.ID
	}

	ok, err := s.events.MarkRelayConfirmed(ctx, eventID, c.ReceivedAt)
	if err != nil {
		log.WithError(err).Warn("confirmation not stored")
		return "error"
	}
	if !ok {
		return "unmatched"
	}
	log.WithField("event_id", eventID).Info("relay opening confirmed")
	return "confirmed"
}
