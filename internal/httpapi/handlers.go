package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/pdkslab/pdksgate/internal/gate/payload"
	"github.com/pdkslab/pdksgate/internal/gate/relay"
	"github.com/pdkslab/pdksgate/internal/gate/service"
	"github.com/pdkslab/pdksgate/internal/gate/types"
	"github.com/pdkslab/pdksgate/internal/metrics"
)

// ── Card reader ──────────────────────────────────────────────────────────────

func (s *Server) handleCardReader(rw http.ResponseWriter, r *http.Request) {
	receivedAt := s.now().UTC()
	contentType := r.Header.Get("Content-Type")
	binary := payload.KindOf(contentType) == payload.BodyProto
	log := s.logger.WithField("request_id", requestID(r))

	w := chimw.NewWrapResponseWriter(rw, r.ProtoMajor)
	defer s.recoverRelay(w, log, binary)

	body, err := readBody(w, r)
	if err == nil {
		var ev types.CanonicalEvent
		ev, err = payload.Decode(contentType, body, receivedAt)
		if err == nil {
			out := s.accessService.Decide(r.Context(), ev)
			d := s.selector.Select(out.Device, ev.DeviceSerial, binary)
			writeRelay(w, relay.Encode(d, out.Decision, out.Failed))
			return
		}
	}

	metrics.MalformedPayloads.Inc()
	log.WithError(err).WithField("content_type", contentType).Warn("malformed card-reader payload")

	resp := relay.Encode(
		s.selector.Select(nil, "", binary),
		types.RelayDecision{Decision: types.Deny, Reason: types.ReasonMalformedPayload},
		false,
	)
	resp.Status = http.StatusBadRequest
	writeRelay(w, resp)
}

// ── Relay confirmation ───────────────────────────────────────────────────────

func (s *Server) handleConfirmRelay(w http.ResponseWriter, r *http.Request) {
	receivedAt := s.now().UTC()

	body, err := readBody(w, r)
	if err != nil || !json.Valid(body) {
		writeError(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}

	c := service.RelayConfirmation{ReceivedAt: receivedAt}
	if fields, err := payload.DecodeFields("application/json", body); err == nil {
		c.EventID = fields["event_id"]
		if ev, err := payload.Normalize(fields, receivedAt); err == nil {
			c.CardNumber, c.DeviceSerial = ev.CardNumber, ev.DeviceSerial
		}
	}

	if !s.confirmations.Submit(c) {
		s.logger.WithFields(logrus.Fields{
			"request_id": requestID(r),
			"event_id":   c.EventID,
		}).Debug("relay confirmation not queued")
	}

	writeJSON(w, http.StatusOK, map[string]string{"confirmation": "relay_opened"})
}

// ── Check access ─────────────────────────────────────────────────────────────

func (s *Server) handleCheckAccess(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}

	var req types.CheckAccessRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}

	resp, err := s.checkService.Check(r.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCheckRequest) {
			writeError(w, http.StatusBadRequest, "Employee ID and Device ID are required")
			return
		}
		s.logger.WithError(err).WithField("request_id", requestID(r)).Error("check-access failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// ── Health ───────────────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health.Ping(r.Context()); err != nil {
			s.logger.WithError(err).Warn("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// recoverRelay gives the reader a closed answer when the card-reader
// handler panics. Once any part of a response has gone out it cannot be
// replaced, so the connection is aborted instead.
func (s *Server) recoverRelay(w chimw.WrapResponseWriter, log logrus.FieldLogger, binary bool) {
	rec := recover()
	if rec == nil {
		return
	}
	if w.Status() != 0 || w.BytesWritten() > 0 {
		log.WithField("panic", rec).Error("card-reader handler panicked mid-response, aborting")
		panic(http.ErrAbortHandler)
	}
	log.WithField("panic", rec).Error("card-reader handler panicked, failing closed")
	writeRelay(w, relay.Encode(
		s.selector.Select(nil, "", binary),
		types.RelayDecision{Decision: types.Deny, Reason: types.ReasonSystemError},
		true,
	))
}

func handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{
		"response": "error",
		"error":    "Method not allowed",
	})
}
