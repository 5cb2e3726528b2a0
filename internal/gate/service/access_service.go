package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pdkslab/pdksgate/internal/gate/store"
	"github.com/pdkslab/pdksgate/internal/gate/types"
	"github.com/pdkslab/pdksgate/internal/metrics"
	"github.com/pdkslab/pdksgate/internal/publisher"
)

const publishTimeout = 5 * time.Second

// Stores groups the store interfaces the engine reads and writes.
type Stores struct {
	Identities store.IdentityStore
	Rules      store.RuleStore
	Devices    store.DeviceStore
	Events     store.AccessEventStore
}

type Options struct {
	LookupTimeout time.Duration
	RecordTimeout time.Duration
	DedupeWindow  time.Duration
	Location      *time.Location
	Publisher     publisher.Publisher
	Logger        logrus.FieldLogger
	// Clock stamps events that arrive without a receipt time.
	Clock func() time.Time
}

func (o *Options) defaults() {
	if o.LookupTimeout <= 0 {
		o.LookupTimeout = 2 * time.Second
	}
	if o.RecordTimeout <= 0 {
		o.RecordTimeout = 2 * time.Second
	}
	if o.DedupeWindow <= 0 {
		o.DedupeWindow = 2 * time.Second
	}
	if o.Publisher == nil {
		o.Publisher = publisher.Noop{}
	}
	if o.Logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		o.Logger = l
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
}

// Outcome is what the HTTP layer renders for one swipe.
type Outcome struct {
	Decision types.RelayDecision
	// Device is nil for unknown readers.
	Device *types.Device
	// Failed marks a fail-closed answer caused by an unavailable store.
	Failed bool
	// Duplicate marks a retransmission answered from the audit log.
	Duplicate bool
}

// AccessService turns a canonical swipe into a recorded relay decision.
type AccessService struct {
	devices   *DeviceRegistry
	resolver  *IdentityResolver
	rules     store.RuleStore
	evaluator *Evaluator
	recorder  *Recorder
	publisher publisher.Publisher
	log       logrus.FieldLogger
	now       func() time.Time

	lookupTimeout time.Duration
	recordTimeout time.Duration

	bg sync.WaitGroup
}

func NewAccessService(st Stores, opt Options) *AccessService {
	opt.defaults()
	return &AccessService{
		devices:       NewDeviceRegistry(st.Devices, opt.LookupTimeout),
		resolver:      NewIdentityResolver(st.Identities, opt.LookupTimeout),
		rules:         st.Rules,
		evaluator:     NewEvaluator(opt.Location),
		recorder:      NewRecorder(st.Events, opt.DedupeWindow, opt.RecordTimeout),
		publisher:     opt.Publisher,
		log:           opt.Logger,
		now:           opt.Clock,
		lookupTimeout: opt.LookupTimeout,
		recordTimeout: opt.RecordTimeout,
	}
}

// Decide never returns an error: every failure becomes a Deny.
func (s *AccessService) Decide(ctx context.Context, ev types.CanonicalEvent) Outcome {
	start := time.Now()
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = s.now().UTC()
	}
	log := s.log.WithFields(logrus.Fields{
		"device_serial": ev.DeviceSerial,
		"card":          ev.CardNumber,
	})

	dev, err := s.devices.Lookup(ctx, ev.DeviceSerial)
	if err != nil {
		return s.failClosed(log, ev, nil, nil, "device_lookup", err, start)
	}

	emp, err := s.resolver.Resolve(ctx, ev.CardNumber)
	switch {
	case errors.Is(err, ErrIdentityConflict):
		log.WithError(err).WithField("alert", "identity_conflict").
			Error("credential matches more than one employee")
		return s.finish(ctx, log, ev, nil, dev, types.Denied(types.ReasonSystemError), start)
	case err != nil:
		return s.failClosed(log, ev, nil, dev, "identity_lookup", err, start)
	}

	var rules []types.AccessRule
	if emp != nil && emp.Active && emp.AccessPermission {
		rules, err = s.loadRules(ctx, emp.ID)
		if err != nil {
			return s.failClosed(log, ev, emp, dev, "rule_lookup", err, start)
		}
	}

	verdict := s.evaluator.Evaluate(emp, dev, rules, ev.ReceivedAt)
	return s.finish(ctx, log, ev, emp, dev, verdict, start)
}

func (s *AccessService) loadRules(ctx context.Context, employeeID string) ([]types.AccessRule, error) {
	ctx, cancel := context.WithTimeout(ctx, s.lookupTimeout)
	defer cancel()
	rules, err := s.rules.RulesForEmployee(ctx, employeeID)
	if err != nil {
		return nil, fmt.Errorf("%w: rule lookup: %v", ErrStoreUnavailable, err)
	}
	return rules, nil
}

// finish records the verdict and builds the outcome. A retransmission gets
// the decision stored for the first transmission, not the fresh verdict.
func (s *AccessService) finish(
	ctx context.Context,
	log logrus.FieldLogger,
	ev types.CanonicalEvent,
	emp *types.Employee,
	dev *types.Device,
	verdict types.Verdict,
	start time.Time,
) Outcome {
	stored, inserted, err := s.recorder.Record(ctx, ev, emp, dev, verdict)
	if err != nil {
		// The event store is the failing dependency; there is nowhere to
		// record the failure except the log.
		metrics.StoreFailures.WithLabelValues("record_event").Inc()
		log.WithError(err).WithField("reason", verdict.Reason).
			Error("access event not recorded, failing closed")
		return s.observe(Outcome{
			Decision: types.RelayDecision{Decision: types.Deny, Reason: types.ReasonSystemError},
			Device:   dev,
			Failed:   true,
		}, start)
	}

	out := Outcome{
		Decision: types.RelayDecision{
			Decision: stored.Decision,
			Reason:   stored.Reason,
			EventID:  stored.ID,
		},
		Device:    dev,
		Duplicate: !inserted,
	}

	log = log.WithFields(logrus.Fields{
		"event_id": stored.ID,
		"decision": stored.Decision,
		"reason":   stored.Reason,
	})
	if inserted {
		log.Info("access decided")
		s.publish(stored)
	} else {
		metrics.DuplicateSwipes.Inc()
		log.Debug("retransmitted swipe answered from audit log")
	}
	return s.observe(out, start)
}

// failClosed answers Deny(system_error) immediately and records the
// failure in the background without holding the device connection.
func (s *AccessService) failClosed(
	log logrus.FieldLogger,
	ev types.CanonicalEvent,
	emp *types.Employee,
	dev *types.Device,
	op string,
	cause error,
	start time.Time,
) Outcome {
	metrics.StoreFailures.WithLabelValues(op).Inc()
	log.WithError(cause).WithField("op", op).Error("store unavailable, failing closed")

	s.goBackground(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.recordTimeout)
		defer cancel()
		stored, inserted, err := s.recorder.Record(ctx, ev, emp, dev, types.Denied(types.ReasonSystemError))
		if err != nil {
			log.WithError(err).Warn("failure event not recorded")
			return
		}
		if inserted {
			s.publish(stored)
		}
	})

	return s.observe(Outcome{
		Decision: types.RelayDecision{Decision: types.Deny, Reason: types.ReasonSystemError},
		Device:   dev,
		Failed:   true,
	}, start)
}

func (s *AccessService) publish(ev types.AccessEvent) {
	s.goBackground(func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := s.publisher.Publish(ctx, ev); err != nil {
			metrics.PublishFailures.WithLabelValues(s.publisher.Name()).Inc()
			s.log.WithError(err).WithField("event_id", ev.ID).Warn("access event publish failed")
		}
	})
}

func (s *AccessService) observe(out Outcome, start time.Time) Outcome {
	label := "decided"
	switch {
	case out.Failed:
		label = "failed"
	case out.Duplicate:
		label = "duplicate"
	}
	metrics.DecisionsTotal.WithLabelValues(string(out.Decision.Decision), out.Decision.Reason).Inc()
	metrics.DecisionDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	return out
}

func (s *AccessService) goBackground(fn func()) {
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		fn()
	}()
}

// Close waits for background recording and publishing to finish.
func (s *AccessService) Close() {
	s.bg.Wait()
}
