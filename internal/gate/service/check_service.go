package service

import (
	"context"
	"fmt"
	"time"

	"github.com/pdkslab/pdksgate/internal/gate/store"
	"github.com/pdkslab/pdksgate/internal/gate/types"
)

// CheckService answers "could this employee open this device now" without
// recording anything. Dashboards use it to simulate readers.
//
// Check runs the same Evaluator as a real swipe, so it differs from a plain
// rule count in two ways. An employee with the access permission flag and
// no applicable rules gets HasAccess=true with RulesFound=0. RulesFound
// counts every active rule that applies to the device: rules naming the
// device id, rules for the device's zone, and global rules.
type CheckService struct {
	identities store.IdentityStore
	rules      store.RuleStore
	devices    *DeviceRegistry
	evaluator  *Evaluator
	timeout    time.Duration
	now        func() time.Time
}

func NewCheckService(st Stores, opt Options) *CheckService {
	opt.defaults()
	return &CheckService{
		identities: st.Identities,
		rules:      st.Rules,
		devices:    NewDeviceRegistry(st.Devices, opt.LookupTimeout),
		evaluator:  NewEvaluator(opt.Location),
		timeout:    opt.LookupTimeout,
		now:        opt.Clock,
	}
}

func (s *CheckService) Check(ctx context.Context, req types.CheckAccessRequest) (types.CheckAccessResponse, error) {
	employeeID, deviceID := string(req.EmployeeID), string(req.DeviceID)
	if employeeID == "" || deviceID == "" {
		return types.CheckAccessResponse{}, ErrInvalidCheckRequest
	}
	now := s.now()

	lctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	emp, err := s.identities.GetEmployee(lctx, employeeID)
	if err != nil {
		return types.CheckAccessResponse{}, fmt.Errorf("%w: employee lookup: %v", ErrStoreUnavailable, err)
	}

	dev, err := s.devices.Get(ctx, deviceID)
	if err != nil {
		return types.CheckAccessResponse{}, err
	}
	if dev == nil {
		// Unregistered id: rules may still name it directly.
		dev = &types.Device{ID: deviceID}
	}

	var rules []types.AccessRule
	if emp != nil {
		rules, err = s.rules.RulesForEmployee(lctx, emp.ID)
		if err != nil {
			return types.CheckAccessResponse{}, fmt.Errorf("%w: rule lookup: %v", ErrStoreUnavailable, err)
		}
	}

	verdict := s.evaluator.Evaluate(emp, dev, rules, now)
	return types.CheckAccessResponse{
		HasAccess:  verdict.Allowed(),
		Timestamp:  now.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		RulesFound: len(ApplicableRules(dev, rules)),
		Reason:     verdict.Reason,
	}, nil
}
