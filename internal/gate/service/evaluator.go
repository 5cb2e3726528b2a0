package service

import (
	"strconv"
	"strings"
	"time"

	"github.com/pdkslab/pdksgate/internal/gate/types"
)

// Evaluator applies the access policy to already-resolved inputs. It does no
// I/O; the caller supplies the employee, the device and the employee's rules.
//
// Order:
//  1. no employee              -> deny unknown_credential
//  2. employee inactive        -> deny inactive_employee
//  3. access permission unset  -> deny no_permission
//  4. applicable active rules  -> allow rule_match if one covers now,
//     otherwise deny outside_allowed_window
//  5. no applicable rule       -> allow permission_flag
type Evaluator struct {
	loc *time.Location
}

func NewEvaluator(loc *time.Location) *Evaluator {
	if loc == nil {
		loc = time.Local
	}
	return &Evaluator{loc: loc}
}

func (e *Evaluator) Evaluate(emp *types.Employee, dev *types.Device, rules []types.AccessRule, now time.Time) types.Verdict {
	switch {
	case emp == nil:
		return types.Denied(types.ReasonUnknownCredential)
	case !emp.Active:
		return types.Denied(types.ReasonInactiveEmployee)
	case !emp.AccessPermission:
		return types.Denied(types.ReasonNoPermission)
	}

	applicable := ApplicableRules(dev, rules)
	if len(applicable) == 0 {
		return types.Allowed(types.ReasonPermissionFlag)
	}

	local := now.In(e.loc)
	for _, r := range applicable {
		if windowCovers(r, local) {
			return types.Allowed(types.ReasonRuleMatch)
		}
	}
	return types.Denied(types.ReasonOutsideAllowedWindow)
}

// ApplicableRules returns the active rules targeting dev by id or zone.
// A rule naming neither a device nor a zone targets every device.
func ApplicableRules(dev *types.Device, rules []types.AccessRule) []types.AccessRule {
	var out []types.AccessRule
	for _, r := range rules {
		if !r.Active {
			continue
		}
		if r.DeviceID == "" && r.ZoneID == "" {
			out = append(out, r)
			continue
		}
		if dev == nil {
			continue
		}
		if (r.DeviceID != "" && r.DeviceID == dev.ID) || (r.ZoneID != "" && r.ZoneID == dev.ZoneID) {
			out = append(out, r)
		}
	}
	return out
}

// windowCovers reports whether local falls on one of the rule's days and
// inside [start, end). Unparseable or empty windows never match.
func windowCovers(r types.AccessRule, local time.Time) bool {
	day := strings.ToLower(local.Weekday().String())
	onDay := false
	for _, d := range r.Days {
		if strings.EqualFold(strings.TrimSpace(d), day) {
			onDay = true
			break
		}
	}
	if !onDay {
		return false
	}

	start, ok := clockSeconds(r.StartTime)
	if !ok {
		return false
	}
	end, ok := clockSeconds(r.EndTime)
	if !ok || end <= start {
		return false
	}

	now := local.Hour()*3600 + local.Minute()*60 + local.Second()
	return start <= now && now < end
}

// clockSeconds parses "HH:MM" or "HH:MM:SS" (fractional seconds ignored)
// into seconds since midnight. "24:00" is accepted as end of day.
func clockSeconds(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}

	var v [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, false
		}
		v[i] = n
	}
	if v[1] > 59 || v[2] > 59 {
		return 0, false
	}
	secs := v[0]*3600 + v[1]*60 + v[2]
	if v[0] > 24 || secs > 24*3600 {
		return 0, false
	}
	return secs, true
}
