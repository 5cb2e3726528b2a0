package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// FlexibleID accepts either a JSON string or a JSON number. Dashboard ids
// are integers in some tables and uuids in others.
type FlexibleID string

func (f *FlexibleID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexibleID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*f = FlexibleID(n.String())
	return nil
}

type CheckAccessRequest struct {
	EmployeeID FlexibleID `json:"employeeId"`
	DeviceID   FlexibleID `json:"deviceId"`
}

type CheckAccessResponse struct {
	HasAccess  bool   `json:"hasAccess"`
	Timestamp  string `json:"timestamp"`
	RulesFound int    `json:"rulesFound"`
	Reason     string `json:"reason,omitempty"`
}
