// Package relay renders a verdict into the response vocabulary a reader's
// firmware understands. Whatever the dialect, a Deny never renders as open.
package relay

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/pdkslab/pdksgate/internal/gate/types"
)

type Dialect string

const (
	// DialectRelay: {"response":"open_relay"} / {"response":"close_relay"}.
	DialectRelay Dialect = "relay"
	// DialectSuccess: {"response":"success","open_relay":"true"|"false"}.
	DialectSuccess Dialect = "success"
	// DialectConfirmation: {"confirmation":"relay_opened"|"relay_closed"}.
	DialectConfirmation Dialect = "confirmation"
	// DialectProto: binary message for ESP32 readers.
	DialectProto Dialect = "proto"
)

// Dialects lists every supported dialect.
var Dialects = []Dialect{DialectRelay, DialectSuccess, DialectConfirmation, DialectProto}

func ParseDialect(s string) (Dialect, error) {
	d := Dialect(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Dialects {
		if d == known {
			return d, nil
		}
	}
	return "", fmt.Errorf("unknown relay dialect %q", s)
}

// Response is a fully rendered device response.
type Response struct {
	Status      int
	ContentType string
	Body        []byte
}

// Encode renders dec in dialect d. failed marks a fail-closed system error;
// it forces the closed answer and, where the dialect tolerates it, a 500.
func Encode(d Dialect, dec types.RelayDecision, failed bool) Response {
	open := dec.Open() && !failed
	status := http.StatusOK
	if failed && d != DialectSuccess {
		// Legacy "success" firmware treats any non-200 as a transport fault
		// and retries; the deny body alone keeps the relay closed.
		status = http.StatusInternalServerError
	}

	switch d {
	case DialectProto:
		return Response{Status: status, ContentType: "application/x-protobuf", Body: encodeProto(open, dec)}
	case DialectSuccess:
		flag := "false"
		if open {
			flag = "true"
		}
		return jsonResponse(status, map[string]string{
			"response":   "success",
			"open_relay": flag,
		})
	case DialectConfirmation:
		if open {
			return jsonResponse(status, map[string]string{
				"response":     "open_relay",
				"confirmation": "relay_opened",
			})
		}
		return jsonResponse(status, map[string]string{
			"response":     "deny",
			"confirmation": "relay_closed",
			"error":        dec.Reason,
		})
	default:
		body := map[string]string{"response": "close_relay", "error": dec.Reason}
		if open {
			body = map[string]string{"response": "open_relay"}
		}
		if dec.EventID != "" {
			body["event_id"] = dec.EventID
		}
		return jsonResponse(status, body)
	}
}

func jsonResponse(status int, v map[string]string) Response {
	// map[string]string cannot fail to marshal.
	b, _ := json.Marshal(v)
	return Response{Status: status, ContentType: "application/json", Body: b}
}

// Field numbers of the binary relay response:
//
//	message RelayResponse {
//	  bool open_relay = 1;
//	  string reason = 2;
//	  string event_id = 3;
//	}
const (
	protoFieldOpenRelay protowire.Number = 1
	protoFieldReason    protowire.Number = 2
	protoFieldEventID   protowire.Number = 3
)

func encodeProto(open bool, dec types.RelayDecision) []byte {
	var b []byte
	b = protowire.AppendTag(b, protoFieldOpenRelay, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeBool(open))
	if dec.Reason != "" {
		b = protowire.AppendTag(b, protoFieldReason, protowire.BytesType)
		b = protowire.AppendString(b, dec.Reason)
	}
	if dec.EventID != "" {
		b = protowire.AppendTag(b, protoFieldEventID, protowire.BytesType)
		b = protowire.AppendString(b, dec.EventID)
	}
	return b
}

// DecodeProtoResponse parses a binary relay response. Firmware simulators
// and tests use it.
func DecodeProtoResponse(b []byte) (open bool, reason, eventID string, err error) {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return false, "", "", protowire.ParseError(n)
		}
		b = b[n:]
		switch {
		case num == protoFieldOpenRelay && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return false, "", "", protowire.ParseError(n)
			}
			open = protowire.DecodeBool(v)
			b = b[n:]
		case (num == protoFieldReason || num == protoFieldEventID) && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return false, "", "", protowire.ParseError(n)
			}
			if num == protoFieldReason {
				reason = v
			} else {
				eventID = v
			}
			b = b[n:]
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return false, "", "", protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return open, reason, eventID, nil
}
