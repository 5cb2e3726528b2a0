// Package payload turns the loosely-typed bodies posted by card readers into
// a single CanonicalEvent. Each accepted wire shape is a separate type in an
// ordered list; adding a firmware dialect means adding one shape.
package payload

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pdkslab/pdksgate/internal/gate/types"
)

var ErrMalformedPayload = errors.New("malformed payload")

// serialMarker is the two-character template prefix some firmware emits.
const serialMarker = "%T"

// Fields is a request body flattened to its scalar, string-renderable
// members. Nested values are dropped when the body is decoded.
type Fields map[string]string

func (f Fields) lookup(keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := f[k]; ok {
			return v, true
		}
	}
	return "", false
}

// shape is one accepted request dialect. matched reports whether the body is
// in this shape at all; a matched shape with an empty part is malformed.
type shape interface {
	name() string
	extract(f Fields) (card, serial string, matched bool)
}

// shapes are tried in order; the first match wins.
var shapes = []shape{
	combinedKey{},
	encodedKey{},
	placeholderKey{},
	separateFields{},
}

// combinedKey: {"user_id,serial": "<card>,<serial>"}. When the value carries
// the %T marker the marked segment is the serial: "%T<serial>,<card>".
type combinedKey struct{}

func (combinedKey) name() string { return "combined_key" }

func (combinedKey) extract(f Fields) (string, string, bool) {
	v, ok := f["user_id,serial"]
	if !ok {
		return "", "", false
	}
	first, rest, found := strings.Cut(strings.TrimSpace(v), ",")
	if !found {
		return "", "", true
	}
	if strings.HasPrefix(first, serialMarker) {
		return rest, strings.TrimPrefix(first, serialMarker), true
	}
	return first, rest, true
}

// encodedKey: {"user_id_serial": "%T<card>,<serial>"}. Without the marker
// the body is not in this shape.
type encodedKey struct{}

func (encodedKey) name() string { return "encoded_key" }

func (encodedKey) extract(f Fields) (string, string, bool) {
	v, ok := f["user_id_serial"]
	if !ok {
		return "", "", false
	}
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, serialMarker) {
		return "", "", false
	}
	card, serial, _ := strings.Cut(strings.TrimPrefix(v, serialMarker), ",")
	return card, serial, true
}

// placeholderKey: {"user_id": "<card>", "%T": "<serial>"}, sent by firmware
// that leaves its template variable name in place of "serial".
type placeholderKey struct{}

func (placeholderKey) name() string { return "placeholder_key" }

func (placeholderKey) extract(f Fields) (string, string, bool) {
	serial, ok := f[serialMarker]
	if !ok {
		return "", "", false
	}
	card, ok := f["user_id"]
	if !ok {
		return "", "", false
	}
	return card, serial, true
}

// separateFields: independent card and serial fields under any known alias.
type separateFields struct{}

func (separateFields) name() string { return "separate_fields" }

func (separateFields) extract(f Fields) (string, string, bool) {
	card, hasCard := f.lookup("user_id", "card_id", "card_no")
	serial, hasSerial := f.lookup("serial", "device_serial", "deviceSerial", "serial_number")
	return card, serial, hasCard || hasSerial
}

// Normalize applies the ordered shapes to f.
func Normalize(f Fields, receivedAt time.Time) (types.CanonicalEvent, error) {
	for _, s := range shapes {
		card, serial, matched := s.extract(f)
		if !matched {
			continue
		}
		card, serial = strings.TrimSpace(card), strings.TrimSpace(serial)
		if card == "" {
			return types.CanonicalEvent{}, fmt.Errorf("%w: %s: empty card number", ErrMalformedPayload, s.name())
		}
		if serial == "" {
			return types.CanonicalEvent{}, fmt.Errorf("%w: %s: empty device serial", ErrMalformedPayload, s.name())
		}

		name, _ := f.lookup("device_name", "deviceName")
		location, _ := f.lookup("device_location", "deviceLocation")

		return types.CanonicalEvent{
			CardNumber:     card,
			DeviceSerial:   serial,
			DeviceName:     strings.TrimSpace(name),
			DeviceLocation: strings.TrimSpace(location),
			ReceivedAt:     receivedAt.UTC(),
		}, nil
	}
	return types.CanonicalEvent{}, fmt.Errorf("%w: no recognised card/serial fields", ErrMalformedPayload)
}

// Decode flattens body according to its content type and normalises it.
func Decode(contentType string, body []byte, receivedAt time.Time) (types.CanonicalEvent, error) {
	f, err := DecodeFields(contentType, body)
	if err != nil {
		return types.CanonicalEvent{}, err
	}
	return Normalize(f, receivedAt)
}
