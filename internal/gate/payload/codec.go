package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"strconv"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// BodyKind is the wire encoding of a request body.
type BodyKind int

const (
	BodyJSON BodyKind = iota
	BodyCBOR
	BodyProto
)

// KindOf maps a Content-Type header to a BodyKind. Readers that send no or
// a generic text content type are assumed to speak JSON.
func KindOf(contentType string) BodyKind {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(contentType))
	}
	switch mt {
	case "application/x-protobuf", "application/protobuf", "application/octet-stream":
		return BodyProto
	case "application/cbor":
		return BodyCBOR
	default:
		return BodyJSON
	}
}

// DecodeFields flattens body to its scalar fields. A body that is not an
// object in its encoding is malformed.
func DecodeFields(contentType string, body []byte) (Fields, error) {
	switch KindOf(contentType) {
	case BodyProto:
		return decodeProtoFields(body)
	case BodyCBOR:
		return decodeCBORFields(body)
	default:
		return decodeJSONFields(body)
	}
}

func decodeJSONFields(body []byte) (Fields, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: json: %v", ErrMalformedPayload, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: json body is not an object", ErrMalformedPayload)
	}
	return flatten(raw), nil
}

func decodeCBORFields(body []byte) (Fields, error) {
	var raw map[string]any
	if err := cbor.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: cbor: %v", ErrMalformedPayload, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: cbor body is not a map", ErrMalformedPayload)
	}
	return flatten(raw), nil
}

func flatten(raw map[string]any) Fields {
	f := make(Fields, len(raw))
	for k, v := range raw {
		if s, ok := scalarString(v); ok {
			f[k] = s
		}
	}
	return f
}

// scalarString renders strings and numbers; card numbers sent as JSON
// numbers keep their exact decimal text.
func scalarString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case json.Number:
		return x.String(), true
	case uint64:
		return strconv.FormatUint(x, 10), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	default:
		return "", false
	}
}
