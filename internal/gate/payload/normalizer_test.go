package payload_test

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdkslab/pdksgate/internal/gate/payload"
	"github.com/pdkslab/pdksgate/internal/gate/types"
)

var receivedAt = time.Date(2026, 3, 2, 9, 15, 0, 0, time.UTC)

func decodeJSON(t *testing.T, body string) (types.CanonicalEvent, error) {
	t.Helper()
	return payload.Decode("application/json", []byte(body), receivedAt)
}

// ── Shape 1: combined key ────────────────────────────────────────────────────

func TestDecode_CombinedKey_MarkerTagsSerial(t *testing.T) {
	ev, err := decodeJSON(t, `{"user_id,serial": "%T1234,3505234822042881"}`)
	require.NoError(t, err)
	assert.Equal(t, "3505234822042881", ev.CardNumber)
	assert.Equal(t, "1234", ev.DeviceSerial)
	assert.Equal(t, receivedAt, ev.ReceivedAt)
}

func TestDecode_CombinedKey_PlainValueIsCardThenSerial(t *testing.T) {
	ev, err := decodeJSON(t, `{"user_id,serial": "AABBCCDD,door-001"}`)
	require.NoError(t, err)
	assert.Equal(t, "AABBCCDD", ev.CardNumber)
	assert.Equal(t, "door-001", ev.DeviceSerial)
}

func TestDecode_CombinedKey_SplitsOnFirstCommaOnly(t *testing.T) {
	ev, err := decodeJSON(t, `{"user_id,serial": "CARD1,SER,IAL"}`)
	require.NoError(t, err)
	assert.Equal(t, "CARD1", ev.CardNumber)
	assert.Equal(t, "SER,IAL", ev.DeviceSerial)
}

func TestDecode_CombinedKey_Property(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for range 500 {
		serial := alnum(rng)
		card := alnum(rng)
		body := `{"user_id,serial": "%T` + serial + `,` + card + `"}`

		ev, err := decodeJSON(t, body)
		require.NoError(t, err, body)
		require.Equal(t, card, ev.CardNumber, body)
		require.Equal(t, serial, ev.DeviceSerial, body)
	}
}

func TestDecode_CombinedKey_EmptyPartIsMalformed(t *testing.T) {
	for _, body := range []string{
		`{"user_id,serial": "%T1234,"}`,
		`{"user_id,serial": ",1234"}`,
		`{"user_id,serial": "   ,  "}`,
		`{"user_id,serial": "nocomma"}`,
		`{"user_id,serial": "%T,123"}`,
	} {
		_, err := decodeJSON(t, body)
		assert.ErrorIs(t, err, payload.ErrMalformedPayload, body)
	}
}

func TestDecode_CombinedKey_WinsOverSeparateFields(t *testing.T) {
	ev, err := decodeJSON(t, `{"user_id,serial": "C1,S1", "user_id": "C2", "serial": "S2"}`)
	require.NoError(t, err)
	assert.Equal(t, "C1", ev.CardNumber)
	assert.Equal(t, "S1", ev.DeviceSerial)
}

// ── Shape 2: encoded key ─────────────────────────────────────────────────────

func TestDecode_EncodedKey(t *testing.T) {
	ev, err := decodeJSON(t, `{"user_id_serial": "%T123456,DEVICE001"}`)
	require.NoError(t, err)
	assert.Equal(t, "123456", ev.CardNumber)
	assert.Equal(t, "DEVICE001", ev.DeviceSerial)
}

func TestDecode_EncodedKey_WithoutMarkerFallsThrough(t *testing.T) {
	ev, err := decodeJSON(t, `{"user_id_serial": "123456,DEVICE001", "card_id": "C9", "serial": "S9"}`)
	require.NoError(t, err)
	assert.Equal(t, "C9", ev.CardNumber)
	assert.Equal(t, "S9", ev.DeviceSerial)

	_, err = decodeJSON(t, `{"user_id_serial": "123456,DEVICE001"}`)
	assert.ErrorIs(t, err, payload.ErrMalformedPayload)
}

// ── Shape 3: placeholder key ─────────────────────────────────────────────────

func TestDecode_PlaceholderKey(t *testing.T) {
	ev, err := decodeJSON(t, `{"user_id": "777", "%T": "READER-9"}`)
	require.NoError(t, err)
	assert.Equal(t, "777", ev.CardNumber)
	assert.Equal(t, "READER-9", ev.DeviceSerial)
}

// ── Shape 4: separate fields ─────────────────────────────────────────────────

func TestDecode_SeparateFields_Aliases(t *testing.T) {
	cases := map[string][2]string{
		`{"user_id": "A", "serial": "S"}`:             {"A", "S"},
		`{"card_id": "B", "device_serial": "S"}`:      {"B", "S"},
		`{"card_no": "C", "deviceSerial": "S"}`:       {"C", "S"},
		`{"card_id": " D ", "serial_number": " S "}`:  {"D", "S"},
		`{"user_id": 3505234822042881, "serial": 12}`: {"3505234822042881", "12"},
	}
	for body, want := range cases {
		ev, err := decodeJSON(t, body)
		require.NoError(t, err, body)
		assert.Equal(t, want[0], ev.CardNumber, body)
		assert.Equal(t, want[1], ev.DeviceSerial, body)
	}
}

func TestDecode_SeparateFields_CarriesDeviceMetadata(t *testing.T) {
	ev, err := decodeJSON(t, `{"card_id": "C", "serial": "S", "device_name": "Lobby", "deviceLocation": "Floor 1", "extra": {"x": 1}}`)
	require.NoError(t, err)
	assert.Equal(t, "Lobby", ev.DeviceName)
	assert.Equal(t, "Floor 1", ev.DeviceLocation)
}

func TestDecode_SeparateFields_MissingSerialIsMalformed(t *testing.T) {
	_, err := decodeJSON(t, `{"card_id": "C"}`)
	assert.ErrorIs(t, err, payload.ErrMalformedPayload)
}

// ── No shape at all ──────────────────────────────────────────────────────────

func TestDecode_UnrecognisedBodiesAreMalformed(t *testing.T) {
	for _, body := range []string{
		`{}`,
		`{"foo": "bar", "baz": 1}`,
		`{"user_id": {"nested": true}, "serial": ["x"]}`,
		`[]`,
		`null`,
		`"user_id"`,
		`not json`,
		``,
	} {
		_, err := decodeJSON(t, body)
		require.Error(t, err, body)
		assert.True(t, errors.Is(err, payload.ErrMalformedPayload), "body %q: %v", body, err)
	}
}

// ── Body encodings ───────────────────────────────────────────────────────────

func TestDecode_CBORBody(t *testing.T) {
	body, err := cbor.Marshal(map[string]any{"user_id,serial": "%T42,CARD42"})
	require.NoError(t, err)

	ev, err := payload.Decode("application/cbor", body, receivedAt)
	require.NoError(t, err)
	assert.Equal(t, "CARD42", ev.CardNumber)
	assert.Equal(t, "42", ev.DeviceSerial)
}

func TestDecode_ProtoBody_RoundTrip(t *testing.T) {
	in := types.CanonicalEvent{CardNumber: "AABBCCDD", DeviceSerial: "door-001", DeviceName: "Main Entrance"}
	ev, err := payload.Decode("application/x-protobuf", payload.MarshalProtoSwipe(in), receivedAt)
	require.NoError(t, err)
	assert.Equal(t, "AABBCCDD", ev.CardNumber)
	assert.Equal(t, "door-001", ev.DeviceSerial)
	assert.Equal(t, "Main Entrance", ev.DeviceName)
}

func TestDecode_ProtoBody_TruncatedIsMalformed(t *testing.T) {
	b := payload.MarshalProtoSwipe(types.CanonicalEvent{CardNumber: "AABBCCDD", DeviceSerial: "door-001"})
	_, err := payload.Decode("application/x-protobuf", b[:len(b)-3], receivedAt)
	assert.ErrorIs(t, err, payload.ErrMalformedPayload)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, payload.BodyProto, payload.KindOf("application/x-protobuf"))
	assert.Equal(t, payload.BodyCBOR, payload.KindOf("application/cbor; charset=binary"))
	assert.Equal(t, payload.BodyJSON, payload.KindOf("application/json; charset=utf-8"))
	assert.Equal(t, payload.BodyJSON, payload.KindOf("text/plain"))
	assert.Equal(t, payload.BodyJSON, payload.KindOf(""))
}

const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func alnum(rng *rand.Rand) string {
	b := make([]byte, 1+rng.Intn(20))
	for i := range b {
		b[i] = alphabet[rng.Intn(len(alphabet))]
	}
	return string(b)
}
