package payload

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/pdkslab/pdksgate/internal/gate/types"
)

// Field numbers of the binary swipe message sent by ESP32 readers:
//
//	message Swipe {
//	  string card_id = 1;
//	  string device_serial = 2;
//	  string device_name = 3;
//	  string device_location = 4;
//	}
const (
	protoFieldCardID         protowire.Number = 1
	protoFieldDeviceSerial   protowire.Number = 2
	protoFieldDeviceName     protowire.Number = 3
	protoFieldDeviceLocation protowire.Number = 4
)

var protoFieldNames = map[protowire.Number]string{
	protoFieldCardID:         "card_id",
	protoFieldDeviceSerial:   "device_serial",
	protoFieldDeviceName:     "device_name",
	protoFieldDeviceLocation: "device_location",
}

func decodeProtoFields(b []byte) (Fields, error) {
	f := make(Fields, len(protoFieldNames))
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: protobuf tag: %v", ErrMalformedPayload, protowire.ParseError(n))
		}
		b = b[n:]

		name, known := protoFieldNames[num]
		if known && typ == protowire.BytesType {
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: protobuf field %d: %v", ErrMalformedPayload, num, protowire.ParseError(n))
			}
			f[name] = v
			b = b[n:]
			continue
		}

		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return nil, fmt.Errorf("%w: protobuf field %d: %v", ErrMalformedPayload, num, protowire.ParseError(n))
		}
		b = b[n:]
	}
	return f, nil
}

// MarshalProtoSwipe encodes ev in the binary swipe format. Reader simulators
// and tests use it to produce firmware-identical bodies.
func MarshalProtoSwipe(ev types.CanonicalEvent) []byte {
	var b []byte
	appendString := func(num protowire.Number, v string) {
		if v == "" {
			return
		}
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendString(b, v)
	}
	appendString(protoFieldCardID, ev.CardNumber)
	appendString(protoFieldDeviceSerial, ev.DeviceSerial)
	appendString(protoFieldDeviceName, ev.DeviceName)
	appendString(protoFieldDeviceLocation, ev.DeviceLocation)
	return b
}
