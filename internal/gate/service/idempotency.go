package service

import (
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/zeebo/blake3"
)

// idempotencyDomain keys the hash so these digests can never collide with
// BLAKE3 output used for anything else.
var idempotencyDomain = []byte("pdksgate/access-event-dedupe/v1.")

// IdempotencyKey hashes a serial and card with the window-aligned bucket
// receivedAt falls in. Buckets are epoch aligned, so a retry can land in
// the next bucket; Recorder also checks the preceding one.
func IdempotencyKey(serial, card string, receivedAt time.Time, window time.Duration) string {
	bucket := receivedAt.UTC()
	if window > 0 {
		bucket = bucket.Truncate(window)
	}

	h, err := blake3.NewKeyed(idempotencyDomain)
	if err != nil {
		panic("service: BLAKE3 keyed hash initialization failed: " + err.Error())
	}

	// Length-prefix the variable fields so ("ab","c") and ("a","bc") differ.
	buf := make([]byte, 0, len(serial)+len(card)+3*binary.MaxVarintLen64)
	buf = binary.AppendUvarint(buf, uint64(len(serial)))
	buf = append(buf, serial...)
	buf = binary.AppendUvarint(buf, uint64(len(card)))
	buf = append(buf, card...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(bucket.UnixNano()))
	_, _ = h.Write(buf)

	return hex.EncodeToString(h.Sum(nil))
}
