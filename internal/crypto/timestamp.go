package crypto

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// MaxTimestampSkew bounds how far back envelope timestamps are moved.
const MaxTimestampSkew = 2 * 24 * time.Hour

// RandomPastTimestamp returns now minus a uniform offset in [0, MaxTimestampSkew),
// in Unix seconds. It hides when an envelope was actually created.
func RandomPastTimestamp(now time.Time) (int64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	window := uint64(MaxTimestampSkew / time.Second)
	offset := binary.BigEndian.Uint64(b[:]) % window
	return now.Unix() - int64(offset), nil
}
