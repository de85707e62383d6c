// Package objectid implements the 12-byte timestamp-prefixed object
// identifier used as the stored-object primary key").
//
// Layout: 4 bytes big-endian unix seconds, followed by 8 random bytes.
// The timestamp prefix keeps ids roughly time-sortable (like Mongo's
// ObjectID or a ULID), which the producer queue relies on for
// producer-position ordering.
package objectid

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Size is the encoded length in bytes.
const Size = 12

// ID is a 12-byte object identifier.
type ID [Size]byte

// Nil is the zero ID, used to mean "unset".
var Nil ID

// New generates a fresh ID stamped with the current time. The random
// tail reuses uuid.New()'s CSPRNG-backed source rather than hand-rolling
// one.
func New() ID {
	return NewAt(time.Now())
}

// NewAt generates a fresh ID stamped with t, used in tests that need
// deterministic ordering.
func NewAt(t time.Time) ID {
	var id ID
	binary.BigEndian.PutUint32(id[0:4], uint32(t.Unix()))
	tail := uuid.New()
	copy(id[4:12], tail[:8])
	return id
}

// Timestamp extracts the creation time encoded in the id's prefix.
func (id ID) Timestamp() time.Time {
	sec := binary.BigEndian.Uint32(id[0:4])
	return time.Unix(int64(sec), 0).UTC()
}

// IsZero reports whether id is the Nil id.
func (id ID) IsZero() bool { return id == Nil }

// Bytes returns the raw 12 bytes.
func (id ID) Bytes() []byte { return id[:] }

// String renders the id as lowercase hex, e.g. for logging.
func (id ID) String() string { return hex.EncodeToString(id[:]) }

// FromBytes validates and wraps a 12-byte slice.
func FromBytes(b []byte) (ID, error) {
	var id ID
	if len(b) != Size {
		return id, errors.New("objectid: wrong length")
	}
	copy(id[:], b)
	return id, nil
}

// Compare returns -1, 0, or 1 the way bytes.Compare does, which for this
// encoding is also chronological order (ties broken by the random tail).
func Compare(a, b ID) int {
	for i := 0; i < Size; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}
