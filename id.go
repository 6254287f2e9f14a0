package vectis

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// ticksAtUnixEpoch is the number of 100-nanosecond intervals between
// 0001-01-01T00:00:00Z and the Unix epoch.
const ticksAtUnixEpoch = 621355968000000000

// Ticks converts t to the number of 100-nanosecond intervals elapsed since
// 0001-01-01T00:00:00Z (UTC). Identifiers embed ticks so that they sort by
// creation time.
//
// Unlike UnixNano, the conversion is exact for every year from 1 to 9999.
func Ticks(t time.Time) int64 {
	return t.Unix()*10_000_000 + int64(t.Nanosecond())/100 + ticksAtUnixEpoch
}

// NewID returns a globally unique identifier of the form "<ticks>|<uuid>",
// where ticks is the current UTC time as returned by Ticks and uuid is a random
// (version 4) UUID. Callers never need to coordinate to avoid collisions.
func NewID() string {
	return formatID(time.Now(), uuid.New())
}

func formatID(t time.Time, u uuid.UUID) string {
	return strconv.FormatInt(Ticks(t), 10) + "|" + u.String()
}

// EnsureIdentity assigns a fresh identifier to an entity whose Id or
// PartitionKey is unset. It fails with ErrFrozen if e is frozen and needs an
// identity.
func EnsureIdentity(e Entity) error {
	b := e.Core()
	if b.id == "" {
		if _, err := SetField(b, &b.id, NewID(), "Id"); err != nil {
			return err
		}
	}
	if b.partitionKey == "" {
		if _, err := SetField(b, &b.partitionKey, NewID(), "PartitionKey"); err != nil {
			return err
		}
	}
	return nil
}
