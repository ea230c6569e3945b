package pipeline

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// ID identifies one Pipeline instance, used to correlate log lines for
// that instance. A bare ULID alias: there is no
// database row for it to scan into or out of, so it carries no
// Scanner/Valuer methods.
type ID ulid.ULID

// NewID generates a new pipeline ID from the current time.
func NewID() ID {
	return ID(ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader))
}

// ParseID parses a pipeline ID string.
func ParseID(s string) (ID, error) {
	id, err := ulid.Parse(s)
	if err != nil {
		return ID{}, fmt.Errorf("pipeline: invalid id: %w", err)
	}
	return ID(id), nil
}

func (id ID) String() string {
	return ulid.ULID(id).String()
}
