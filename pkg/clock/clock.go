package clock

import (
	"time"

	"github.com/google/uuid"
)

// Clock supplies wall time and identifiers; services take it through their
// constructors so tests can pin both.
type Clock interface {
	Now() time.Time
	NewID() string
}

type systemClock struct{}

// New returns the process-wide clock backed by time.Now and UUIDv4.
func New() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

func (systemClock) NewID() string {
	return uuid.NewString()
}

// Fixed is a deterministic clock for tests. IDs are sequential and stable.
type Fixed struct {
	Time time.Time
	seq  int
}

// NewFixed pins the clock at the given instant.
func NewFixed(t time.Time) *Fixed {
	return &Fixed{Time: t.UTC()}
}

func (f *Fixed) Now() time.Time {
	return f.Time
}

func (f *Fixed) NewID() string {
	f.seq++
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte{byte(f.seq), byte(f.seq >> 8)}).String()
}

// Advance moves the fixed clock forward.
func (f *Fixed) Advance(d time.Duration) {
	f.Time = f.Time.Add(d)
}
