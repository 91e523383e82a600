package fieldbus

import "time"

// Field is a last-known-good cache entry. A failed refresh only replaces Err, so a stale
// Value is always handed back together with the time it was last read successfully.
type Field[T any] struct {
	Value   T
	Updated time.Time
	Err     error
}

func (f *Field[T]) Record(v T, err error, now time.Time) {
	if err != nil {
		f.Err = err
		return
	}
	f.Value = v
	f.Updated = now
	f.Err = nil
}

// Age is zero-safe: a field that never succeeded is infinitely old.
func (f Field[T]) Age(now time.Time) time.Duration {
	if f.Updated.IsZero() {
		return time.Duration(1<<63 - 1)
	}
	return now.Sub(f.Updated)
}

// Fresh reports whether the value was read successfully within maxAge.
func (f Field[T]) Fresh(now time.Time, maxAge time.Duration) bool {
	return f.Age(now) <= maxAge
}

// WriteResult is the outcome of the most recently applied write request.
type WriteResult[T any] struct {
	Value T
	At    time.Time
	Err   error
}

// Slot holds at most one pending write. A newer Put overwrites a value not yet taken.
type Slot[T any] struct {
	value   T
	pending bool
}

func (s *Slot[T]) Put(v T) {
	s.value = v
	s.pending = true
}

func (s *Slot[T]) Take() (T, bool) {
	v, ok := s.value, s.pending
	s.pending = false
	return v, ok
}

func (s *Slot[T]) Pending() bool {
	return s.pending
}
