package fieldbus

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFieldRecord_FailureKeepsLastGoodValue(t *testing.T) {
	var f Field[uint16]
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	f.Record(42, nil, t0)
	assert.Equal(t, uint16(42), f.Value)
	assert.Equal(t, t0, f.Updated)
	assert.NoError(t, f.Err)

	readErr := errors.Join(ErrCommunicationFailure, errors.New("timeout"))
	f.Record(7, readErr, t0.Add(5*time.Second))
	assert.Equal(t, uint16(42), f.Value, "value must survive a failed read")
	assert.Equal(t, t0, f.Updated, "timestamp must not advance on a failed read")
	assert.ErrorIs(t, f.Err, ErrCommunicationFailure)

	f.Record(43, nil, t0.Add(10*time.Second))
	assert.Equal(t, uint16(43), f.Value)
	assert.NoError(t, f.Err)
}

func TestFieldAge(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	var never Field[bool]
	assert.False(t, never.Fresh(now, time.Hour))

	f := Field[bool]{Value: true, Updated: now.Add(-30 * time.Second)}
	assert.Equal(t, 30*time.Second, f.Age(now))
	assert.True(t, f.Fresh(now, time.Minute))
	assert.False(t, f.Fresh(now, 10*time.Second))
}

func TestSlot_LastWriteWins(t *testing.T) {
	var s Slot[uint16]

	_, ok := s.Take()
	assert.False(t, ok)

	for _, v := range []uint16{10, 20, 30} {
		s.Put(v)
	}
	assert.True(t, s.Pending())

	v, ok := s.Take()
	assert.True(t, ok)
	assert.Equal(t, uint16(30), v)

	_, ok = s.Take()
	assert.False(t, ok, "slot is single-shot")
}
