package nand

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoll(t *testing.T) {
	for _, tc := range []struct {
		name       string
		limit      int
		readyAfter int
		wantCalls  int
		wantSleeps int
		wantErr    error
	}{
		{"ready at once", 10, 1, 1, 0, nil},
		{"ready later", 10, 4, 4, 3, nil},
		{"ready on last try", 10, 10, 10, 9, nil},
		{"never ready", 10, 11, 10, 9, ErrTimeout},
		{"single try", 1, 2, 1, 0, ErrTimeout},
		{"no tries", 0, 1, 0, 0, ErrTimeout},
	} {
		t.Run(tc.name, func(t *testing.T) {
			calls, sleeps := 0, 0
			n, err := Poll(tc.limit, time.Millisecond, func(d time.Duration) {
				assert.Equal(t, time.Millisecond, d)
				sleeps++
			}, func() (bool, error) {
				calls++
				return calls >= tc.readyAfter, nil
			})
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tc.wantCalls, calls)
			assert.Equal(t, tc.wantCalls, n)
			assert.Equal(t, tc.wantSleeps, sleeps)
		})
	}
}

func TestPollError(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	n, err := Poll(10, time.Millisecond, func(time.Duration) {}, func() (bool, error) {
		calls++
		if calls == 3 {
			return false, boom
		}
		return false, nil
	})
	require.ErrorIs(t, err, boom)
	assert.False(t, errors.Is(err, ErrTimeout))
	assert.Equal(t, 3, n)
}
