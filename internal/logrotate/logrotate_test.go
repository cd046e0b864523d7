package logrotate

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRegisterRotationRunsOnSchedule(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	var calls int32
	require.NoError(t, s.RegisterRotation(20*time.Millisecond, func() error {
		atomic.AddInt32(&calls, 1)
		return nil
	}))

	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) >= 1
	}, time.Second, 10*time.Millisecond)
}
