//go:build unix

package realtime

import (
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/birdnet-pipeline/internal/analysis"
)

func TestNotifyControls(t *testing.T) {
	ch := make(chan analysis.Control, 1)
	stop := notifyControls(ch)
	defer stop()

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGUSR1))
	select {
	case c := <-ch:
		assert.Equal(t, analysis.ControlPause, c)
	case <-time.After(2 * time.Second):
		t.Fatal("no control received for SIGUSR1")
	}

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGHUP))
	select {
	case c := <-ch:
		assert.Equal(t, analysis.ControlRestart, c)
	case <-time.After(2 * time.Second):
		t.Fatal("no control received for SIGHUP")
	}
}
