package browser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAwaitStart(t *testing.T) {
	t.Run("start returns first", func(t *testing.T) {
		aborted := false
		err := awaitStart(context.Background(), time.Second,
			func() error { return errors.New("no chrome binary") },
			func() { aborted = true })

		require.EqualError(t, err, "no chrome binary")
		assert.False(t, aborted)
	})

	t.Run("hung start times out", func(t *testing.T) {
		release := make(chan struct{})
		err := awaitStart(context.Background(), 10*time.Millisecond,
			func() error { <-release; return context.Canceled },
			func() { close(release) })

		require.Error(t, err)
		assert.Contains(t, err.Error(), "did not start within 10ms")
	})

	t.Run("cancelled context aborts start", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		release := make(chan struct{})
		err := awaitStart(ctx, time.Hour,
			func() error { <-release; return nil },
			func() { close(release) })

		require.ErrorIs(t, err, context.Canceled)
	})
}
