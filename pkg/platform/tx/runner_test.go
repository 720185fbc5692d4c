package tx

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "transplant/pkg/domain-errors"
)

func TestMemoryRunner(t *testing.T) {
	t.Run("undo steps replay in reverse order on failure", func(t *testing.T) {
		r := NewMemoryRunner()
		var trail []string
		state := "initial"

		err := r.RunInTx(context.Background(), func(ctx context.Context) error {
			prev := state
			state = "first"
			OnRollback(ctx, func() { trail = append(trail, "undo-first"); state = prev })

			mid := state
			state = "second"
			OnRollback(ctx, func() { trail = append(trail, "undo-second"); state = mid })
			return errors.New("boom")
		})

		require.Error(t, err)
		assert.Equal(t, "initial", state)
		assert.Equal(t, []string{"undo-second", "undo-first"}, trail)
	})

	t.Run("successful transactions keep their writes", func(t *testing.T) {
		r := NewMemoryRunner()
		state := "initial"
		err := r.RunInTx(context.Background(), func(ctx context.Context) error {
			state = "written"
			OnRollback(ctx, func() { state = "initial" })
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, "written", state)
	})

	t.Run("cancelled context aborts before running", func(t *testing.T) {
		r := NewMemoryRunner()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		called := false
		err := r.RunInTx(ctx, func(context.Context) error {
			called = true
			return nil
		})
		assert.False(t, called)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
	})

	t.Run("transactions are serialized", func(t *testing.T) {
		r := NewMemoryRunner()
		counter := 0
		var wg sync.WaitGroup
		for range 50 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = r.RunInTx(context.Background(), func(context.Context) error {
					v := counter
					counter = v + 1
					return nil
				})
			}()
		}
		wg.Wait()
		assert.Equal(t, 50, counter)
	})

	t.Run("OnRollback outside a transaction is a no-op", func(t *testing.T) {
		assert.NotPanics(t, func() { OnRollback(context.Background(), func() {}) })
	})
}
