package sequence

import (
	"context"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_ConcurrentNextIsUnique(t *testing.T) {
	seq := NewMemory()
	ctx := context.Background()

	const n = 200
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[int64]bool, n)
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := seq.Next(ctx, 2026)
			require.NoError(t, err)
			mu.Lock()
			seen[v] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, n)
	assert.True(t, seen[1])
	assert.True(t, seen[n])
}

func TestMemory_YearsAreIndependent(t *testing.T) {
	seq := NewMemory()
	ctx := context.Background()

	a, _ := seq.Next(ctx, 2025)
	b, _ := seq.Next(ctx, 2026)
	c, _ := seq.Next(ctx, 2026)

	assert.Equal(t, int64(1), a)
	assert.Equal(t, int64(1), b)
	assert.Equal(t, int64(2), c)
}

func TestPostgres_Next(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("INSERT INTO request_sequences").
		WithArgs(2026).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(int64(7)))

	n, err := NewPostgres(db).Next(context.Background(), 2026)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	require.NoError(t, mock.ExpectationsWereMet())
}
