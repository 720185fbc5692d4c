package worker

//go:generate mockgen -source=sweeper.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"transplant/internal/request/worker/mocks"
	"transplant/internal/sla"
)

var tick = time.Date(2026, 8, 1, 6, 0, 0, 0, time.UTC)

func newSweeper(t *testing.T) (*ExpirySweeper, *mocks.MockExpirer, *mocks.MockNearBreachLister, *mocks.MockNearBreachGauge) {
	ctrl := gomock.NewController(t)
	expirer := mocks.NewMockExpirer(ctrl)
	lister := mocks.NewMockNearBreachLister(ctrl)
	gauge := mocks.NewMockNearBreachGauge(ctrl)
	w := NewExpirySweeper(expirer, lister,
		WithGauge(gauge),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(func() time.Time { return tick }),
		WithInterval(time.Hour),
	)
	return w, expirer, lister, gauge
}

func TestSweep_ExpiresAndUpdatesGauge(t *testing.T) {
	w, expirer, lister, gauge := newSweeper(t)
	expirer.EXPECT().ExpireDue(gomock.Any(), tick).Return(3, nil)
	lister.EXPECT().NearBreach(gomock.Any()).Return([]sla.Snapshot{{RequestID: "REQ-2026-000001"}, {RequestID: "REQ-2026-000002"}}, nil)
	gauge.EXPECT().SetNearBreach(2)

	w.Sweep(context.Background())
}

func TestSweep_ExpiryFailureStillRefreshesGauge(t *testing.T) {
	w, expirer, lister, gauge := newSweeper(t)
	expirer.EXPECT().ExpireDue(gomock.Any(), tick).Return(0, errors.New("db down"))
	lister.EXPECT().NearBreach(gomock.Any()).Return(nil, nil)
	gauge.EXPECT().SetNearBreach(0)

	w.Sweep(context.Background())
}

func TestSweep_NearBreachFailureLeavesGauge(t *testing.T) {
	w, expirer, lister, gauge := newSweeper(t)
	expirer.EXPECT().ExpireDue(gomock.Any(), tick).Return(0, nil)
	lister.EXPECT().NearBreach(gomock.Any()).Return(nil, errors.New("db down"))
	gauge.EXPECT().SetNearBreach(gomock.Any()).Times(0)

	w.Sweep(context.Background())
}

func TestRun_SweepsOnceThenStopsOnCancel(t *testing.T) {
	w, expirer, lister, gauge := newSweeper(t)
	ctx, cancel := context.WithCancel(context.Background())
	expirer.EXPECT().ExpireDue(gomock.Any(), tick).DoAndReturn(func(context.Context, time.Time) (int, error) {
		cancel()
		return 0, nil
	})
	lister.EXPECT().NearBreach(gomock.Any()).Return(nil, nil)
	gauge.EXPECT().SetNearBreach(0)

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop after cancellation")
	}
}
