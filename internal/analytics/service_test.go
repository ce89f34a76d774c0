package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/review-trends/internal/store"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type stubSource struct {
	snaps []store.Snapshot
	err   error
}

func (s stubSource) ListAll(context.Context) ([]store.Snapshot, error) {
	return s.snaps, s.err
}

func TestServiceReport(t *testing.T) {
	t.Parallel()

	svc := NewService(stubSource{snaps: []store.Snapshot{
		snap("A", "ifood", "X", "Y", 10, dayAt(2024, 5, 1)),
	}}, fixedClock{now: now}, nil)

	got, err := svc.Report(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, got.KPIs.TotalEstablishments)
	require.Equal(t, now, got.LastUpdated)
}

func TestServiceReportFailsWholeReport(t *testing.T) {
	t.Parallel()

	svc := NewService(stubSource{err: errors.New("connection refused")}, fixedClock{now: now}, nil)

	got, err := svc.Report(context.Background())
	require.ErrorIs(t, err, ErrHistoryUnavailable)
	require.Contains(t, err.Error(), "connection refused")
	require.Equal(t, Report{}, got)
}

func TestServiceWithoutSource(t *testing.T) {
	t.Parallel()

	_, err := NewService(nil, nil, nil).Report(context.Background())
	require.ErrorIs(t, err, ErrHistoryUnavailable)
}
