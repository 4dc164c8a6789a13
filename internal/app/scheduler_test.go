package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Flarenzy/smart-ipam/internal/domain"
)

type stubService struct {
	domain.NetworkService
	discoverFn       func(context.Context, domain.DiscoverInput) (domain.Snapshot, error)
	checkConflictsFn func(context.Context) ([]domain.Conflict, error)
}

func (s stubService) Discover(ctx context.Context, input domain.DiscoverInput) (domain.Snapshot, error) {
	return s.discoverFn(ctx, input)
}

func (s stubService) CheckConflicts(ctx context.Context) ([]domain.Conflict, error) {
	if s.checkConflictsFn == nil {
		return nil, nil
	}
	return s.checkConflictsFn(ctx)
}

func newTestScheduler(t *testing.T, service domain.NetworkService) *Scheduler {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Schedule = "@every 1h"
	s, err := NewScheduler(cfg, &Services{Service: service}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return s
}

func TestSchedulerRunsDiscoveryThenReconciles(t *testing.T) {
	var (
		got     domain.DiscoverInput
		checked bool
	)
	s := newTestScheduler(t, stubService{
		discoverFn: func(_ context.Context, input domain.DiscoverInput) (domain.Snapshot, error) {
			got = input
			return domain.Snapshot{State: domain.ScanComplete}, nil
		},
		checkConflictsFn: func(context.Context) ([]domain.Conflict, error) {
			checked = true
			return nil, nil
		},
	})

	s.runOnce(context.Background())

	if got.Method != string(domain.MethodPing) || !got.Persist || got.Target != "" {
		t.Fatalf("unexpected discovery input %+v", got)
	}
	if !checked {
		t.Fatal("expected conflicts to be checked after a complete scan")
	}
}

func TestSchedulerSkipsReconcileAfterPartialOrFailedScan(t *testing.T) {
	for _, tt := range []struct {
		name     string
		snapshot domain.Snapshot
		err      error
	}{
		{"partial", domain.Snapshot{Partial: true}, nil},
		{"no subnets", domain.Snapshot{}, domain.ErrInvalidTarget},
		{"failure", domain.Snapshot{}, errors.New("boom")},
	} {
		checked := false
		s := newTestScheduler(t, stubService{
			discoverFn: func(context.Context, domain.DiscoverInput) (domain.Snapshot, error) {
				return tt.snapshot, tt.err
			},
			checkConflictsFn: func(context.Context) ([]domain.Conflict, error) {
				checked = true
				return nil, nil
			},
		})

		s.runOnce(context.Background())

		if checked {
			t.Fatalf("%s: expected no conflict check", tt.name)
		}
	}
}

func TestSchedulerReclaimsBeforeDiscovery(t *testing.T) {
	var order []string
	s := newTestScheduler(t, stubService{
		discoverFn: func(context.Context, domain.DiscoverInput) (domain.Snapshot, error) {
			order = append(order, "discover")
			return domain.Snapshot{}, nil
		},
	})
	s.reclaim = func(context.Context, time.Time) (int, error) {
		order = append(order, "reclaim")
		return 0, nil
	}

	s.runOnce(context.Background())

	if len(order) != 2 || order[0] != "reclaim" {
		t.Fatalf("unexpected order %v", order)
	}
}

func TestSchedulerRunStopsWithContext(t *testing.T) {
	s := newTestScheduler(t, stubService{
		discoverFn: func(context.Context, domain.DiscoverInput) (domain.Snapshot, error) {
			return domain.Snapshot{}, nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestNewSchedulerRejectsBadSpec(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Schedule = "61 * * * *"
	if _, err := NewScheduler(cfg, &Services{}, nil); err == nil {
		t.Fatal("expected invalid schedule to fail")
	}
}
