package connectivity

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestSetOnlineNotifiesOnTransitionsOnly(t *testing.T) {
	m := NewMonitor(func(context.Context) error { return nil }, time.Minute)
	ch := m.Subscribe()

	m.SetOnline(true)
	select {
	case online := <-ch:
		if !online {
			t.Fatalf("expected online transition")
		}
	default:
		t.Fatalf("no notification for the offline-to-online edge")
	}

	// Same state again: no edge, no notification.
	m.SetOnline(true)
	select {
	case <-ch:
		t.Fatalf("notified without a transition")
	default:
	}

	m.SetOnline(false)
	select {
	case online := <-ch:
		if online {
			t.Fatalf("expected offline transition")
		}
	default:
		t.Fatalf("no notification for the online-to-offline edge")
	}
}

func TestLaggingSubscriberSeesLatestState(t *testing.T) {
	m := NewMonitor(func(context.Context) error { return nil }, time.Minute)
	ch := m.Subscribe()

	m.SetOnline(true)
	m.SetOnline(false)
	m.SetOnline(true)

	select {
	case online := <-ch:
		if !online {
			t.Fatalf("stale state delivered, want the latest")
		}
	default:
		t.Fatalf("expected a pending notification")
	}
}

func TestProbeDrivesState(t *testing.T) {
	var fail atomic.Bool
	m := NewMonitor(func(context.Context) error {
		if fail.Load() {
			return errors.New("unreachable")
		}
		return nil
	}, time.Minute)

	ctx := context.Background()
	m.probeOnce(ctx)
	if !m.Online() {
		t.Fatalf("expected online after successful probe")
	}

	fail.Store(true)
	m.probeOnce(ctx)
	if m.Online() {
		t.Fatalf("expected offline after failed probe")
	}
}
