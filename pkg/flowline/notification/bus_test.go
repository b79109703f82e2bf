package notification_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/randalmurphal/flowline/pkg/flowline/notification"
)

func TestBus(t *testing.T) {
	bus := notification.NewBus(notification.BusConfig{BufferSize: 10})

	var received atomic.Int32
	sub := bus.Subscribe([]notification.Action{notification.ProcessStart}, func(n notification.Notification) {
		received.Add(1)
	})
	if sub == nil {
		t.Fatal("expected subscription")
	}

	bus.Dispatch(notification.Notification{Action: notification.ProcessStart, Flow: "f"})
	bus.Dispatch(notification.Notification{Action: notification.ProcessEnd, Flow: "f"})

	if err := bus.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if received.Load() != 1 {
		t.Errorf("expected 1 received notification, got %d", received.Load())
	}
}

func TestBusSubscribeAll_PreservesOrder(t *testing.T) {
	bus := notification.NewBus(notification.BusConfig{BufferSize: 4})

	var mu sync.Mutex
	var got []notification.Action
	bus.SubscribeAll(func(n notification.Notification) {
		mu.Lock()
		got = append(got, n.Action)
		mu.Unlock()
	})

	want := []notification.Action{
		notification.ProcessStart,
		notification.ProcessEnd,
		notification.ProcessComplete,
		notification.ProcessStart,
		notification.ProcessComplete,
		notification.Stopped,
	}
	for _, a := range want {
		bus.Dispatch(notification.Notification{Action: a})
	}
	bus.Close()

	if len(got) != len(want) {
		t.Fatalf("expected %d notifications, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestBusPauseResume(t *testing.T) {
	bus := notification.NewBus(notification.BusConfig{BufferSize: 10})
	defer bus.Close()

	var received atomic.Int32
	sub := bus.SubscribeAll(func(notification.Notification) { received.Add(1) })

	sub.Pause()
	if !sub.IsPaused() {
		t.Error("expected subscription to be paused")
	}
	bus.Dispatch(notification.Notification{Action: notification.Started})
	time.Sleep(20 * time.Millisecond)

	sub.Resume()
	bus.Dispatch(notification.Notification{Action: notification.Stopped})
	time.Sleep(20 * time.Millisecond)

	if received.Load() != 1 {
		t.Errorf("expected 1 received notification, got %d", received.Load())
	}
}

func TestBusNonBlockingDrops(t *testing.T) {
	var dropped atomic.Int32
	bus := notification.NewBus(notification.BusConfig{
		BufferSize:  1,
		NonBlocking: true,
		OnDrop: func(notification.Notification, string) {
			dropped.Add(1)
		},
	})

	release := make(chan struct{})
	bus.SubscribeAll(func(notification.Notification) { <-release })

	for i := 0; i < 10; i++ {
		bus.Dispatch(notification.Notification{Action: notification.ProcessStart})
	}

	if dropped.Load() == 0 {
		t.Error("expected drops with a blocked subscriber and a full buffer")
	}
	close(release)
	bus.Close()
}

func TestBusUnsubscribe(t *testing.T) {
	bus := notification.NewBus(notification.DefaultBusConfig)
	defer bus.Close()

	var received atomic.Int32
	sub := bus.Subscribe([]notification.Action{notification.Started}, func(notification.Notification) {
		received.Add(1)
	})
	if bus.Len() != 1 {
		t.Fatalf("expected 1 subscription, got %d", bus.Len())
	}

	sub.Unsubscribe()
	sub.Unsubscribe()
	bus.Dispatch(notification.Notification{Action: notification.Started})
	time.Sleep(20 * time.Millisecond)

	if bus.Len() != 0 {
		t.Errorf("expected no subscriptions, got %d", bus.Len())
	}
	if received.Load() != 0 {
		t.Errorf("expected no deliveries after unsubscribe, got %d", received.Load())
	}
}

func TestBusMaxSubscribers(t *testing.T) {
	bus := notification.NewBus(notification.BusConfig{MaxSubscribers: 1})
	defer bus.Close()

	if bus.SubscribeAll(func(notification.Notification) {}) == nil {
		t.Fatal("expected first subscription to succeed")
	}
	if bus.SubscribeAll(func(notification.Notification) {}) != nil {
		t.Error("expected subscriber limit to be enforced")
	}
}

func TestBusListenerPanicRecovered(t *testing.T) {
	var panics atomic.Int32
	bus := notification.NewBus(notification.BusConfig{
		OnPanic: func(notification.Notification, string, any) { panics.Add(1) },
	})

	var received atomic.Int32
	bus.SubscribeAll(func(n notification.Notification) {
		if n.Action == notification.Started {
			panic("listener bug")
		}
		received.Add(1)
	})

	bus.Dispatch(notification.Notification{Action: notification.Started})
	bus.Dispatch(notification.Notification{Action: notification.Stopped})
	bus.Close()

	if panics.Load() != 1 {
		t.Errorf("expected 1 panic, got %d", panics.Load())
	}
	if received.Load() != 1 {
		t.Errorf("expected delivery to continue after a panic, got %d", received.Load())
	}
}

func TestBusClosedIgnoresDispatch(t *testing.T) {
	bus := notification.NewBus(notification.DefaultBusConfig)
	bus.Close()
	bus.Close()

	bus.Dispatch(notification.Notification{Action: notification.Started})
	if bus.SubscribeAll(func(notification.Notification) {}) != nil {
		t.Error("expected subscribe on a closed bus to fail")
	}
}

func TestMulti(t *testing.T) {
	var a, b int
	d := notification.Multi(
		notification.DispatcherFunc(func(notification.Notification) { a++ }),
		notification.Noop{},
		notification.DispatcherFunc(func(notification.Notification) { b++ }),
	)

	d.Dispatch(notification.Notification{Action: notification.Disposed})

	if a != 1 || b != 1 {
		t.Errorf("expected both dispatchers called once, got %d and %d", a, b)
	}
	if !notification.Disposed.IsLifecycle() || notification.ProcessEnd.IsLifecycle() {
		t.Error("unexpected IsLifecycle classification")
	}
}
