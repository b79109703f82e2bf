package notification

import (
	"strconv"
	"sync"
	"sync/atomic"
)

// Listener handles a notification.
type Listener func(n Notification)

// Subscription represents an active subscription.
type Subscription interface {
	// ID returns the subscription identifier.
	ID() string

	// Unsubscribe removes the subscription.
	Unsubscribe()

	// Pause temporarily stops delivery. Notifications arriving while paused
	// are discarded.
	Pause()

	// Resume continues delivery after pause.
	Resume()

	// IsPaused returns true if the subscription is paused.
	IsPaused() bool
}

// BusConfig configures bus behavior.
type BusConfig struct {
	// BufferSize is the channel buffer size per subscription.
	// Default: 256
	BufferSize int

	// MaxSubscribers limits total subscriptions.
	// Default: 0 (unlimited)
	MaxSubscribers int

	// NonBlocking makes Dispatch drop notifications for subscribers whose
	// buffer is full instead of waiting.
	// Default: false (blocking)
	NonBlocking bool

	// OnDrop is called when a notification is dropped (non-blocking mode).
	OnDrop func(n Notification, subscriberID string)

	// OnPanic is called when a listener panics. The subscription keeps
	// running.
	OnPanic func(n Notification, subscriberID string, recovered any)
}

// DefaultBusConfig provides reasonable defaults.
var DefaultBusConfig = BusConfig{
	BufferSize: 256,
}

// Bus is an in-memory fan-out Dispatcher. Each subscription has its own
// goroutine and FIFO buffer, so a subscriber sees notifications in the
// order they were dispatched.
type Bus struct {
	config BusConfig

	mu        sync.RWMutex
	subs      map[string]*subscription
	byAction  map[Action]map[string]*subscription
	wildcards map[string]*subscription

	nextID  atomic.Int64
	closed  atomic.Bool
	closeCh chan struct{}
	running sync.WaitGroup
}

// NewBus creates a notification bus.
func NewBus(config BusConfig) *Bus {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultBusConfig.BufferSize
	}
	return &Bus{
		config:    config,
		subs:      make(map[string]*subscription),
		byAction:  make(map[Action]map[string]*subscription),
		wildcards: make(map[string]*subscription),
		closeCh:   make(chan struct{}),
	}
}

type subscription struct {
	id       string
	actions  []Action
	listener Listener
	events   chan Notification
	paused   atomic.Bool
	done     chan struct{}
	stopOnce sync.Once
	bus      *Bus
}

// Dispatch implements Dispatcher. It is a no-op on a closed bus.
func (b *Bus) Dispatch(n Notification) {
	if b.closed.Load() {
		return
	}

	b.mu.RLock()
	subs := b.matching(n.Action)
	b.mu.RUnlock()

	for _, sub := range subs {
		if sub.paused.Load() {
			continue
		}

		if b.config.NonBlocking {
			select {
			case sub.events <- n:
			default:
				if b.config.OnDrop != nil {
					b.config.OnDrop(n, sub.id)
				}
			}
			continue
		}

		select {
		case sub.events <- n:
		case <-sub.done:
		case <-b.closeCh:
			return
		}
	}
}

// Subscribe delivers notifications with one of the given actions to l.
// Returns nil if the bus is closed or the subscriber limit is reached.
func (b *Bus) Subscribe(actions []Action, l Listener) Subscription {
	if s := b.subscribe(actions, l); s != nil {
		return s
	}
	return nil
}

// SubscribeAll delivers every notification to l.
func (b *Bus) SubscribeAll(l Listener) Subscription {
	return b.Subscribe(nil, l)
}

func (b *Bus) subscribe(actions []Action, l Listener) *subscription {
	if b.closed.Load() {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.config.MaxSubscribers > 0 && len(b.subs) >= b.config.MaxSubscribers {
		return nil
	}

	sub := &subscription{
		id:       strconv.FormatInt(b.nextID.Add(1), 10),
		actions:  actions,
		listener: l,
		events:   make(chan Notification, b.config.BufferSize),
		done:     make(chan struct{}),
		bus:      b,
	}
	b.subs[sub.id] = sub

	if len(actions) == 0 {
		b.wildcards[sub.id] = sub
	} else {
		for _, a := range actions {
			if b.byAction[a] == nil {
				b.byAction[a] = make(map[string]*subscription)
			}
			b.byAction[a][sub.id] = sub
		}
	}

	b.running.Add(1)
	go sub.process()

	return sub
}

// matching returns the subscriptions for an action. Callers hold b.mu.
func (b *Bus) matching(a Action) []*subscription {
	subs := make([]*subscription, 0, len(b.byAction[a])+len(b.wildcards))
	for _, sub := range b.byAction[a] {
		subs = append(subs, sub)
	}
	for _, sub := range b.wildcards {
		subs = append(subs, sub)
	}
	return subs
}

// Len returns the number of active subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close shuts down the bus. Buffered notifications are delivered before
// Close returns.
func (b *Bus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(b.closeCh)

	b.mu.Lock()
	for _, sub := range b.subs {
		sub.stop()
	}
	b.mu.Unlock()

	b.running.Wait()
	return nil
}

func (s *subscription) process() {
	defer s.bus.running.Done()
	for {
		select {
		case n := <-s.events:
			s.deliver(n)
		case <-s.done:
			for {
				select {
				case n := <-s.events:
					s.deliver(n)
				default:
					return
				}
			}
		}
	}
}

func (s *subscription) deliver(n Notification) {
	if s.paused.Load() {
		return
	}
	defer func() {
		if r := recover(); r != nil && s.bus.config.OnPanic != nil {
			s.bus.config.OnPanic(n, s.id, r)
		}
	}()
	s.listener(n)
}

func (s *subscription) stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

// ID returns the subscription identifier.
func (s *subscription) ID() string {
	return s.id
}

// Unsubscribe removes the subscription.
func (s *subscription) Unsubscribe() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	delete(s.bus.subs, s.id)
	delete(s.bus.wildcards, s.id)
	for _, a := range s.actions {
		if subs, ok := s.bus.byAction[a]; ok {
			delete(subs, s.id)
		}
	}
	s.stop()
}

// Pause temporarily stops delivery.
func (s *subscription) Pause() {
	s.paused.Store(true)
}

// Resume continues delivery after pause.
func (s *subscription) Resume() {
	s.paused.Store(false)
}

// IsPaused returns true if the subscription is paused.
func (s *subscription) IsPaused() bool {
	return s.paused.Load()
}
