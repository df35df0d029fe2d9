package events

import (
	"sync"

	"github.com/google/uuid"

	"github.com/cartage/bomtrack/pkg/types"
)

// Kind represents the semantic transition a notification reports
type Kind string

const (
	KindStarted            Kind = "started"
	KindProgress           Kind = "progress"
	KindComponentCompleted Kind = "component.completed"
	KindComponentFailed    Kind = "component.failed"
	KindComplete           Kind = "complete"
	KindError              Kind = "error"
)

// Handler is the set of callbacks a subscriber registers. Nil callbacks are
// skipped, so a subscriber only implements the transitions it cares about.
type Handler struct {
	OnStarted            func(state *types.ProgressState)
	OnProgress           func(state *types.ProgressState)
	OnComponentCompleted func(update *types.ComponentUpdate)
	OnComponentFailed    func(update *types.ComponentUpdate)
	OnComplete           func(state *types.ProgressState)
	OnError              func(err error)
}

// Notification is one dispatched transition. Exactly one of State,
// Component or Err is meaningful depending on Kind.
type Notification struct {
	Kind      Kind
	State     *types.ProgressState
	Component *types.ComponentUpdate
	Err       error
}

// Subscription is a stable handle for one subscriber. The handler set can
// be swapped via Update without disturbing any connection state, so callers
// may re-register callbacks freely.
type Subscription struct {
	id string

	mu      sync.RWMutex
	handler Handler
}

// ID returns the subscription identifier
func (s *Subscription) ID() string {
	return s.id
}

// Update replaces the handler set. The subscription itself, and anything
// keyed on it, is unaffected.
func (s *Subscription) Update(h Handler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

func (s *Subscription) invoke(n Notification) {
	s.mu.RLock()
	h := s.handler
	s.mu.RUnlock()

	switch n.Kind {
	case KindStarted:
		if h.OnStarted != nil {
			h.OnStarted(n.State)
		}
	case KindProgress:
		if h.OnProgress != nil {
			h.OnProgress(n.State)
		}
	case KindComponentCompleted:
		if h.OnComponentCompleted != nil {
			h.OnComponentCompleted(n.Component)
		}
	case KindComponentFailed:
		if h.OnComponentFailed != nil {
			h.OnComponentFailed(n.Component)
		}
	case KindComplete:
		if h.OnComplete != nil {
			h.OnComplete(n.State)
		}
	case KindError:
		if h.OnError != nil {
			h.OnError(n.Err)
		}
	}
}

// Notifier fans notifications out to all subscriptions. Dispatch happens on
// a single goroutine in publish order, so every subscriber observes the
// same sequence of transitions.
type Notifier struct {
	mu   sync.RWMutex
	subs map[string]*Subscription

	notifyCh chan Notification
	stopCh   chan struct{}
	stopOnce sync.Once
	doneCh   chan struct{}
	started  bool
}

// NewNotifier creates a new notifier
func NewNotifier() *Notifier {
	return &Notifier{
		subs:     make(map[string]*Subscription),
		notifyCh: make(chan Notification, 100), // Buffer up to 100 notifications
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the dispatch loop
func (n *Notifier) Start() {
	n.mu.Lock()
	if n.started {
		n.mu.Unlock()
		return
	}
	n.started = true
	n.mu.Unlock()
	go n.run()
}

// Stop stops the dispatch loop after draining queued notifications.
// Idempotent and safe to call whether or not Start ran.
func (n *Notifier) Stop() {
	n.stopOnce.Do(func() {
		close(n.stopCh)
	})

	n.mu.RLock()
	started := n.started
	n.mu.RUnlock()
	if started {
		<-n.doneCh
	}
}

// Subscribe registers a handler set and returns its subscription handle
func (n *Notifier) Subscribe(h Handler) *Subscription {
	sub := &Subscription{
		id:      uuid.NewString(),
		handler: h,
	}

	n.mu.Lock()
	n.subs[sub.id] = sub
	n.mu.Unlock()

	return sub
}

// Unsubscribe removes a subscription. Safe to call with an already-removed
// subscription.
func (n *Notifier) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	n.mu.Lock()
	delete(n.subs, sub.id)
	n.mu.Unlock()
}

// SubscriberCount returns the number of active subscriptions
func (n *Notifier) SubscriberCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs)
}

// Publish queues a notification for dispatch. Non-blocking once the
// notifier has stopped.
func (n *Notifier) Publish(note Notification) {
	select {
	case n.notifyCh <- note:
	case <-n.stopCh:
	}
}

// EmitStarted publishes a started transition
func (n *Notifier) EmitStarted(state *types.ProgressState) {
	n.Publish(Notification{Kind: KindStarted, State: state.Clone()})
}

// EmitProgress publishes a progress transition
func (n *Notifier) EmitProgress(state *types.ProgressState) {
	n.Publish(Notification{Kind: KindProgress, State: state.Clone()})
}

// EmitComponentCompleted publishes a per-component completion
func (n *Notifier) EmitComponentCompleted(update *types.ComponentUpdate) {
	n.Publish(Notification{Kind: KindComponentCompleted, Component: update.Clone()})
}

// EmitComponentFailed publishes a per-component failure
func (n *Notifier) EmitComponentFailed(update *types.ComponentUpdate) {
	n.Publish(Notification{Kind: KindComponentFailed, Component: update.Clone()})
}

// EmitComplete publishes the terminal completion transition
func (n *Notifier) EmitComplete(state *types.ProgressState) {
	n.Publish(Notification{Kind: KindComplete, State: state.Clone()})
}

// EmitError publishes a caller-visible error
func (n *Notifier) EmitError(err error) {
	n.Publish(Notification{Kind: KindError, Err: err})
}

func (n *Notifier) run() {
	defer close(n.doneCh)
	for {
		select {
		case note := <-n.notifyCh:
			n.dispatch(note)
		case <-n.stopCh:
			// Drain what was queued before the stop
			for {
				select {
				case note := <-n.notifyCh:
					n.dispatch(note)
				default:
					return
				}
			}
		}
	}
}

func (n *Notifier) dispatch(note Notification) {
	n.mu.RLock()
	subs := make([]*Subscription, 0, len(n.subs))
	for _, sub := range n.subs {
		subs = append(subs, sub)
	}
	n.mu.RUnlock()

	for _, sub := range subs {
		sub.invoke(note)
	}
}
