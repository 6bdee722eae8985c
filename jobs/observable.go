package jobs

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/nrwiersma/worker/jobs/event"
)

// Listener receives job events.
type Listener interface {
	OnJobEvent(ctx context.Context, ev *event.Event)
}

// ListenerFunc is a function listener.
type ListenerFunc func(ctx context.Context, ev *event.Event)

// OnJobEvent calls the function.
func (fn ListenerFunc) OnJobEvent(ctx context.Context, ev *event.Event) {
	fn(ctx, ev)
}

// SubscribeOption configures a subscription.
type SubscribeOption func(*Subscription)

// WithTag tags the subscription. Subscribing with a tag that is
// already in use replaces the existing subscription.
func WithTag(tag string) SubscribeOption {
	return func(s *Subscription) {
		s.tag = tag
	}
}

// WithFilter only delivers events matching the filter.
func WithFilter(f Filter) SubscribeOption {
	return func(s *Subscription) {
		s.filter = f
	}
}

// Subscription is a handle on a registered listener.
type Subscription struct {
	tag      string
	filter   Filter
	listener Listener

	closed atomic.Bool
}

// Tag returns the subscription tag.
func (s *Subscription) Tag() string {
	return s.tag
}

// Close stops delivery to the listener. It is safe to call at any
// time, including from within the listener itself.
func (s *Subscription) Close() {
	s.closed.Store(true)
}

// Closed determines if the subscription has been closed.
func (s *Subscription) Closed() bool {
	return s.closed.Load()
}

type deliveryKey struct{}

// delivery is the chain of observables currently delivering
// on a call stack.
type delivery struct {
	obs    *Observable
	parent *delivery
}

func inDelivery(ctx context.Context, o *Observable) bool {
	d, _ := ctx.Value(deliveryKey{}).(*delivery)
	for ; d != nil; d = d.parent {
		if d.obs == o {
			return true
		}
	}
	return false
}

// Observable delivers job events to subscribed listeners.
//
// Delivery is synchronous and in subscription order. Listeners
// cannot subscribe or unsubscribe on the observable that is
// delivering to them, but may close their own subscription.
type Observable struct {
	mu   sync.Mutex
	subs []*Subscription
}

// NewObservable returns an observable.
func NewObservable() *Observable {
	return &Observable{}
}

// Subscribe registers a listener.
func (o *Observable) Subscribe(ctx context.Context, l Listener, opts ...SubscribeOption) (*Subscription, error) {
	if inDelivery(ctx, o) {
		return nil, ErrListenerMutation
	}

	sub := &Subscription{listener: l}
	for _, opt := range opts {
		opt(sub)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	subs := make([]*Subscription, 0, len(o.subs)+1)
	for _, s := range o.subs {
		if s.Closed() {
			continue
		}
		if sub.tag != "" && s.tag == sub.tag {
			s.Close()
			continue
		}
		subs = append(subs, s)
	}
	o.subs = append(subs, sub)

	return sub, nil
}

// Unsubscribe removes a subscription.
func (o *Observable) Unsubscribe(ctx context.Context, sub *Subscription) error {
	if inDelivery(ctx, o) {
		return ErrListenerMutation
	}

	sub.Close()
	o.prune()
	return nil
}

// UnsubscribeTag removes the subscription with the given tag.
func (o *Observable) UnsubscribeTag(ctx context.Context, tag string) error {
	sub := o.Lookup(tag)
	if sub == nil {
		return nil
	}
	return o.Unsubscribe(ctx, sub)
}

// Lookup returns the open subscription with the given tag or nil.
func (o *Observable) Lookup(tag string) *Subscription {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, s := range o.subs {
		if s.tag == tag && !s.Closed() {
			return s
		}
	}
	return nil
}

// Len returns the number of open subscriptions.
func (o *Observable) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	var n int
	for _, s := range o.subs {
		if !s.Closed() {
			n++
		}
	}
	return n
}

// Notify delivers the event to all matching listeners. The event
// must come from a job with params and an assigned id.
func (o *Observable) Notify(ctx context.Context, ev *event.Event) error {
	if ev == nil || ev.Params() == nil || ev.JobID() < 0 {
		return ErrInvalidEvent
	}
	if err := ev.Validate(); err != nil {
		return ErrInvalidEvent
	}

	o.mu.Lock()
	subs := o.subs
	o.mu.Unlock()

	parent, _ := ctx.Value(deliveryKey{}).(*delivery)
	ctx = context.WithValue(ctx, deliveryKey{}, &delivery{obs: o, parent: parent})

	var stale bool
	for _, s := range subs {
		if s.Closed() {
			stale = true
			continue
		}
		if !s.filter.Match(ev) {
			continue
		}
		s.listener.OnJobEvent(ctx, ev)
	}

	if stale {
		o.prune()
	}
	return nil
}

func (o *Observable) prune() {
	o.mu.Lock()
	defer o.mu.Unlock()

	subs := make([]*Subscription, 0, len(o.subs))
	for _, s := range o.subs {
		if s.Closed() {
			continue
		}
		subs = append(subs, s)
	}
	o.subs = subs
}
