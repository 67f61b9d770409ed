package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/srg/blecentral/internal/bleid"
	"github.com/srg/blecentral/internal/platform"
)

// Handler receives notification payloads. The slice is owned by the handler;
// it is copied out of the platform callback before delivery. Handlers run on
// a dispatcher goroutine, never on the platform callback thread.
type Handler func(data []byte)

// Subscription is a first-class handle for an active notification stream.
// One subscription exists per characteristic per session; re-subscribing
// replaces the prior one. Cancel revokes the platform registration and
// stops delivery.
type Subscription struct {
	uuid bleid.UUID
	reg  platform.Registration

	queue chan []byte
	stop  chan struct{}
	done  chan struct{}
	once  sync.Once
}

// UUID returns the subscribed characteristic UUID.
func (sub *Subscription) UUID() bleid.UUID {
	return sub.uuid
}

// deliver copies are enqueued by the platform callback. Sends block rather
// than drop so per-characteristic order is preserved end to end. The stop
// channel unparks a blocked sender on cancel; the queue itself is never
// closed, so a callback still in flight when Cancel runs cannot panic.
func (sub *Subscription) deliver(data []byte) {
	select {
	case sub.queue <- data:
	case <-sub.stop:
	}
}

// cancel revokes the platform registration, then signals the dispatcher
// goroutine and any parked sender to stop, and waits for the dispatcher to
// exit. A callback that raced the revocation drops its payload on the stop
// channel instead of enqueueing.
func (sub *Subscription) cancel() error {
	var err error
	sub.once.Do(func() {
		err = sub.reg.Revoke()
		close(sub.stop)
		<-sub.done
	})
	return err
}

// Subscribe enables notifications on the characteristic and delivers each
// notification payload to handler. A nil handler is a silent no-op: nothing
// is resolved and no descriptor write occurs.
//
// The notify descriptor write happens before any callback registration; the
// subscription is not active unless it succeeds. Payload buffers are copied
// out of the platform callback, and per-characteristic delivery order
// matches radio order. No ordering holds across different characteristics.
func (s *Session) Subscribe(ctx context.Context, id bleid.UUID, handler Handler) (*Subscription, error) {
	if handler == nil {
		return nil, nil
	}

	c, err := s.Characteristic(id)
	if err != nil {
		return nil, err
	}
	if !s.IsConnected() {
		return nil, fmt.Errorf("subscribe to %s: %w", id, ErrNotConnected)
	}

	if err := s.enableNotify(ctx, c); err != nil {
		return nil, err
	}

	sub := &Subscription{
		uuid:  id,
		queue: make(chan []byte, s.opts.NotifyBuffer),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}

	// One goroutine per subscription: FIFO queue plus single consumer
	// preserves radio delivery order for this characteristic.
	go func() {
		defer close(sub.done)
		for {
			select {
			case data := <-sub.queue:
				handler(data)
			case <-sub.stop:
				return
			}
		}
	}()

	reg, err := c.handle.OnValueChanged(func(data []byte) {
		// The platform buffer is only valid for the duration of the
		// callback.
		owned := make([]byte, len(data))
		copy(owned, data)
		sub.deliver(owned)
	})
	if err != nil {
		close(sub.stop)
		<-sub.done
		return nil, fmt.Errorf("subscribe to %s: %w", id, err)
	}
	sub.reg = reg

	s.mu.Lock()
	prior := s.subs[id]
	s.subs[id] = sub
	s.mu.Unlock()

	if prior != nil {
		if err := prior.cancel(); err != nil {
			s.logger.WithError(err).WithField("characteristic", id).
				Warn("Revoking replaced subscription failed")
		}
	}

	s.logger.WithField("characteristic", id).Info("Subscribed to notifications")
	return sub, nil
}

// SubscribeEncoded is Subscribe with the id given in the 16-byte boundary
// encoding.
func (s *Session) SubscribeEncoded(ctx context.Context, rawID []byte, handler Handler) (*Subscription, error) {
	if handler == nil {
		return nil, nil
	}
	id, err := bleid.DecodeUUID(rawID)
	if err != nil {
		return nil, fmt.Errorf("invalid characteristic id: %w", err)
	}
	return s.Subscribe(ctx, id, handler)
}

// Unsubscribe cancels the active subscription for id, if any.
func (s *Session) Unsubscribe(id bleid.UUID) error {
	s.mu.Lock()
	sub := s.subs[id]
	delete(s.subs, id)
	s.mu.Unlock()

	if sub == nil {
		return nil
	}
	return sub.cancel()
}

// Cancel revokes the subscription via its owning session-independent handle.
func (sub *Subscription) Cancel() error {
	return sub.cancel()
}
