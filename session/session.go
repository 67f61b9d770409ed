// Package session implements the GATT session layer: connect-by-address,
// eager all-or-nothing topology discovery, characteristic write and notify
// operations, and the dispatcher that marshals platform notification
// callbacks to caller-supplied handlers.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/blecentral/internal/bleid"
	"github.com/srg/blecentral/internal/platform"
	"github.com/srg/blecentral/watcher"
)

// Options configures session behavior.
type Options struct {
	// ConnectTimeout bounds the platform connect attempt and each
	// discovery round trip.
	ConnectTimeout time.Duration `default:"30s"`

	// OperationTimeout bounds individual write, read and descriptor
	// operations.
	OperationTimeout time.Duration `default:"10s"`

	// NotifyBuffer is the per-characteristic notification queue depth.
	NotifyBuffer int `default:"128"`
}

// DefaultOptions returns Options with defaults applied.
func DefaultOptions() *Options {
	opts := &Options{}
	defaults.SetDefaults(opts)
	return opts
}

// Session owns a connected peripheral handle and the characteristic cache
// discovered at connect time.
//
// The cache is populated once, in full, before Connect returns; it is
// read-only afterwards and therefore needs no lock. The subscription table
// is mutated after connect and is guarded by mu.
type Session struct {
	logger     *logrus.Logger
	opts       *Options
	peripheral platform.Peripheral
	address    bleid.Address

	// chars preserves the discovery order of the GATT topology.
	chars *orderedmap.OrderedMap[bleid.UUID, *Characteristic]

	mu        sync.Mutex
	connected bool
	subs      map[bleid.UUID]*Subscription
}

// Connect resolves address, connects and performs full service and
// characteristic discovery before returning. If the address matches a record
// in w's table the platform-id path is used; otherwise the raw numeric
// address path is taken, which supports devices not currently visible in a
// scan. w may be nil.
//
// Discovery is all-or-nothing: any non-success status for any service aborts
// the connect and releases the peripheral.
func Connect(ctx context.Context, stack platform.Stack, w *watcher.Watcher, address string, opts *Options, logger *logrus.Logger) (*Session, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if opts == nil {
		opts = DefaultOptions()
	}

	addr, err := bleid.ParseAddress(address)
	if err != nil {
		return nil, fmt.Errorf("invalid device address: %w", err)
	}

	return connect(ctx, stack, w, addr, opts, logger)
}

func connect(ctx context.Context, stack platform.Stack, w *watcher.Watcher, addr bleid.Address, opts *Options, logger *logrus.Logger) (*Session, error) {
	log := logger.WithField("address", addr)

	if w != nil {
		if rec, ok := w.FindByAddress(addr); ok {
			log = log.WithField("device_id", rec.ID)
			log.Debug("Address found in watcher table, connecting by platform id")
			p, err := stack.OpenDevice(rec.ID).WaitTimeout(ctx, opts.ConnectTimeout)
			if err != nil {
				return nil, fmt.Errorf("failed to connect to device %q: %w", rec.ID, err)
			}
			return discover(ctx, p, addr, opts, logger)
		}
	}

	log.Debug("Address not in watcher table, connecting by raw address")
	p, err := stack.OpenDeviceByAddress(addr).WaitTimeout(ctx, opts.ConnectTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to device %s: %w", addr, err)
	}
	return discover(ctx, p, addr, opts, logger)
}

// discover enumerates all services and characteristics, bypassing the
// platform topology cache, and builds the session's ordered cache.
func discover(ctx context.Context, p platform.Peripheral, addr bleid.Address, opts *Options, logger *logrus.Logger) (*Session, error) {
	abort := func(err error) (*Session, error) {
		if cerr := p.Close(); cerr != nil {
			logger.WithError(cerr).Warn("Releasing peripheral after failed discovery failed")
		}
		return nil, err
	}

	svcRes, err := p.DiscoverServices().WaitTimeout(ctx, opts.ConnectTimeout)
	if err != nil {
		return abort(fmt.Errorf("service discovery: %w", err))
	}
	if svcRes.Status != platform.StatusSuccess {
		return abort(fmt.Errorf("%w: %w", ErrDiscoveryIncomplete,
			&platform.StatusError{Op: "service discovery", Status: svcRes.Status}))
	}

	chars := orderedmap.New[bleid.UUID, *Characteristic]()
	for _, svc := range svcRes.Services {
		chRes, err := svc.DiscoverCharacteristics().WaitTimeout(ctx, opts.ConnectTimeout)
		if err != nil {
			return abort(fmt.Errorf("characteristic discovery for service %s: %w", svc.UUID(), err))
		}
		if chRes.Status != platform.StatusSuccess {
			return abort(fmt.Errorf("%w: %w", ErrDiscoveryIncomplete,
				&platform.StatusError{Op: fmt.Sprintf("characteristic discovery for service %s", svc.UUID()), Status: chRes.Status}))
		}

		for _, pc := range chRes.Characteristics {
			c := newCharacteristic(pc)
			// First discovery wins on duplicate UUIDs, matching the
			// find-first lookup semantics.
			if _, present := chars.Get(c.UUID()); !present {
				chars.Set(c.UUID(), c)
			}
		}
	}

	logger.WithFields(logrus.Fields{
		"address":         addr,
		"services":        len(svcRes.Services),
		"characteristics": chars.Len(),
	}).Info("Connected, GATT topology discovered")

	return &Session{
		logger:     logger,
		opts:       opts,
		peripheral: p,
		address:    addr,
		chars:      chars,
		connected:  true,
		subs:       make(map[bleid.UUID]*Subscription),
	}, nil
}

// Address returns the 48-bit address the session was connected with.
func (s *Session) Address() bleid.Address {
	return s.address
}

// IsConnected reports whether Disconnect has not yet been called.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Characteristics returns the cached characteristic handles in discovery
// order.
func (s *Session) Characteristics() []*Characteristic {
	result := make([]*Characteristic, 0, s.chars.Len())
	for pair := s.chars.Oldest(); pair != nil; pair = pair.Next() {
		result = append(result, pair.Value)
	}
	return result
}

// Characteristic resolves a cached handle by exact UUID match.
func (s *Session) Characteristic(id bleid.UUID) (*Characteristic, error) {
	c, ok := s.chars.Get(id)
	if !ok {
		return nil, &NotFoundError{Resource: "characteristic", ID: id.String()}
	}
	return c, nil
}

// Disconnect cancels all subscriptions deterministically and releases the
// peripheral handle. It never fails and is safe to call more than once.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return
	}
	s.connected = false
	subs := make([]*Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.subs = make(map[bleid.UUID]*Subscription)
	s.mu.Unlock()

	for _, sub := range subs {
		if err := sub.cancel(); err != nil {
			s.logger.WithError(err).WithField("characteristic", sub.uuid).
				Warn("Revoking subscription during disconnect failed")
		}
	}

	if err := s.peripheral.Close(); err != nil {
		s.logger.WithError(err).Warn("Releasing peripheral handle failed")
	}
	s.logger.WithField("address", s.address).Info("Disconnected")
}
