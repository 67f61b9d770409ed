// Package watcher drives BLE peripheral discovery. It owns the table of
// currently-visible devices, fed by platform enumeration events arriving on
// stack-owned goroutines, and exposes a blocking Scan that waits for the
// enumeration-completed signal before returning a snapshot.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"

	"github.com/srg/blecentral/internal/bleid"
	"github.com/srg/blecentral/internal/platform"
	"github.com/srg/blecentral/internal/ringchan"
)

// State is the watcher lifecycle state.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateStarted
	StateStopping
)

// String returns the lifecycle state name.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateStarted:
		return "started"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

var (
	// ErrNotStarted is returned by Scan when the watcher is not running.
	ErrNotStarted = errors.New("watcher not started")

	// ErrScanTimeout is returned by Scan when enumeration does not
	// complete within the configured timeout.
	ErrScanTimeout = errors.New("enumeration did not complete in time")
)

// DeviceRecord is one entry of the device table. Identity is the platform
// id; the address may be zero until the stack resolves it.
type DeviceRecord struct {
	ID          string
	Name        string
	Address     bleid.Address
	AddressType string
	Connected   bool
}

// ScanResult is one row of a Scan snapshot.
type ScanResult struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// EventType marks what happened to a table entry.
type EventType int

const (
	EventAdded EventType = iota
	EventUpdated
	EventRemoved
)

// Event is a device-table change, observable via Events().
type Event struct {
	Type   EventType
	Record DeviceRecord
}

// Options configures watcher behavior.
type Options struct {
	// ScanTimeout bounds how long Scan waits for the enumeration-completed
	// signal. Zero waits indefinitely (subject to the caller's context).
	ScanTimeout time.Duration `default:"20s"`

	// EventBuffer is the capacity of the observer event stream.
	EventBuffer int `default:"100"`
}

// DefaultOptions returns Options with defaults applied.
func DefaultOptions() *Options {
	opts := &Options{}
	defaults.SetDefaults(opts)
	return opts
}

// Watcher maintains the set of currently-visible BLE association endpoints.
//
// Lifecycle: Stopped -> Starting -> Started -> Stopping -> Stopped. Start is
// idempotent while Started. The device table lives for one Start/Stop cycle
// and is discarded on Stop.
type Watcher struct {
	stack  platform.Stack
	pw     platform.Watcher
	logger *logrus.Logger
	opts   *Options

	state   atomic.Int32
	devices atomic.Pointer[hashmap.Map[string, DeviceRecord]]
	events  *ringchan.RingChannel[Event]

	// enumMu guards the per-cycle enumeration-completed channel. The
	// channel is closed when the signal fires and stays closed for the
	// rest of the cycle, so repeated waits observe it immediately.
	enumMu   sync.Mutex
	enumDone chan struct{}
}

// New creates a watcher over the given stack. Radio-stack initialization is
// tied to watcher construction: the platform watcher is created here and
// torn down by Close.
func New(stack platform.Stack, opts *Options, logger *logrus.Logger) (*Watcher, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if opts == nil {
		opts = DefaultOptions()
	}

	pw, err := stack.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create platform device watcher: %w", err)
	}

	w := &Watcher{
		stack:  stack,
		pw:     pw,
		logger: logger,
		opts:   opts,
		events: ringchan.New[Event](opts.EventBuffer),
	}
	w.devices.Store(hashmap.New[string, DeviceRecord]())
	return w, nil
}

// State returns the current lifecycle state.
func (w *Watcher) State() State {
	return State(w.state.Load())
}

// Start registers the four enumeration event streams and activates
// enumeration. Calling Start while already started is a no-op.
func (w *Watcher) Start() error {
	if !w.state.CompareAndSwap(int32(StateStopped), int32(StateStarting)) {
		if w.State() == StateStarted {
			return nil
		}
		return fmt.Errorf("cannot start watcher while %s", w.State())
	}

	w.devices.Store(hashmap.New[string, DeviceRecord]())
	w.enumMu.Lock()
	w.enumDone = make(chan struct{})
	w.enumMu.Unlock()

	// All four streams are registered before enumeration activates so no
	// early event is lost.
	err := w.pw.Start(platform.WatcherEvents{
		Added:                w.onAdded,
		Updated:              w.onUpdated,
		Removed:              w.onRemoved,
		EnumerationCompleted: w.onEnumerationCompleted,
	})
	if err != nil {
		w.state.Store(int32(StateStopped))
		return fmt.Errorf("failed to start device enumeration: %w", err)
	}

	w.state.Store(int32(StateStarted))
	w.logger.Info("Device watcher started")
	return nil
}

// Stop deactivates enumeration, unregisters the event streams and discards
// the device table. In-flight event callbacks drain before Stop returns.
// Stopping a stopped watcher is a no-op.
func (w *Watcher) Stop() error {
	if !w.state.CompareAndSwap(int32(StateStarted), int32(StateStopping)) {
		if w.State() == StateStopped {
			return nil
		}
		return fmt.Errorf("cannot stop watcher while %s", w.State())
	}

	err := w.pw.Stop()

	// The table does not outlive the enumeration cycle.
	w.devices.Store(hashmap.New[string, DeviceRecord]())
	w.state.Store(int32(StateStopped))

	if err != nil {
		return fmt.Errorf("failed to stop device enumeration: %w", err)
	}
	w.logger.Info("Device watcher stopped")
	return nil
}

// Close stops the watcher if needed and tears down the radio stack.
func (w *Watcher) Close() error {
	if err := w.Stop(); err != nil {
		w.logger.WithError(err).Warn("Stopping watcher during close failed")
	}
	w.events.Close()
	return w.stack.Close()
}

// Scan blocks until enumeration completes, then returns a snapshot of every
// currently-known device, sorted by address. The wait is bounded by
// Options.ScanTimeout (ErrScanTimeout) and by ctx.
func (w *Watcher) Scan(ctx context.Context) ([]ScanResult, error) {
	if w.State() != StateStarted {
		return nil, ErrNotStarted
	}

	w.enumMu.Lock()
	done := w.enumDone
	w.enumMu.Unlock()

	var timeoutC <-chan time.Time
	if w.opts.ScanTimeout > 0 {
		t := time.NewTimer(w.opts.ScanTimeout)
		defer t.Stop()
		timeoutC = t.C
	}

	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeoutC:
		return nil, ErrScanTimeout
	}

	records := w.Snapshot()
	results := make([]ScanResult, 0, len(records))
	for _, rec := range records {
		results = append(results, ScanResult{
			Name:    rec.Name,
			Address: bleid.FormatAddress(rec.Address),
		})
	}

	w.logger.WithField("device_count", len(results)).Info("Scan snapshot taken")
	return results, nil
}

// Snapshot returns a copy of the device table, sorted by address.
func (w *Watcher) Snapshot() []DeviceRecord {
	table := w.devices.Load()
	records := make([]DeviceRecord, 0, table.Len())
	table.Range(func(_ string, rec DeviceRecord) bool {
		records = append(records, rec)
		return true
	})
	sort.Slice(records, func(i, j int) bool {
		return records[i].Address < records[j].Address
	})
	return records
}

// FindByAddress looks up a record by resolved address. Used by the session
// layer to prefer the platform-id connect path for visible devices.
func (w *Watcher) FindByAddress(addr bleid.Address) (DeviceRecord, bool) {
	var (
		found DeviceRecord
		ok    bool
	)
	w.devices.Load().Range(func(_ string, rec DeviceRecord) bool {
		if rec.Address == addr && rec.Address != 0 {
			found = rec
			ok = true
			return false
		}
		return true
	})
	return found, ok
}

// Events returns the observer stream of device-table changes. The stream
// never blocks producers; under pressure the oldest event is dropped.
func (w *Watcher) Events() <-chan Event {
	return w.events.C()
}

func (w *Watcher) onAdded(info platform.DeviceInfo) {
	rec := DeviceRecord{
		ID:          info.ID,
		Name:        info.Name,
		Address:     bleid.ParseAddressLenient(info.Address),
		AddressType: info.AddressType,
		Connected:   info.Connected,
	}
	w.devices.Load().Set(info.ID, rec)

	w.logger.WithFields(logrus.Fields{
		"device":  rec.Name,
		"address": rec.Address,
	}).Debug("Device added")
	w.events.ForceSend(Event{Type: EventAdded, Record: rec})
}

func (w *Watcher) onUpdated(update platform.DeviceUpdate) {
	table := w.devices.Load()
	rec, ok := table.Get(update.ID)
	if !ok {
		// The update raced an add or a remove. Both are tolerated.
		w.logger.WithField("id", update.ID).Debug("Update for unknown device ignored")
		return
	}

	if update.Name != nil {
		rec.Name = *update.Name
	}
	if update.Address != nil {
		rec.Address = bleid.ParseAddressLenient(*update.Address)
	}
	if update.Connected != nil {
		rec.Connected = *update.Connected
	}
	table.Set(update.ID, rec)

	w.events.ForceSend(Event{Type: EventUpdated, Record: rec})
}

func (w *Watcher) onRemoved(id string) {
	table := w.devices.Load()
	rec, ok := table.Get(id)
	table.Del(id)
	if ok {
		w.events.ForceSend(Event{Type: EventRemoved, Record: rec})
	}
}

func (w *Watcher) onEnumerationCompleted() {
	w.enumMu.Lock()
	defer w.enumMu.Unlock()
	select {
	case <-w.enumDone:
		// Already signaled this cycle.
	default:
		close(w.enumDone)
		w.logger.Debug("Device enumeration completed")
	}
}
