// Package testutils provides testify/mock doubles for the platform contract
// plus builders for assembling GATT topologies in tests.
//
// Every double dispatches through mock.Mock, so tests can layer their own
// On(...) expectations over the programmable defaults the constructors
// register, and can assert invocations with the usual mock helpers.
package testutils

import (
	"fmt"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/srg/blecentral/internal/bleid"
	"github.com/srg/blecentral/internal/future"
	"github.com/srg/blecentral/internal/platform"
)

// MockStack is a programmable platform.Stack. Peripherals are registered
// per platform id and per raw address so tests can exercise both connect
// paths and assert which one was taken.
type MockStack struct {
	mock.Mock

	Watcher *MockWatcher

	mu                sync.Mutex
	peripheralsByID   map[string]*MockPeripheral
	peripheralsByAddr map[bleid.Address]*MockPeripheral

	NewWatcherErr error
}

// NewMockStack returns an empty stack with a fresh MockWatcher and default
// expectations covering the whole platform.Stack surface.
func NewMockStack() *MockStack {
	s := &MockStack{
		Watcher:           NewMockWatcher(),
		peripheralsByID:   make(map[string]*MockPeripheral),
		peripheralsByAddr: make(map[bleid.Address]*MockPeripheral),
	}

	s.On("NewWatcher").Maybe().Return(func() (platform.Watcher, error) {
		if s.NewWatcherErr != nil {
			return nil, s.NewWatcherErr
		}
		return s.Watcher, nil
	})
	s.On("OpenDevice", mock.Anything).Maybe().Return(func(id string) *future.Future[platform.Peripheral] {
		s.mu.Lock()
		p, ok := s.peripheralsByID[id]
		s.mu.Unlock()
		if !ok {
			return failed[platform.Peripheral](fmt.Errorf("no peripheral with id %q", id))
		}
		return future.Completed[platform.Peripheral](p, nil)
	})
	s.On("OpenDeviceByAddress", mock.Anything).Maybe().Return(func(addr bleid.Address) *future.Future[platform.Peripheral] {
		s.mu.Lock()
		p, ok := s.peripheralsByAddr[addr]
		s.mu.Unlock()
		if !ok {
			return failed[platform.Peripheral](fmt.Errorf("no peripheral with address %s", addr))
		}
		return future.Completed[platform.Peripheral](p, nil)
	})
	s.On("Close").Maybe().Return(nil)
	return s
}

// AddPeripheral registers p under both the id and the address key.
func (s *MockStack) AddPeripheral(id string, addr bleid.Address, p *MockPeripheral) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != "" {
		s.peripheralsByID[id] = p
	}
	if addr != 0 {
		s.peripheralsByAddr[addr] = p
	}
}

// NewWatcher implements platform.Stack.
func (s *MockStack) NewWatcher() (platform.Watcher, error) {
	ret := s.Called()
	if rf, ok := ret.Get(0).(func() (platform.Watcher, error)); ok {
		return rf()
	}
	w, _ := ret.Get(0).(platform.Watcher)
	return w, ret.Error(1)
}

// OpenDevice implements platform.Stack.
func (s *MockStack) OpenDevice(id string) *future.Future[platform.Peripheral] {
	ret := s.Called(id)
	if rf, ok := ret.Get(0).(func(string) *future.Future[platform.Peripheral]); ok {
		return rf(id)
	}
	return ret.Get(0).(*future.Future[platform.Peripheral])
}

// OpenDeviceByAddress implements platform.Stack.
func (s *MockStack) OpenDeviceByAddress(addr bleid.Address) *future.Future[platform.Peripheral] {
	ret := s.Called(addr)
	if rf, ok := ret.Get(0).(func(bleid.Address) *future.Future[platform.Peripheral]); ok {
		return rf(addr)
	}
	return ret.Get(0).(*future.Future[platform.Peripheral])
}

// Close implements platform.Stack.
func (s *MockStack) Close() error {
	return s.Called().Error(0)
}

// OpenedIDs returns every id passed to OpenDevice, in call order.
func (s *MockStack) OpenedIDs() []string {
	var ids []string
	for _, c := range s.Calls {
		if c.Method == "OpenDevice" {
			ids = append(ids, c.Arguments.String(0))
		}
	}
	return ids
}

// OpenedAddrs returns every address passed to OpenDeviceByAddress, in call
// order.
func (s *MockStack) OpenedAddrs() []bleid.Address {
	var addrs []bleid.Address
	for _, c := range s.Calls {
		if c.Method == "OpenDeviceByAddress" {
			addrs = append(addrs, c.Arguments.Get(0).(bleid.Address))
		}
	}
	return addrs
}

// Closed reports whether Close was called at least once.
func (s *MockStack) Closed() bool {
	return callCount(&s.Mock, "Close") > 0
}

func failed[T any](err error) *future.Future[T] {
	f := future.New[T]()
	f.Fail(err)
	return f
}

func callCount(m *mock.Mock, method string) int {
	n := 0
	for _, c := range m.Calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// MockWatcher is a programmable platform.Watcher. Tests drive the event
// streams through the Emit methods.
type MockWatcher struct {
	mock.Mock

	mu      sync.Mutex
	events  platform.WatcherEvents
	started bool

	StartErr error
}

// NewMockWatcher returns an idle watcher double with default expectations.
func NewMockWatcher() *MockWatcher {
	w := &MockWatcher{}

	w.On("Start", mock.Anything).Maybe().Return(func(events platform.WatcherEvents) error {
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.StartErr != nil {
			return w.StartErr
		}
		w.events = events
		w.started = true
		return nil
	})
	w.On("Stop").Maybe().Return(func() error {
		w.mu.Lock()
		defer w.mu.Unlock()
		w.started = false
		w.events = platform.WatcherEvents{}
		return nil
	})
	return w
}

// Start implements platform.Watcher.
func (w *MockWatcher) Start(events platform.WatcherEvents) error {
	ret := w.Called(events)
	if rf, ok := ret.Get(0).(func(platform.WatcherEvents) error); ok {
		return rf(events)
	}
	return ret.Error(0)
}

// Stop implements platform.Watcher.
func (w *MockWatcher) Stop() error {
	ret := w.Called()
	if rf, ok := ret.Get(0).(func() error); ok {
		return rf()
	}
	return ret.Error(0)
}

// StartCount returns how many times Start was invoked.
func (w *MockWatcher) StartCount() int {
	return callCount(&w.Mock, "Start")
}

// StopCount returns how many times Stop was invoked.
func (w *MockWatcher) StopCount() int {
	return callCount(&w.Mock, "Stop")
}

// Started reports whether Start has been called without a matching Stop.
func (w *MockWatcher) Started() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.started
}

// EmitAdded delivers an Added event.
func (w *MockWatcher) EmitAdded(info platform.DeviceInfo) {
	if fn := w.snapshot().Added; fn != nil {
		fn(info)
	}
}

// EmitUpdated delivers an Updated event.
func (w *MockWatcher) EmitUpdated(update platform.DeviceUpdate) {
	if fn := w.snapshot().Updated; fn != nil {
		fn(update)
	}
}

// EmitRemoved delivers a Removed event.
func (w *MockWatcher) EmitRemoved(id string) {
	if fn := w.snapshot().Removed; fn != nil {
		fn(id)
	}
}

// CompleteEnumeration raises the enumeration-completed signal.
func (w *MockWatcher) CompleteEnumeration() {
	if fn := w.snapshot().EnumerationCompleted; fn != nil {
		fn()
	}
}

func (w *MockWatcher) snapshot() platform.WatcherEvents {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return platform.WatcherEvents{}
	}
	return w.events
}
