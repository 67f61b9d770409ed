// Package goble adapts github.com/go-ble/ble to the platform contract.
// One Stack owns one ble.Device; watcher enumeration is driven by the
// advertisement scan, and peripherals are opened with ble.Dial.
package goble

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/blecentral/internal/bleid"
	"github.com/srg/blecentral/internal/future"
	"github.com/srg/blecentral/internal/platform"
)

// Stack is the go-ble backed platform stack.
type Stack struct {
	dev    ble.Device
	logger *logrus.Logger

	mu      sync.Mutex
	watcher *Watcher
	closed  bool
}

// NewStack initializes the radio stack via the per-OS device factory.
func NewStack(logger *logrus.Logger) (*Stack, error) {
	if logger == nil {
		logger = logrus.New()
	}

	dev, err := DeviceFactory()
	if err != nil {
		if strings.Contains(err.Error(), "central manager has invalid state") {
			return nil, fmt.Errorf("bluetooth is not ready: %w", err)
		}
		return nil, fmt.Errorf("failed to initialize BLE stack: %w", err)
	}
	ble.SetDefaultDevice(dev)

	return &Stack{dev: dev, logger: logger}, nil
}

// NewWatcher implements platform.Stack. One watcher per stack.
func (s *Stack) NewWatcher() (platform.Watcher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("stack is closed")
	}
	if s.watcher != nil {
		return nil, fmt.Errorf("stack already has an active watcher")
	}
	s.watcher = newWatcher(s.dev, s.logger)
	return s.watcher, nil
}

// OpenDevice implements platform.Stack. For this stack the platform id of an
// endpoint is its address string, so both open paths converge on dial.
func (s *Stack) OpenDevice(id string) *future.Future[platform.Peripheral] {
	return s.dial(id)
}

// OpenDeviceByAddress implements platform.Stack.
func (s *Stack) OpenDeviceByAddress(addr bleid.Address) *future.Future[platform.Peripheral] {
	return s.dial(strings.ToLower(addr.Display()))
}

func (s *Stack) dial(addr string) *future.Future[platform.Peripheral] {
	fut := future.New[platform.Peripheral]()
	go func() {
		client, err := ble.Dial(context.Background(), ble.NewAddr(addr))
		if err != nil {
			fut.Fail(fmt.Errorf("failed to connect to %q: %w", addr, err))
			return
		}
		fut.Complete(newPeripheral(client, s.logger))
	}()
	return fut
}

// Close implements platform.Stack.
func (s *Stack) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.dev.Stop()
}
