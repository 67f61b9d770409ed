package goble

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/blecentral/internal/platform"
)

// EnumerationWindow is how long the advertisement scan runs before the
// enumeration-completed signal is raised. go-ble has no native enumeration
// boundary, so the watcher treats the first scan window as the enumeration
// pass and keeps scanning for updates afterwards.
const EnumerationWindow = 5 * time.Second

// Watcher maps the go-ble advertisement stream onto the platform watcher
// event model. First sight of an address raises Added, later sightings raise
// Updated. This stack never raises Removed: advertisements carry no
// departure signal.
type Watcher struct {
	dev    ble.Device
	logger *logrus.Logger

	// enumWindow is overridable so tests can run a short cycle.
	enumWindow time.Duration

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	seen      map[string]bool
	events    platform.WatcherEvents
	running   bool
	enumTimer *time.Timer
	enumFired chan struct{}
}

func newWatcher(dev ble.Device, logger *logrus.Logger) *Watcher {
	return &Watcher{dev: dev, logger: logger, enumWindow: EnumerationWindow}
}

// Start implements platform.Watcher.
func (w *Watcher) Start(events platform.WatcherEvents) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return errors.New("watcher already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	w.seen = make(map[string]bool)
	w.events = events
	w.running = true

	fired := make(chan struct{})
	w.enumFired = fired
	w.enumTimer = time.AfterFunc(w.enumWindow, func() {
		defer close(fired)
		w.mu.Lock()
		live := w.running && w.enumFired == fired
		w.mu.Unlock()
		if live && events.EnumerationCompleted != nil {
			events.EnumerationCompleted()
		}
	})

	go func() {
		defer close(w.done)
		err := w.dev.Scan(ctx, true, w.handleAdvertisement)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			w.logger.WithError(err).Error("Advertisement scan terminated")
		}
	}()

	return nil
}

// Stop implements platform.Watcher. It cancels the scan, waits for the scan
// goroutine to exit, and drains the enumeration timer, so no event callback
// runs after Stop returns.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	cancel := w.cancel
	done := w.done
	timer := w.enumTimer
	fired := w.enumFired
	w.mu.Unlock()

	cancel()
	<-done
	if !timer.Stop() {
		// The callback is either finished or in flight. Wait it out so a
		// stale EnumerationCompleted cannot land in the next cycle.
		<-fired
	}
	return nil
}

func (w *Watcher) handleAdvertisement(adv ble.Advertisement) {
	addr := adv.Addr().String()

	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	first := !w.seen[addr]
	w.seen[addr] = true
	events := w.events
	w.mu.Unlock()

	if first {
		if events.Added != nil {
			events.Added(platform.DeviceInfo{
				ID:      addr,
				Name:    adv.LocalName(),
				Address: addr,
			})
		}
		w.logger.WithFields(logrus.Fields{
			"address": addr,
			"name":    adv.LocalName(),
			"rssi":    adv.RSSI(),
		}).Debug("Discovered new device")
		return
	}

	if events.Updated != nil {
		name := adv.LocalName()
		update := platform.DeviceUpdate{ID: addr}
		if name != "" {
			update.Name = &name
		}
		events.Updated(update)
	}
}
