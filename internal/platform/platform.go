// Package platform defines the contract of the underlying asynchronous BLE
// stack. Discovery events and notification callbacks arrive on stack-owned
// goroutines; every request/response operation is exposed as a future that
// the higher layers block on. The production adapter lives in
// platform/goble; tests implement these interfaces with doubles.
package platform

import (
	"fmt"

	"github.com/srg/blecentral/internal/bleid"
	"github.com/srg/blecentral/internal/future"
)

// Status is the platform result code of a GATT operation.
type Status int

const (
	StatusSuccess Status = iota
	StatusUnreachable
	StatusProtocolError
	StatusAccessDenied
)

// String returns a stable name for logging and error messages.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusUnreachable:
		return "unreachable"
	case StatusProtocolError:
		return "protocol-error"
	case StatusAccessDenied:
		return "access-denied"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// StatusError reports a non-success platform status from a named operation.
type StatusError struct {
	Op     string
	Status Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed with platform status %s", e.Op, e.Status)
}

// Is allows errors.Is comparison by status code.
func (e *StatusError) Is(target error) bool {
	t, ok := target.(*StatusError)
	if !ok {
		return false
	}
	return e.Status == t.Status && (t.Op == "" || t.Op == e.Op)
}

// Property is the declared property bitmask of a characteristic.
type Property int

const (
	PropertyBroadcast Property = 1 << iota
	PropertyRead
	PropertyWriteWithoutResponse
	PropertyWrite
	PropertyNotify
	PropertyIndicate
)

// Has reports whether all bits of p2 are set.
func (p Property) Has(p2 Property) bool {
	return p&p2 == p2
}

// CCCDValue is the client characteristic configuration descriptor value
// written to enable or disable unsolicited value pushes.
type CCCDValue int

const (
	CCCDNone CCCDValue = iota
	CCCDNotify
	CCCDIndicate
)

// DeviceInfo is the discovery record delivered with an Added event.
// ID is the platform identity of the endpoint; Address may be empty until
// the stack resolves it.
type DeviceInfo struct {
	ID          string
	Name        string
	Address     string
	AddressType string
	Connected   bool
}

// DeviceUpdate is the partial record delivered with an Updated event.
// Nil fields were not part of the update.
type DeviceUpdate struct {
	ID        string
	Name      *string
	Address   *string
	Connected *bool
}

// WatcherEvents is the set of callbacks a watcher client registers before
// enumeration is activated. All four may be invoked concurrently from
// stack-owned goroutines.
type WatcherEvents struct {
	Added                func(DeviceInfo)
	Updated              func(DeviceUpdate)
	Removed              func(id string)
	EnumerationCompleted func()
}

// Watcher drives endpoint enumeration. The stack filters to BLE association
// endpoints that are currently disconnected and requests the device address,
// connection state and BLE address type properties.
type Watcher interface {
	// Start registers the event callbacks and activates enumeration.
	Start(events WatcherEvents) error

	// Stop deactivates enumeration and unregisters the callbacks. It does
	// not return until in-flight callbacks have drained.
	Stop() error
}

// Stack is the root handle of the platform BLE stack. Constructing a Stack
// initializes the radio stack; Close tears it down.
type Stack interface {
	// NewWatcher creates a device watcher. A stack supports one active
	// watcher at a time.
	NewWatcher() (Watcher, error)

	// OpenDevice opens a peripheral by its platform identity.
	OpenDevice(id string) *future.Future[Peripheral]

	// OpenDeviceByAddress opens a peripheral directly by its 48-bit
	// address, for devices not present in any enumeration.
	OpenDeviceByAddress(addr bleid.Address) *future.Future[Peripheral]

	Close() error
}

// ServicesResult is the completion payload of a service enumeration.
type ServicesResult struct {
	Status   Status
	Services []Service
}

// CharacteristicsResult is the completion payload of a characteristic
// enumeration.
type CharacteristicsResult struct {
	Status          Status
	Characteristics []Characteristic
}

// ReadResult is the completion payload of a characteristic read.
type ReadResult struct {
	Status Status
	Data   []byte
}

// Peripheral is a connected device handle.
type Peripheral interface {
	// DiscoverServices enumerates all services, bypassing the platform
	// topology cache so stale layouts are never observed.
	DiscoverServices() *future.Future[ServicesResult]

	// Close releases the peripheral handle. Safe to call more than once.
	Close() error
}

// Service is a discovered GATT service.
type Service interface {
	UUID() bleid.UUID

	// DiscoverCharacteristics enumerates the service's characteristics,
	// again bypassing the platform cache.
	DiscoverCharacteristics() *future.Future[CharacteristicsResult]
}

// Registration is a revocable event-callback token. Revoke unregisters the
// callback; an invocation already in flight may still be running when Revoke
// returns, so callers that need a quiescence point must provide their own.
type Registration interface {
	Revoke() error
}

// Characteristic is a discovered GATT characteristic handle. Handles are
// immutable once discovered and owned by the session that discovered them.
type Characteristic interface {
	UUID() bleid.UUID
	ServiceUUID() bleid.UUID
	Properties() Property

	// ReadValue reads the current value from the device.
	ReadValue() *future.Future[ReadResult]

	// WriteValue sends a payload to the characteristic. The future resolves
	// with the platform status of the write.
	WriteValue(data []byte) *future.Future[Status]

	// WriteCCCD writes the client characteristic configuration descriptor.
	WriteCCCD(value CCCDValue) *future.Future[Status]

	// OnValueChanged registers a value-changed callback. The data slice
	// passed to fn is only valid for the duration of the call; receivers
	// must copy it. Callbacks for one characteristic are invoked in radio
	// delivery order.
	OnValueChanged(fn func(data []byte)) (Registration, error)
}
