package goble

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/blecentral/internal/bleid"
	"github.com/srg/blecentral/internal/future"
	"github.com/srg/blecentral/internal/platform"
)

// Peripheral wraps a ble.Client as a platform.Peripheral.
type Peripheral struct {
	client ble.Client
	logger *logrus.Logger
	closed atomic.Bool
}

func newPeripheral(client ble.Client, logger *logrus.Logger) *Peripheral {
	return &Peripheral{client: client, logger: logger}
}

// DiscoverServices implements platform.Peripheral. go-ble performs discovery
// against the live link on every call, so no stale topology cache exists to
// bypass.
func (p *Peripheral) DiscoverServices() *future.Future[platform.ServicesResult] {
	fut := future.New[platform.ServicesResult]()
	go func() {
		svcs, err := p.client.DiscoverServices(nil)
		if err != nil {
			fut.Fail(fmt.Errorf("service discovery: %w", err))
			return
		}

		result := platform.ServicesResult{Status: platform.StatusSuccess}
		for _, svc := range svcs {
			uuid, err := bleid.ParseUUID(svc.UUID.String())
			if err != nil {
				fut.Fail(fmt.Errorf("service discovery returned unparseable UUID %q: %w", svc.UUID, err))
				return
			}
			result.Services = append(result.Services, &Service{
				peripheral: p,
				svc:        svc,
				uuid:       uuid,
			})
		}
		fut.Complete(result)
	}()
	return fut
}

// Close implements platform.Peripheral.
func (p *Peripheral) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return p.client.CancelConnection()
}

// Service adapts one discovered ble.Service.
type Service struct {
	peripheral *Peripheral
	svc        *ble.Service
	uuid       bleid.UUID
}

// UUID implements platform.Service.
func (s *Service) UUID() bleid.UUID {
	return s.uuid
}

// DiscoverCharacteristics implements platform.Service.
func (s *Service) DiscoverCharacteristics() *future.Future[platform.CharacteristicsResult] {
	fut := future.New[platform.CharacteristicsResult]()
	go func() {
		chars, err := s.peripheral.client.DiscoverCharacteristics(nil, s.svc)
		if err != nil {
			fut.Fail(fmt.Errorf("characteristic discovery for service %s: %w", s.uuid, err))
			return
		}

		result := platform.CharacteristicsResult{Status: platform.StatusSuccess}
		for _, c := range chars {
			uuid, err := bleid.ParseUUID(c.UUID.String())
			if err != nil {
				fut.Fail(fmt.Errorf("characteristic discovery returned unparseable UUID %q: %w", c.UUID, err))
				return
			}
			result.Characteristics = append(result.Characteristics, &Characteristic{
				peripheral:  s.peripheral,
				char:        c,
				uuid:        uuid,
				serviceUUID: s.uuid,
			})
		}
		fut.Complete(result)
	}()
	return fut
}

// Characteristic adapts one discovered ble.Characteristic.
type Characteristic struct {
	peripheral  *Peripheral
	char        *ble.Characteristic
	uuid        bleid.UUID
	serviceUUID bleid.UUID

	// cccdMu guards the configured notification mode. go-ble writes the
	// client configuration descriptor inside client.Subscribe, so WriteCCCD
	// records the requested mode and OnValueChanged applies it on the wire.
	cccdMu sync.Mutex
	cccd   platform.CCCDValue
}

// UUID implements platform.Characteristic.
func (c *Characteristic) UUID() bleid.UUID {
	return c.uuid
}

// ServiceUUID implements platform.Characteristic.
func (c *Characteristic) ServiceUUID() bleid.UUID {
	return c.serviceUUID
}

// Properties implements platform.Characteristic.
func (c *Characteristic) Properties() platform.Property {
	var p platform.Property
	if c.char.Property&ble.CharBroadcast != 0 {
		p |= platform.PropertyBroadcast
	}
	if c.char.Property&ble.CharRead != 0 {
		p |= platform.PropertyRead
	}
	if c.char.Property&ble.CharWriteNR != 0 {
		p |= platform.PropertyWriteWithoutResponse
	}
	if c.char.Property&ble.CharWrite != 0 {
		p |= platform.PropertyWrite
	}
	if c.char.Property&ble.CharNotify != 0 {
		p |= platform.PropertyNotify
	}
	if c.char.Property&ble.CharIndicate != 0 {
		p |= platform.PropertyIndicate
	}
	return p
}

// ReadValue implements platform.Characteristic.
func (c *Characteristic) ReadValue() *future.Future[platform.ReadResult] {
	fut := future.New[platform.ReadResult]()
	go func() {
		data, err := c.peripheral.client.ReadCharacteristic(c.char)
		if err != nil {
			fut.Fail(fmt.Errorf("read characteristic %s: %w", c.uuid, err))
			return
		}
		fut.Complete(platform.ReadResult{Status: platform.StatusSuccess, Data: data})
	}()
	return fut
}

// WriteValue implements platform.Characteristic.
func (c *Characteristic) WriteValue(data []byte) *future.Future[platform.Status] {
	fut := future.New[platform.Status]()
	go func() {
		err := c.peripheral.client.WriteCharacteristic(c.char, data, false)
		if err != nil {
			fut.Fail(fmt.Errorf("write characteristic %s: %w", c.uuid, err))
			return
		}
		fut.Complete(platform.StatusSuccess)
	}()
	return fut
}

// WriteCCCD implements platform.Characteristic. The mode is recorded here
// and written to the wire by OnValueChanged (go-ble couples the descriptor
// write with handler registration).
func (c *Characteristic) WriteCCCD(value platform.CCCDValue) *future.Future[platform.Status] {
	if value != platform.CCCDNone &&
		c.char.Property&(ble.CharNotify|ble.CharIndicate) == 0 {
		return future.Completed(platform.StatusAccessDenied, nil)
	}

	c.cccdMu.Lock()
	c.cccd = value
	c.cccdMu.Unlock()
	return future.Completed(platform.StatusSuccess, nil)
}

// OnValueChanged implements platform.Characteristic.
func (c *Characteristic) OnValueChanged(fn func(data []byte)) (platform.Registration, error) {
	c.cccdMu.Lock()
	indicate := c.cccd == platform.CCCDIndicate
	c.cccdMu.Unlock()

	if err := c.peripheral.client.Subscribe(c.char, indicate, fn); err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", c.uuid, err)
	}
	return &registration{char: c, indicate: indicate}, nil
}

type registration struct {
	char     *Characteristic
	indicate bool
	revoked  atomic.Bool
}

// Revoke unsubscribes from the characteristic. Both notify and indicate
// modes are attempted; the error is reported only when both fail.
func (r *registration) Revoke() error {
	if !r.revoked.CompareAndSwap(false, true) {
		return nil
	}

	client := r.char.peripheral.client
	err1 := client.Unsubscribe(r.char.char, false)
	err2 := client.Unsubscribe(r.char.char, true)
	if err1 != nil && err2 != nil {
		return fmt.Errorf("unsubscribe from %s: notify=%v, indicate=%v", r.char.uuid, err1, err2)
	}
	return nil
}
