package session

import (
	"context"
	"fmt"

	"github.com/srg/blecentral/internal/bledb"
	"github.com/srg/blecentral/internal/bleid"
	"github.com/srg/blecentral/internal/platform"
)

// Characteristic is a cached GATT characteristic handle. Immutable once
// discovered; owned exclusively by the session that discovered it.
type Characteristic struct {
	handle platform.Characteristic
}

func newCharacteristic(pc platform.Characteristic) *Characteristic {
	return &Characteristic{handle: pc}
}

// UUID returns the characteristic UUID.
func (c *Characteristic) UUID() bleid.UUID {
	return c.handle.UUID()
}

// ServiceUUID returns the owning service UUID.
func (c *Characteristic) ServiceUUID() bleid.UUID {
	return c.handle.ServiceUUID()
}

// Properties returns the declared property bitmask.
func (c *Characteristic) Properties() platform.Property {
	return c.handle.Properties()
}

// KnownName returns the Bluetooth SIG assigned name, or "" when unknown.
func (c *Characteristic) KnownName() string {
	return bledb.LookupCharacteristic(c.UUID().Short())
}

// Write resolves id against the characteristic cache and sends payload,
// blocking until the platform completes the write. An unknown id fails with
// a lookup error before any platform call; a non-success status is surfaced
// as a StatusError naming the code. Writes are not retried.
func (s *Session) Write(ctx context.Context, id bleid.UUID, payload []byte) error {
	c, err := s.Characteristic(id)
	if err != nil {
		return err
	}
	if !s.IsConnected() {
		return fmt.Errorf("write to %s: %w", id, ErrNotConnected)
	}

	status, err := c.handle.WriteValue(payload).WaitTimeout(ctx, s.opts.OperationTimeout)
	if err != nil {
		return fmt.Errorf("write to %s: %w", id, err)
	}
	if status != platform.StatusSuccess {
		return &platform.StatusError{Op: fmt.Sprintf("write to %s", id), Status: status}
	}

	s.logger.WithField("characteristic", id).WithField("bytes", len(payload)).
		Debug("Characteristic written")
	return nil
}

// WriteEncoded is Write with the id given in the 16-byte boundary encoding.
func (s *Session) WriteEncoded(ctx context.Context, rawID []byte, payload []byte) error {
	id, err := bleid.DecodeUUID(rawID)
	if err != nil {
		return fmt.Errorf("invalid characteristic id: %w", err)
	}
	return s.Write(ctx, id, payload)
}

// Read reads the current value of a cached characteristic from the device.
func (s *Session) Read(ctx context.Context, id bleid.UUID) ([]byte, error) {
	c, err := s.Characteristic(id)
	if err != nil {
		return nil, err
	}
	if !s.IsConnected() {
		return nil, fmt.Errorf("read of %s: %w", id, ErrNotConnected)
	}

	res, err := c.handle.ReadValue().WaitTimeout(ctx, s.opts.OperationTimeout)
	if err != nil {
		return nil, fmt.Errorf("read of %s: %w", id, err)
	}
	if res.Status != platform.StatusSuccess {
		return nil, &platform.StatusError{Op: fmt.Sprintf("read of %s", id), Status: res.Status}
	}
	return res.Data, nil
}

// EnableNotify writes the notify value to the characteristic's client
// configuration descriptor. A subscription is not active until this
// succeeds.
func (s *Session) EnableNotify(ctx context.Context, id bleid.UUID) error {
	c, err := s.Characteristic(id)
	if err != nil {
		return err
	}
	return s.enableNotify(ctx, c)
}

func (s *Session) enableNotify(ctx context.Context, c *Characteristic) error {
	status, err := c.handle.WriteCCCD(platform.CCCDNotify).WaitTimeout(ctx, s.opts.OperationTimeout)
	if err != nil {
		return fmt.Errorf("enable notify on %s: %w", c.UUID(), err)
	}
	if status != platform.StatusSuccess {
		return &platform.StatusError{Op: fmt.Sprintf("enable notify on %s", c.UUID()), Status: status}
	}
	return nil
}
