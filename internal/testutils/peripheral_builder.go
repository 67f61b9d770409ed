package testutils

import "github.com/srg/blecentral/internal/platform"

// PeripheralBuilder assembles a MockPeripheral with a fluent API:
//
//	p := testutils.NewPeripheralBuilder().
//		WithService("180d").
//		WithCharacteristic("2a37", platform.PropertyNotify).
//		WithService("180f").
//		WithCharacteristic("2a19", platform.PropertyRead).
//		Build()
type PeripheralBuilder struct {
	peripheral *MockPeripheral
	current    *MockService
}

// NewPeripheralBuilder starts an empty topology.
func NewPeripheralBuilder() *PeripheralBuilder {
	return &PeripheralBuilder{peripheral: NewMockPeripheral()}
}

// WithService opens a new service; subsequent WithCharacteristic calls add
// to it.
func (b *PeripheralBuilder) WithService(uuid string) *PeripheralBuilder {
	b.current = NewMockService(mustUUID(uuid))
	b.peripheral.services = append(b.peripheral.services, b.current)
	return b
}

// WithCharacteristic adds a characteristic to the current service.
func (b *PeripheralBuilder) WithCharacteristic(uuid string, props platform.Property) *PeripheralBuilder {
	if b.current == nil {
		b.WithService("1800")
	}
	b.current.chars = append(b.current.chars,
		NewMockCharacteristic(mustUUID(uuid), b.current.uuid, props))
	return b
}

// WithServiceStatus sets the characteristic-discovery status of the current
// service.
func (b *PeripheralBuilder) WithServiceStatus(status platform.Status) *PeripheralBuilder {
	b.current.CharsStatus = status
	return b
}

// WithDiscoveryStatus sets the service-discovery status of the peripheral.
func (b *PeripheralBuilder) WithDiscoveryStatus(status platform.Status) *PeripheralBuilder {
	b.peripheral.ServicesStatus = status
	return b
}

// Build returns the assembled peripheral.
func (b *PeripheralBuilder) Build() *MockPeripheral {
	return b.peripheral
}
