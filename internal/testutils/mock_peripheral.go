package testutils

import (
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/srg/blecentral/internal/bleid"
	"github.com/srg/blecentral/internal/future"
	"github.com/srg/blecentral/internal/platform"
)

// MockPeripheral is a programmable platform.Peripheral.
type MockPeripheral struct {
	mock.Mock

	services []*MockService

	ServicesStatus platform.Status
	DiscoverErr    error
}

// NewMockPeripheral returns a peripheral double with default expectations.
// Topologies are normally assembled through PeripheralBuilder.
func NewMockPeripheral() *MockPeripheral {
	p := &MockPeripheral{}

	p.On("DiscoverServices").Maybe().Return(func() *future.Future[platform.ServicesResult] {
		if p.DiscoverErr != nil {
			return failed[platform.ServicesResult](p.DiscoverErr)
		}
		result := platform.ServicesResult{Status: p.ServicesStatus}
		for _, svc := range p.services {
			result.Services = append(result.Services, svc)
		}
		return future.Completed(result, nil)
	})
	p.On("Close").Maybe().Return(nil)
	return p
}

// DiscoverServices implements platform.Peripheral.
func (p *MockPeripheral) DiscoverServices() *future.Future[platform.ServicesResult] {
	ret := p.Called()
	if rf, ok := ret.Get(0).(func() *future.Future[platform.ServicesResult]); ok {
		return rf()
	}
	return ret.Get(0).(*future.Future[platform.ServicesResult])
}

// Close implements platform.Peripheral.
func (p *MockPeripheral) Close() error {
	return p.Called().Error(0)
}

// CloseCount returns how many times Close was invoked.
func (p *MockPeripheral) CloseCount() int {
	return callCount(&p.Mock, "Close")
}

// Closed reports whether Close was called at least once.
func (p *MockPeripheral) Closed() bool {
	return p.CloseCount() > 0
}

// Service returns the mock service with the given UUID, or nil.
func (p *MockPeripheral) Service(uuid string) *MockService {
	id := mustUUID(uuid)
	for _, svc := range p.services {
		if svc.uuid == id {
			return svc
		}
	}
	return nil
}

// Characteristic returns the mock characteristic with the given UUID across
// all services, or nil.
func (p *MockPeripheral) Characteristic(uuid string) *MockCharacteristic {
	id := mustUUID(uuid)
	for _, svc := range p.services {
		for _, c := range svc.chars {
			if c.uuid == id {
				return c
			}
		}
	}
	return nil
}

// MockService is a programmable platform.Service.
type MockService struct {
	mock.Mock

	uuid  bleid.UUID
	chars []*MockCharacteristic

	CharsStatus platform.Status
	DiscoverErr error
}

// NewMockService returns a service double with default expectations.
func NewMockService(uuid bleid.UUID) *MockService {
	s := &MockService{uuid: uuid}

	s.On("UUID").Maybe().Return(func() bleid.UUID { return s.uuid })
	s.On("DiscoverCharacteristics").Maybe().Return(func() *future.Future[platform.CharacteristicsResult] {
		if s.DiscoverErr != nil {
			return failed[platform.CharacteristicsResult](s.DiscoverErr)
		}
		result := platform.CharacteristicsResult{Status: s.CharsStatus}
		for _, c := range s.chars {
			result.Characteristics = append(result.Characteristics, c)
		}
		return future.Completed(result, nil)
	})
	return s
}

// UUID implements platform.Service.
func (s *MockService) UUID() bleid.UUID {
	ret := s.Called()
	if rf, ok := ret.Get(0).(func() bleid.UUID); ok {
		return rf()
	}
	return ret.Get(0).(bleid.UUID)
}

// DiscoverCharacteristics implements platform.Service.
func (s *MockService) DiscoverCharacteristics() *future.Future[platform.CharacteristicsResult] {
	ret := s.Called()
	if rf, ok := ret.Get(0).(func() *future.Future[platform.CharacteristicsResult]); ok {
		return rf()
	}
	return ret.Get(0).(*future.Future[platform.CharacteristicsResult])
}

// MockCharacteristic is a programmable platform.Characteristic that records
// writes and lets tests push notifications through the registered callback.
type MockCharacteristic struct {
	mock.Mock

	uuid        bleid.UUID
	serviceUUID bleid.UUID
	props       platform.Property

	mu          sync.Mutex
	callback    func([]byte)
	callbackGen int
	revokes     int

	WriteStatus platform.Status
	WriteErr    error

	ReadData   []byte
	ReadStatus platform.Status

	CCCDStatus platform.Status
	CCCDErr    error

	RegisterErr error
}

// NewMockCharacteristic returns a characteristic double with default
// expectations covering the whole platform.Characteristic surface.
func NewMockCharacteristic(uuid, serviceUUID bleid.UUID, props platform.Property) *MockCharacteristic {
	c := &MockCharacteristic{uuid: uuid, serviceUUID: serviceUUID, props: props}

	c.On("UUID").Maybe().Return(func() bleid.UUID { return c.uuid })
	c.On("ServiceUUID").Maybe().Return(func() bleid.UUID { return c.serviceUUID })
	c.On("Properties").Maybe().Return(func() platform.Property { return c.props })
	c.On("ReadValue").Maybe().Return(func() *future.Future[platform.ReadResult] {
		c.mu.Lock()
		defer c.mu.Unlock()
		return future.Completed(platform.ReadResult{Status: c.ReadStatus, Data: c.ReadData}, nil)
	})
	c.On("WriteValue", mock.Anything).Maybe().Return(func(data []byte) *future.Future[platform.Status] {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.WriteErr != nil {
			return failed[platform.Status](c.WriteErr)
		}
		return future.Completed(c.WriteStatus, nil)
	})
	c.On("WriteCCCD", mock.Anything).Maybe().Return(func(value platform.CCCDValue) *future.Future[platform.Status] {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.CCCDErr != nil {
			return failed[platform.Status](c.CCCDErr)
		}
		return future.Completed(c.CCCDStatus, nil)
	})
	c.On("OnValueChanged", mock.Anything).Maybe().Return(func(fn func(data []byte)) (platform.Registration, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.RegisterErr != nil {
			return nil, c.RegisterErr
		}
		c.callback = fn
		c.callbackGen++
		return newMockRegistration(c, c.callbackGen), nil
	})
	return c
}

// UUID implements platform.Characteristic.
func (c *MockCharacteristic) UUID() bleid.UUID {
	ret := c.Called()
	if rf, ok := ret.Get(0).(func() bleid.UUID); ok {
		return rf()
	}
	return ret.Get(0).(bleid.UUID)
}

// ServiceUUID implements platform.Characteristic.
func (c *MockCharacteristic) ServiceUUID() bleid.UUID {
	ret := c.Called()
	if rf, ok := ret.Get(0).(func() bleid.UUID); ok {
		return rf()
	}
	return ret.Get(0).(bleid.UUID)
}

// Properties implements platform.Characteristic.
func (c *MockCharacteristic) Properties() platform.Property {
	ret := c.Called()
	if rf, ok := ret.Get(0).(func() platform.Property); ok {
		return rf()
	}
	return ret.Get(0).(platform.Property)
}

// ReadValue implements platform.Characteristic.
func (c *MockCharacteristic) ReadValue() *future.Future[platform.ReadResult] {
	ret := c.Called()
	if rf, ok := ret.Get(0).(func() *future.Future[platform.ReadResult]); ok {
		return rf()
	}
	return ret.Get(0).(*future.Future[platform.ReadResult])
}

// WriteValue implements platform.Characteristic.
func (c *MockCharacteristic) WriteValue(data []byte) *future.Future[platform.Status] {
	owned := make([]byte, len(data))
	copy(owned, data)
	ret := c.Called(owned)
	if rf, ok := ret.Get(0).(func([]byte) *future.Future[platform.Status]); ok {
		return rf(owned)
	}
	return ret.Get(0).(*future.Future[platform.Status])
}

// WriteCCCD implements platform.Characteristic.
func (c *MockCharacteristic) WriteCCCD(value platform.CCCDValue) *future.Future[platform.Status] {
	ret := c.Called(value)
	if rf, ok := ret.Get(0).(func(platform.CCCDValue) *future.Future[platform.Status]); ok {
		return rf(value)
	}
	return ret.Get(0).(*future.Future[platform.Status])
}

// OnValueChanged implements platform.Characteristic.
func (c *MockCharacteristic) OnValueChanged(fn func(data []byte)) (platform.Registration, error) {
	ret := c.Called(fn)
	if rf, ok := ret.Get(0).(func(func([]byte)) (platform.Registration, error)); ok {
		return rf(fn)
	}
	reg, _ := ret.Get(0).(platform.Registration)
	return reg, ret.Error(1)
}

// Writes returns every payload passed to WriteValue, in call order.
func (c *MockCharacteristic) Writes() [][]byte {
	var writes [][]byte
	for _, call := range c.Calls {
		if call.Method == "WriteValue" {
			writes = append(writes, call.Arguments.Get(0).([]byte))
		}
	}
	return writes
}

// CCCDWrites returns every descriptor value passed to WriteCCCD, in call
// order.
func (c *MockCharacteristic) CCCDWrites() []platform.CCCDValue {
	var values []platform.CCCDValue
	for _, call := range c.Calls {
		if call.Method == "WriteCCCD" {
			values = append(values, call.Arguments.Get(0).(platform.CCCDValue))
		}
	}
	return values
}

// RevokeCount returns how many times a registration for this characteristic
// was revoked.
func (c *MockCharacteristic) RevokeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.revokes
}

// EmitNotification pushes a value through the registered callback, the way
// the platform would from one of its own goroutines. No-op when nothing is
// registered.
func (c *MockCharacteristic) EmitNotification(data []byte) {
	c.mu.Lock()
	fn := c.callback
	c.mu.Unlock()
	if fn != nil {
		fn(data)
	}
}

// Subscribed reports whether a callback is currently registered.
func (c *MockCharacteristic) Subscribed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callback != nil
}

// MockRegistration is the revocable token handed out by OnValueChanged.
type MockRegistration struct {
	mock.Mock

	char *MockCharacteristic
	gen  int
}

func newMockRegistration(c *MockCharacteristic, gen int) *MockRegistration {
	r := &MockRegistration{char: c, gen: gen}

	// Drop the callback only when it is still the one this registration
	// installed, so revoking a replaced registration leaves its successor
	// intact.
	r.On("Revoke").Maybe().Return(func() error {
		r.char.mu.Lock()
		defer r.char.mu.Unlock()
		if r.char.callbackGen == r.gen {
			r.char.callback = nil
		}
		r.char.revokes++
		return nil
	})
	return r
}

// Revoke implements platform.Registration.
func (r *MockRegistration) Revoke() error {
	ret := r.Called()
	if rf, ok := ret.Get(0).(func() error); ok {
		return rf()
	}
	return ret.Error(0)
}

func mustUUID(s string) bleid.UUID {
	u, err := bleid.ParseUUID(s)
	if err != nil {
		panic(err)
	}
	return u
}
