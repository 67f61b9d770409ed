package session_test

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/srg/blecentral/internal/bleid"
	"github.com/srg/blecentral/internal/platform"
	"github.com/srg/blecentral/internal/testutils"
	"github.com/srg/blecentral/session"
	"github.com/srg/blecentral/watcher"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func mustUUID(t *testing.T, s string) bleid.UUID {
	t.Helper()
	u, err := bleid.ParseUUID(s)
	require.NoError(t, err)
	return u
}

type SessionTestSuite struct {
	suite.Suite

	stack *testutils.MockStack
	ctx   context.Context
}

func (s *SessionTestSuite) SetupTest() {
	s.stack = testutils.NewMockStack()
	s.ctx = context.Background()
}

func (s *SessionTestSuite) connect(address string) *session.Session {
	sess, err := session.Connect(s.ctx, s.stack, nil, address, nil, quietLogger())
	s.Require().NoError(err)
	return sess
}

func (s *SessionTestSuite) TestConnectRejectsMalformedAddress() {
	for _, addr := range []string{"", "xx:yy:zz:00:11:22", "1122334455667788"} {
		_, err := session.Connect(s.ctx, s.stack, nil, addr, nil, quietLogger())
		s.Error(err, "address %q", addr)
	}
	s.Empty(s.stack.OpenedIDs())
	s.Empty(s.stack.OpenedAddrs())
}

func (s *SessionTestSuite) TestConnectByRawAddress() {
	p := testutils.NewPeripheralBuilder().
		WithService("180d").
		WithCharacteristic("2a37", platform.PropertyNotify).
		Build()
	s.stack.AddPeripheral("", 0xAABBCCDDEEFF, p)

	sess := s.connect("AA:BB:CC:DD:EE:FF")
	defer sess.Disconnect()

	s.Empty(s.stack.OpenedIDs())
	s.Equal([]bleid.Address{0xAABBCCDDEEFF}, s.stack.OpenedAddrs())
	s.Equal(bleid.Address(0xAABBCCDDEEFF), sess.Address())
	s.True(sess.IsConnected())
}

func (s *SessionTestSuite) TestConnectPrefersWatcherTablePath() {
	p := testutils.NewPeripheralBuilder().
		WithService("180f").
		WithCharacteristic("2a19", platform.PropertyRead).
		Build()
	s.stack.AddPeripheral("ep#42", 0, p)

	w, err := watcher.New(s.stack, nil, quietLogger())
	s.Require().NoError(err)
	s.Require().NoError(w.Start())
	s.stack.Watcher.EmitAdded(platform.DeviceInfo{ID: "ep#42", Address: "AA:BB:CC:DD:EE:FF"})

	sess, err := session.Connect(s.ctx, s.stack, w, "aabbccddeeff", nil, quietLogger())
	s.Require().NoError(err)
	defer sess.Disconnect()

	s.Equal([]string{"ep#42"}, s.stack.OpenedIDs())
	s.Empty(s.stack.OpenedAddrs())
}

func (s *SessionTestSuite) TestConnectFallsBackWhenAddressNotInTable() {
	p := testutils.NewPeripheralBuilder().WithService("180d").Build()
	s.stack.AddPeripheral("", 0x112233445566, p)

	w, err := watcher.New(s.stack, nil, quietLogger())
	s.Require().NoError(err)
	s.Require().NoError(w.Start())

	sess, err := session.Connect(s.ctx, s.stack, w, "11:22:33:44:55:66", nil, quietLogger())
	s.Require().NoError(err)
	defer sess.Disconnect()

	s.Empty(s.stack.OpenedIDs())
	s.Equal([]bleid.Address{0x112233445566}, s.stack.OpenedAddrs())
}

func (s *SessionTestSuite) TestDiscoveryCachesEveryCharacteristicInOrder() {
	p := testutils.NewPeripheralBuilder().
		WithService("180d").
		WithCharacteristic("2a37", platform.PropertyNotify).
		WithCharacteristic("2a38", platform.PropertyRead).
		WithService("180f").
		WithCharacteristic("2a19", platform.PropertyRead|platform.PropertyNotify).
		Build()
	s.stack.AddPeripheral("", 0xAABBCCDDEEFF, p)

	sess := s.connect("aabbccddeeff")
	defer sess.Disconnect()

	chars := sess.Characteristics()
	s.Require().Len(chars, 3)
	s.Equal("2a37", chars[0].UUID().Short())
	s.Equal("2a38", chars[1].UUID().Short())
	s.Equal("2a19", chars[2].UUID().Short())
	s.Equal(mustUUID(s.T(), "180f"), chars[2].ServiceUUID())
	s.True(chars[2].Properties().Has(platform.PropertyNotify))
	s.Equal("Heart Rate Measurement", chars[0].KnownName())
}

func (s *SessionTestSuite) TestServiceDiscoveryFailureAbortsConnect() {
	p := testutils.NewPeripheralBuilder().
		WithService("180d").
		WithDiscoveryStatus(platform.StatusUnreachable).
		Build()
	s.stack.AddPeripheral("", 0xAABBCCDDEEFF, p)

	_, err := session.Connect(s.ctx, s.stack, nil, "aabbccddeeff", nil, quietLogger())
	s.Require().Error(err)
	s.ErrorIs(err, session.ErrDiscoveryIncomplete)

	var statusErr *platform.StatusError
	s.ErrorAs(err, &statusErr)
	s.Equal(platform.StatusUnreachable, statusErr.Status)

	// No half-populated session survives; the handle is released.
	s.True(p.Closed())
}

func (s *SessionTestSuite) TestCharacteristicDiscoveryFailureAbortsConnect() {
	p := testutils.NewPeripheralBuilder().
		WithService("180d").
		WithCharacteristic("2a37", platform.PropertyNotify).
		WithService("180f").
		WithServiceStatus(platform.StatusProtocolError).
		Build()
	s.stack.AddPeripheral("", 0xAABBCCDDEEFF, p)

	_, err := session.Connect(s.ctx, s.stack, nil, "aabbccddeeff", nil, quietLogger())
	s.Require().Error(err)
	s.ErrorIs(err, session.ErrDiscoveryIncomplete)
	s.True(p.Closed())
}

func (s *SessionTestSuite) TestDuplicateUUIDFirstDiscoveryWins() {
	p := testutils.NewPeripheralBuilder().
		WithService("180d").
		WithCharacteristic("2a37", platform.PropertyNotify).
		WithService("180f").
		WithCharacteristic("2a37", platform.PropertyRead).
		Build()
	s.stack.AddPeripheral("", 0xAABBCCDDEEFF, p)

	sess := s.connect("aabbccddeeff")
	defer sess.Disconnect()

	c, err := sess.Characteristic(mustUUID(s.T(), "2a37"))
	s.Require().NoError(err)
	s.Equal(mustUUID(s.T(), "180d"), c.ServiceUUID())
	s.Len(sess.Characteristics(), 1)
}

func (s *SessionTestSuite) TestCharacteristicLookupMiss() {
	p := testutils.NewPeripheralBuilder().WithService("180d").Build()
	s.stack.AddPeripheral("", 0xAABBCCDDEEFF, p)

	sess := s.connect("aabbccddeeff")
	defer sess.Disconnect()

	_, err := sess.Characteristic(mustUUID(s.T(), "2a37"))
	var notFound *session.NotFoundError
	s.ErrorAs(err, &notFound)
	s.Equal("characteristic", notFound.Resource)
}

func (s *SessionTestSuite) TestWrite() {
	p := testutils.NewPeripheralBuilder().
		WithService("180d").
		WithCharacteristic("2a39", platform.PropertyWrite).
		Build()
	s.stack.AddPeripheral("", 0xAABBCCDDEEFF, p)

	sess := s.connect("aabbccddeeff")
	defer sess.Disconnect()

	err := sess.Write(s.ctx, mustUUID(s.T(), "2a39"), []byte{0x01, 0x02})
	s.Require().NoError(err)

	writes := p.Characteristic("2a39").Writes()
	s.Require().Len(writes, 1)
	s.Equal([]byte{0x01, 0x02}, writes[0])
}

func (s *SessionTestSuite) TestWriteUnknownIDNeverTouchesPlatform() {
	p := testutils.NewPeripheralBuilder().
		WithService("180d").
		WithCharacteristic("2a39", platform.PropertyWrite).
		Build()
	s.stack.AddPeripheral("", 0xAABBCCDDEEFF, p)

	sess := s.connect("aabbccddeeff")
	defer sess.Disconnect()

	err := sess.Write(s.ctx, mustUUID(s.T(), "2a40"), []byte{0xFF})
	var notFound *session.NotFoundError
	s.ErrorAs(err, &notFound)
	s.Empty(p.Characteristic("2a39").Writes())
}

func (s *SessionTestSuite) TestWriteStatusErrorNamesCode() {
	p := testutils.NewPeripheralBuilder().
		WithService("180d").
		WithCharacteristic("2a39", platform.PropertyWrite).
		Build()
	p.Characteristic("2a39").WriteStatus = platform.StatusAccessDenied
	s.stack.AddPeripheral("", 0xAABBCCDDEEFF, p)

	sess := s.connect("aabbccddeeff")
	defer sess.Disconnect()

	err := sess.Write(s.ctx, mustUUID(s.T(), "2a39"), []byte{0x01})
	var statusErr *platform.StatusError
	s.Require().ErrorAs(err, &statusErr)
	s.Equal(platform.StatusAccessDenied, statusErr.Status)
}

func (s *SessionTestSuite) TestWriteEncoded() {
	p := testutils.NewPeripheralBuilder().
		WithService("180d").
		WithCharacteristic("2a39", platform.PropertyWrite).
		Build()
	s.stack.AddPeripheral("", 0xAABBCCDDEEFF, p)

	sess := s.connect("aabbccddeeff")
	defer sess.Disconnect()

	raw := bleid.EncodeUUID(mustUUID(s.T(), "2a39"))
	s.Require().NoError(sess.WriteEncoded(s.ctx, raw, []byte{0x05}))
	s.Len(p.Characteristic("2a39").Writes(), 1)

	s.Error(sess.WriteEncoded(s.ctx, []byte{0x00}, []byte{0x05}))
}

func (s *SessionTestSuite) TestRead() {
	p := testutils.NewPeripheralBuilder().
		WithService("180f").
		WithCharacteristic("2a19", platform.PropertyRead).
		Build()
	p.Characteristic("2a19").ReadData = []byte{0x63}
	s.stack.AddPeripheral("", 0xAABBCCDDEEFF, p)

	sess := s.connect("aabbccddeeff")
	defer sess.Disconnect()

	data, err := sess.Read(s.ctx, mustUUID(s.T(), "2a19"))
	s.Require().NoError(err)
	s.Equal([]byte{0x63}, data)
}

func (s *SessionTestSuite) TestWriteAfterDisconnect() {
	p := testutils.NewPeripheralBuilder().
		WithService("180d").
		WithCharacteristic("2a39", platform.PropertyWrite).
		Build()
	s.stack.AddPeripheral("", 0xAABBCCDDEEFF, p)

	sess := s.connect("aabbccddeeff")
	sess.Disconnect()

	err := sess.Write(s.ctx, mustUUID(s.T(), "2a39"), []byte{0x01})
	s.ErrorIs(err, session.ErrNotConnected)
}

func (s *SessionTestSuite) TestDisconnectIsIdempotent() {
	p := testutils.NewPeripheralBuilder().WithService("180d").Build()
	s.stack.AddPeripheral("", 0xAABBCCDDEEFF, p)

	sess := s.connect("aabbccddeeff")
	sess.Disconnect()
	sess.Disconnect()

	s.Equal(1, p.CloseCount())
	s.False(sess.IsConnected())
}

func TestSessionTestSuite(t *testing.T) {
	suite.Run(t, new(SessionTestSuite))
}

func TestIsConnectionState(t *testing.T) {
	err := &session.ConnectionError{State: session.NotConnected, Msg: "boom"}
	assert.True(t, session.IsConnectionState(err, session.NotConnected))
	assert.False(t, session.IsConnectionState(err, session.ConnectionState("connecting")))
	assert.False(t, session.IsConnectionState(assert.AnError, session.NotConnected))
	assert.ErrorIs(t, err, session.ErrNotConnected)
}
