package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/srg/blecentral/internal/platform"
	"github.com/srg/blecentral/internal/testutils"
	"github.com/srg/blecentral/session"
)

// notifyRecorder collects handler invocations for assertion.
type notifyRecorder struct {
	mu       sync.Mutex
	payloads [][]byte
	signal   chan struct{}
}

func newNotifyRecorder() *notifyRecorder {
	return &notifyRecorder{signal: make(chan struct{}, 64)}
}

func (r *notifyRecorder) handler(data []byte) {
	r.mu.Lock()
	r.payloads = append(r.payloads, data)
	r.mu.Unlock()
	r.signal <- struct{}{}
}

// waitFor blocks until n payloads arrived or the deadline passes.
func (r *notifyRecorder) waitFor(n int) [][]byte {
	deadline := time.After(2 * time.Second)
	for {
		r.mu.Lock()
		got := len(r.payloads)
		r.mu.Unlock()
		if got >= n {
			break
		}
		select {
		case <-r.signal:
		case <-deadline:
			r.mu.Lock()
			defer r.mu.Unlock()
			return r.payloads
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]byte, len(r.payloads))
	copy(out, r.payloads)
	return out
}

type DispatcherTestSuite struct {
	suite.Suite

	stack *testutils.MockStack
	p     *testutils.MockPeripheral
	sess  *session.Session
	ctx   context.Context
}

func (s *DispatcherTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.stack = testutils.NewMockStack()
	s.p = testutils.NewPeripheralBuilder().
		WithService("180d").
		WithCharacteristic("2a37", platform.PropertyNotify).
		WithCharacteristic("2a39", platform.PropertyWrite).
		Build()
	s.stack.AddPeripheral("", 0xAABBCCDDEEFF, s.p)

	var err error
	s.sess, err = session.Connect(s.ctx, s.stack, nil, "aabbccddeeff", nil, quietLogger())
	s.Require().NoError(err)
}

func (s *DispatcherTestSuite) TearDownTest() {
	s.sess.Disconnect()
}

func (s *DispatcherTestSuite) TestWriteThenNotifyStream() {
	s.Require().NoError(s.sess.Write(s.ctx, mustUUID(s.T(), "2a39"), []byte{0x01, 0x02}))
	s.Equal([][]byte{{0x01, 0x02}}, s.p.Characteristic("2a39").Writes())

	rec := newNotifyRecorder()
	sub, err := s.sess.Subscribe(s.ctx, mustUUID(s.T(), "2a37"), rec.handler)
	s.Require().NoError(err)
	s.Require().NotNil(sub)

	notify := s.p.Characteristic("2a37")
	notify.EmitNotification([]byte{0xAA})
	notify.EmitNotification([]byte{0xBB})

	s.Equal([][]byte{{0xAA}, {0xBB}}, rec.waitFor(2))
}

func (s *DispatcherTestSuite) TestNilHandlerIsSilentNoOp() {
	sub, err := s.sess.Subscribe(s.ctx, mustUUID(s.T(), "2a37"), nil)
	s.NoError(err)
	s.Nil(sub)

	// Nothing was resolved or written
	s.Empty(s.p.Characteristic("2a37").CCCDWrites())
	s.False(s.p.Characteristic("2a37").Subscribed())
}

func (s *DispatcherTestSuite) TestSubscribeUnknownCharacteristic() {
	rec := newNotifyRecorder()
	_, err := s.sess.Subscribe(s.ctx, mustUUID(s.T(), "2a99"), rec.handler)

	var notFound *session.NotFoundError
	s.ErrorAs(err, &notFound)
}

func (s *DispatcherTestSuite) TestDescriptorWritePrecedesRegistration() {
	notify := s.p.Characteristic("2a37")
	notify.CCCDStatus = platform.StatusAccessDenied

	rec := newNotifyRecorder()
	_, err := s.sess.Subscribe(s.ctx, mustUUID(s.T(), "2a37"), rec.handler)

	var statusErr *platform.StatusError
	s.Require().ErrorAs(err, &statusErr)
	s.Equal(platform.StatusAccessDenied, statusErr.Status)

	// The descriptor write was attempted but no callback got registered.
	s.Equal([]platform.CCCDValue{platform.CCCDNotify}, notify.CCCDWrites())
	s.False(notify.Subscribed())
}

func (s *DispatcherTestSuite) TestRegistrationFailureTearsDown() {
	notify := s.p.Characteristic("2a37")
	notify.RegisterErr = context.DeadlineExceeded

	rec := newNotifyRecorder()
	_, err := s.sess.Subscribe(s.ctx, mustUUID(s.T(), "2a37"), rec.handler)
	s.Error(err)
	s.False(notify.Subscribed())
}

func (s *DispatcherTestSuite) TestPayloadIsCopiedOutOfCallback() {
	rec := newNotifyRecorder()
	_, err := s.sess.Subscribe(s.ctx, mustUUID(s.T(), "2a37"), rec.handler)
	s.Require().NoError(err)

	buf := []byte{0xAA, 0xBB}
	s.p.Characteristic("2a37").EmitNotification(buf)
	buf[0] = 0xFF
	buf[1] = 0xFF

	s.Equal([][]byte{{0xAA, 0xBB}}, rec.waitFor(1))
}

func (s *DispatcherTestSuite) TestCancelRevokesAndStopsDelivery() {
	rec := newNotifyRecorder()
	sub, err := s.sess.Subscribe(s.ctx, mustUUID(s.T(), "2a37"), rec.handler)
	s.Require().NoError(err)

	notify := s.p.Characteristic("2a37")
	s.True(notify.Subscribed())

	s.Require().NoError(sub.Cancel())
	s.False(notify.Subscribed())
	s.Equal(1, notify.RevokeCount())

	// Idempotent
	s.Require().NoError(sub.Cancel())
	s.Equal(1, notify.RevokeCount())
}

func (s *DispatcherTestSuite) TestCancelWithSlowHandlerUnderBurst() {
	stack := testutils.NewMockStack()
	p := testutils.NewPeripheralBuilder().
		WithService("180d").
		WithCharacteristic("2a37", platform.PropertyNotify).
		Build()
	stack.AddPeripheral("", 0x112233445566, p)

	opts := session.DefaultOptions()
	opts.NotifyBuffer = 1
	sess, err := session.Connect(s.ctx, stack, nil, "112233445566", opts, quietLogger())
	s.Require().NoError(err)
	defer sess.Disconnect()

	release := make(chan struct{})
	entered := make(chan struct{}, 8)
	sub, err := sess.Subscribe(s.ctx, mustUUID(s.T(), "2a37"), func(data []byte) {
		entered <- struct{}{}
		<-release
	})
	s.Require().NoError(err)

	// The handler holds the first payload, the second fills the queue and
	// the third parks the platform callback mid-send.
	notify := p.Characteristic("2a37")
	emitted := make(chan struct{})
	go func() {
		defer close(emitted)
		for i := 0; i < 3; i++ {
			notify.EmitNotification([]byte{byte(i)})
		}
	}()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		s.FailNow("handler never ran")
	}
	time.Sleep(20 * time.Millisecond)

	cancelled := make(chan error, 1)
	go func() { cancelled <- sub.Cancel() }()
	close(release)

	select {
	case err := <-cancelled:
		s.NoError(err)
	case <-time.After(2 * time.Second):
		s.FailNow("cancel did not return")
	}
	select {
	case <-emitted:
	case <-time.After(2 * time.Second):
		s.FailNow("platform callback still parked after cancel")
	}
}

func (s *DispatcherTestSuite) TestResubscribeReplaces() {
	first := newNotifyRecorder()
	_, err := s.sess.Subscribe(s.ctx, mustUUID(s.T(), "2a37"), first.handler)
	s.Require().NoError(err)

	second := newNotifyRecorder()
	_, err = s.sess.Subscribe(s.ctx, mustUUID(s.T(), "2a37"), second.handler)
	s.Require().NoError(err)

	notify := s.p.Characteristic("2a37")
	s.True(notify.Subscribed())
	s.Equal(1, notify.RevokeCount())

	notify.EmitNotification([]byte{0xCC})
	s.Equal([][]byte{{0xCC}}, second.waitFor(1))

	first.mu.Lock()
	s.Empty(first.payloads)
	first.mu.Unlock()
}

func (s *DispatcherTestSuite) TestUnsubscribe() {
	rec := newNotifyRecorder()
	_, err := s.sess.Subscribe(s.ctx, mustUUID(s.T(), "2a37"), rec.handler)
	s.Require().NoError(err)

	s.Require().NoError(s.sess.Unsubscribe(mustUUID(s.T(), "2a37")))
	s.False(s.p.Characteristic("2a37").Subscribed())

	// Unknown or already-cancelled ids are fine
	s.NoError(s.sess.Unsubscribe(mustUUID(s.T(), "2a37")))
	s.NoError(s.sess.Unsubscribe(mustUUID(s.T(), "2a99")))
}

func (s *DispatcherTestSuite) TestDisconnectCancelsSubscriptions() {
	rec := newNotifyRecorder()
	_, err := s.sess.Subscribe(s.ctx, mustUUID(s.T(), "2a37"), rec.handler)
	s.Require().NoError(err)

	s.sess.Disconnect()

	notify := s.p.Characteristic("2a37")
	s.False(notify.Subscribed())
	s.Equal(1, notify.RevokeCount())
	s.True(s.p.Closed())
}

func (s *DispatcherTestSuite) TestSubscribeEncoded() {
	raw := make([]byte, 16)
	_, err := s.sess.SubscribeEncoded(s.ctx, raw[:4], newNotifyRecorder().handler)
	s.Error(err)

	sub, err := s.sess.SubscribeEncoded(s.ctx, raw[:4], nil)
	s.NoError(err)
	s.Nil(sub)
}

func TestDispatcherTestSuite(t *testing.T) {
	suite.Run(t, new(DispatcherTestSuite))
}
