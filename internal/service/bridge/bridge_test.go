package bridge

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dtn_chat/internal/cryptographic/encryption"
	"dtn_chat/internal/cryptographic/hashchain"
	"dtn_chat/internal/model"
	"dtn_chat/internal/protocol/bundle"
	"dtn_chat/internal/protocol/envelope"
	"dtn_chat/internal/protocol/revocation"
	"dtn_chat/internal/service/status"

	"github.com/stretchr/testify/require"
)

const (
	outboundStatus = "aa55"
	daysPassed     = 5
)

var (
	issued   = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	peerSeed = []byte{0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef}
)

type fakeSession struct {
	frames chan model.Frame
	closed chan struct{}

	closeOnce  sync.Once
	closeCount atomic.Int32

	sendErr error
	sent    chan model.ApplicationDataUnit

	mu     sync.Mutex
	events []string
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		frames: make(chan model.Frame, 16),
		closed: make(chan struct{}),
		sent:   make(chan model.ApplicationDataUnit, 16),
	}
}

func (s *fakeSession) record(event string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *fakeSession) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

func (s *fakeSession) Receive() (model.Frame, error) {
	select {
	case f, ok := <-s.frames:
		if !ok {
			return nil, model.ErrSessionClosed
		}
		s.record(fmt.Sprintf("recv %T", f))
		return f, nil
	case <-s.closed:
		return nil, model.ErrSessionClosed
	}
}

func (s *fakeSession) AckKeepalive() error {
	s.record("ack")
	return nil
}

func (s *fakeSession) SendADU(dst string, payload []byte, flags model.ADUFlags) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent <- model.ApplicationDataUnit{Source: dst, Flags: flags, Payload: payload}
	return nil
}

func (s *fakeSession) Close() error {
	s.closeCount.Add(1)
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

type fakeDialer struct {
	in, out *fakeSession
	err     map[bool]error

	mu     sync.Mutex
	opened []model.Session
}

func (d *fakeDialer) Open(_ context.Context, s model.Session) (Session, error) {
	d.mu.Lock()
	d.opened = append(d.opened, s)
	d.mu.Unlock()

	if err := d.err[s.Subscribe]; err != nil {
		return nil, err
	}
	if s.Subscribe {
		return d.in, nil
	}
	return d.out, nil
}

type fakeLive struct {
	in        chan string
	delivered chan string
	closed    chan struct{}

	closeOnce  sync.Once
	closeCount atomic.Int32
}

func newFakeLive() *fakeLive {
	return &fakeLive{
		in:        make(chan string, 16),
		delivered: make(chan string, 16),
		closed:    make(chan struct{}),
	}
}

func (l *fakeLive) Send(_ context.Context, text string) error {
	select {
	case <-l.closed:
		return ErrLiveClosed
	default:
	}
	l.delivered <- text
	return nil
}

func (l *fakeLive) Receive(ctx context.Context) (string, error) {
	select {
	case text, ok := <-l.in:
		if !ok {
			return "", ErrLiveClosed
		}
		return text, nil
	case <-l.closed:
		return "", ErrLiveClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (l *fakeLive) Close() error {
	l.closeCount.Add(1)
	l.closeOnce.Do(func() { close(l.closed) })
	return nil
}

func (l *fakeLive) Delivered() []string {
	var out []string
	for {
		select {
		case line := <-l.delivered:
			out = append(out, line)
		default:
			return out
		}
	}
}

type harness struct {
	bridge *Bridge
	dialer *fakeDialer
	in     *fakeSession
	out    *fakeSession
	live   *fakeLive
	codec  *envelope.Codec
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()

	cipher, err := encryption.NewMessageCipher([]byte("0123456789abcdef"))
	require.NoError(t, err)
	codec := envelope.NewCodec(cipher)

	provider, err := status.NewStatic(outboundStatus)
	require.NoError(t, err)

	cfg := Config{
		LocalName: "Alice",
		Peer:      model.NewPeerIdentity("Alice", "Bob", issued, hashchain.Chain(peerSeed, daysPassed)),
		Address:   "/tmp/ud3tn.socket",
		Secret:    "secret",
	}
	if mutate != nil {
		mutate(&cfg)
	}

	h := &harness{
		in:    newFakeSession(),
		out:   newFakeSession(),
		live:  newFakeLive(),
		codec: codec,
	}
	h.dialer = &fakeDialer{in: h.in, out: h.out}
	verifier := revocation.NewVerifier(revocation.FixedClock{At: issued.AddDate(0, 0, daysPassed)})
	h.bridge = New(cfg, h.dialer, codec, verifier, provider)
	return h
}

func (h *harness) envelope(t *testing.T, text string, seed []byte) []byte {
	t.Helper()
	data, err := h.codec.Encode(text, hex.EncodeToString(seed))
	require.NoError(t, err)
	return data
}

func (h *harness) adu(t *testing.T, text string) model.ApplicationDataUnit {
	return model.ApplicationDataUnit{
		Source:  "dtn://bob.dtn/bobalice",
		Flags:   model.FlagNormal,
		Payload: h.envelope(t, text, peerSeed),
	}
}

func (h *harness) start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- h.bridge.Run(context.Background(), h.live)
	}()
	return errCh
}

func wait(t *testing.T, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not stop")
		return nil
	}
}

func (h *harness) requireReleased(t *testing.T) {
	t.Helper()
	require.Equal(t, int32(1), h.in.closeCount.Load())
	require.Equal(t, int32(1), h.out.closeCount.Load())
	require.GreaterOrEqual(t, h.live.closeCount.Load(), int32(1))
}

func TestIngressDeliversVerifiedMessage(t *testing.T) {
	h := newHarness(t, nil)
	h.in.frames <- h.adu(t, "hi")
	close(h.in.frames)

	require.NoError(t, wait(t, h.start()))
	require.Equal(t, []string{SystemNotice, "Bob: hi"}, h.live.Delivered())
	h.requireReleased(t)
}

func TestIngressEncapsulatedBundle(t *testing.T) {
	h := newHarness(t, nil)

	b, err := bundle.New("dtn://bob.dtn/bobalice", "dtn://alice.dtn/alicebob", h.envelope(t, "wrapped", peerSeed), time.Hour)
	require.NoError(t, err)
	container, err := bundle.Encapsulate(b, 1)
	require.NoError(t, err)

	h.in.frames <- model.ApplicationDataUnit{Source: "dtn://bob.dtn/", Flags: model.FlagEncapsulatedBundle, Payload: container}
	close(h.in.frames)

	require.NoError(t, wait(t, h.start()))
	require.Equal(t, []string{SystemNotice, "Bob: wrapped"}, h.live.Delivered())
}

func TestIngressAbortsOnRevocationMismatch(t *testing.T) {
	h := newHarness(t, nil)

	tampered := append([]byte(nil), peerSeed...)
	tampered[3] ^= 0x10 // one nibble
	h.in.frames <- model.ApplicationDataUnit{Flags: model.FlagNormal, Payload: h.envelope(t, "evil", tampered)}
	h.in.frames <- h.adu(t, "after")

	err := wait(t, h.start())
	require.ErrorIs(t, err, ErrRevocationMismatch)
	require.Equal(t, 3, ExitCode(err))
	require.Equal(t, []string{SystemNotice}, h.live.Delivered())
	h.requireReleased(t)
}

func TestIngressClockSkew(t *testing.T) {
	for skew, ok := range map[int]bool{-2: false, -1: true, 0: true, 1: true, 2: false} {
		h := newHarness(t, nil)
		h.bridge.verifier = revocation.NewVerifier(revocation.FixedClock{At: issued.AddDate(0, 0, daysPassed+skew)})
		h.in.frames <- h.adu(t, "skewed")
		close(h.in.frames)

		err := wait(t, h.start())
		if ok {
			require.NoError(t, err, "skew=%d", skew)
			require.Equal(t, []string{SystemNotice, "Bob: skewed"}, h.live.Delivered())
		} else {
			require.ErrorIs(t, err, ErrRevocationMismatch, "skew=%d", skew)
			require.Equal(t, []string{SystemNotice}, h.live.Delivered())
		}
	}
}

func TestKeepaliveDoesNotCountTowardsLimit(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.MaxMessages = 2 })

	h.in.frames <- model.Keepalive{}
	h.in.frames <- h.adu(t, "one")
	h.in.frames <- model.Keepalive{}
	h.in.frames <- model.Unknown{Field: "response"}
	h.in.frames <- h.adu(t, "two")
	h.in.frames <- h.adu(t, "three")

	require.NoError(t, wait(t, h.start()))
	require.Equal(t, []string{SystemNotice, "Bob: one", "Bob: two"}, h.live.Delivered())
	require.Equal(t, []string{
		"recv model.Keepalive",
		"ack",
		"recv model.ApplicationDataUnit",
		"recv model.Keepalive",
		"ack",
		"recv model.Unknown",
		"recv model.ApplicationDataUnit",
	}, h.in.Events())
	h.requireReleased(t)
}

func TestIngressDropsBadMessages(t *testing.T) {
	h := newHarness(t, nil)

	otherCipher, err := encryption.NewMessageCipher([]byte("another key"))
	require.NoError(t, err)
	wrongKey, err := envelope.NewCodec(otherCipher).Encode("unreadable", hex.EncodeToString(peerSeed))
	require.NoError(t, err)

	h.in.frames <- model.ApplicationDataUnit{Flags: model.FlagNormal, Payload: []byte("not json")}
	h.in.frames <- model.ApplicationDataUnit{Flags: model.FlagNormal, Payload: []byte(`{"message":"x"}`)}
	h.in.frames <- model.ApplicationDataUnit{Flags: model.FlagEncapsulatedBundle, Payload: []byte{0x83, 0x01}}
	h.in.frames <- model.ApplicationDataUnit{Flags: model.FlagNormal, Payload: wrongKey}
	h.in.frames <- h.adu(t, "survived")
	close(h.in.frames)

	require.NoError(t, wait(t, h.start()))
	require.Equal(t, []string{SystemNotice, "Bob: survived"}, h.live.Delivered())
}

func TestStrictBundles(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.StrictBundles = true })
	h.in.frames <- model.ApplicationDataUnit{Flags: model.FlagEncapsulatedBundle, Payload: []byte("junk")}

	err := wait(t, h.start())
	require.ErrorIs(t, err, bundle.ErrMalformedBundle)
	h.requireReleased(t)
}

func TestExpectedPayload(t *testing.T) {
	h := newHarness(t, nil)
	payload := h.envelope(t, "exact", peerSeed)
	h.bridge.cfg.ExpectedPayload = payload

	h.in.frames <- model.ApplicationDataUnit{Flags: model.FlagNormal, Payload: payload}
	h.in.frames <- h.adu(t, "exact")

	err := wait(t, h.start())
	require.ErrorIs(t, err, ErrUnexpectedPayload)
	require.Equal(t, 1, ExitCode(err))
	require.Equal(t, []string{SystemNotice, "Bob: exact"}, h.live.Delivered())
}

func TestEgressSendsEnvelope(t *testing.T) {
	h := newHarness(t, nil)
	errCh := h.start()

	h.live.in <- "hello bob"
	var adu model.ApplicationDataUnit
	select {
	case adu = <-h.out.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("nothing sent")
	}
	close(h.live.in)
	require.NoError(t, wait(t, errCh))

	require.Equal(t, "dtn://bob.dtn/bobalice", adu.Source)
	require.Equal(t, model.FlagNormal, adu.Flags)

	env, err := h.codec.Decode(adu.Payload)
	require.NoError(t, err)
	require.Equal(t, outboundStatus, env.RevocationStatus)
	text, err := h.codec.Decrypt(env)
	require.NoError(t, err)
	require.Equal(t, "hello bob", text)

	h.requireReleased(t)
}

func TestSessionConfiguration(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.BDMAuth = true
		c.KeepaliveSeconds = 10
	})
	close(h.in.frames)
	require.NoError(t, wait(t, h.start()))

	require.Len(t, h.dialer.opened, 2)
	in, out := h.dialer.opened[0], h.dialer.opened[1]
	require.Equal(t, model.Session{
		AgentID:          "alicebob",
		Address:          "/tmp/ud3tn.socket",
		Secret:           "secret",
		KeepaliveSeconds: 10,
		Subscribe:        true,
		AuthType:         model.AuthTypeDefault,
	}, in)
	require.False(t, out.Subscribe)
	require.Equal(t, model.AuthTypeBundleDispatch, out.AuthType)
	require.Equal(t, model.FlagNormal|model.FlagRequiresAuth, h.bridge.cfg.outboundFlags())
}

func TestEgressSendFailureStopsBridge(t *testing.T) {
	h := newHarness(t, nil)
	h.out.sendErr = fmt.Errorf("%w: agent responded failure", model.ErrSendFailed)
	h.live.in <- "doomed"

	err := wait(t, h.start())
	require.ErrorIs(t, err, model.ErrSendFailed)
	h.requireReleased(t)
}

func TestLiveCloseCancelsIngress(t *testing.T) {
	h := newHarness(t, nil)
	errCh := h.start()

	select {
	case line := <-h.live.delivered:
		require.Equal(t, SystemNotice, line)
	case <-time.After(2 * time.Second):
		t.Fatal("no notice")
	}

	// ingress is blocked in Receive with nothing to read
	require.NoError(t, h.live.Close())
	require.NoError(t, wait(t, errCh))
	h.requireReleased(t)
}

func TestContextCancelStopsBridge(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- h.bridge.Run(ctx, h.live)
	}()

	<-h.live.delivered
	cancel()
	require.NoError(t, wait(t, errCh))
	h.requireReleased(t)
}

func TestSessionRejected(t *testing.T) {
	rejected := fmt.Errorf("%w: unauthorized", model.ErrSessionRejected)

	h := newHarness(t, nil)
	h.dialer.err = map[bool]error{true: rejected}
	err := wait(t, h.start())
	require.ErrorIs(t, err, model.ErrSessionRejected)
	require.Equal(t, 2, ExitCode(err))
	require.Zero(t, h.in.closeCount.Load())

	h = newHarness(t, nil)
	h.dialer.err = map[bool]error{false: rejected}
	err = wait(t, h.start())
	require.ErrorIs(t, err, model.ErrSessionRejected)
	require.Equal(t, int32(1), h.in.closeCount.Load())
	require.Empty(t, h.live.Delivered())
}

func TestFormatLine(t *testing.T) {
	require.Equal(t, "Bob: hi", FormatLine("Alice", "Bob", "hi"))
	require.Equal(t, "Bo: x      ", FormatLine("Alexander", "Bo", "x"))
}

func TestExitCode(t *testing.T) {
	require.Equal(t, 0, ExitCode(nil))
	require.Equal(t, 1, ExitCode(errors.New("boom")))
}
