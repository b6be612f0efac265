// Package bridge relays chat messages between a live text channel and the
// forwarding agent. Each Bridge serves exactly one peer pairing.
package bridge

import (
	"context"
	"dtn_chat/internal/metrics"
	"dtn_chat/internal/model"
	"dtn_chat/internal/protocol/envelope"
	"dtn_chat/internal/protocol/revocation"
	"dtn_chat/internal/service/status"
	"dtn_chat/internal/utils/log"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const SystemNotice = "[SYSTEM] Connection initiated."

type (
	// Session is one configured connection to the forwarding agent.
	Session interface {
		Receive() (model.Frame, error)
		AckKeepalive() error
		SendADU(dst string, payload []byte, flags model.ADUFlags) error
		Close() error
	}

	Dialer interface {
		Open(ctx context.Context, s model.Session) (Session, error)
	}

	DialFunc func(ctx context.Context, s model.Session) (Session, error)

	// LiveChannel is the user facing side of the bridge. Close must be safe
	// to call more than once, and Send and Receive return ErrLiveClosed
	// once the channel is gone.
	LiveChannel interface {
		Send(ctx context.Context, text string) error
		Receive(ctx context.Context) (string, error)
		Close() error
	}

	Config struct {
		LocalName        string
		Peer             model.PeerIdentity
		Address          string
		Secret           string
		KeepaliveSeconds int
		// BDMAuth sends outbound ADUs through the bundle dispatcher's
		// authorization.
		BDMAuth bool

		// MaxMessages stops ingress after that many ADUs. Zero means no limit.
		MaxMessages int
		// ExpectedPayload, when set, makes any other inbound payload fatal.
		ExpectedPayload []byte
		// StrictBundles makes a malformed encapsulated bundle fatal instead
		// of dropping it.
		StrictBundles bool
	}

	Bridge struct {
		cfg      Config
		dialer   Dialer
		codec    *envelope.Codec
		verifier *revocation.Verifier
		status   status.Provider
	}

	// ownedSession releases the underlying session exactly once.
	ownedSession struct {
		Session
		once sync.Once
		err  error
	}
)

func (f DialFunc) Open(ctx context.Context, s model.Session) (Session, error) {
	return f(ctx, s)
}

func (c Config) AgentID() string {
	return model.AgentID(c.LocalName, c.Peer.DisplayName)
}

func (c Config) ingressSession() model.Session {
	return model.Session{
		AgentID:          c.AgentID(),
		Address:          c.Address,
		Secret:           c.Secret,
		KeepaliveSeconds: c.KeepaliveSeconds,
		Subscribe:        true,
		AuthType:         model.AuthTypeDefault,
	}
}

func (c Config) egressSession() model.Session {
	s := model.Session{
		AgentID: c.AgentID(),
		Address: c.Address,
		Secret:  c.Secret,
	}
	if c.BDMAuth {
		s.AuthType = model.AuthTypeBundleDispatch
	}
	return s
}

func (c Config) outboundFlags() model.ADUFlags {
	if c.BDMAuth {
		return model.FlagNormal | model.FlagRequiresAuth
	}
	return model.FlagNormal
}

func New(cfg Config, dialer Dialer, codec *envelope.Codec, verifier *revocation.Verifier, status status.Provider) *Bridge {
	return &Bridge{
		cfg:      cfg,
		dialer:   dialer,
		codec:    codec,
		verifier: verifier,
		status:   status,
	}
}

func (b *Bridge) Config() Config {
	return b.cfg
}

// Run bridges live until either direction stops. It opens a subscribed
// session for ingress and a separate one for egress, and releases both and
// the live channel before returning.
func (b *Bridge) Run(ctx context.Context, live LiveChannel) error {
	metrics.BridgeStarted()
	defer metrics.BridgeStopped()
	defer live.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	in, err := b.open(ctx, b.cfg.ingressSession())
	if err != nil {
		return fmt.Errorf("open ingress session: %w", err)
	}
	defer in.Close()

	out, err := b.open(ctx, b.cfg.egressSession())
	if err != nil {
		return fmt.Errorf("open egress session: %w", err)
	}
	defer out.Close()

	log.Info("bridge started",
		zap.String("agent_id", b.cfg.AgentID()),
		zap.String("peer", b.cfg.Peer.DisplayName),
		zap.String("destination", b.cfg.Peer.Destination()))

	if err := live.Send(ctx, SystemNotice); err != nil {
		return fmt.Errorf("send notice: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return b.ingress(gctx, in, live)
	})
	g.Go(func() error {
		defer cancel()
		return b.egress(gctx, out, live)
	})

	// Blocking calls on either side only return once their resource is
	// closed.
	go func() {
		<-gctx.Done()
		in.Close()
		out.Close()
		live.Close()
	}()

	err = g.Wait()
	if err != nil {
		log.Error("bridge stopped", zap.Error(err))
	} else {
		log.Info("bridge stopped")
	}
	return err
}

func (b *Bridge) open(ctx context.Context, s model.Session) (*ownedSession, error) {
	session, err := b.dialer.Open(ctx, s)
	if err != nil {
		return nil, err
	}
	return &ownedSession{Session: session}, nil
}

func (s *ownedSession) Close() error {
	s.once.Do(func() {
		s.err = s.Session.Close()
	})
	return s.err
}
