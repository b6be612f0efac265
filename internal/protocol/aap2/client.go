// Package aap2 is a client for the application agent protocol spoken by the
// local bundle forwarding agent.
package aap2

import (
	"context"
	"dtn_chat/internal/model"
	"dtn_chat/internal/utils/log"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

type (
	// Client owns one connection to the forwarding agent.
	Client struct {
		conn    net.Conn
		nodeID  string
		agentID string

		writeMu sync.Mutex

		closeOnce sync.Once
		closeErr  error
	}
)

// ParseAddress maps a session address to a dial network and address.
// Accepted forms are unix://path, tcp://host:port, host:port and a bare
// socket path.
func ParseAddress(addr string) (network, address string) {
	switch {
	case strings.HasPrefix(addr, "unix://"):
		return "unix", strings.TrimPrefix(addr, "unix://")
	case strings.HasPrefix(addr, "tcp://"):
		return "tcp", strings.TrimPrefix(addr, "tcp://")
	case !strings.Contains(addr, "/"):
		if _, _, err := net.SplitHostPort(addr); err == nil {
			return "tcp", addr
		}
	}
	return "unix", addr
}

// Open dials the agent and configures the session. The connection is closed
// again if any step fails.
func Open(ctx context.Context, s model.Session) (*Client, error) {
	network, address := ParseAddress(s.Address)

	var d net.Dialer
	conn, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("dial %s %s: %w", network, address, err)
	}

	c := NewClient(conn)
	if err := c.Configure(ctx, s); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func NewClient(conn net.Conn) *Client {
	return &Client{conn: conn}
}

func (c *Client) NodeID() string {
	return c.nodeID
}

// Configure reads the agent's welcome, sends the connection config and waits
// for the agent to accept it.
func (c *Client) Configure(ctx context.Context, s model.Session) error {
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetDeadline(time.Now())
	})
	defer stop()

	welcome, err := ReadMessage(c.conn)
	if err != nil {
		return fmt.Errorf("read welcome: %w", err)
	}
	if welcome.Welcome == nil {
		return fmt.Errorf("expected welcome, got %s", welcome.field())
	}
	c.nodeID = welcome.Welcome.NodeID

	err = c.writeMessage(&Message{Config: &ConnectionConfig{
		IsSubscriber:     s.Subscribe,
		EndpointID:       s.AgentID,
		Secret:           s.Secret,
		AuthType:         s.AuthType,
		KeepaliveSeconds: uint32(s.KeepaliveSeconds),
	}})
	if err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	resp, err := ReadMessage(c.conn)
	if err != nil {
		return fmt.Errorf("read config response: %w", err)
	}
	if resp.Response == nil {
		return fmt.Errorf("%w: expected response, got %s", model.ErrSessionRejected, resp.field())
	}
	if resp.Response.Status != StatusSuccess {
		return fmt.Errorf("%w: agent id %q: %s", model.ErrSessionRejected, s.AgentID, resp.Response.Status)
	}

	if ctx.Err() == nil {
		c.conn.SetDeadline(time.Time{})
	}
	c.agentID = s.AgentID
	log.Debug("aap2 session configured",
		zap.String("node_id", c.nodeID),
		zap.String("agent_id", s.AgentID),
		zap.Bool("subscribe", s.Subscribe))
	return nil
}

// Receive blocks for the next frame. Every ADU is acknowledged to the agent
// before it is returned; keepalives are left to AckKeepalive. Once the
// connection is gone Receive returns model.ErrSessionClosed.
func (c *Client) Receive() (model.Frame, error) {
	blob, err := ReadFrame(c.conn)
	if err != nil {
		return nil, c.transportError(err)
	}

	msg, err := DecodeMessage(blob)
	if err != nil {
		log.Warn("undecodable message from agent", zap.Error(err))
		return model.Unknown{Field: "undecodable"}, nil
	}

	switch {
	case msg.Keepalive != nil:
		return model.Keepalive{}, nil
	case msg.ADU != nil:
		if err := c.respond(StatusSuccess); err != nil {
			return nil, c.transportError(err)
		}
		return model.ApplicationDataUnit{
			Source:  msg.ADU.SrcEID,
			Flags:   decodeFlags(msg.ADU.Flags),
			Payload: msg.ADU.Payload,
		}, nil
	}
	return model.Unknown{Field: msg.field()}, nil
}

func (c *Client) AckKeepalive() error {
	if err := c.respond(StatusAck); err != nil {
		return c.transportError(err)
	}
	return nil
}

// SendADU sends payload to dst and waits for the agent's verdict. Only a
// success response counts as sent.
func (c *Client) SendADU(dst string, payload []byte, flags model.ADUFlags) error {
	err := c.writeMessage(&Message{ADU: &BundleADU{
		DstEID:        dst,
		PayloadLength: uint64(len(payload)),
		Flags:         encodeFlags(flags),
		Payload:       payload,
	}})
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrSendFailed, c.transportError(err))
	}

	for {
		msg, err := ReadMessage(c.conn)
		if err != nil {
			return fmt.Errorf("%w: %w", model.ErrSendFailed, c.transportError(err))
		}

		switch {
		case msg.Keepalive != nil:
			if err := c.AckKeepalive(); err != nil {
				return fmt.Errorf("%w: %w", model.ErrSendFailed, err)
			}
		case msg.Response != nil:
			if msg.Response.Status != StatusSuccess {
				return fmt.Errorf("%w: agent responded %s", model.ErrSendFailed, msg.Response.Status)
			}
			return nil
		default:
			return fmt.Errorf("%w: unexpected %s while waiting for response", model.ErrSendFailed, msg.field())
		}
	}
}

// Close is safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
		log.Debug("aap2 session closed", zap.String("agent_id", c.agentID))
	})
	return c.closeErr
}

func (c *Client) respond(status ResponseStatus) error {
	return c.writeMessage(&Message{Response: &Response{Status: status}})
}

func (c *Client) writeMessage(m *Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return WriteMessage(c.conn, m)
}

func (c *Client) transportError(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return fmt.Errorf("%w: %v", model.ErrSessionClosed, err)
	}
	return err
}
