package config

import (
	"dtn_chat/internal/model"
	"dtn_chat/internal/protocol/revocation"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// PositionalArgs is the number of arguments of the legacy command line.
const PositionalArgs = 11

var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrArgCount      = fmt.Errorf("%w: expected %d positional arguments", ErrInvalidConfig, PositionalArgs)
)

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

type (
	Config struct {
		LocalName            string  `toml:"local_name"`
		SessionAddress       string  `toml:"session_address"`
		RevocationStatus     string  `toml:"revocation_status"`
		Secret               string  `toml:"secret"`
		PeerName             string  `toml:"peer_name"`
		KeyHex               string  `toml:"key"`
		PeerCertIssuanceDate string  `toml:"peer_cert_issuance_date"`
		PeerValidityHash     string  `toml:"peer_validity_hash"`
		FakeDate             string  `toml:"fake_date"`
		PipeName             string  `toml:"pipe_name"`
		Port                 int     `toml:"port"`
		ListenHost           string  `toml:"listen_host"`
		KeepaliveSeconds     int     `toml:"keepalive_seconds"`
		MaxMessages          int     `toml:"max_messages"`
		ExpectedPayload      *string `toml:"expected_payload"`
		StrictBundles        bool    `toml:"strict_bundles"`
		BDMAuth              bool    `toml:"bdm_auth"`
		BotReply             string  `toml:"bot_reply"`

		Logging Logging `toml:"logging"`
		Redis   Redis   `toml:"redis"`
		Mongo   Mongo   `toml:"mongo"`
	}

	Logging struct {
		Level       string `toml:"level"`
		Development bool   `toml:"development"`
		File        string `toml:"file"`
	}

	// Redis is optional. When Addr is empty the revocation status seed from
	// the command line is used for every message.
	Redis struct {
		Addr      string `toml:"addr"`
		Password  string `toml:"password"`
		DB        int    `toml:"db"`
		StatusKey string `toml:"status_key"`
	}

	// Mongo is optional. When URI is empty the peer identity comes from the
	// command line only.
	Mongo struct {
		URI      string `toml:"uri"`
		Database string `toml:"database"`
	}
)

func Default() *Config {
	return &Config{
		ListenHost: "localhost",
		Logging: Logging{
			Level: "info",
		},
		Redis: Redis{
			StatusKey: "dtn_chat:revocation_status",
		},
		Mongo: Mongo{
			Database: "dtn_chat",
		},
	}
}

// FromArgs reads the positional command line: local name, session address,
// revocation status, secret, peer name, key, peer certificate issuance date,
// peer validity hash, fake date, pipe name and port.
func FromArgs(args []string) (*Config, error) {
	if len(args) != PositionalArgs {
		return nil, fmt.Errorf("%w, got %d", ErrArgCount, len(args))
	}

	port, err := strconv.Atoi(args[10])
	if err != nil {
		return nil, fmt.Errorf("%w: port %q: %w", ErrInvalidConfig, args[10], err)
	}

	cfg := Default()
	cfg.LocalName = args[0]
	cfg.SessionAddress = args[1]
	cfg.RevocationStatus = args[2]
	cfg.Secret = args[3]
	cfg.PeerName = args[4]
	cfg.KeyHex = args[5]
	cfg.PeerCertIssuanceDate = args[6]
	cfg.PeerValidityHash = args[7]
	cfg.FakeDate = args[8]
	cfg.PipeName = args[9]
	cfg.Port = port
	return cfg, cfg.Validate()
}

func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, err)
	}
	return cfg, cfg.Validate()
}

// Resolve loads path when it is set and reads the positional command line
// otherwise. Mixing both is an error.
func Resolve(path string, args []string) (*Config, error) {
	if path == "" {
		return FromArgs(args)
	}
	if len(args) != 0 {
		return nil, fmt.Errorf("%w: positional arguments are not allowed with a config file", ErrInvalidConfig)
	}
	return Load(path)
}

func (c *Config) Validate() error {
	switch {
	case c.LocalName == "":
		return fmt.Errorf("%w: local name is empty", ErrInvalidConfig)
	case c.PeerName == "":
		return fmt.Errorf("%w: peer name is empty", ErrInvalidConfig)
	case c.SessionAddress == "":
		return fmt.Errorf("%w: session address is empty", ErrInvalidConfig)
	case c.Port < 0 || c.Port > 65535:
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port)
	case c.KeepaliveSeconds < 0:
		return fmt.Errorf("%w: negative keepalive", ErrInvalidConfig)
	case c.MaxMessages < 0:
		return fmt.Errorf("%w: negative max messages", ErrInvalidConfig)
	}

	if _, err := hex.DecodeString(c.RevocationStatus); err != nil || c.RevocationStatus == "" {
		return fmt.Errorf("%w: revocation status must be non-empty hex", ErrInvalidConfig)
	}
	if _, err := c.Key(); err != nil {
		return err
	}
	if _, err := c.ValidityHash(); err != nil {
		return err
	}
	if _, err := c.IssuanceDate(); err != nil {
		return err
	}
	if _, err := c.Clock(); err != nil {
		return err
	}
	return nil
}

func (c *Config) Key() ([]byte, error) {
	key, err := hex.DecodeString(c.KeyHex)
	if err != nil || len(key) == 0 {
		return nil, fmt.Errorf("%w: key must be non-empty hex", ErrInvalidConfig)
	}
	return key, nil
}

func (c *Config) ValidityHash() ([]byte, error) {
	h, err := hex.DecodeString(c.PeerValidityHash)
	if err != nil {
		return nil, fmt.Errorf("%w: peer validity hash: %w", ErrInvalidConfig, err)
	}
	return h, nil
}

func (c *Config) IssuanceDate() (time.Time, error) {
	t, err := ParseISO(c.PeerCertIssuanceDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: peer issuance date: %w", ErrInvalidConfig, err)
	}
	return t, nil
}

// Clock returns a fixed clock when a fake date is configured and the system
// clock otherwise.
func (c *Config) Clock() (revocation.Clock, error) {
	if c.FakeDate == "" {
		return revocation.SystemClock{}, nil
	}
	t, err := ParseISO(c.FakeDate)
	if err != nil {
		return nil, fmt.Errorf("%w: fake date: %w", ErrInvalidConfig, err)
	}
	return revocation.FixedClock{At: t}, nil
}

// Peer builds the peer identity described by the command line.
func (c *Config) Peer() (model.PeerIdentity, error) {
	issued, err := c.IssuanceDate()
	if err != nil {
		return model.PeerIdentity{}, err
	}
	h, err := c.ValidityHash()
	if err != nil {
		return model.PeerIdentity{}, err
	}
	return model.NewPeerIdentity(c.LocalName, c.PeerName, issued, h), nil
}

func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.ListenHost, strconv.Itoa(c.Port))
}

// ParseISO accepts ISO 8601 dates and datetimes, with or without a zone.
func ParseISO(s string) (time.Time, error) {
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("not an ISO date: %q", s)
}
