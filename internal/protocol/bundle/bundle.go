// Package bundle parses and builds BPv7 bundles and the BIBE containers that
// carry them inside an application data unit.
package bundle

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
)

const (
	Version = 7

	BlockTypePayload = 1

	schemeDTN = 1
	schemeIPN = 2

	// primary block fields up to and including the lifetime
	primaryFields = 8

	cborIndefArray = 0x9f
	cborBreak      = 0xff
)

// dtnEpoch is 2000-01-01T00:00:00Z, the zero of DTN time.
var dtnEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

var ErrMalformedBundle = errors.New("malformed bundle")

type (
	EndpointID struct {
		_      struct{} `cbor:",toarray"`
		Scheme uint64
		SSP    any
	}

	PrimaryBlock struct {
		Version        uint64
		Flags          uint64
		CRCType        uint64
		Destination    EndpointID
		Source         EndpointID
		ReportTo       EndpointID
		CreationTime   uint64
		SequenceNumber uint64
		LifetimeMillis uint64
	}

	CanonicalBlock struct {
		Type    uint64
		Number  uint64
		Flags   uint64
		CRCType uint64
		Data    []byte
	}

	Bundle struct {
		Primary PrimaryBlock
		Blocks  []CanonicalBlock
	}
)

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedBundle, fmt.Sprintf(format, args...))
}

// ParseEndpointID accepts dtn:none, dtn://node/service and ipn:node.service.
func ParseEndpointID(s string) (EndpointID, error) {
	switch {
	case s == "dtn:none":
		return EndpointID{Scheme: schemeDTN, SSP: uint64(0)}, nil
	case strings.HasPrefix(s, "dtn:"):
		return EndpointID{Scheme: schemeDTN, SSP: strings.TrimPrefix(s, "dtn:")}, nil
	case strings.HasPrefix(s, "ipn:"):
		node, service, ok := strings.Cut(strings.TrimPrefix(s, "ipn:"), ".")
		if !ok {
			return EndpointID{}, fmt.Errorf("invalid ipn endpoint %q", s)
		}
		n, err := strconv.ParseUint(node, 10, 64)
		if err != nil {
			return EndpointID{}, fmt.Errorf("invalid ipn endpoint %q: %w", s, err)
		}
		sv, err := strconv.ParseUint(service, 10, 64)
		if err != nil {
			return EndpointID{}, fmt.Errorf("invalid ipn endpoint %q: %w", s, err)
		}
		return EndpointID{Scheme: schemeIPN, SSP: []uint64{n, sv}}, nil
	}
	return EndpointID{}, fmt.Errorf("unsupported endpoint scheme %q", s)
}

func (e EndpointID) String() string {
	switch e.Scheme {
	case schemeDTN:
		if ssp, ok := e.SSP.(string); ok {
			return "dtn:" + ssp
		}
		return "dtn:none"
	case schemeIPN:
		if parts, ok := e.SSP.([]any); ok && len(parts) == 2 {
			return fmt.Sprintf("ipn:%v.%v", parts[0], parts[1])
		}
		if parts, ok := e.SSP.([]uint64); ok && len(parts) == 2 {
			return fmt.Sprintf("ipn:%d.%d", parts[0], parts[1])
		}
	}
	return fmt.Sprintf("unknown:%d", e.Scheme)
}

// New builds a bundle with a single payload block.
func New(source, destination string, payload []byte, lifetime time.Duration) (*Bundle, error) {
	src, err := ParseEndpointID(source)
	if err != nil {
		return nil, err
	}
	dst, err := ParseEndpointID(destination)
	if err != nil {
		return nil, err
	}

	return &Bundle{
		Primary: PrimaryBlock{
			Version:        Version,
			Destination:    dst,
			Source:         src,
			ReportTo:       EndpointID{Scheme: schemeDTN, SSP: uint64(0)},
			CreationTime:   uint64(time.Since(dtnEpoch).Milliseconds()),
			LifetimeMillis: uint64(lifetime.Milliseconds()),
		},
		Blocks: []CanonicalBlock{{
			Type:   BlockTypePayload,
			Number: 1,
			Data:   payload,
		}},
	}, nil
}

func (b *Bundle) PayloadBlock() (*CanonicalBlock, error) {
	for i := range b.Blocks {
		if b.Blocks[i].Type == BlockTypePayload {
			return &b.Blocks[i], nil
		}
	}
	return nil, malformed("no payload block")
}

// Marshal encodes the bundle as an indefinite-length CBOR array. CRCs are
// not generated.
func (b *Bundle) Marshal() ([]byte, error) {
	p := b.Primary
	primary, err := cbor.Marshal([]any{
		p.Version, p.Flags, uint64(0),
		p.Destination, p.Source, p.ReportTo,
		[]uint64{p.CreationTime, p.SequenceNumber},
		p.LifetimeMillis,
	})
	if err != nil {
		return nil, err
	}

	out := append([]byte{cborIndefArray}, primary...)
	for _, blk := range b.Blocks {
		enc, err := cbor.Marshal([]any{blk.Type, blk.Number, blk.Flags, uint64(0), blk.Data})
		if err != nil {
			return nil, err
		}
		out = append(out, enc...)
	}
	return append(out, cborBreak), nil
}

func Parse(data []byte) (*Bundle, error) {
	var raw []cbor.RawMessage
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return nil, malformed("bundle: %v", err)
	}
	if len(raw) < 2 {
		return nil, malformed("bundle has %d blocks", len(raw))
	}

	b := &Bundle{}
	if err := b.Primary.unmarshal(raw[0]); err != nil {
		return nil, err
	}
	for i, r := range raw[1:] {
		blk, err := parseCanonical(r)
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", i+1, err)
		}
		b.Blocks = append(b.Blocks, blk)
	}
	return b, nil
}

func (p *PrimaryBlock) unmarshal(data cbor.RawMessage) error {
	var fields []cbor.RawMessage
	if err := cbor.Unmarshal(data, &fields); err != nil {
		return malformed("primary block: %v", err)
	}
	if len(fields) < primaryFields {
		return malformed("primary block has %d fields", len(fields))
	}

	var ts []uint64
	err := decodeFields(fields[:primaryFields],
		&p.Version, &p.Flags, &p.CRCType,
		&p.Destination, &p.Source, &p.ReportTo,
		&ts, &p.LifetimeMillis,
	)
	if err != nil {
		return malformed("primary block: %v", err)
	}
	if p.Version != Version {
		return malformed("unsupported bundle version %d", p.Version)
	}
	if len(ts) != 2 {
		return malformed("creation timestamp has %d fields", len(ts))
	}
	p.CreationTime, p.SequenceNumber = ts[0], ts[1]
	return nil
}

func parseCanonical(data cbor.RawMessage) (CanonicalBlock, error) {
	var blk CanonicalBlock
	var fields []cbor.RawMessage
	if err := cbor.Unmarshal(data, &fields); err != nil {
		return blk, malformed("canonical block: %v", err)
	}
	if len(fields) != 5 && len(fields) != 6 {
		return blk, malformed("canonical block has %d fields", len(fields))
	}
	err := decodeFields(fields[:5], &blk.Type, &blk.Number, &blk.Flags, &blk.CRCType, &blk.Data)
	if err != nil {
		return blk, malformed("canonical block: %v", err)
	}
	return blk, nil
}

func decodeFields(fields []cbor.RawMessage, dst ...any) error {
	for i := range dst {
		if err := cbor.Unmarshal(fields[i], dst[i]); err != nil {
			return fmt.Errorf("field %d: %w", i, err)
		}
	}
	return nil
}
