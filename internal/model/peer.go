package model

import (
	"strings"
	"time"
)

type (
	PeerIdentity struct {
		DisplayName          string    `bson:"name"`
		EndpointID           string    `bson:"endpoint_id"`
		AgentID              string    `bson:"agent_id"`
		CertIssuanceDate     time.Time `bson:"cert_issuance_date"`
		ExpectedValidityHash []byte    `bson:"validity_hash"`
	}
)

// NewPeerIdentity derives the peer's endpoint and agent identifiers from the
// two display names.
func NewPeerIdentity(localName, peerName string, issued time.Time, validityHash []byte) PeerIdentity {
	return PeerIdentity{
		DisplayName:          peerName,
		EndpointID:           EndpointID(peerName),
		AgentID:              AgentID(peerName, localName),
		CertIssuanceDate:     issued,
		ExpectedValidityHash: validityHash,
	}
}

// Destination is the endpoint an outbound ADU for this peer is addressed to.
func (p PeerIdentity) Destination() string {
	return p.EndpointID + p.AgentID
}

// AgentID is the agent id a user registers for talking to a given peer.
func AgentID(ownName, otherName string) string {
	return squash(ownName) + squash(otherName)
}

func EndpointID(name string) string {
	return "dtn://" + strings.ToLower(strings.ReplaceAll(name, " ", "-")) + ".dtn/"
}

func squash(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, " ", ""))
}
