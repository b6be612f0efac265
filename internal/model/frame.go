package model

import (
	"strings"
)

// ADUFlags is the set of flags attached to an application data unit.
type ADUFlags uint32

const (
	FlagNormal ADUFlags = 1 << iota
	// FlagEncapsulatedBundle marks a payload that is a BIBE container
	// holding a whole serialized bundle.
	FlagEncapsulatedBundle
	// FlagRequiresAuth asks the agent to authorize the ADU through the
	// bundle dispatcher.
	FlagRequiresAuth
)

func (f ADUFlags) Has(flag ADUFlags) bool {
	return f&flag == flag
}

func (f ADUFlags) String() string {
	var names []string
	if f.Has(FlagNormal) {
		names = append(names, "normal")
	}
	if f.Has(FlagEncapsulatedBundle) {
		names = append(names, "bpdu")
	}
	if f.Has(FlagRequiresAuth) {
		names = append(names, "bdm_auth")
	}
	return "[" + strings.Join(names, ",") + "]"
}

// Frame is one inbound message from the forwarding agent. The set of
// implementations is closed: Keepalive, ApplicationDataUnit and Unknown.
type Frame interface {
	isFrame()
}

type (
	Keepalive struct{}

	ApplicationDataUnit struct {
		Source  string
		Flags   ADUFlags
		Payload []byte
	}

	// Unknown is any agent message that is neither a keepalive nor an ADU.
	Unknown struct {
		Field string
	}
)

func (Keepalive) isFrame()           {}
func (ApplicationDataUnit) isFrame() {}
func (Unknown) isFrame()             {}
