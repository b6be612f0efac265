package model

type AuthType int

const (
	AuthTypeDefault AuthType = iota
	AuthTypeBundleDispatch
)

type (
	// Session is the configuration of one connection to the forwarding agent.
	Session struct {
		AgentID          string
		Address          string
		Secret           string
		KeepaliveSeconds int
		Subscribe        bool
		AuthType         AuthType
	}
)
