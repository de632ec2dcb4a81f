package ws

// SubscribeOp is the exchange specific part of a stream: how topics become
// subscribe frames and what the application level ping looks like.
type SubscribeOp interface {
	// Frames renders the subscribe frames for topics. Called with the full
	// list on every new socket and with only the new topics on Subscribe.
	Frames(topics []string) []string
	// PingFrame returns the text ping, or "" when protocol pings suffice.
	PingFrame() string
}

// ControlFilter hides exchange control frames (pong, subscribe ack) from
// the application stream. Optional; implemented by most SubscribeOps.
type ControlFilter interface {
	IsControl(text string) bool
}

// AuthFunc builds the authentication frame sent before subscribing.
// The first frame received afterwards is taken as its acknowledgement.
type AuthFunc func() (string, error)

// URLFunc returns the endpoint for each new socket, for exchanges whose
// URL carries a token or listen key.
type URLFunc func() (string, error)
