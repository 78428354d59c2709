package transport

//go:generate mockgen -source=transport.go -package=transport -destination=transport_mock.go

import (
	"golang.org/x/net/context"

	"github.com/twitter/equalizer/fabric"
)

// Transport carries commands to render client processes and their replies
// back to the server. Send never blocks on the client.
type Transport interface {
	// Connect establishes the link to the named node, launching its client
	// process if needed.
	Connect(ctx context.Context, node string) error

	// Send delivers cmd to node. Commands to one node arrive in order.
	Send(node string, cmd fabric.Command) error

	// Disconnect drops the link to node. A DISCONNECT reply follows.
	Disconnect(node string) error

	// Replies is read only by the server's reply pump.
	Replies() <-chan fabric.Reply
}
