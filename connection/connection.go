// Package connection provides a stable identifier for a single network
// connection, used to correlate log lines and callback invocations across
// the mini-protocols multiplexed over that connection.
package connection

import (
	"net"

	"github.com/google/uuid"
)

// ConnectionId uniquely identifies a single underlying network connection.
// It carries the local/remote addresses for logging purposes along with a
// randomly generated ID, since addresses alone are not guaranteed unique
// across reconnects.
type ConnectionId struct {
	id         uuid.UUID
	LocalAddr  net.Addr
	RemoteAddr net.Addr
}

// NewConnectionId returns a new ConnectionId for the given local/remote
// address pair.
func NewConnectionId(localAddr, remoteAddr net.Addr) ConnectionId {
	return ConnectionId{
		id:         uuid.New(),
		LocalAddr:  localAddr,
		RemoteAddr: remoteAddr,
	}
}

// String returns a human-readable representation suitable for log lines.
func (c ConnectionId) String() string {
	var local, remote string
	if c.LocalAddr != nil {
		local = c.LocalAddr.String()
	}
	if c.RemoteAddr != nil {
		remote = c.RemoteAddr.String()
	}
	return local + "-" + remote
}

// ID returns the unique identifier for this connection, independent of the
// addresses involved.
func (c ConnectionId) ID() string {
	return c.id.String()
}
