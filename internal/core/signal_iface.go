//go:generate go run go.uber.org/mock/mockgen -source=signal_iface.go -destination=mocks/mock_signal.go -package=mocks

package core

import "errors"

// Frame is a raw encoded message ready for the wire.
type Frame []byte

// ConnID is the opaque handle of one live client connection.
// A new ConnID is minted for every (re)connect.
type ConnID string

var (
	ErrBackpressure     = errors.New("backpressure")
	ErrConnectionClosed = errors.New("connection closed")
)

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	ID() ConnID
	// TrySend never blocks; a full queue returns ErrBackpressure.
	TrySend(Frame) error
	Close()
}
