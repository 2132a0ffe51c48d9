package app

import (
	"time"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/samber/lo"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
	DropFrame
)

// Policy decides what happens when an event cannot be queued for a connection.
type Policy interface {
	OnBackPressure(to core.ConnID, ev core.Event) BackpressureAction
}

// SimplePolicy drops best-effort signaling and disconnects clients that
// cannot keep up with call control events.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(_ core.ConnID, ev core.Event) BackpressureAction {
	if ev.Type == core.EventSignal {
		return DropFrame
	}
	return KickMember
}

// Picker chooses a random call partner from a non-empty candidate list.
type Picker func(candidates []domain.UserID) domain.UserID

// UniformPicker selects uniformly at random.
func UniformPicker(candidates []domain.UserID) domain.UserID {
	return lo.Sample(candidates)
}

// Limits are the call policies left open by the protocol.
type Limits struct {
	// GroupCapacity caps group participants; domain.Unbounded disables the cap.
	GroupCapacity int
	// PendingTimeout expires unanswered 1:1 calls; zero keeps them until a disconnect.
	PendingTimeout time.Duration
}

func DefaultLimits() Limits {
	return Limits{GroupCapacity: 4, PendingTimeout: 60 * time.Second}
}
