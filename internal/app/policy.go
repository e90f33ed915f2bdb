package app

import (
	"fmt"

	"github.com/dkeye/chatsync/internal/core"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropEvent
	KickMember
)

// Policy decides what happens to a subscriber whose send queue was full
// when an update was published.
type Policy interface {
	OnBackPressure(sid core.SessionID) BackpressureAction
}

type SimplePolicy struct {
	Action BackpressureAction
}

func (p SimplePolicy) OnBackPressure(core.SessionID) BackpressureAction {
	return p.Action
}

// ParsePolicy maps the slow_consumer_policy config value.
func ParsePolicy(name string) (Policy, error) {
	switch name {
	case "", "kick":
		return SimplePolicy{Action: KickMember}, nil
	case "drop":
		return SimplePolicy{Action: DropEvent}, nil
	default:
		return nil, fmt.Errorf("unknown slow consumer policy %q", name)
	}
}
