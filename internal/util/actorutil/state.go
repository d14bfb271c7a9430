package actorutil

import (
	"github.com/asynkron/protoactor-go/actor"
)

// ActorWithStates runs an actor as a set of named states on top of a protoactor Behavior.
type ActorWithStates struct {
	Behavior actor.Behavior
	stack    []string
}

type ActorState interface {
	Name() string
	Receive(actor.Context)
}

func (s *ActorWithStates) Become(state ActorState) {
	s.stack = []string{state.Name()}
	s.Behavior.Become(state.Receive)
}

func (s *ActorWithStates) BecomeStacked(state ActorState) {
	s.stack = append(s.stack, state.Name())
	s.Behavior.BecomeStacked(state.Receive)
}

func (s *ActorWithStates) UnbecomeStacked() {
	if len(s.stack) > 1 {
		s.stack = s.stack[:len(s.stack)-1]
	}
	s.Behavior.UnbecomeStacked()
}

// StateName is the name of the active state, "" before the first Become.
func (s *ActorWithStates) StateName() string {
	if len(s.stack) == 0 {
		return ""
	}
	return s.stack[len(s.stack)-1]
}
