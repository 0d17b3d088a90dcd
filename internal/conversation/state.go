package conversation

import "fmt"

// Action drives a status transition.
type Action string

const (
	ActionActivate   Action = "activate"
	ActionBotReply   Action = "bot_reply"
	ActionAssume     Action = "assume"
	ActionReturnBot  Action = "return_to_bot"
	ActionHandoff    Action = "handoff"
	ActionTransfer   Action = "transfer"
	ActionQualify    Action = "qualify"
	ActionClose      Action = "close"
	ActionReactivate Action = "reactivate"
)

var transitions = map[Action]struct {
	from []Status
	to   Status
}{
	ActionActivate:   {from: []Status{StatusWaiting}, to: StatusActive},
	ActionBotReply:   {from: []Status{StatusActive}, to: StatusInBot},
	ActionAssume:     {from: []Status{StatusActive, StatusInBot, StatusTransferred}, to: StatusWithAgent},
	ActionReturnBot:  {from: []Status{StatusWithAgent}, to: StatusInBot},
	ActionHandoff:    {from: []Status{StatusActive, StatusInBot}, to: StatusWithAgent},
	ActionTransfer:   {from: []Status{StatusInBot, StatusWithAgent}, to: StatusTransferred},
	ActionQualify:    {from: []Status{StatusInBot, StatusWithAgent}, to: StatusQualified},
	ActionClose:      {from: []Status{StatusActive, StatusInBot, StatusWithAgent, StatusQualified, StatusTransferred}, to: StatusClosed},
	ActionReactivate: {from: []Status{StatusClosed}, to: StatusInBot},
}

// Transition returns the status reached by applying action to from.
func Transition(from Status, action Action) (Status, error) {
	edge, ok := transitions[action]
	if !ok {
		return "", fmt.Errorf("%w: unknown action %q", ErrInvalidTransition, action)
	}
	for _, s := range edge.from {
		if s == from {
			return edge.to, nil
		}
	}
	return "", fmt.Errorf("%w: %s from %s", ErrInvalidTransition, action, from)
}

// CanTransition reports whether action is allowed from status.
func CanTransition(from Status, action Action) bool {
	_, err := Transition(from, action)
	return err == nil
}
