package app

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"hindsight/client/internal/controller"
	"hindsight/client/internal/present"
)

// ErrUnknownIntent is returned for input lines that name no intent.
var ErrUnknownIntent = errors.New("unknown intent")

// Intent is a user request read from the terminal.
type Intent int

const (
	IntentForward Intent = iota
	IntentBack
	IntentEnd
	IntentStatus
	IntentVerify
	IntentHelp
	IntentQuit
)

const helpText = `f  step forward
b  step back
e  jump to the latest state
s  show the current state
v  verify the projection against a full replay
q  quit
`

// ParseIntent maps an input line to an intent. Blank lines are rejected.
func ParseIntent(line string) (Intent, error) {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "f", "forward":
		return IntentForward, nil
	case "b", "back":
		return IntentBack, nil
	case "e", "end":
		return IntentEnd, nil
	case "s", "status":
		return IntentStatus, nil
	case "v", "verify":
		return IntentVerify, nil
	case "h", "?", "help":
		return IntentHelp, nil
	case "q", "quit", "exit":
		return IntentQuit, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownIntent, strings.TrimSpace(line))
	}
}

// perform runs intent against ctrl. It must be called on the session loop.
func perform(ctrl *controller.Controller, intent Intent, out io.Writer) error {
	switch intent {
	case IntentForward:
		return ctrl.MoveForward()
	case IntentBack:
		return ctrl.MoveBack()
	case IntentEnd:
		return ctrl.MoveToEnd()
	case IntentStatus:
		io.WriteString(out, present.Render(ctrl))
	case IntentVerify:
		if err := ctrl.Verify(); err != nil {
			fmt.Fprintf(out, "verify failed: %v\n", err)
			return nil
		}
		io.WriteString(out, "projection matches replay\n")
	case IntentHelp:
		io.WriteString(out, helpText)
	}
	return nil
}
