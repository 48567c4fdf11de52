// Package arm speaks the picking arm's line protocol. Requests are one line
// each ("POS", "MOVE <x> <y>", "MOTION <name>", "PING"); the device answers
// "OK [fields...]" or "ERR <message>". Tagging and routing of concurrent
// requests is handled by serialmux.
package arm

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/banshee-data/picker/internal/planner"
)

// Protocol verbs.
const (
	VerbPing   = "PING"
	VerbPos    = "POS"
	VerbMove   = "MOVE"
	VerbMotion = "MOTION"
)

var (
	// ErrMalformed is returned for lines that do not follow the protocol.
	ErrMalformed = errors.New("malformed arm protocol line")
)

// DeviceError is an ERR reply from the arm. It is a motion fault: the
// command did not complete.
type DeviceError struct {
	Command string
	Message string
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("arm rejected %q: %s", e.Command, e.Message)
}

// Command is a parsed request line.
type Command struct {
	Verb   string
	X, Y   int
	Motion planner.ArmMotion
}

// String renders the command as a request line without the trailing newline.
func (c Command) String() string {
	switch c.Verb {
	case VerbMove:
		return fmt.Sprintf("%s %d %d", VerbMove, c.X, c.Y)
	case VerbMotion:
		return VerbMotion + " " + c.Motion.String()
	default:
		return c.Verb
	}
}

// MoveCommand builds a MOVE request.
func MoveCommand(x, y int) Command {
	return Command{Verb: VerbMove, X: x, Y: y}
}

// MotionCommand builds a MOTION request; only the four defined motions are
// accepted.
func MotionCommand(m planner.ArmMotion) (Command, error) {
	switch m {
	case planner.MotionPick, planner.MotionPlaceBag, planner.MotionFold, planner.MotionUnfold:
		return Command{Verb: VerbMotion, Motion: m}, nil
	default:
		return Command{}, fmt.Errorf("%w: %v", planner.ErrUnknownMotion, m)
	}
}

// ParseCommand parses a request line (without its tag).
func ParseCommand(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("%w: empty command", ErrMalformed)
	}
	verb := strings.ToUpper(fields[0])
	args := fields[1:]

	switch verb {
	case VerbPing, VerbPos:
		if len(args) != 0 {
			return Command{}, fmt.Errorf("%w: %s takes no arguments", ErrMalformed, verb)
		}
		return Command{Verb: verb}, nil
	case VerbMove:
		if len(args) != 2 {
			return Command{}, fmt.Errorf("%w: MOVE needs x and y", ErrMalformed)
		}
		x, err := strconv.Atoi(args[0])
		if err != nil {
			return Command{}, fmt.Errorf("%w: bad x %q", ErrMalformed, args[0])
		}
		y, err := strconv.Atoi(args[1])
		if err != nil {
			return Command{}, fmt.Errorf("%w: bad y %q", ErrMalformed, args[1])
		}
		return MoveCommand(x, y), nil
	case VerbMotion:
		if len(args) != 1 {
			return Command{}, fmt.Errorf("%w: MOTION needs a name", ErrMalformed)
		}
		m, err := planner.ParseArmMotion(args[0])
		if err != nil {
			return Command{}, err
		}
		return Command{Verb: VerbMotion, Motion: m}, nil
	default:
		return Command{}, fmt.Errorf("%w: unknown verb %q", ErrMalformed, fields[0])
	}
}

// Reply is a parsed response line.
type Reply struct {
	OK      bool
	Fields  []string
	Message string
}

// ParseReply parses a response line (without its tag).
func ParseReply(line string) (Reply, error) {
	status, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	switch status {
	case "OK":
		return Reply{OK: true, Fields: strings.Fields(rest)}, nil
	case "ERR":
		return Reply{Message: strings.TrimSpace(rest)}, nil
	default:
		return Reply{}, fmt.Errorf("%w: reply %q", ErrMalformed, line)
	}
}

// FormatOK renders a success reply.
func FormatOK(fields ...string) string {
	return strings.TrimSpace("OK " + strings.Join(fields, " "))
}

// FormatErr renders an error reply.
func FormatErr(format string, v ...any) string {
	return "ERR " + fmt.Sprintf(format, v...)
}
