package arm

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/banshee-data/picker/internal/planner"
)

// Requester sends one request line and returns the device's reply. It is
// satisfied by serialmux.SerialMuxInterface.
type Requester interface {
	Request(ctx context.Context, command string) (string, error)
}

// Client drives the arm over a Requester and implements planner.Motion.
// It is safe for concurrent use; concurrent calls are how a fold and a
// translation overlap.
type Client struct {
	link    Requester
	timeout time.Duration
}

var _ planner.Motion = (*Client)(nil)

// NewClient returns a Client sending requests over link.
func NewClient(link Requester) *Client {
	return &Client{link: link}
}

// SetRequestTimeout bounds each command. Zero leaves commands bounded only by
// the caller's context.
func (c *Client) SetRequestTimeout(d time.Duration) {
	c.timeout = d
}

// do sends c and returns the fields of an OK reply. ERR replies come back as
// *DeviceError.
func (c *Client) do(ctx context.Context, cmd Command) ([]string, error) {
	line := cmd.String()
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	raw, err := c.link.Request(ctx, line)
	if err != nil {
		return nil, err
	}
	reply, err := ParseReply(raw)
	if err != nil {
		return nil, err
	}
	if !reply.OK {
		return nil, &DeviceError{Command: line, Message: reply.Message}
	}
	return reply.Fields, nil
}

// Ping checks the device is answering and returns its identification.
func (c *Client) Ping(ctx context.Context) (string, error) {
	fields, err := c.do(ctx, Command{Verb: VerbPing})
	if err != nil {
		return "", err
	}
	if len(fields) == 0 {
		return "unknown", nil
	}
	return fields[0], nil
}

// Position returns the current arm location.
func (c *Client) Position(ctx context.Context) (planner.Position, error) {
	fields, err := c.do(ctx, Command{Verb: VerbPos})
	if err != nil {
		return planner.Position{}, err
	}
	if len(fields) != 2 {
		return planner.Position{}, fmt.Errorf("%w: POS reply %v", ErrMalformed, fields)
	}
	x, errX := strconv.Atoi(fields[0])
	y, errY := strconv.Atoi(fields[1])
	if errX != nil || errY != nil {
		return planner.Position{}, fmt.Errorf("%w: POS reply %v", ErrMalformed, fields)
	}
	return planner.Position{X: x, Y: y}, nil
}

// MoveTo translates the arm and waits for it to arrive.
func (c *Client) MoveTo(ctx context.Context, x, y int) error {
	_, err := c.do(ctx, MoveCommand(x, y))
	return err
}

// Execute performs a motion. Only PICK carries a meaningful result.
func (c *Client) Execute(ctx context.Context, m planner.ArmMotion) (bool, error) {
	cmd, err := MotionCommand(m)
	if err != nil {
		return false, err
	}
	fields, err := c.do(ctx, cmd)
	if err != nil {
		return false, err
	}

	switch m {
	case planner.MotionPick:
		if len(fields) != 1 || (fields[0] != "0" && fields[0] != "1") {
			return false, fmt.Errorf("%w: PICK reply %v", ErrMalformed, fields)
		}
		return fields[0] == "1", nil
	case planner.MotionPlaceBag, planner.MotionFold, planner.MotionUnfold:
		return true, nil
	default:
		return false, fmt.Errorf("%w: %v", planner.ErrUnknownMotion, m)
	}
}
