package arm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/picker/internal/planner"
)

// scriptedLink answers requests from a fixed table.
type scriptedLink struct {
	mu      sync.Mutex
	replies map[string]string
	err     error
	sent    []string
}

func (l *scriptedLink) Request(ctx context.Context, command string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent = append(l.sent, command)
	if l.err != nil {
		return "", l.err
	}
	reply, ok := l.replies[command]
	if !ok {
		return "ERR unknown command", nil
	}
	return reply, nil
}

func TestClient_Position(t *testing.T) {
	link := &scriptedLink{replies: map[string]string{"POS": "OK 1500 -20"}}
	got, err := NewClient(link).Position(context.Background())
	require.NoError(t, err)
	assert.Equal(t, planner.Position{X: 1500, Y: -20}, got)
}

func TestClient_PositionMalformed(t *testing.T) {
	for _, reply := range []string{"OK", "OK 1", "OK a b", "MAYBE 1 2"} {
		link := &scriptedLink{replies: map[string]string{"POS": reply}}
		_, err := NewClient(link).Position(context.Background())
		assert.ErrorIs(t, err, ErrMalformed, "reply %q", reply)
	}
}

func TestClient_MoveTo(t *testing.T) {
	link := &scriptedLink{replies: map[string]string{"MOVE 1000 50": "OK"}}
	require.NoError(t, NewClient(link).MoveTo(context.Background(), 1000, 50))
	assert.Equal(t, []string{"MOVE 1000 50"}, link.sent)
}

func TestClient_ExecutePick(t *testing.T) {
	link := &scriptedLink{replies: map[string]string{"MOTION PICK": "OK 1"}}
	ok, err := NewClient(link).Execute(context.Background(), planner.MotionPick)
	require.NoError(t, err)
	assert.True(t, ok)

	link.replies["MOTION PICK"] = "OK 0"
	ok, err = NewClient(link).Execute(context.Background(), planner.MotionPick)
	require.NoError(t, err)
	assert.False(t, ok, "a failed grasp is a result, not an error")

	link.replies["MOTION PICK"] = "OK"
	_, err = NewClient(link).Execute(context.Background(), planner.MotionPick)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestClient_ExecuteFoldIgnoresPayload(t *testing.T) {
	link := &scriptedLink{replies: map[string]string{
		"MOTION FOLD":      "OK",
		"MOTION UNFOLD":    "OK 1",
		"MOTION PLACE_BAG": "OK",
	}}
	c := NewClient(link)
	for _, m := range []planner.ArmMotion{planner.MotionFold, planner.MotionUnfold, planner.MotionPlaceBag} {
		ok, err := c.Execute(context.Background(), m)
		require.NoError(t, err, m.String())
		assert.True(t, ok, m.String())
	}
}

func TestClient_DeviceErrorIsAFault(t *testing.T) {
	link := &scriptedLink{replies: map[string]string{"MOVE 1500 0": "ERR hazard: arm unfolded"}}
	err := NewClient(link).MoveTo(context.Background(), 1500, 0)

	var devErr *DeviceError
	require.True(t, errors.As(err, &devErr))
	assert.Equal(t, "MOVE 1500 0", devErr.Command)
	assert.Equal(t, "hazard: arm unfolded", devErr.Message)
}

func TestClient_TransportErrorPassesThrough(t *testing.T) {
	linkErr := errors.New("port gone")
	_, err := NewClient(&scriptedLink{err: linkErr}).Execute(context.Background(), planner.MotionFold)
	assert.Equal(t, linkErr, err)
}

func TestClient_RejectsUnknownMotion(t *testing.T) {
	link := &scriptedLink{}
	_, err := NewClient(link).Execute(context.Background(), planner.ArmMotion(42))
	assert.ErrorIs(t, err, planner.ErrUnknownMotion)
	assert.Empty(t, link.sent, "nothing may reach the device")
}

func TestClient_Ping(t *testing.T) {
	link := &scriptedLink{replies: map[string]string{"PING": "OK simarm/1"}}
	id, err := NewClient(link).Ping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "simarm/1", id)
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line    string
		want    Command
		wantErr error
	}{
		{line: "POS", want: Command{Verb: VerbPos}},
		{line: "move -5 20", want: MoveCommand(-5, 20)},
		{line: "MOTION place_bag", want: Command{Verb: VerbMotion, Motion: planner.MotionPlaceBag}},
		{line: "", wantErr: ErrMalformed},
		{line: "POS 1", wantErr: ErrMalformed},
		{line: "MOVE 1", wantErr: ErrMalformed},
		{line: "MOVE a 1", wantErr: ErrMalformed},
		{line: "MOTION WAVE", wantErr: planner.ErrUnknownMotion},
		{line: "JUMP", wantErr: ErrMalformed},
	}
	for _, tt := range tests {
		got, err := ParseCommand(tt.line)
		if tt.wantErr != nil {
			assert.ErrorIs(t, err, tt.wantErr, "line %q", tt.line)
			continue
		}
		require.NoError(t, err, "line %q", tt.line)
		assert.Equal(t, tt.want, got, "line %q", tt.line)
		// the rendered form parses back to the same command
		again, err := ParseCommand(got.String())
		require.NoError(t, err)
		assert.Equal(t, got, again)
	}
}

func TestParseReply(t *testing.T) {
	r, err := ParseReply("OK 1 2")
	require.NoError(t, err)
	assert.Equal(t, Reply{OK: true, Fields: []string{"1", "2"}}, r)

	r, err = ParseReply(FormatErr("stalled at %d", 7))
	require.NoError(t, err)
	assert.Equal(t, Reply{Message: "stalled at 7"}, r)

	assert.Equal(t, "OK", FormatOK())
	assert.Equal(t, "OK 3 4", FormatOK("3", "4"))

	_, err = ParseReply("WHAT")
	assert.ErrorIs(t, err, ErrMalformed)
}

// stallingLink never answers until ctx is done.
type stallingLink struct{}

func (stallingLink) Request(ctx context.Context, command string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestClient_RequestTimeout(t *testing.T) {
	c := NewClient(stallingLink{})
	c.SetRequestTimeout(5 * time.Millisecond)
	err := c.MoveTo(context.Background(), 10, 10)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
