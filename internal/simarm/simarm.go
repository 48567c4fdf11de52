// Package simarm is an in-process stand-in for the picking arm controller.
// It speaks the arm line protocol over a pipe, so it can sit behind a
// serialmux exactly where a real serial port would, and it refuses any
// command that would put an unfolded arm inside the hazard interval.
package simarm

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/banshee-data/picker/internal/arm"
	"github.com/banshee-data/picker/internal/monitoring"
	"github.com/banshee-data/picker/internal/planner"
	"github.com/banshee-data/picker/internal/serialmux"
	"github.com/banshee-data/picker/internal/timeutil"
)

// Identity is returned in reply to PING.
const Identity = "simarm/1"

var logf = monitoring.Prefixed("simarm")

// Config controls the simulated arm.
type Config struct {
	Hazard planner.Hazard
	Start  planner.Position
	// MoveLatency and MotionLatency are slept on Clock per command.
	MoveLatency   time.Duration
	MotionLatency time.Duration
	// TelemetryInterval emits an untagged status line this often; zero
	// disables telemetry.
	TelemetryInterval time.Duration
	Clock             timeutil.Clock
	// Jammed positions fail every PICK.
	Jammed []planner.Position
	// PickFunc overrides Jammed when set.
	PickFunc func(planner.Position) bool
}

// Arm is a simulated arm controller. It implements serialmux.SerialPorter.
type Arm struct {
	cfg Config

	mu            sync.Mutex
	pos           planner.Position
	folded        bool
	folding       bool
	unfolding     bool
	moving        bool
	interiorMoves int
	events        []string

	inbuf   bytes.Buffer
	inMu    sync.Mutex
	writeMu sync.Mutex
	hostR   *io.PipeReader
	devW    *io.PipeWriter

	wg        sync.WaitGroup
	closed    chan struct{}
	closeOnce sync.Once
}

var _ serialmux.SerialPorter = (*Arm)(nil)

// New starts a simulated arm at cfg.Start. An arm that starts inside the
// hazard interval starts folded.
func New(cfg Config) *Arm {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.Hazard == (planner.Hazard{}) {
		cfg.Hazard = planner.DefaultHazard()
	}
	if cfg.PickFunc == nil {
		jammed := make(map[planner.Position]bool, len(cfg.Jammed))
		for _, p := range cfg.Jammed {
			jammed[p] = true
		}
		cfg.PickFunc = func(p planner.Position) bool { return !jammed[p] }
	}

	r, w := io.Pipe()
	a := &Arm{
		cfg:    cfg,
		pos:    cfg.Start,
		folded: cfg.Hazard.Contains(cfg.Start.X),
		hostR:  r,
		devW:   w,
		closed: make(chan struct{}),
	}
	if cfg.TelemetryInterval > 0 {
		a.wg.Add(1)
		go a.telemetry()
	}
	return a
}

// Read returns reply and telemetry lines destined for the host.
func (a *Arm) Read(p []byte) (int, error) {
	return a.hostR.Read(p)
}

// Write accepts request lines from the host. Each complete line is handled
// on its own goroutine so that paired commands overlap as they would on the
// real controller.
func (a *Arm) Write(p []byte) (int, error) {
	select {
	case <-a.closed:
		return 0, io.ErrClosedPipe
	default:
	}

	a.inMu.Lock()
	a.inbuf.Write(p)
	var lines []string
	for {
		line, err := a.inbuf.ReadString('\n')
		if err != nil {
			// keep the partial line for the next write
			a.inbuf.Reset()
			a.inbuf.WriteString(line)
			break
		}
		lines = append(lines, line)
	}
	a.inMu.Unlock()

	for _, line := range lines {
		a.wg.Add(1)
		go func(line string) {
			defer a.wg.Done()
			a.handle(line)
		}(line)
	}
	return len(p), nil
}

// Close stops the simulator and unblocks any reader.
func (a *Arm) Close() error {
	a.closeOnce.Do(func() {
		close(a.closed)
		a.devW.CloseWithError(io.EOF)
		a.hostR.Close()
	})
	a.wg.Wait()
	return nil
}

// Position returns the simulated arm location.
func (a *Arm) Position() planner.Position {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pos
}

// Folded reports the simulated fold state.
func (a *Arm) Folded() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.folded
}

// Events returns the commands completed so far, in completion order.
func (a *Arm) Events() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.events...)
}

func (a *Arm) handle(line string) {
	tag, rest, ok := serialmux.SplitTag(line)
	if !ok {
		logf("ignoring untagged line %q", line)
		return
	}
	cmd, err := arm.ParseCommand(rest)
	if err != nil {
		a.reply(tag, arm.FormatErr("%v", err))
		return
	}
	a.reply(tag, a.execute(cmd))
}

func (a *Arm) execute(cmd arm.Command) string {
	switch cmd.Verb {
	case arm.VerbPing:
		return arm.FormatOK(Identity)
	case arm.VerbPos:
		p := a.Position()
		return arm.FormatOK(strconv.Itoa(p.X), strconv.Itoa(p.Y))
	case arm.VerbMove:
		return a.move(cmd.X, cmd.Y)
	case arm.VerbMotion:
		return a.motion(cmd.Motion)
	default:
		return arm.FormatErr("unsupported verb %s", cmd.Verb)
	}
}

// touchesInterior reports whether travelling between x0 and x1 passes
// through the open interval (Start, End). Resting on an edge is allowed in
// any fold state.
func (a *Arm) touchesInterior(x0, x1 int) bool {
	lo, hi := min(x0, x1), max(x0, x1)
	return hi > a.cfg.Hazard.Start && lo < a.cfg.Hazard.End
}

func (a *Arm) move(x, y int) string {
	a.mu.Lock()
	if a.moving {
		a.mu.Unlock()
		return arm.FormatErr("busy: move already in progress")
	}
	from := a.pos
	interior := a.touchesInterior(from.X, x)
	if interior && (!a.folded || a.folding || a.unfolding) {
		a.mu.Unlock()
		logf("rejected move %s -> (%d,%d): arm not folded", from, x, y)
		return arm.FormatErr("hazard: arm must be folded to travel %d -> %d", from.X, x)
	}
	a.moving = true
	if interior {
		a.interiorMoves++
	}
	a.mu.Unlock()

	a.cfg.Clock.Sleep(a.cfg.MoveLatency)

	a.mu.Lock()
	a.pos = planner.Position{X: x, Y: y}
	a.moving = false
	if interior {
		a.interiorMoves--
	}
	a.events = append(a.events, arm.MoveCommand(x, y).String())
	a.mu.Unlock()
	return arm.FormatOK()
}

func (a *Arm) motion(m planner.ArmMotion) string {
	a.mu.Lock()
	switch m {
	case planner.MotionFold:
		a.folding = true
	case planner.MotionUnfold:
		inside := a.pos.X > a.cfg.Hazard.Start && a.pos.X < a.cfg.Hazard.End
		if inside || a.interiorMoves > 0 {
			a.mu.Unlock()
			logf("rejected unfold at %s", a.pos)
			return arm.FormatErr("hazard: cannot unfold inside %d..%d", a.cfg.Hazard.Start, a.cfg.Hazard.End)
		}
		// extension starts immediately
		a.unfolding = true
		a.folded = false
	case planner.MotionPick, planner.MotionPlaceBag:
	default:
		a.mu.Unlock()
		return arm.FormatErr("unknown motion %v", m)
	}
	a.mu.Unlock()

	a.cfg.Clock.Sleep(a.cfg.MotionLatency)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, m.String())
	switch m {
	case planner.MotionFold:
		a.folding = false
		a.folded = true
	case planner.MotionUnfold:
		a.unfolding = false
	case planner.MotionPick:
		if a.cfg.PickFunc(a.pos) {
			return arm.FormatOK("1")
		}
		return arm.FormatOK("0")
	case planner.MotionPlaceBag:
	}
	return arm.FormatOK()
}

func (a *Arm) reply(tag, body string) {
	a.writeLine(tag + " " + body)
}

func (a *Arm) writeLine(line string) {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	if _, err := io.WriteString(a.devW, line+"\n"); err != nil {
		select {
		case <-a.closed:
		default:
			logf("write failed: %v", err)
		}
	}
}

func (a *Arm) telemetry() {
	defer a.wg.Done()
	ticker := a.cfg.Clock.NewTicker(a.cfg.TelemetryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-a.closed:
			return
		case <-ticker.C():
			a.mu.Lock()
			line := fmt.Sprintf("T pos=%d,%d folded=%t", a.pos.X, a.pos.Y, a.folded)
			a.mu.Unlock()
			a.writeLine(line)
		}
	}
}
