package planner

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/picker/internal/monitoring"
)

// Default hazard interval bounds.
const (
	DefaultHazardStart = 1000
	DefaultHazardEnd   = 2000
)

// Hazard is the closed x interval [Start, End] that the arm may only occupy
// while folded.
type Hazard struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// DefaultHazard returns the interval [1000, 2000].
func DefaultHazard() Hazard {
	return Hazard{Start: DefaultHazardStart, End: DefaultHazardEnd}
}

// Validate checks that the interval is non-empty.
func (h Hazard) Validate() error {
	if h.Start >= h.End {
		return fmt.Errorf("%w: hazard start %d must be below end %d", ErrConfiguration, h.Start, h.End)
	}
	return nil
}

// Zone locates an x coordinate relative to the hazard interval.
type Zone int

const (
	ZoneLeft Zone = iota
	ZoneInside
	ZoneRight
)

func (z Zone) String() string {
	switch z {
	case ZoneLeft:
		return "left"
	case ZoneInside:
		return "inside"
	case ZoneRight:
		return "right"
	default:
		return fmt.Sprintf("Zone(%d)", int(z))
	}
}

// Zone returns which side of (or whether inside) the interval x lies.
func (h Hazard) Zone(x int) Zone {
	switch {
	case x < h.Start:
		return ZoneLeft
	case x > h.End:
		return ZoneRight
	default:
		return ZoneInside
	}
}

// Contains reports whether x lies in [Start, End].
func (h Hazard) Contains(x int) bool {
	return h.Zone(x) == ZoneInside
}

// Scenario is the kind of hazard interaction a move has.
type Scenario int

const (
	ScenarioSafe Scenario = iota
	ScenarioCrossing
	ScenarioEnter
	ScenarioExit
	ScenarioWithin
)

func (s Scenario) String() string {
	switch s {
	case ScenarioSafe:
		return "safe"
	case ScenarioCrossing:
		return "crossing"
	case ScenarioEnter:
		return "enter"
	case ScenarioExit:
		return "exit"
	case ScenarioWithin:
		return "within"
	default:
		return fmt.Sprintf("Scenario(%d)", int(s))
	}
}

// Classify decides how a move from cur to tgt interacts with the interval.
// Only x matters. The result depends on nothing but its arguments.
func (h Hazard) Classify(cur, tgt Position) Scenario {
	from, to := h.Zone(cur.X), h.Zone(tgt.X)
	switch {
	case from == ZoneLeft && to == ZoneRight, from == ZoneRight && to == ZoneLeft:
		return ScenarioCrossing
	case from != ZoneInside && to == ZoneInside:
		return ScenarioEnter
	case from == ZoneInside && to != ZoneInside:
		return ScenarioExit
	case from == ZoneInside && to == ZoneInside:
		return ScenarioWithin
	default:
		return ScenarioSafe
	}
}

// nearBoundary is the interval edge reached first when approaching from zone z.
func (h Hazard) nearBoundary(z Zone) int {
	if z == ZoneRight {
		return h.End
	}
	return h.Start
}

// Step is one leg of a relocation: a translation to To, optionally paired
// with a fold or unfold that runs at the same time. Both halves of a paired
// step complete before the next step starts.
type Step struct {
	To     Position  `json:"to"`
	Motion ArmMotion `json:"motion,omitempty"`
}

func (s Step) String() string {
	if s.Motion == 0 {
		return "move" + s.To.String()
	}
	return fmt.Sprintf("{%s || move%s}", s.Motion, s.To)
}

// Plan returns the steps that take the arm from cur to tgt safely.
func (h Hazard) Plan(cur, tgt Position) []Step {
	switch h.Classify(cur, tgt) {
	case ScenarioCrossing:
		from := h.Zone(cur.X)
		near := h.nearBoundary(from)
		far := h.End
		if from == ZoneRight {
			far = h.Start
		}
		return []Step{
			{To: Position{X: near, Y: cur.Y}, Motion: MotionFold},
			{To: Position{X: far, Y: cur.Y}},
			{To: tgt, Motion: MotionUnfold},
		}
	case ScenarioEnter:
		near := h.nearBoundary(h.Zone(cur.X))
		return []Step{
			{To: Position{X: near, Y: cur.Y}, Motion: MotionFold},
			{To: tgt},
		}
	case ScenarioExit:
		edge := h.nearBoundary(h.Zone(tgt.X))
		return []Step{
			{To: Position{X: edge, Y: cur.Y}},
			{To: tgt, Motion: MotionUnfold},
		}
	case ScenarioWithin, ScenarioSafe:
		return []Step{{To: tgt}}
	default:
		panic(fmt.Sprintf("planner: unhandled scenario %v", h.Classify(cur, tgt)))
	}
}

// Navigator relocates the arm between slots while keeping it folded for the
// whole time it occupies the hazard interval.
type Navigator struct {
	motion Motion
	hazard Hazard
}

// NewNavigator returns a Navigator for the given interval.
func NewNavigator(motion Motion, hazard Hazard) (*Navigator, error) {
	if err := hazard.Validate(); err != nil {
		return nil, err
	}
	return &Navigator{motion: motion, hazard: hazard}, nil
}

// Hazard returns the interval the navigator avoids.
func (n *Navigator) Hazard() Hazard {
	return n.hazard
}

// Relocate moves the arm to the target slot. Errors from the Motion
// capability are returned as-is; nothing is retried.
func (n *Navigator) Relocate(ctx context.Context, target Slot) error {
	cur, err := n.motion.Position(ctx)
	if err != nil {
		return err
	}
	tgt := target.Position()
	steps := n.hazard.Plan(cur, tgt)
	monitoring.Logf("relocate %s -> slot %s %s: %s, %d steps", cur, target.ID, tgt, n.hazard.Classify(cur, tgt), len(steps))

	for _, step := range steps {
		if err := n.run(ctx, step); err != nil {
			return err
		}
	}
	return nil
}

func (n *Navigator) run(ctx context.Context, step Step) error {
	switch step.Motion {
	case 0:
		return n.motion.MoveTo(ctx, step.To.X, step.To.Y)
	case MotionFold, MotionUnfold:
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			// the boolean result of FOLD/UNFOLD carries no information
			_, err := n.motion.Execute(gctx, step.Motion)
			return err
		})
		g.Go(func() error {
			return n.motion.MoveTo(gctx, step.To.X, step.To.Y)
		})
		return g.Wait()
	case MotionPick, MotionPlaceBag:
		return fmt.Errorf("%w: %s cannot be paired with a move", ErrUnknownMotion, step.Motion)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownMotion, step.Motion)
	}
}
