package behavioral

import (
	"math"

	"github.com/veridata/surveyguard/internal/event"
)

// mouseThrottleMs collapses samples the browser fired faster than a real
// pointer is reported; speed is judged on the throttled trace.
const mouseThrottleMs = 10

// Mouse scores pointer behavior. Flags: geometrically straight paths,
// superhuman speed, pixel-perfect click precision, and uniform segment
// distances. The score divides flags by event count plus one, so sparse
// sessions weigh a single flag more heavily than long organic traces.
func (a *Analyzer) Mouse(events []event.Event) float64 {
	all := filterEvents(events, event.TypeMouseMove, event.TypeMouseClick)
	if len(all) < a.cfg.MinMouseEvents {
		return Neutral
	}

	moves := filterEvents(all, event.TypeMouseMove)
	flags := 0

	if straightLine(moves) {
		flags++
	}
	if a.superhumanSpeed(moves) {
		flags++
	}
	if a.perfectPrecision(filterEvents(all, event.TypeMouseClick)) {
		flags++
	}
	if len(moves) > 10 && a.uniformDistances(moves) {
		flags++
	}

	return math.Min(float64(flags)/float64(len(all)+1), 1.0)
}

// straightLine checks the dominant contiguous movement segment for near-zero
// curvature: the chord between its endpoints covers almost the whole path.
func straightLine(moves []event.Event) bool {
	points := mousePoints(moves)
	if len(points) < 3 {
		return false
	}

	var pathLen float64
	for i := 1; i < len(points); i++ {
		pathLen += dist(points[i-1], points[i])
	}
	if pathLen == 0 {
		return false
	}

	chord := dist(points[0], points[len(points)-1])
	curvature := 1 - chord/pathLen
	return curvature < 0.01
}

// superhumanSpeed looks for any instantaneous speed above the configured
// maximum on the throttled trace.
func (a *Analyzer) superhumanSpeed(moves []event.Event) bool {
	points := mousePoints(moves)
	times := mouseTimes(moves)
	lastIdx := 0
	for i := 1; i < len(points); i++ {
		dtMs := times[i] - times[lastIdx]
		if dtMs < mouseThrottleMs {
			continue
		}
		speed := dist(points[lastIdx], points[i]) / (float64(dtMs) / 1000.0)
		if speed > a.cfg.MouseMaxSpeedPxS {
			return true
		}
		lastIdx = i
	}
	return false
}

// perfectPrecision reports a click landing essentially dead-center of its
// target bounds.
func (a *Analyzer) perfectPrecision(clicks []event.Event) bool {
	for _, c := range clicks {
		p, ok := c.Mouse()
		if !ok || p.TargetWidth <= 0 || p.TargetHeight <= 0 {
			continue
		}
		cx := p.TargetX + p.TargetWidth/2
		cy := p.TargetY + p.TargetHeight/2
		halfDiag := math.Hypot(p.TargetWidth, p.TargetHeight) / 2
		if halfDiag == 0 {
			continue
		}
		accuracy := 1 - math.Hypot(p.X-cx, p.Y-cy)/halfDiag
		if accuracy > a.cfg.MousePerfectPrecision {
			return true
		}
	}
	return false
}

// uniformDistances flags segment distances with stddev under the threshold,
// the signature of scripted fixed-step movement.
func (a *Analyzer) uniformDistances(moves []event.Event) bool {
	points := mousePoints(moves)
	if len(points) < 3 {
		return false
	}
	distances := make([]float64, 0, len(points)-1)
	for i := 1; i < len(points); i++ {
		distances = append(distances, dist(points[i-1], points[i]))
	}
	return stddev(distances) < a.cfg.MouseDistanceStddevPx
}

type point struct{ x, y float64 }

func mousePoints(moves []event.Event) []point {
	out := make([]point, 0, len(moves))
	for _, m := range moves {
		if p, ok := m.Mouse(); ok {
			out = append(out, point{p.X, p.Y})
		}
	}
	return out
}

func mouseTimes(moves []event.Event) []int64 {
	out := make([]int64, 0, len(moves))
	for _, m := range moves {
		if _, ok := m.Mouse(); ok {
			out = append(out, m.Timestamp.UnixMilli())
		}
	}
	return out
}

func dist(a, b point) float64 {
	return math.Hypot(b.x-a.x, b.y-a.y)
}
