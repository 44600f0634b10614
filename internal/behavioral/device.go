package behavioral

import (
	"fmt"
	"math"

	"github.com/veridata/surveyguard/internal/event"
)

// Device scores hardware consistency across every event carrying screen or
// viewport fields. Multiple screens mid-session and canonical headless
// resolutions are the strongest signals.
func (a *Analyzer) Device(events []event.Event) float64 {
	screens := make(map[string]bool)
	viewports := make(map[string]bool)
	botHits := make(map[string]bool)

	for _, e := range events {
		p, ok := e.Device()
		if !ok {
			continue
		}
		if p.ScreenWidth > 0 && p.ScreenHeight > 0 {
			key := fmt.Sprintf("%dx%d", p.ScreenWidth, p.ScreenHeight)
			screens[key] = true
			for _, r := range a.cfg.BotResolutions {
				if p.ScreenWidth == r.Width && p.ScreenHeight == r.Height {
					botHits[key] = true
				}
			}
		}
		if p.ViewportWidth > 0 && p.ViewportHeight > 0 {
			viewports[fmt.Sprintf("%dx%d", p.ViewportWidth, p.ViewportHeight)] = true
		}
	}

	var sum float64
	if len(screens) > 1 {
		sum += 1
	}
	sum += 0.5 * float64(len(botHits))
	if len(viewports) > 1 {
		sum += 1
	}

	return math.Min(sum/3.0, 1.0)
}
