package behavioral

import (
	"encoding/json"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/veridata/surveyguard/internal/config"
	"github.com/veridata/surveyguard/internal/event"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func keystrokes(n int, deltaMs func(i int) int64) []event.Event {
	out := make([]event.Event, n)
	ts := t0
	for i := 0; i < n; i++ {
		if i > 0 {
			ts = ts.Add(time.Duration(deltaMs(i)) * time.Millisecond)
		}
		out[i] = event.Event{Type: event.TypeKeystroke, Timestamp: ts}
	}
	return out
}

func mouseMove(ts time.Time, x, y float64) event.Event {
	p, _ := json.Marshal(event.MousePayload{X: x, Y: y})
	return event.Event{Type: event.TypeMouseMove, Timestamp: ts, Payload: p}
}

func deviceInfo(ts time.Time, w, h int) event.Event {
	p, _ := json.Marshal(event.DevicePayload{ScreenWidth: w, ScreenHeight: h})
	return event.Event{Type: event.TypeDeviceInfo, Timestamp: ts, Payload: p}
}

func TestAnalyzersNeutralOnInsufficientData(t *testing.T) {
	a := New(config.Default())

	few := keystrokes(3, func(int) int64 { return 200 })
	assert.Equal(t, Neutral, a.Keystroke(few))
	assert.Equal(t, Neutral, a.Mouse(nil))
	assert.Equal(t, Neutral, a.Timing(few))
	assert.Equal(t, Neutral, a.Network(nil))
}

func TestKeystrokeRoboticTypist(t *testing.T) {
	a := New(config.Default())

	// 40 keystrokes exactly 100 ms apart: regular and round fire, fast and
	// slow do not.
	events := keystrokes(40, func(int) int64 { return 100 })
	assert.InDelta(t, 0.5, a.Keystroke(events), 1e-9)
}

func TestKeystrokeHumanRhythm(t *testing.T) {
	a := New(config.Default())

	// Varied intervals that are never multiples of 10 ms.
	events := keystrokes(30, func(i int) int64 { return 163 + 31*int64(i%5) })
	assert.Equal(t, 0.0, a.Keystroke(events))
}

func TestKeystrokeImpossiblyFast(t *testing.T) {
	a := New(config.Default())

	// 10 ms between keys: regular, fast, and round all fire.
	events := keystrokes(20, func(int) int64 { return 10 })
	assert.InDelta(t, 0.75, a.Keystroke(events), 1e-9)
}

func TestKeystrokeDropsNonPositiveDeltas(t *testing.T) {
	a := New(config.Default())

	// Duplicate timestamps leave fewer than 4 usable deltas.
	events := keystrokes(6, func(int) int64 { return 0 })
	assert.Equal(t, Neutral, a.Keystroke(events))
}

func TestMouseOrganicTrace(t *testing.T) {
	a := New(config.Default())

	events := make([]event.Event, 0, 50)
	ts := t0
	for i := 0; i < 50; i++ {
		x := 100 + float64(i)*15 + 20*math.Sin(float64(i))
		y := 300 + 40*math.Cos(float64(i)/2)
		events = append(events, mouseMove(ts, x, y))
		ts = ts.Add(100 * time.Millisecond)
	}
	assert.Equal(t, 0.0, a.Mouse(events))
}

func TestMouseScriptedStraightLine(t *testing.T) {
	a := New(config.Default())

	// Fixed-step movement along a perfect line flags straight_line and
	// distance_uniform.
	events := make([]event.Event, 0, 15)
	ts := t0
	for i := 0; i < 15; i++ {
		events = append(events, mouseMove(ts, float64(i*20), float64(i*20)))
		ts = ts.Add(100 * time.Millisecond)
	}
	score := a.Mouse(events)
	assert.InDelta(t, 2.0/16.0, score, 1e-9)
}

func TestMouseSuperhumanSpeed(t *testing.T) {
	a := New(config.Default())

	// 2000 px in 100 ms is 20000 px/s.
	events := []event.Event{
		mouseMove(t0, 0, 0),
		mouseMove(t0.Add(100*time.Millisecond), 2000, 0),
		mouseMove(t0.Add(200*time.Millisecond), 2100, 50),
	}
	assert.Greater(t, a.Mouse(events), 0.0)
}

func TestTimingShortRegularSession(t *testing.T) {
	a := New(config.Default())

	// 4 s session with metronome intervals: short_session and too_regular.
	events := keystrokes(40, func(int) int64 { return 100 })
	assert.InDelta(t, 2.0/3.0, a.Timing(events), 1e-9)
}

func TestTimingRelaxedSession(t *testing.T) {
	a := New(config.Default())

	events := keystrokes(30, func(i int) int64 { return 500 + 400*int64(i%4) })
	assert.Equal(t, 0.0, a.Timing(events))
}

func TestDeviceSingleScreenIsClean(t *testing.T) {
	a := New(config.Default())

	events := []event.Event{deviceInfo(t0, 1680, 1050)}
	assert.Equal(t, 0.0, a.Device(events))
}

func TestDeviceMultipleBotResolutions(t *testing.T) {
	a := New(config.Default())

	// Two screens mid-session, both canonical headless sizes.
	events := []event.Event{
		deviceInfo(t0, 1920, 1080),
		deviceInfo(t0.Add(time.Second), 1366, 768),
	}
	// multi_screen 1.0 + two bot resolutions at 0.5 each = 2.0 of 3.
	assert.InDelta(t, 2.0/3.0, a.Device(events), 1e-9)
}

func TestAnalyzeRoboticTypist(t *testing.T) {
	a := New(config.Default())

	events := keystrokes(40, func(int) int64 { return 100 })
	res := a.Analyze(events)

	assert.InDelta(t, 0.5, res.MethodScores[MethodKeystroke], 1e-9)
	assert.InDelta(t, 0.5, res.MethodScores[MethodMouse], 1e-9)
	assert.InDelta(t, 2.0/3.0, res.MethodScores[MethodTiming], 1e-9)
	assert.Equal(t, 0.0, res.MethodScores[MethodDevice])
	assert.Equal(t, 0.5, res.MethodScores[MethodNetwork])

	// 0.30*0.5 + 0.25*0.5 + 0.20*(2/3) + 0.15*0 + 0.10*0.5
	assert.InDelta(t, 0.45833, res.Confidence, 1e-4)
	assert.False(t, res.IsBot)
}

func TestAnalyzeCleanHuman(t *testing.T) {
	a := New(config.Default())

	events := keystrokes(30, func(i int) int64 { return 163 + 31*int64(i%5) })
	ts := events[len(events)-1].Timestamp
	for i := 0; i < 50; i++ {
		ts = ts.Add(time.Duration(1500+300*(i%4)) * time.Millisecond)
		x := 100 + float64(i)*15 + 20*math.Sin(float64(i))
		y := 300 + 40*math.Cos(float64(i)/2)
		events = append(events, mouseMove(ts, x, y))
	}
	events = append(events, deviceInfo(ts.Add(time.Second), 1680, 1050))

	res := a.Analyze(events)
	assert.False(t, res.IsBot)
	assert.Less(t, res.Confidence, 0.25)
}

func TestAnalyzeConfidenceBounds(t *testing.T) {
	a := New(config.Default())

	for n := 0; n <= 60; n += 20 {
		events := keystrokes(n, func(int) int64 { return 10 })
		res := a.Analyze(events)
		assert.GreaterOrEqual(t, res.Confidence, 0.0, fmt.Sprintf("n=%d", n))
		assert.LessOrEqual(t, res.Confidence, 1.0, fmt.Sprintf("n=%d", n))
	}
}
