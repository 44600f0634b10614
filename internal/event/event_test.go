package event

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridata/surveyguard/internal/apperr"
)

var ts = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestValidateCommonFields(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
		ok   bool
	}{
		{"valid keystroke", Event{SessionID: "s1", Type: TypeKeystroke, Timestamp: ts}, true},
		{"missing session", Event{Type: TypeKeystroke, Timestamp: ts}, false},
		{"unknown type", Event{SessionID: "s1", Type: "telepathy", Timestamp: ts}, false},
		{"missing timestamp", Event{SessionID: "s1", Type: TypeKeystroke}, false},
		{"session start", Event{SessionID: "s1", Type: TypeSessionStart, Timestamp: ts}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ev.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Equal(t, apperr.KindValidationFailed, apperr.KindOf(err))
			}
		})
	}
}

func TestValidatePayloadSchemas(t *testing.T) {
	tests := []struct {
		name    string
		typ     Type
		payload string
		ok      bool
	}{
		{"mouse move", TypeMouseMove, `{"x": 10, "y": 20}`, true},
		{"mouse move bad types", TypeMouseMove, `{"x": "ten"}`, false},
		{"mouse click with target", TypeMouseClick, `{"x": 1, "y": 2, "target_width": 80, "target_height": 30}`, true},
		{"scroll", TypeScroll, `{"delta_y": -120}`, true},
		{"scroll malformed", TypeScroll, `{"delta_y": []}`, false},
		{"device info", TypeDeviceInfo, `{"screen_width": 1920, "screen_height": 1080}`, true},
		{"device negative", TypeDeviceInfo, `{"screen_width": -1}`, false},
		{"visibility", TypeVisibilityChange, `{"hidden": true}`, true},
		{"visibility malformed", TypeVisibilityChange, `{"hidden": "yes"}`, false},
		{"keystroke empty payload", TypeKeystroke, ``, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := Event{SessionID: "s1", Type: tt.typ, Timestamp: ts, Payload: json.RawMessage(tt.payload)}
			err := ev.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Equal(t, apperr.KindValidationFailed, apperr.KindOf(err))
			}
		})
	}
}

func TestMouseDecoding(t *testing.T) {
	ev := Event{SessionID: "s1", Type: TypeMouseMove, Timestamp: ts,
		Payload: json.RawMessage(`{"x": 100.5, "y": 200.25}`)}

	p, ok := ev.Mouse()
	require.True(t, ok)
	assert.Equal(t, 100.5, p.X)
	assert.Equal(t, 200.25, p.Y)

	// Non-mouse events never decode.
	ev.Type = TypeScroll
	_, ok = ev.Mouse()
	assert.False(t, ok)

	ev.Type = TypeMouseMove
	ev.Payload = nil
	_, ok = ev.Mouse()
	assert.False(t, ok)
}

func TestDeviceDecoding(t *testing.T) {
	ev := Event{SessionID: "s1", Type: TypeDeviceInfo, Timestamp: ts,
		Payload: json.RawMessage(`{"screen_width": 1920, "screen_height": 1080, "locale": "en-US"}`)}

	p, ok := ev.Device()
	require.True(t, ok)
	assert.Equal(t, 1920, p.ScreenWidth)
	assert.Equal(t, "en-US", p.Locale)

	// A payload with no device attributes is treated as absent.
	ev.Payload = json.RawMessage(`{"delta_y": -30}`)
	_, ok = ev.Device()
	assert.False(t, ok)

	ev.Payload = nil
	_, ok = ev.Device()
	assert.False(t, ok)
}
