// Package event defines the behavioral event variant ingested from the
// client tracker. Payloads are typed per event kind and schema-checked at
// the boundary; the analyzers downstream never re-validate.
package event

import (
	"encoding/json"
	"time"

	"github.com/veridata/surveyguard/internal/apperr"
)

// Type enumerates the accepted event kinds.
type Type string

const (
	TypeKeystroke        Type = "keystroke"
	TypeMouseClick       Type = "mouse_click"
	TypeMouseMove        Type = "mouse_move"
	TypeScroll           Type = "scroll"
	TypeFocus            Type = "focus"
	TypeBlur             Type = "blur"
	TypeDeviceInfo       Type = "device_info"
	TypeVisibilityChange Type = "visibility_change"
	TypeSessionStart     Type = "session_start"
)

var validTypes = map[Type]bool{
	TypeKeystroke:        true,
	TypeMouseClick:       true,
	TypeMouseMove:        true,
	TypeScroll:           true,
	TypeFocus:            true,
	TypeBlur:             true,
	TypeDeviceInfo:       true,
	TypeVisibilityChange: true,
	TypeSessionStart:     true,
}

// Event is one behavioral observation. Timestamp is UTC at millisecond
// precision. Payload holds the type-specific record, already validated.
type Event struct {
	ID          string          `json:"id,omitempty"`
	SessionID   string          `json:"session_id"`
	Type        Type            `json:"event_type"`
	Timestamp   time.Time       `json:"timestamp"`
	ElementID   string          `json:"element_id,omitempty"`
	ElementType string          `json:"element_type,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// KeystrokePayload carries per-key telemetry. Key text itself is never
// captured; only the element and modifier context.
type KeystrokePayload struct {
	ElementID string `json:"element_id,omitempty"`
	Modifier  bool   `json:"modifier,omitempty"`
}

// MousePayload covers mouse_move and mouse_click.
type MousePayload struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	// Target bounds for click precision, present on mouse_click only.
	TargetX      float64 `json:"target_x,omitempty"`
	TargetY      float64 `json:"target_y,omitempty"`
	TargetWidth  float64 `json:"target_width,omitempty"`
	TargetHeight float64 `json:"target_height,omitempty"`
}

// ScrollPayload carries scroll deltas.
type ScrollPayload struct {
	DeltaY   float64 `json:"delta_y"`
	Position float64 `json:"position,omitempty"`
}

// DevicePayload carries device attributes. Any event may additionally carry
// screen_*/viewport_* fields; device_info always does.
type DevicePayload struct {
	ScreenWidth    int    `json:"screen_width,omitempty"`
	ScreenHeight   int    `json:"screen_height,omitempty"`
	ViewportWidth  int    `json:"viewport_width,omitempty"`
	ViewportHeight int    `json:"viewport_height,omitempty"`
	Locale         string `json:"locale,omitempty"`
	Timezone       string `json:"timezone,omitempty"`
	Platform       string `json:"platform,omitempty"`
}

// VisibilityPayload carries tab visibility transitions.
type VisibilityPayload struct {
	Hidden bool `json:"hidden"`
}

// Validate checks the common fields and decodes the payload for the event's
// type, returning ValidationFailed on any schema violation.
func (e *Event) Validate() error {
	if e.SessionID == "" {
		return apperr.New(apperr.KindValidationFailed, "event missing session_id")
	}
	if !validTypes[e.Type] {
		return apperr.Newf(apperr.KindValidationFailed, "unknown event_type %q", e.Type)
	}
	if e.Timestamp.IsZero() {
		return apperr.New(apperr.KindValidationFailed, "event missing timestamp")
	}

	switch e.Type {
	case TypeMouseClick, TypeMouseMove:
		var p MousePayload
		if err := decode(e.Payload, &p); err != nil {
			return apperr.Wrap(apperr.KindValidationFailed, "bad mouse payload", err)
		}
	case TypeScroll:
		var p ScrollPayload
		if err := decode(e.Payload, &p); err != nil {
			return apperr.Wrap(apperr.KindValidationFailed, "bad scroll payload", err)
		}
	case TypeDeviceInfo:
		var p DevicePayload
		if err := decode(e.Payload, &p); err != nil {
			return apperr.Wrap(apperr.KindValidationFailed, "bad device payload", err)
		}
		if p.ScreenWidth < 0 || p.ScreenHeight < 0 || p.ViewportWidth < 0 || p.ViewportHeight < 0 {
			return apperr.New(apperr.KindValidationFailed, "negative screen dimensions")
		}
	case TypeKeystroke:
		var p KeystrokePayload
		if err := decode(e.Payload, &p); err != nil {
			return apperr.Wrap(apperr.KindValidationFailed, "bad keystroke payload", err)
		}
	case TypeVisibilityChange:
		var p VisibilityPayload
		if err := decode(e.Payload, &p); err != nil {
			return apperr.Wrap(apperr.KindValidationFailed, "bad visibility payload", err)
		}
	}
	return nil
}

func decode(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

// Mouse decodes the mouse payload; ok is false when absent or malformed.
func (e *Event) Mouse() (MousePayload, bool) {
	if e.Type != TypeMouseClick && e.Type != TypeMouseMove {
		return MousePayload{}, false
	}
	var p MousePayload
	if len(e.Payload) == 0 || json.Unmarshal(e.Payload, &p) != nil {
		return MousePayload{}, false
	}
	return p, true
}

// Device decodes device attributes from any event carrying them; ok is false
// when the payload has none.
func (e *Event) Device() (DevicePayload, bool) {
	var p DevicePayload
	if len(e.Payload) == 0 || json.Unmarshal(e.Payload, &p) != nil {
		return DevicePayload{}, false
	}
	if p.ScreenWidth == 0 && p.ScreenHeight == 0 && p.ViewportWidth == 0 && p.ViewportHeight == 0 && p.Locale == "" {
		return DevicePayload{}, false
	}
	return p, true
}
