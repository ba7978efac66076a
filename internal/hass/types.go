package hass

import "encoding/json"

// State represents the state of a Home Assistant entity.
type State struct {
	EntityID    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	LastChanged string         `json:"last_changed,omitempty"`
	LastUpdated string         `json:"last_updated,omitempty"`
}

// FriendlyName returns the entity's friendly name, falling back to the id.
func (s *State) FriendlyName() string {
	if v, ok := s.Attributes["friendly_name"].(string); ok && v != "" {
		return v
	}
	return s.EntityID
}

// Unit returns the entity's unit of measurement, if any.
func (s *State) Unit() string {
	v, _ := s.Attributes["unit_of_measurement"].(string)
	return v
}

// wsMessage is a WebSocket frame from/to Home Assistant.
type wsMessage struct {
	ID      int             `json:"id,omitempty"`
	Type    string          `json:"type"`
	Success *bool           `json:"success,omitempty"`
	Event   *wsEvent        `json:"event,omitempty"`
	Error   *wsError        `json:"error,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`

	// auth frames
	AccessToken string `json:"access_token,omitempty"`

	// subscribe frames
	EventType string `json:"event_type,omitempty"`
}

type wsError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type wsEvent struct {
	EventType string      `json:"event_type"`
	Data      wsEventData `json:"data"`
	TimeFired string      `json:"time_fired"`
}

type wsEventData struct {
	EntityID string `json:"entity_id"`
	NewState *State `json:"new_state,omitempty"`
	OldState *State `json:"old_state,omitempty"`
}
