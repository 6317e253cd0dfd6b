package hass

import (
	"encoding/json"
	"time"
)

// message is the base WebSocket frame to/from Home Assistant.
type message struct {
	ID      int             `json:"id,omitempty"`
	Type    string          `json:"type"`
	Success *bool           `json:"success,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *wsError        `json:"error,omitempty"`
	Event   *event          `json:"event,omitempty"`
}

// wsError is the error payload of a failed command.
type wsError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// authMessage is the auth handshake request.
type authMessage struct {
	Type        string `json:"type"`
	AccessToken string `json:"access_token,omitempty"`
}

// event is the envelope of a pushed event frame.
type event struct {
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
	TimeFired time.Time       `json:"time_fired"`
}

// stateChangedEvent is the data payload of a state_changed event.
type stateChangedEvent struct {
	EntityID string `json:"entity_id"`
	NewState *State `json:"new_state"`
	OldState *State `json:"old_state"`
}

// State is one entity state as reported by Home Assistant.
type State struct {
	EntityID    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes"`
	LastChanged time.Time      `json:"last_changed"`
	LastUpdated time.Time      `json:"last_updated"`
}

// StateChangeHandler receives state_changed events for a subscribed entity.
// NewState is nil when the entity was removed.
type StateChangeHandler func(entityID string, oldState, newState *State)

// Subscription is an active per-entity subscription handle.
// Unsubscribe is idempotent and never blocks on the network.
type Subscription struct {
	entityID string
	subID    int
	client   *Client
}

// Unsubscribe removes the subscription's handler from the fan-out table.
func (s *Subscription) Unsubscribe() {
	s.client.unsubscribe(s.entityID, s.subID)
}
