package indicator

import (
	"encoding/json"
	"fmt"
)

// State holds the serialized state of a streaming indicator.
type State struct {
	Type   string `json:"type"`
	Period int    `json:"period"`
	Count  int    `json:"count"`

	PrevClose float64 `json:"prev_close"`
	SumGain   float64 `json:"sum_gain,omitempty"`
	SumLoss   float64 `json:"sum_loss,omitempty"`
	AvgGain   float64 `json:"avg_gain"`
	AvgLoss   float64 `json:"avg_loss"`
	Current   float64 `json:"current"`
}

// MarshalState encodes a state as JSON.
func MarshalState(s State) ([]byte, error) {
	return json.Marshal(s)
}

// UnmarshalState decodes a state written by MarshalState and checks that it
// can be restored.
func UnmarshalState(data []byte) (State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return State{}, fmt.Errorf("unmarshal indicator state: %w", err)
	}
	switch s.Type {
	case "RSI":
		if err := (&RSI{}).Restore(s); err != nil {
			return State{}, err
		}
		return s, nil
	}
	return State{}, fmt.Errorf("unknown indicator type %q", s.Type)
}
