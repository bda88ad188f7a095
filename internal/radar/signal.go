package radar

import (
	"encoding/json"
	"fmt"
)

// SignalType identifies the detector that produced a signal.
type SignalType string

// Signal types.
const (
	SignalVelocity      SignalType = "velocity"
	SignalNewEntry      SignalType = "new_entry"
	SignalPositionJump  SignalType = "position_jump"
	SignalCrossPlatform SignalType = "cross_platform"
)

// Signal layers.
const (
	LayerSource = 1
	LayerCross  = 2
)

// SourceCollectionCross marks signals built from every hot collection at once.
const SourceCollectionCross = "cross"

// VelocityDetails carries the last two hot values behind a velocity signal.
type VelocityDetails struct {
	PreviousValue int64   `json:"previous_value"`
	CurrentValue  int64   `json:"current_value"`
	GrowthRate    float64 `json:"growth_rate"`
}

// NewEntryDetails describes an item that appeared recently.
type NewEntryDetails struct {
	HotValue   *int64 `json:"hot_value,omitempty"`
	Position   *int   `json:"position,omitempty"`
	AgeSeconds int64  `json:"age_seconds"`
}

// PositionJumpDetails carries the rank change behind a jump signal.
type PositionJumpDetails struct {
	PreviousPosition int `json:"previous_position"`
	CurrentPosition  int `json:"current_position"`
	Jump             int `json:"jump"`
}

// PlatformItem is the representative item of one platform inside a cross-platform cluster.
type PlatformItem struct {
	Title           string         `json:"title"`
	Source          string         `json:"source,omitempty"`
	HotValue        *int64         `json:"hot_value,omitempty"`
	Position        *int           `json:"position,omitempty"`
	HotValueHistory []HistoryPoint `json:"hot_value_history,omitempty"`
	PositionHistory []HistoryPoint `json:"position_history,omitempty"`
}

// CrossPlatformDetails describes a cluster of items shared across platforms.
type CrossPlatformDetails struct {
	PlatformCount  int                     `json:"platform_count"`
	PlatformItems  map[string]PlatformItem `json:"platform_items"`
	CommonKeywords []string                `json:"common_keywords"`
}

// Signal is a detector finding waiting to be consumed by the candidate manager.
type Signal struct {
	SignalID         string         `json:"signal_id"`
	Type             SignalType     `json:"signal_type"`
	Layer            int            `json:"layer"`
	Title            string         `json:"title"`
	Platform         string         `json:"platform,omitempty"`
	Platforms        []string       `json:"platforms,omitempty"`
	Source           string         `json:"source,omitempty"`
	SourceCollection string         `json:"source_collection"`
	DetectedAt       int64          `json:"detected_at"`
	UpdatedAt        int64          `json:"updated_at"`
	Consumed         bool           `json:"consumed"`
	HotValueHistory  []HistoryPoint `json:"hot_value_history,omitempty"`
	PositionHistory  []HistoryPoint `json:"position_history,omitempty"`
	FirstSeenAt      int64          `json:"first_seen_at,omitempty"`
	LastSeenAt       int64          `json:"last_seen_at,omitempty"`

	Velocity      *VelocityDetails      `json:"-"`
	NewEntry      *NewEntryDetails      `json:"-"`
	PositionJump  *PositionJumpDetails  `json:"-"`
	CrossPlatform *CrossPlatformDetails `json:"-"`
}

// Details returns the typed payload matching the signal type, or nil.
func (s Signal) Details() any {
	switch s.Type {
	case SignalVelocity:
		if s.Velocity != nil {
			return s.Velocity
		}
	case SignalNewEntry:
		if s.NewEntry != nil {
			return s.NewEntry
		}
	case SignalPositionJump:
		if s.PositionJump != nil {
			return s.PositionJump
		}
	case SignalCrossPlatform:
		if s.CrossPlatform != nil {
			return s.CrossPlatform
		}
	}
	return nil
}

type signalAlias Signal

type signalWire struct {
	signalAlias
	Details json.RawMessage `json:"details,omitempty"`
}

// MarshalJSON folds the type-specific detail struct into a "details" field.
func (s Signal) MarshalJSON() ([]byte, error) {
	details := s.Details()
	w := signalWire{signalAlias: signalAlias(s)}
	if details != nil {
		raw, err := json.Marshal(details)
		if err != nil {
			return nil, fmt.Errorf("marshal signal details: %w", err)
		}
		w.Details = raw
	}
	return json.Marshal(w)
}

// UnmarshalJSON restores the detail struct matching the signal type.
func (s *Signal) UnmarshalJSON(data []byte) error {
	var w signalWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*s = Signal(w.signalAlias)
	if len(w.Details) == 0 || string(w.Details) == "null" {
		return nil
	}
	var target any
	switch s.Type {
	case SignalVelocity:
		s.Velocity = &VelocityDetails{}
		target = s.Velocity
	case SignalNewEntry:
		s.NewEntry = &NewEntryDetails{}
		target = s.NewEntry
	case SignalPositionJump:
		s.PositionJump = &PositionJumpDetails{}
		target = s.PositionJump
	case SignalCrossPlatform:
		s.CrossPlatform = &CrossPlatformDetails{}
		target = s.CrossPlatform
	default:
		return nil
	}
	if err := json.Unmarshal(w.Details, target); err != nil {
		return fmt.Errorf("unmarshal %s details: %w", s.Type, err)
	}
	return nil
}
