package signal

import (
	"github.com/JakeFAU/hotlist-radar/internal/hash/md5"
	"github.com/JakeFAU/hotlist-radar/internal/radar"
)

// Thresholds configures the four detectors.
type Thresholds struct {
	VelocityMinHot    int64   `mapstructure:"velocity_min_hot_value"`
	VelocityGrowth    float64 `mapstructure:"velocity_growth_rate"`
	NewEntryMaxAge    int64   `mapstructure:"new_entry_max_age_seconds"`
	NewEntryMinHot    int64   `mapstructure:"new_entry_min_hot_value"`
	NewEntryMaxPos    int     `mapstructure:"new_entry_max_position"`
	PositionMinJump   int     `mapstructure:"position_jump_min"`
	CrossMinKeywords  int     `mapstructure:"cross_min_shared_keywords"`
	CrossMinPlatforms int     `mapstructure:"cross_min_platforms"`
	CrossKeywordCap   int     `mapstructure:"cross_keyword_noise_cap"`
}

// DefaultThresholds returns the stock detector settings.
func DefaultThresholds() Thresholds {
	return Thresholds{
		VelocityMinHot:    10000,
		VelocityGrowth:    0.5,
		NewEntryMaxAge:    1800,
		NewEntryMinHot:    50000,
		NewEntryMaxPos:    10,
		PositionMinJump:   10,
		CrossMinKeywords:  2,
		CrossMinPlatforms: 3,
		CrossKeywordCap:   50,
	}
}

// TitleHash is the 12-character title digest used in signal ids.
func TitleHash(title string) string {
	return md5.Short(title, 12)
}

// SourceSignalID builds the id of a layer-1 signal.
func SourceSignalID(t radar.SignalType, title, platform string) string {
	return string(t) + "|" + TitleHash(title) + "|" + platform
}

// CrossSignalID builds the id of a layer-2 signal.
func CrossSignalID(title string) string {
	return string(radar.SignalCrossPlatform) + "|" + TitleHash(title)
}

func sourceSignal(t radar.SignalType, it radar.Item, collection radar.Collection, now int64) radar.Signal {
	return radar.Signal{
		SignalID:         SourceSignalID(t, it.Title, it.Platform),
		Type:             t,
		Layer:            radar.LayerSource,
		Title:            it.Title,
		Platform:         it.Platform,
		Source:           it.Source,
		SourceCollection: string(collection),
		DetectedAt:       now,
		UpdatedAt:        now,
		HotValueHistory:  append([]radar.HistoryPoint(nil), it.History[radar.FieldHotValue]...),
		PositionHistory:  append([]radar.HistoryPoint(nil), it.History[radar.FieldPosition]...),
		FirstSeenAt:      it.FirstSeenAt,
		LastSeenAt:       it.LastSeenAt,
	}
}

func lastTwo(points []radar.HistoryPoint) (float64, float64, bool) {
	if len(points) < 2 {
		return 0, 0, false
	}
	prev, ok1 := points[len(points)-2].Float()
	curr, ok2 := points[len(points)-1].Float()
	return prev, curr, ok1 && ok2
}

// Velocity emits when the last two hot values grew by at least the configured rate.
func Velocity(items []radar.Item, collection radar.Collection, th Thresholds, now int64) []radar.Signal {
	var out []radar.Signal
	for _, it := range items {
		prev, curr, ok := lastTwo(it.History[radar.FieldHotValue])
		if !ok || prev <= 0 || curr < float64(th.VelocityMinHot) {
			continue
		}
		growth := (curr - prev) / prev
		if growth < th.VelocityGrowth {
			continue
		}
		sig := sourceSignal(radar.SignalVelocity, it, collection, now)
		sig.Velocity = &radar.VelocityDetails{
			PreviousValue: int64(prev),
			CurrentValue:  int64(curr),
			GrowthRate:    growth,
		}
		out = append(out, sig)
	}
	return out
}

// NewEntry emits for recently first-seen items that are already hot or highly ranked.
func NewEntry(items []radar.Item, collection radar.Collection, th Thresholds, now int64) []radar.Signal {
	var out []radar.Signal
	for _, it := range items {
		age := now - it.FirstSeenAt
		if age > th.NewEntryMaxAge {
			continue
		}
		hot := it.HotValue != nil && *it.HotValue >= th.NewEntryMinHot
		ranked := it.Position != nil && *it.Position > 0 && *it.Position <= th.NewEntryMaxPos
		if !hot && !ranked {
			continue
		}
		sig := sourceSignal(radar.SignalNewEntry, it, collection, now)
		details := &radar.NewEntryDetails{AgeSeconds: age}
		if it.HotValue != nil {
			details.HotValue = radar.Int64Ptr(*it.HotValue)
		}
		if it.Position != nil {
			details.Position = radar.IntPtr(*it.Position)
		}
		sig.NewEntry = details
		out = append(out, sig)
	}
	return out
}

// PositionJump emits when an item climbed at least MinJump ranks between the last two observations.
func PositionJump(items []radar.Item, collection radar.Collection, th Thresholds, now int64) []radar.Signal {
	var out []radar.Signal
	for _, it := range items {
		prev, curr, ok := lastTwo(it.History[radar.FieldPosition])
		if !ok || prev <= 0 || curr <= 0 {
			continue
		}
		jump := int(prev) - int(curr)
		if jump < th.PositionMinJump {
			continue
		}
		sig := sourceSignal(radar.SignalPositionJump, it, collection, now)
		sig.PositionJump = &radar.PositionJumpDetails{
			PreviousPosition: int(prev),
			CurrentPosition:  int(curr),
			Jump:             jump,
		}
		out = append(out, sig)
	}
	return out
}
