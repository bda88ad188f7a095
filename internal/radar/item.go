package radar

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Category classifies a source on the surface layer.
type Category string

// Source categories recognised by the registry.
const (
	CategoryHotNational Category = "hot_national"
	CategoryHotLocal    Category = "hot_local"
	CategoryHotVertical Category = "hot_vertical"
	CategoryMedia       Category = "media"
	CategoryWechat      Category = "wechat"
)

// Collection names a raw-item partition. Each source writes into exactly one.
type Collection string

// Raw-item collections.
const (
	CollectionHotNational Collection = "hot_national"
	CollectionHotVertical Collection = "hot_vertical"
	CollectionAggregator  Collection = "aggregator"
	CollectionMedia       Collection = "media"
)

// Collections lists every raw-item collection.
var Collections = []Collection{
	CollectionHotNational,
	CollectionHotVertical,
	CollectionAggregator,
	CollectionMedia,
}

// Field names with first-class storage on Item.
const (
	FieldTitle    = "title"
	FieldURL      = "url"
	FieldPlatform = "platform"
	FieldPosition = "position"
	FieldHotValue = "hot_value"
)

// HistoryPoint is one observation of a time-varying field.
type HistoryPoint struct {
	TS  int64 `json:"ts"`
	Val any   `json:"val"`
}

// Float returns the observation as a number when it is numeric.
func (p HistoryPoint) Float() (float64, bool) {
	return ToFloat(p.Val)
}

// Item is one row on a hot list as observed by a surface source.
type Item struct {
	ItemID      string                    `json:"item_id"`
	Source      string                    `json:"source"`
	Category    Category                  `json:"category"`
	Title       string                    `json:"title"`
	URL         string                    `json:"url,omitempty"`
	Platform    string                    `json:"platform,omitempty"`
	Position    *int                      `json:"position,omitempty"`
	HotValue    *int64                    `json:"hot_value,omitempty"`
	Extra       map[string]any            `json:"extra,omitempty"`
	FirstSeenAt int64                     `json:"first_seen_at"`
	LastSeenAt  int64                     `json:"last_seen_at"`
	History     map[string][]HistoryPoint `json:"history,omitempty"`
}

// Field returns the current value of a named field and whether it is set.
func (it Item) Field(name string) (any, bool) {
	switch name {
	case FieldTitle:
		return it.Title, it.Title != ""
	case FieldURL:
		return it.URL, it.URL != ""
	case FieldPlatform:
		return it.Platform, it.Platform != ""
	case FieldPosition:
		if it.Position == nil {
			return nil, false
		}
		return *it.Position, true
	case FieldHotValue:
		if it.HotValue == nil {
			return nil, false
		}
		return *it.HotValue, true
	case "source":
		return it.Source, it.Source != ""
	case "category":
		return string(it.Category), it.Category != ""
	}
	v, ok := it.Extra[name]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// SetField overwrites the current value of a named field.
func (it *Item) SetField(name string, val any) {
	switch name {
	case FieldTitle:
		it.Title = toString(val)
	case FieldURL:
		it.URL = toString(val)
	case FieldPlatform:
		it.Platform = toString(val)
	case FieldPosition:
		if f, ok := ToFloat(val); ok {
			p := int(f)
			it.Position = &p
		}
	case FieldHotValue:
		if f, ok := ToFloat(val); ok {
			h := int64(f)
			it.HotValue = &h
		}
	default:
		if it.Extra == nil {
			it.Extra = map[string]any{}
		}
		it.Extra[name] = val
	}
}

// FieldString renders a field value for identity hashing. Missing values render empty.
func (it Item) FieldString(name string) string {
	v, ok := it.Field(name)
	if !ok {
		return ""
	}
	return toString(v)
}

// LatestPoint returns the newest history observation of a field.
func (it Item) LatestPoint(name string) (HistoryPoint, bool) {
	h := it.History[name]
	if len(h) == 0 {
		return HistoryPoint{}, false
	}
	return h[len(h)-1], true
}

// Clone returns a deep copy of the item.
func (it Item) Clone() Item {
	out := it
	if it.Position != nil {
		p := *it.Position
		out.Position = &p
	}
	if it.HotValue != nil {
		h := *it.HotValue
		out.HotValue = &h
	}
	if it.Extra != nil {
		out.Extra = make(map[string]any, len(it.Extra))
		for k, v := range it.Extra {
			out.Extra[k] = v
		}
	}
	if it.History != nil {
		out.History = make(map[string][]HistoryPoint, len(it.History))
		for k, v := range it.History {
			out.History[k] = append([]HistoryPoint(nil), v...)
		}
	}
	return out
}

// ToFloat converts decoded JSON and native numerics into a float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		if math.IsNaN(n) {
			return 0, false
		}
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func toString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	case json.Number:
		return s.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }

// Int64Ptr returns a pointer to v.
func Int64Ptr(v int64) *int64 { return &v }
