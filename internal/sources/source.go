// Package sources loads the per-source declarative files and the platform
// weight table that drive ingestion and scoring.
package sources

import (
	"fmt"
	"strings"

	"github.com/JakeFAU/hotlist-radar/internal/radar"
)

// Source types.
const (
	TypeScraper    = "scraper"
	TypeAggregator = "aggregator"
)

// Schedule describes when the external scheduler wakes a source.
type Schedule struct {
	Type    string `yaml:"type"`
	Minutes int    `yaml:"minutes,omitempty"`
	Hour    string `yaml:"hour,omitempty"`
	Minute  string `yaml:"minute,omitempty"`
	Second  string `yaml:"second,omitempty"`
}

// Source is one declarative source file.
type Source struct {
	Name              string         `yaml:"name"`
	DisplayName       string         `yaml:"display_name"`
	Category          radar.Category `yaml:"category"`
	SourceType        string         `yaml:"source_type"`
	AggregatorName    string         `yaml:"aggregator_name,omitempty"`
	AggregatorSource  string         `yaml:"aggregator_source,omitempty"`
	SpiderName        string         `yaml:"spider_name,omitempty"`
	MongoCollection   string         `yaml:"mongo_collection,omitempty"`
	Platform          string         `yaml:"platform,omitempty"`
	DedupFields       []string       `yaml:"dedup_fields"`
	TimeVaryingFields []string       `yaml:"time_varying_fields"`
	Schedule          Schedule       `yaml:"schedule"`
	Enabled           bool           `yaml:"enabled"`
}

// Collection returns the raw-item collection this source writes into.
func (s Source) Collection() radar.Collection {
	if s.MongoCollection != "" {
		return radar.Collection(strings.TrimSuffix(s.MongoCollection, "_items"))
	}
	if s.SourceType == TypeAggregator {
		return radar.CollectionAggregator
	}
	switch s.Category {
	case radar.CategoryHotVertical:
		return radar.CollectionHotVertical
	case radar.CategoryMedia, radar.CategoryWechat:
		return radar.CollectionMedia
	default:
		return radar.CollectionHotNational
	}
}

// DefaultPlatform returns the platform stamped on items that carry none.
func (s Source) DefaultPlatform() string {
	if s.Platform != "" {
		return s.Platform
	}
	if s.SourceType == TypeAggregator && s.AggregatorSource != "" {
		return s.AggregatorSource
	}
	return s.Name
}

// HasTimeVarying reports whether re-observations update the row.
func (s Source) HasTimeVarying() bool {
	return len(s.TimeVaryingFields) > 0
}

// Validate enforces required keys and known enums.
func (s Source) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("source name is required")
	}
	switch s.Category {
	case radar.CategoryHotNational, radar.CategoryHotLocal, radar.CategoryHotVertical,
		radar.CategoryMedia, radar.CategoryWechat:
	default:
		return fmt.Errorf("source %s: unknown category %q", s.Name, s.Category)
	}
	switch s.SourceType {
	case TypeScraper, TypeAggregator:
	default:
		return fmt.Errorf("source %s: unknown source_type %q", s.Name, s.SourceType)
	}
	if len(s.DedupFields) == 0 {
		return fmt.Errorf("source %s: dedup_fields must not be empty", s.Name)
	}
	switch s.Schedule.Type {
	case "", "interval", "cron":
	default:
		return fmt.Errorf("source %s: unknown schedule type %q", s.Name, s.Schedule.Type)
	}
	if s.Schedule.Type == "interval" && s.Schedule.Minutes <= 0 {
		return fmt.Errorf("source %s: interval schedule needs minutes > 0", s.Name)
	}
	valid := false
	for _, c := range radar.Collections {
		if s.Collection() == c {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("source %s: unknown collection %q", s.Name, s.MongoCollection)
	}
	return nil
}
