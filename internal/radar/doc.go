// Package radar defines the core types and storage contracts shared by the
// ingestion, detection, candidate and deep-crawl subsystems of the hot-list
// radar.
package radar
