// Package memory provides in-process implementations of the radar stores for
// development, the CLI and tests. Every store is safe for concurrent use and
// returns copies so callers never alias stored state.
package memory
