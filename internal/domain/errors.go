package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the collaborator failure modes that degrade rather
// than abort a run.
var (
	// ErrCacheUnavailable marks the flood state cache as unreachable. Every
	// cache operation degrades to "not cached"; the run proceeds as if all
	// floods were new.
	ErrCacheUnavailable = errors.New("flood state cache unavailable")

	// ErrBrokerUnavailable marks the message broker as unreachable at
	// connection time.
	ErrBrokerUnavailable = errors.New("message broker unavailable")

	// ErrMissingFloodArea marks a warning with no flood area polygon
	// reference, fatal to that one item.
	ErrMissingFloodArea = errors.New("flood area polygon reference missing")
)

// GeometryDecodeError reports malformed GeoJSON or geometry input. It is
// fatal to processing the one flood it belongs to, never to the batch.
type GeometryDecodeError struct {
	FloodAreaID string
	Err         error
}

func (e *GeometryDecodeError) Error() string {
	return fmt.Sprintf("decode geometry for flood area %s: %v", e.FloodAreaID, e.Err)
}

func (e *GeometryDecodeError) Unwrap() error { return e.Err }

// SpatialQueryError reports one failed spatial-store query. The failing
// shard, area or district contributes nothing, but sibling queries continue;
// the owning MatchResult is marked incomplete.
type SpatialQueryError struct {
	Level    string // "shardmap", "area", "district" or "postcode"
	Database string
	Scope    string // area code or district name, where applicable
	Err      error
}

func (e *SpatialQueryError) Error() string {
	if e.Scope == "" {
		return fmt.Sprintf("%s query against %s: %v", e.Level, e.Database, e.Err)
	}
	return fmt.Sprintf("%s query against %s (%s): %v", e.Level, e.Database, e.Scope, e.Err)
}

func (e *SpatialQueryError) Unwrap() error { return e.Err }

// UpstreamFetchError reports a failed fetch of a flood's polygon document,
// fatal to the one item.
type UpstreamFetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *UpstreamFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch flood polygon %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch flood polygon %s: %v", e.URL, e.Err)
}

func (e *UpstreamFetchError) Unwrap() error { return e.Err }

// ResolveError is the per-item error record accompanying a pipeline run's
// result list. Callers that need an all-or-nothing guarantee inspect these
// records; the result list itself is always returned, possibly partial.
type ResolveError struct {
	FloodAreaID string
	Stage       string // "fetch", "subdivide", "match" or "dispatch"
	Err         error
}

func (e ResolveError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.FloodAreaID, e.Err)
}

func (e ResolveError) Unwrap() error { return e.Err }
