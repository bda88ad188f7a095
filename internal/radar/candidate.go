package radar

// CandidateStatus is a lifecycle state of a candidate topic.
type CandidateStatus string

// Candidate lifecycle states.
const (
	StatusEmerging  CandidateStatus = "emerging"
	StatusRising    CandidateStatus = "rising"
	StatusConfirmed CandidateStatus = "confirmed"
	StatusExploded  CandidateStatus = "exploded"
	StatusTracking  CandidateStatus = "tracking"
	StatusClosed    CandidateStatus = "closed"
	StatusFaded     CandidateStatus = "faded"
)

// ActiveStatuses lists every non-terminal candidate status.
var ActiveStatuses = []CandidateStatus{
	StatusEmerging,
	StatusRising,
	StatusConfirmed,
	StatusExploded,
	StatusTracking,
}

// Terminal reports whether no further transitions leave this status.
func (s CandidateStatus) Terminal() bool {
	return s == StatusClosed || s == StatusFaded
}

// Snapshot is the per-tick score aggregate of a candidate.
type Snapshot struct {
	TS       int64   `json:"ts"`
	ScorePos float64 `json:"score_pos"`
	SumHot   float64 `json:"sum_hot"`
}

// StatusChange records one lifecycle transition.
type StatusChange struct {
	TS     int64           `json:"ts"`
	Status CandidateStatus `json:"status"`
	Reason string          `json:"reason"`
}

// Candidate is a topic cluster tracked across cycles.
type Candidate struct {
	CandidateID    string          `json:"candidate_id"`
	CanonicalTitle string          `json:"canonical_title"`
	SourceTitles   []string        `json:"source_titles"`
	Status         CandidateStatus `json:"status"`
	Platforms      []string        `json:"platforms"`
	PlatformCount  int             `json:"platform_count"`
	Snapshots      []Snapshot      `json:"snapshots"`
	FirstSeenAt    int64           `json:"first_seen_at"`
	UpdatedAt      int64           `json:"updated_at"`
	StatusHistory  []StatusChange  `json:"status_history"`
}

// LatestSnapshot returns the newest snapshot if any exist.
func (c Candidate) LatestSnapshot() (Snapshot, bool) {
	if len(c.Snapshots) == 0 {
		return Snapshot{}, false
	}
	return c.Snapshots[len(c.Snapshots)-1], true
}

// Clone returns a deep copy of the candidate.
func (c Candidate) Clone() Candidate {
	out := c
	out.SourceTitles = append([]string(nil), c.SourceTitles...)
	out.Platforms = append([]string(nil), c.Platforms...)
	out.Snapshots = append([]Snapshot(nil), c.Snapshots...)
	out.StatusHistory = append([]StatusChange(nil), c.StatusHistory...)
	return out
}
