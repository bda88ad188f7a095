// Package queue holds the encoding shared by the two-tier task queue
// implementations. Entries are scored tier×10^10 + push time (seconds with
// millisecond precision) and stored under the member "tier:task_id", so user
// entries always sort ahead of system entries and each tier is FIFO.
package queue

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/JakeFAU/hotlist-radar/internal/radar"
)

// Member renders the sorted-set member of a task.
func Member(tier radar.Tier, taskID string) string {
	return strconv.Itoa(int(tier)) + ":" + taskID
}

// ParseMember splits a member into tier and task id.
func ParseMember(member string) (radar.Tier, string, error) {
	tierText, id, ok := strings.Cut(member, ":")
	if !ok || id == "" {
		return 0, "", fmt.Errorf("malformed queue member %q", member)
	}
	tier, err := strconv.Atoi(tierText)
	if err != nil {
		return 0, "", fmt.Errorf("malformed queue tier %q: %w", member, err)
	}
	return radar.Tier(tier), id, nil
}

// Tiers lists every tier from highest to lowest priority.
var Tiers = []radar.Tier{radar.TierUser, radar.TierSystem}
