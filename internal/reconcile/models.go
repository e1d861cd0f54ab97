package reconcile

import (
	"time"

	"github.com/f-sync/followtrack/internal/relationships"
)

// Delta lists identities that appeared in or vanished from one relationship list between
// two snapshots. Added keeps the order of the later list, Removed the order of the earlier.
type Delta struct {
	Direction relationships.Direction
	Added     []relationships.Identity
	Removed   []relationships.Identity
}

// DeltaResult carries one direction's delta or the reason it could not be computed.
type DeltaResult struct {
	Delta Delta
	Err   error
}

// Changes holds the deltas of both directions between two snapshots.
type Changes struct {
	PreviousTakenAt time.Time
	LatestTakenAt   time.Time
	Followers       DeltaResult
	Following       DeltaResult
}

// Result returns the delta result for direction.
func (changes Changes) Result(direction relationships.Direction) DeltaResult {
	if direction == relationships.Following {
		return changes.Following
	}
	return changes.Followers
}

// NonReciprocity holds the handles present in only one of a snapshot's two lists.
type NonReciprocity struct {
	// NotFollowingBack are accounts the owner follows that do not follow the owner.
	NotFollowingBack []string
	// NotFollowedBack are followers the owner does not follow.
	NotFollowedBack []string
}

// AxisResult is one non-reciprocity axis with its identities resolved.
type AxisResult struct {
	Handles    []string
	Identities []relationships.Identity
	Err        error
}

// Analysis is the non-reciprocity breakdown of a single snapshot. Each axis is computed
// independently.
type Analysis struct {
	TakenAt          time.Time
	NotFollowingBack AxisResult
	NotFollowedBack  AxisResult
}

// TrendPoint is the relationship counts of one snapshot.
type TrendPoint struct {
	TakenAt        time.Time
	FollowerCount  int
	FollowingCount int
}

// Growth is the change of a count relative to the previous snapshot.
type Growth struct {
	Difference int
	IsPositive bool
}

// HistoryOverview summarizes a history for display.
type HistoryOverview struct {
	Trend                 []TrendPoint
	Latest                TrendPoint
	HasPrevious           bool
	FollowerGrowth        Growth
	FollowingGrowth       Growth
	NotFollowingBackCount int
	NotFollowedBackCount  int
}
