package snapshots

import (
	"sort"
	"time"

	"github.com/f-sync/followtrack/internal/relationships"
)

const takenAtPrecision = time.Millisecond

// Snapshot is a point-in-time capture of both relationship lists.
type Snapshot struct {
	TakenAt   time.Time
	Followers []relationships.Identity
	Following []relationships.Identity
}

// History is an ordered collection of snapshots, oldest first.
type History []Snapshot

// NewSnapshot builds a snapshot whose timestamp is normalized to UTC millisecond precision,
// the precision kept by the persisted format.
func NewSnapshot(takenAt time.Time, followers []relationships.Identity, following []relationships.Identity) Snapshot {
	return Snapshot{
		TakenAt:   NormalizeTakenAt(takenAt),
		Followers: followers,
		Following: following,
	}
}

// NormalizeTakenAt converts a timestamp to the UTC millisecond form stored in history.
func NormalizeTakenAt(takenAt time.Time) time.Time {
	return takenAt.UTC().Truncate(takenAtPrecision)
}

// Relationship returns the identity list for the requested direction.
func (snapshot Snapshot) Relationship(direction relationships.Direction) []relationships.Identity {
	if direction == relationships.Following {
		return snapshot.Following
	}
	return snapshot.Followers
}

// Sorted returns a copy ordered by TakenAt ascending. Snapshots sharing a timestamp keep
// their relative order.
func (history History) Sorted() History {
	sortedHistory := history.Clone()
	sort.SliceStable(sortedHistory, func(firstIndex, secondIndex int) bool {
		return sortedHistory[firstIndex].TakenAt.Before(sortedHistory[secondIndex].TakenAt)
	})
	return sortedHistory
}

// Clone returns a shallow copy of the history slice. Snapshots are immutable so their
// identity lists are shared.
func (history History) Clone() History {
	clonedHistory := make(History, len(history))
	copy(clonedHistory, history)
	return clonedHistory
}

// Latest returns the most recent snapshot.
func (history History) Latest() (Snapshot, bool) {
	if len(history) == 0 {
		return Snapshot{}, false
	}
	return history[len(history)-1], true
}

// LatestPair returns the two most recent snapshots, previous first.
func (history History) LatestPair() (Snapshot, Snapshot, bool) {
	if len(history) < 2 {
		return Snapshot{}, Snapshot{}, false
	}
	return history[len(history)-2], history[len(history)-1], true
}

// FindByTakenAt returns the first snapshot captured at exactly takenAt.
func (history History) FindByTakenAt(takenAt time.Time) (Snapshot, bool) {
	for _, snapshot := range history {
		if snapshot.TakenAt.Equal(takenAt) {
			return snapshot, true
		}
	}
	return Snapshot{}, false
}
