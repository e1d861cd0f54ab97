package reconcile

import (
	"fmt"
	"time"

	"github.com/f-sync/followtrack/internal/relationships"
	"github.com/f-sync/followtrack/internal/snapshots"
)

// Diff computes the identities added to and removed from the direction's list between
// previous and latest, matching identities by handle.
func Diff(direction relationships.Direction, previous snapshots.Snapshot, latest snapshots.Snapshot) (Delta, error) {
	previousIdentities := previous.Relationship(direction)
	if previousIdentities == nil {
		return Delta{}, missingListError(previousSnapshotLabel, previous, direction)
	}
	latestIdentities := latest.Relationship(direction)
	if latestIdentities == nil {
		return Delta{}, missingListError(latestSnapshotLabel, latest, direction)
	}

	return Delta{
		Direction: direction,
		Added:     identitiesMissingFrom(latestIdentities, relationships.HandleSet(previousIdentities)),
		Removed:   identitiesMissingFrom(previousIdentities, relationships.HandleSet(latestIdentities)),
	}, nil
}

// LatestChanges diffs the two most recent snapshots of history in both directions.
// It reports false when history holds fewer than two snapshots.
func LatestChanges(history snapshots.History) (Changes, bool) {
	previous, latest, ok := history.LatestPair()
	if !ok {
		return Changes{}, false
	}
	return compare(previous, latest), true
}

// Between diffs the snapshots captured at from and to in both directions.
func Between(history snapshots.History, from time.Time, to time.Time) (Changes, error) {
	previous, found := history.FindByTakenAt(from)
	if !found {
		return Changes{}, fmt.Errorf(snapshotNotFoundErrorFormat, ErrSnapshotNotFound, from.UTC().Format(errorTimestampLayout))
	}
	latest, found := history.FindByTakenAt(to)
	if !found {
		return Changes{}, fmt.Errorf(snapshotNotFoundErrorFormat, ErrSnapshotNotFound, to.UTC().Format(errorTimestampLayout))
	}
	return compare(previous, latest), nil
}

func compare(previous snapshots.Snapshot, latest snapshots.Snapshot) Changes {
	changes := Changes{PreviousTakenAt: previous.TakenAt, LatestTakenAt: latest.TakenAt}
	followersDelta, followersErr := Diff(relationships.Followers, previous, latest)
	changes.Followers = DeltaResult{Delta: followersDelta, Err: followersErr}
	followingDelta, followingErr := Diff(relationships.Following, previous, latest)
	changes.Following = DeltaResult{Delta: followingDelta, Err: followingErr}
	return changes
}

func identitiesMissingFrom(identities []relationships.Identity, excludedHandles map[string]struct{}) []relationships.Identity {
	missingIdentities := []relationships.Identity{}
	for _, identity := range identities {
		if _, excluded := excludedHandles[identity.Handle]; !excluded {
			missingIdentities = append(missingIdentities, identity)
		}
	}
	return missingIdentities
}

func missingListError(label string, snapshot snapshots.Snapshot, direction relationships.Direction) error {
	return fmt.Errorf(missingListErrorFormat, ErrMissingRelationshipList, label, snapshot.TakenAt.UTC().Format(errorTimestampLayout), direction)
}
