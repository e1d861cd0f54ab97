package reconcile

import (
	"github.com/f-sync/followtrack/internal/relationships"
	"github.com/f-sync/followtrack/internal/snapshots"
)

// NonReciprocal lists, by handle, the accounts present in only one of the snapshot's lists.
// A missing list is treated as empty; use Analyze to have it reported.
func NonReciprocal(snapshot snapshots.Snapshot) NonReciprocity {
	return NonReciprocity{
		NotFollowingBack: handlesMissingFrom(snapshot.Following, relationships.HandleSet(snapshot.Followers)),
		NotFollowedBack:  handlesMissingFrom(snapshot.Followers, relationships.HandleSet(snapshot.Following)),
	}
}

// Analyze computes both non-reciprocity axes of snapshot and resolves their identities.
// A missing list fails only the axes that read it.
func Analyze(snapshot snapshots.Snapshot) Analysis {
	return Analysis{
		TakenAt:          snapshot.TakenAt,
		NotFollowingBack: analyzeAxis(snapshot, relationships.Following, relationships.Followers),
		NotFollowedBack:  analyzeAxis(snapshot, relationships.Followers, relationships.Following),
	}
}

func analyzeAxis(snapshot snapshots.Snapshot, source relationships.Direction, reference relationships.Direction) AxisResult {
	sourceIdentities := snapshot.Relationship(source)
	if sourceIdentities == nil {
		return AxisResult{Err: missingListError(analyzedSnapshotLabel, snapshot, source)}
	}
	referenceIdentities := snapshot.Relationship(reference)
	if referenceIdentities == nil {
		return AxisResult{Err: missingListError(analyzedSnapshotLabel, snapshot, reference)}
	}
	handles := handlesMissingFrom(sourceIdentities, relationships.HandleSet(referenceIdentities))
	return AxisResult{Handles: handles, Identities: ResolveIdentities(snapshot, handles)}
}

// ResolveIdentities maps handles to identities of snapshot. Followers take precedence over
// following on a shared handle; handles found in neither list are dropped.
func ResolveIdentities(snapshot snapshots.Snapshot, handles []string) []relationships.Identity {
	identitiesByHandle := make(map[string]relationships.Identity, len(snapshot.Followers)+len(snapshot.Following))
	for _, identity := range snapshot.Following {
		identitiesByHandle[identity.Handle] = identity
	}
	for _, identity := range snapshot.Followers {
		identitiesByHandle[identity.Handle] = identity
	}

	resolvedIdentities := make([]relationships.Identity, 0, len(handles))
	for _, handle := range handles {
		if identity, found := identitiesByHandle[handle]; found {
			resolvedIdentities = append(resolvedIdentities, identity)
		}
	}
	return resolvedIdentities
}

func handlesMissingFrom(identities []relationships.Identity, excludedHandles map[string]struct{}) []string {
	missingHandles := []string{}
	for _, identity := range identities {
		if _, excluded := excludedHandles[identity.Handle]; !excluded {
			missingHandles = append(missingHandles, identity.Handle)
		}
	}
	return missingHandles
}
