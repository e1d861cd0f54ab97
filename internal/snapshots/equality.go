package snapshots

import "github.com/f-sync/followtrack/internal/relationships"

// AreEqual reports whether two snapshots hold the same followers and the same following
// accounts, compared as sets of handles. TakenAt is ignored.
func AreEqual(first Snapshot, second Snapshot) bool {
	return sameHandleSet(first.Followers, second.Followers) && sameHandleSet(first.Following, second.Following)
}

func sameHandleSet(first []relationships.Identity, second []relationships.Identity) bool {
	if len(first) != len(second) {
		return false
	}
	firstHandles := relationships.HandleSet(first)
	secondHandles := relationships.HandleSet(second)
	if len(firstHandles) != len(secondHandles) {
		return false
	}
	for handle := range firstHandles {
		if _, exists := secondHandles[handle]; !exists {
			return false
		}
	}
	return true
}
