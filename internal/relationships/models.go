package relationships

import "fmt"

const (
	directionFollowersName = "followers"
	directionFollowingName = "following"
	directionUnknownFormat = "direction(%d)"
)

// Identity is a single account captured from an export file.
// Two identities describe the same account only when their handles match exactly.
type Identity struct {
	Handle           string `json:"username"`
	ProfileReference string `json:"profileUrl"`
}

// Direction selects one of the two relationship lists.
type Direction int

const (
	// Followers is the list of accounts following the owner.
	Followers Direction = iota
	// Following is the list of accounts the owner follows.
	Following
)

// String returns the lower-case list name.
func (direction Direction) String() string {
	switch direction {
	case Followers:
		return directionFollowersName
	case Following:
		return directionFollowingName
	default:
		return fmt.Sprintf(directionUnknownFormat, int(direction))
	}
}

// Directions lists both relationship directions in display order.
func Directions() []Direction {
	return []Direction{Followers, Following}
}

// HandleSet indexes identities by handle.
func HandleSet(identities []Identity) map[string]struct{} {
	handles := make(map[string]struct{}, len(identities))
	for _, identity := range identities {
		handles[identity.Handle] = struct{}{}
	}
	return handles
}

// Handles returns the handles of the identities in their original order.
func Handles(identities []Identity) []string {
	handles := make([]string, 0, len(identities))
	for _, identity := range identities {
		handles = append(handles, identity.Handle)
	}
	return handles
}
