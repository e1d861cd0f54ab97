package reconcile

import "errors"

const (
	errMessageMissingRelationshipList = "snapshot is missing a relationship list"
	errMessageSnapshotNotFound        = "no snapshot captured at the requested time"
	missingListErrorFormat            = "%w: %s snapshot at %s has no %s list"
	snapshotNotFoundErrorFormat       = "%w: %s"
	errorTimestampLayout              = "2006-01-02T15:04:05.000Z07:00"
	previousSnapshotLabel             = "previous"
	latestSnapshotLabel               = "latest"
	analyzedSnapshotLabel             = "analyzed"
)

var (
	// ErrMissingRelationshipList reports a snapshot whose list for a direction is absent.
	ErrMissingRelationshipList = errors.New(errMessageMissingRelationshipList)
	// ErrSnapshotNotFound reports a requested timestamp with no matching snapshot.
	ErrSnapshotNotFound = errors.New(errMessageSnapshotNotFound)
)
