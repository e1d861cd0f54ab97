package backup

import (
	"errors"
	"fmt"
)

const (
	errMessageMalformedPayload     = "backup is not valid JSON"
	errMessageStructurallyInvalid  = "invalid backup file format"
	restoreErrorWithCauseFormat    = "%s: %v"
	restoreErrorWithPositionFormat = "%s: snapshot %d: %v"
)

var (
	// ErrMalformedPayload matches restore failures caused by a blob that is not JSON.
	ErrMalformedPayload = errors.New(errMessageMalformedPayload)
	// ErrStructurallyInvalid matches restore failures caused by JSON of the wrong layout.
	ErrStructurallyInvalid = errors.New(errMessageStructurallyInvalid)
)

// RestoreErrorKind classifies backup decoding failures.
type RestoreErrorKind int

const (
	// MalformedPayload means the blob could not be parsed as JSON.
	MalformedPayload RestoreErrorKind = iota + 1
	// StructurallyInvalid means the JSON is not a list of complete snapshot records.
	StructurallyInvalid
)

// RestoreError reports why a backup could not be decoded. Index is the zero-based position
// of the offending snapshot record, or -1 when the failure concerns the whole payload.
type RestoreError struct {
	Kind  RestoreErrorKind
	Index int
	Err   error
}

func (restoreError *RestoreError) Error() string {
	message := errMessageStructurallyInvalid
	if restoreError.Kind == MalformedPayload {
		message = errMessageMalformedPayload
	}
	if restoreError.Err == nil {
		return message
	}
	if restoreError.Index >= 0 {
		return fmt.Sprintf(restoreErrorWithPositionFormat, message, restoreError.Index, restoreError.Err)
	}
	return fmt.Sprintf(restoreErrorWithCauseFormat, message, restoreError.Err)
}

func (restoreError *RestoreError) Unwrap() error {
	return restoreError.Err
}

// Is matches ErrMalformedPayload or ErrStructurallyInvalid according to Kind.
func (restoreError *RestoreError) Is(target error) bool {
	switch restoreError.Kind {
	case MalformedPayload:
		return target == ErrMalformedPayload
	case StructurallyInvalid:
		return target == ErrStructurallyInvalid
	default:
		return false
	}
}
