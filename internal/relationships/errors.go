package relationships

import (
	"errors"
	"fmt"
)

const (
	errMessageMalformedJSON     = "export file is not valid JSON"
	errMessageUnrecognizedShape = "export file has an unrecognized format"
	errMessageEmptyResult       = "export file contains no accounts"
	malformedJSONFormat         = "%s file is not valid JSON: %v"
	unrecognizedShapeFormat     = "invalid %s file format: expected an array or an object with '%s' or '%s' key"
	unrecognizedShapeCauseFmt   = unrecognizedShapeFormat + ": %v"
	emptyResultFormat           = "%s file is empty. Check file content and format."
)

var (
	// ErrMalformedJSON matches parse failures caused by input that is not JSON.
	ErrMalformedJSON = errors.New(errMessageMalformedJSON)
	// ErrUnrecognizedShape matches parse failures caused by JSON of an unknown layout.
	ErrUnrecognizedShape = errors.New(errMessageUnrecognizedShape)
	// ErrEmptyResult matches parse failures where no account could be extracted.
	ErrEmptyResult = errors.New(errMessageEmptyResult)
)

// ParseErrorKind classifies relationship file parse failures.
type ParseErrorKind int

const (
	// MalformedJSON means the text is not structured JSON.
	MalformedJSON ParseErrorKind = iota + 1
	// UnrecognizedShape means the JSON matches neither supported layout.
	UnrecognizedShape
	// EmptyResult means extraction produced no identities.
	EmptyResult
)

// ParseError reports why a relationship export could not be turned into identities.
type ParseError struct {
	Kind      ParseErrorKind
	Direction Direction
	Err       error
}

// Error names the failing file by its direction so callers can surface it directly.
func (parseError *ParseError) Error() string {
	switch parseError.Kind {
	case MalformedJSON:
		return fmt.Sprintf(malformedJSONFormat, parseError.Direction, parseError.Err)
	case UnrecognizedShape:
		if parseError.Err != nil {
			return fmt.Sprintf(unrecognizedShapeCauseFmt, parseError.Direction, keyedFollowersKey, keyedFollowingKey, parseError.Err)
		}
		return fmt.Sprintf(unrecognizedShapeFormat, parseError.Direction, keyedFollowersKey, keyedFollowingKey)
	default:
		return fmt.Sprintf(emptyResultFormat, parseError.Direction)
	}
}

// Unwrap exposes the underlying decoder error, when there is one.
func (parseError *ParseError) Unwrap() error {
	return parseError.Err
}

// Is matches the sentinel that corresponds to the error kind.
func (parseError *ParseError) Is(target error) bool {
	return target == parseError.Kind.sentinel()
}

func (kind ParseErrorKind) sentinel() error {
	switch kind {
	case MalformedJSON:
		return ErrMalformedJSON
	case UnrecognizedShape:
		return ErrUnrecognizedShape
	case EmptyResult:
		return ErrEmptyResult
	default:
		return nil
	}
}
