package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/f-sync/followtrack/internal/relationships"
	"github.com/f-sync/followtrack/internal/snapshots"
)

const (
	// TakenAtLayout is the ISO-8601 layout used for the snapshot date field.
	TakenAtLayout          = "2006-01-02T15:04:05.000Z"
	fileNameDateLayout     = "2006-01-02"
	fileNameFormat         = "instatrack_backup_%s.json"
	wholePayloadIndex      = -1
	errMessageEncode       = "encode backup"
	errMessageParseTakenAt = "parse snapshot date"
)

var recordValidator = validator.New()

// snapshotRecord is the interchange form of a snapshot. Identity lists are carried verbatim.
type snapshotRecord struct {
	Date      string                   `json:"date" validate:"required"`
	Followers []relationships.Identity `json:"followers" validate:"required"`
	Following []relationships.Identity `json:"following" validate:"required"`
}

// Encode serializes the history as a JSON array of snapshot records in the given order.
func Encode(history snapshots.History) ([]byte, error) {
	records := make([]snapshotRecord, 0, len(history))
	for _, snapshot := range history {
		records = append(records, snapshotRecord{
			Date:      snapshot.TakenAt.UTC().Format(TakenAtLayout),
			Followers: nonNilIdentities(snapshot.Followers),
			Following: nonNilIdentities(snapshot.Following),
		})
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageEncode, err)
	}
	return payload, nil
}

// Decode parses a backup payload into a history, preserving record order. It checks that
// the payload is an array and that every record carries a date and both identity lists;
// identity records themselves are taken as they are.
func Decode(blob []byte) (snapshots.History, error) {
	var probe json.RawMessage
	if err := json.Unmarshal(blob, &probe); err != nil {
		return nil, &RestoreError{Kind: MalformedPayload, Index: wholePayloadIndex, Err: err}
	}

	var rawRecords []json.RawMessage
	if err := json.Unmarshal(probe, &rawRecords); err != nil {
		return nil, &RestoreError{Kind: StructurallyInvalid, Index: wholePayloadIndex, Err: err}
	}
	if rawRecords == nil {
		return nil, &RestoreError{Kind: StructurallyInvalid, Index: wholePayloadIndex}
	}

	history := make(snapshots.History, 0, len(rawRecords))
	for index, rawRecord := range rawRecords {
		snapshot, err := decodeRecord(rawRecord)
		if err != nil {
			return nil, &RestoreError{Kind: StructurallyInvalid, Index: index, Err: err}
		}
		history = append(history, snapshot)
	}
	return history, nil
}

func decodeRecord(rawRecord json.RawMessage) (snapshots.Snapshot, error) {
	var record snapshotRecord
	if err := json.Unmarshal(rawRecord, &record); err != nil {
		return snapshots.Snapshot{}, err
	}
	if err := recordValidator.Struct(record); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
			return snapshots.Snapshot{}, fmt.Errorf("missing %s", jsonFieldName(validationErrors[0].Field()))
		}
		return snapshots.Snapshot{}, err
	}
	takenAt, err := time.Parse(time.RFC3339Nano, record.Date)
	if err != nil {
		return snapshots.Snapshot{}, fmt.Errorf("%s: %w", errMessageParseTakenAt, err)
	}
	return snapshots.Snapshot{
		TakenAt:   takenAt.UTC(),
		Followers: record.Followers,
		Following: record.Following,
	}, nil
}

// FileName names a backup downloaded on the given day.
func FileName(now time.Time) string {
	return fmt.Sprintf(fileNameFormat, now.UTC().Format(fileNameDateLayout))
}

func jsonFieldName(structField string) string {
	switch structField {
	case "Date":
		return "date"
	case "Followers":
		return "followers"
	case "Following":
		return "following"
	default:
		return structField
	}
}

func nonNilIdentities(identities []relationships.Identity) []relationships.Identity {
	if identities == nil {
		return []relationships.Identity{}
	}
	return identities
}
