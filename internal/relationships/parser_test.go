package relationships_test

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/f-sync/followtrack/internal/relationships"
)

func TestParseRelationshipFile(t *testing.T) {
	testCases := []struct {
		name               string
		rawText            string
		direction          relationships.Direction
		expectedIdentities []relationships.Identity
		expectedErr        error
		expectedMessage    string
	}{
		{
			name:      "flat list uses value and href",
			rawText:   `[{"string_list_data":[{"value":"alice","href":"https://instagram.com/alice"}]}]`,
			direction: relationships.Followers,
			expectedIdentities: []relationships.Identity{
				{Handle: "alice", ProfileReference: "https://instagram.com/alice"},
			},
		},
		{
			name:      "keyed following without href",
			rawText:   `{"relationships_following":[{"string_list_data":[{"value":"bob"}]}]}`,
			direction: relationships.Following,
			expectedIdentities: []relationships.Identity{
				{Handle: "bob", ProfileReference: ""},
			},
		},
		{
			name:      "keyed followers accepted in following slot",
			rawText:   `{"relationships_followers":[{"string_list_data":[{"value":"carol"}]}]}`,
			direction: relationships.Following,
			expectedIdentities: []relationships.Identity{
				{Handle: "carol"},
			},
		},
		{
			name: "keyed export with both lists prefers requested direction",
			rawText: `{"relationships_followers":[{"string_list_data":[{"value":"follower"}]}],
			           "relationships_following":[{"string_list_data":[{"value":"followed"}]}]}`,
			direction:          relationships.Following,
			expectedIdentities: []relationships.Identity{{Handle: "followed"}},
		},
		{
			name:      "title used when value missing",
			rawText:   `[{"title":"dave","string_list_data":[{"href":"https://www.instagram.com/_u/someone_else"}]}]`,
			direction: relationships.Followers,
			expectedIdentities: []relationships.Identity{
				{Handle: "dave", ProfileReference: "https://www.instagram.com/_u/someone_else"},
			},
		},
		{
			name: "href fallback handles plain and _u forms",
			rawText: `{"relationships_following":[
				{"title":"","string_list_data":[{"href":"https://www.instagram.com/_u/erin"}]},
				{"string_list_data":[{"value":"","href":"https://www.instagram.com/frank/?hl=en"}]},
				{"string_list_data":[{"href":"https://www.instagram.com/grace?igsh=1"}]}
			]}`,
			direction: relationships.Following,
			expectedIdentities: []relationships.Identity{
				{Handle: "erin", ProfileReference: "https://www.instagram.com/_u/erin"},
				{Handle: "frank", ProfileReference: "https://www.instagram.com/frank/?hl=en"},
				{Handle: "grace", ProfileReference: "https://www.instagram.com/grace?igsh=1"},
			},
		},
		{
			name: "entries without a handle are dropped and duplicates collapse",
			rawText: `[
				{"string_list_data":[{"value":"heidi","href":"first"},{"href":"https://example.com/nobody"}]},
				{"string_list_data":[{"value":"heidi","href":"second"}]},
				{"string_list_data":[{"value":"Heidi"}]}
			]`,
			direction: relationships.Followers,
			expectedIdentities: []relationships.Identity{
				{Handle: "heidi", ProfileReference: "first"},
				{Handle: "Heidi"},
			},
		},
		{
			name:      "byte order mark and whitespace are tolerated",
			rawText:   "\ufeff  [{\"string_list_data\":[{\"value\":\"ivan\"}]}]\n",
			direction: relationships.Followers,
			expectedIdentities: []relationships.Identity{
				{Handle: "ivan"},
			},
		},
		{
			name:            "malformed json",
			rawText:         `not json`,
			direction:       relationships.Followers,
			expectedErr:     relationships.ErrMalformedJSON,
			expectedMessage: "followers file is not valid JSON",
		},
		{
			name:            "empty input is malformed",
			rawText:         "   ",
			direction:       relationships.Following,
			expectedErr:     relationships.ErrMalformedJSON,
			expectedMessage: "following file is not valid JSON",
		},
		{
			name:            "object without relationship key",
			rawText:         `{"something_else":[]}`,
			direction:       relationships.Following,
			expectedErr:     relationships.ErrUnrecognizedShape,
			expectedMessage: "invalid following file format",
		},
		{
			name:            "scalar document",
			rawText:         `42`,
			direction:       relationships.Followers,
			expectedErr:     relationships.ErrUnrecognizedShape,
			expectedMessage: "invalid followers file format",
		},
		{
			name:        "entry of the wrong type",
			rawText:     `[{"string_list_data":"alice"}]`,
			direction:   relationships.Followers,
			expectedErr: relationships.ErrUnrecognizedShape,
		},
		{
			name:            "no usable handle yields empty result",
			rawText:         `[{"string_list_data":[{"href":"https://example.com/x"},{"value":""}]}]`,
			direction:       relationships.Followers,
			expectedErr:     relationships.ErrEmptyResult,
			expectedMessage: "followers file is empty",
		},
		{
			name:            "empty keyed list yields empty result",
			rawText:         `{"relationships_following":[]}`,
			direction:       relationships.Following,
			expectedErr:     relationships.ErrEmptyResult,
			expectedMessage: "following file is empty",
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			identities, err := relationships.ParseRelationshipFile(testCase.rawText, testCase.direction)
			if testCase.expectedErr != nil {
				if !errors.Is(err, testCase.expectedErr) {
					t.Fatalf("expected error %v, got %v", testCase.expectedErr, err)
				}
				var parseError *relationships.ParseError
				if !errors.As(err, &parseError) {
					t.Fatalf("expected *ParseError, got %T", err)
				}
				if parseError.Direction != testCase.direction {
					t.Fatalf("expected direction %s, got %s", testCase.direction, parseError.Direction)
				}
				if !strings.Contains(err.Error(), testCase.expectedMessage) {
					t.Fatalf("expected message to contain %q, got %q", testCase.expectedMessage, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRelationshipFile returned error: %v", err)
			}
			if !reflect.DeepEqual(identities, testCase.expectedIdentities) {
				t.Fatalf("unexpected identities: got %+v, want %+v", identities, testCase.expectedIdentities)
			}
		})
	}
}

func TestHandleFromProfileURL(t *testing.T) {
	testCases := map[string]string{
		"https://www.instagram.com/alice":         "alice",
		"https://instagram.com/_u/bob":            "bob",
		"https://www.instagram.com/carol/":        "carol",
		"https://www.instagram.com/dave?hl=en":    "dave",
		"https://example.com/erin":                "",
		"":                                        "",
		"https://www.instagram.com/":              "",
		"http://instagram.com/_u/frank/following": "frank",
	}
	for profileURL, expectedHandle := range testCases {
		if handle := relationships.HandleFromProfileURL(profileURL); handle != expectedHandle {
			t.Fatalf("HandleFromProfileURL(%q) = %q, want %q", profileURL, handle, expectedHandle)
		}
	}
}
