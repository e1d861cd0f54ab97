package relationships

import (
	"bytes"
	"encoding/json"
	"regexp"
)

const (
	keyedFollowersKey     = "relationships_followers"
	keyedFollowingKey     = "relationships_following"
	profileHandlePattern  = `instagram\.com/(?:_u/)?([^/?]+)`
	jsonArrayOpenToken    = '['
	jsonObjectOpenToken   = '{'
	utf8ByteOrderMarkText = "\ufeff"
)

var reProfileHandle = regexp.MustCompile(profileHandlePattern)

type exportShapeKind int

const (
	shapeFlatList exportShapeKind = iota + 1
	shapeKeyedObject
)

// exportValue is one element of an entry's string_list_data sequence.
type exportValue struct {
	Value string `json:"value"`
	Href  string `json:"href"`
}

// exportEntry is a single account entry shared by both export layouts.
type exportEntry struct {
	Title          string        `json:"title"`
	StringListData []exportValue `json:"string_list_data"`
}

type keyedExport struct {
	Followers *[]exportEntry `json:"relationships_followers"`
	Following *[]exportEntry `json:"relationships_following"`
}

// exportDocument is the result of shape detection: the layout that was recognized and the
// entry list it carries.
type exportDocument struct {
	shape   exportShapeKind
	entries []exportEntry
}

// ParseRelationshipFile converts the raw text of an Instagram followers or following export
// into identities. The layout is detected from the document structure; direction only
// names the file in errors and picks a key when a keyed export carries both lists.
func ParseRelationshipFile(rawText string, direction Direction) ([]Identity, error) {
	document, parseError := detectExportShape([]byte(rawText), direction)
	if parseError != nil {
		return nil, parseError
	}
	identities := extractIdentities(document.entries)
	if len(identities) == 0 {
		return nil, &ParseError{Kind: EmptyResult, Direction: direction}
	}
	return identities, nil
}

func detectExportShape(rawContent []byte, direction Direction) (exportDocument, *ParseError) {
	trimmedContent := bytes.TrimSpace(bytes.TrimPrefix(rawContent, []byte(utf8ByteOrderMarkText)))

	var probe json.RawMessage
	if err := json.Unmarshal(trimmedContent, &probe); err != nil {
		return exportDocument{}, &ParseError{Kind: MalformedJSON, Direction: direction, Err: err}
	}

	switch trimmedContent[0] {
	case jsonArrayOpenToken:
		var entries []exportEntry
		if err := json.Unmarshal(trimmedContent, &entries); err != nil {
			return exportDocument{}, &ParseError{Kind: UnrecognizedShape, Direction: direction, Err: err}
		}
		return exportDocument{shape: shapeFlatList, entries: entries}, nil
	case jsonObjectOpenToken:
		var keyed keyedExport
		if err := json.Unmarshal(trimmedContent, &keyed); err != nil {
			return exportDocument{}, &ParseError{Kind: UnrecognizedShape, Direction: direction, Err: err}
		}
		entries, found := keyed.entriesFor(direction)
		if !found {
			return exportDocument{}, &ParseError{Kind: UnrecognizedShape, Direction: direction}
		}
		return exportDocument{shape: shapeKeyedObject, entries: entries}, nil
	default:
		return exportDocument{}, &ParseError{Kind: UnrecognizedShape, Direction: direction}
	}
}

// entriesFor prefers the list named after the requested direction and falls back to the
// other list so a keyed export is accepted in either upload slot.
func (keyed keyedExport) entriesFor(direction Direction) ([]exportEntry, bool) {
	preferred, fallback := keyed.Followers, keyed.Following
	if direction == Following {
		preferred, fallback = keyed.Following, keyed.Followers
	}
	if preferred != nil {
		return *preferred, true
	}
	if fallback != nil {
		return *fallback, true
	}
	return nil, false
}

func extractIdentities(entries []exportEntry) []Identity {
	identities := make([]Identity, 0, len(entries))
	seenHandles := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		for _, value := range entry.StringListData {
			handle := deriveHandle(value, entry.Title)
			if handle == "" {
				continue
			}
			if _, duplicate := seenHandles[handle]; duplicate {
				continue
			}
			seenHandles[handle] = struct{}{}
			identities = append(identities, Identity{Handle: handle, ProfileReference: value.Href})
		}
	}
	return identities
}

func deriveHandle(value exportValue, title string) string {
	if value.Value != "" {
		return value.Value
	}
	if title != "" {
		return title
	}
	return HandleFromProfileURL(value.Href)
}

// HandleFromProfileURL extracts the account handle from an instagram.com profile link,
// accepting both the plain and the "_u/" forms. It returns "" when no handle is present.
func HandleFromProfileURL(profileURL string) string {
	if profileURL == "" {
		return ""
	}
	match := reProfileHandle.FindStringSubmatch(profileURL)
	if len(match) != 2 {
		return ""
	}
	return match[1]
}
