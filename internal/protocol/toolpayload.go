package protocol

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// Tool results arrive as the text of a two element tuple whose second
// element is None, e.g. ('{\"htmlLink\": \"...\"}', None).
var toolTuplePattern = regexp.MustCompile(`(?s)^\('(.+?)',\s*None\)$`)

// ToolPayload is the structured object recovered from a tool response.
type ToolPayload map[string]any

// HTMLLink returns the payload's htmlLink field when it is a non-empty string.
func (p ToolPayload) HTMLLink() (string, bool) {
	link, ok := p["htmlLink"].(string)
	if !ok || link == "" {
		return "", false
	}
	return link, true
}

// UnwrapToolPayload recovers the JSON object serialized inside a tool
// response. ok is false when text does not have the tuple shape; err is a
// *PayloadDecodeError when it does but the inner text is not a JSON object.
func UnwrapToolPayload(text string) (payload ToolPayload, ok bool, err error) {
	match := toolTuplePattern.FindStringSubmatch(text)
	if match == nil {
		return nil, false, nil
	}

	inner := unescapeToolString(match[1])

	var parsed map[string]any
	if err := json.Unmarshal([]byte(inner), &parsed); err != nil {
		return nil, false, &PayloadDecodeError{Payload: inner, Err: err}
	}
	if parsed == nil {
		return nil, false, &PayloadDecodeError{Payload: inner, Err: errors.New("payload is null")}
	}
	return ToolPayload(parsed), true, nil
}

// unescapeToolString undoes the escaping in a fixed order: literal \n
// sequences are dropped, then \" and \\ are collapsed.
func unescapeToolString(s string) string {
	s = strings.ReplaceAll(s, `\n`, "")
	s = strings.ReplaceAll(s, `\"`, `"`)
	s = strings.ReplaceAll(s, `\\`, `\`)
	return s
}
