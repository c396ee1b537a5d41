// Package eventcard turns assistant prose such as "I'll schedule a meeting
// on Friday at 3pm" into a structured card for display. Matching is a fixed
// heuristic; dates and times are passed through as written.
package eventcard

import (
	"regexp"
	"strings"
)

// Event is a calendar mention lifted out of reply text.
type Event struct {
	Title string `json:"title"`
	Date  string `json:"date"`
	Time  string `json:"time"`
}

// Extractor finds at most one event mention in a reply.
type Extractor interface {
	Extract(text string) (Event, bool)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(text string) (Event, bool)

func (f ExtractorFunc) Extract(text string) (Event, bool) { return f(text) }

// Nop never finds anything. Used when event cards are switched off.
var Nop Extractor = ExtractorFunc(func(string) (Event, bool) { return Event{}, false })

// Matches: schedule|add|set ... meeting|event ... on|for <date> at|@ <time>,
// with the time running to a sentence terminator or the end of the text.
var eventPattern = regexp.MustCompile(
	`(?is)\b(?:schedul\w*|add(?:ed|ing)?|set(?:ting)?)\b.*?` +
		`\b(meeting|event)s?\b.*?` +
		`\b(?:on|for)\s+(.+?)\s*(?:\bat\b|@)\s*(.+?)` +
		`(?:[.!?](?:\s|$)|$)`)

// Heuristic is the regexp based Extractor.
type Heuristic struct{}

func (Heuristic) Extract(text string) (Event, bool) {
	m := eventPattern.FindStringSubmatch(text)
	if m == nil {
		return Event{}, false
	}
	date, clock := m[2], m[3]
	if strings.TrimSpace(date) == "" || strings.TrimSpace(clock) == "" {
		return Event{}, false
	}
	return Event{
		Title: titleFor(m[1]),
		Date:  date,
		Time:  clock,
	}, true
}

func titleFor(noun string) string {
	if strings.EqualFold(noun, "event") {
		return "Event"
	}
	return "Meeting"
}
