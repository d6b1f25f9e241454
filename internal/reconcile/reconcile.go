// Package reconcile decides whether a tracking issue's description actually
// changed. The sync engine stamps every write with a "last updated" trailer,
// so comparisons strip that trailer first; otherwise every run would look
// like a change.
package reconcile

import (
	"strings"
	"time"
)

// TrailerPrefix introduces the synchronization trailer appended to every
// description the engine writes.
const TrailerPrefix = "last updated: "

// trailerSep separates the body from the trailer line.
const trailerSep = "\n\n"

// timestampLayout renders the trailer timestamp in en-US toLocaleString
// style, pinned to one zone so reruns from different machines agree.
const timestampLayout = "1/2/2006, 3:04:05 PM"

const timestampZone = "America/Los_Angeles"

// StripTrailer removes trailing synchronization trailers if present.
// Descriptions that already carried a trailer when the engine stamped them
// end up with several stacked, so stripping repeats until a fixed point.
// Idempotent: stripping twice yields the same result as once.
func StripTrailer(text string) string {
	for {
		stripped := stripOnce(text)
		if stripped == text {
			return text
		}
		text = stripped
	}
}

func stripOnce(text string) string {
	idx := strings.LastIndex(text, trailerSep+TrailerPrefix)
	if idx == -1 {
		return text
	}
	// Only a trailer if nothing but the marker line follows.
	rest := text[idx+len(trailerSep):]
	if strings.ContainsRune(rest, '\n') {
		return text
	}
	return text[:idx]
}

// EqualModuloTrailer reports whether two descriptions are the same once
// their trailers are stripped.
func EqualModuloTrailer(a, b string) bool {
	return StripTrailer(a) == StripTrailer(b)
}

// DiffNewLines returns the lines of incoming, in their original order, that
// do not appear verbatim anywhere in existing. This is a set-membership
// filter, not a structural diff: a line that merely moved counts as new.
func DiffNewLines(existing, incoming string) string {
	seen := make(map[string]struct{})
	for _, line := range strings.Split(existing, "\n") {
		seen[line] = struct{}{}
	}

	var fresh []string
	for _, line := range strings.Split(incoming, "\n") {
		if _, ok := seen[line]; !ok {
			fresh = append(fresh, line)
		}
	}
	return strings.Join(fresh, "\n")
}

// WithTrailer appends a freshly stamped trailer to the description.
func WithTrailer(text string, ts time.Time) string {
	return text + trailerSep + TrailerPrefix + FormatTimestamp(ts)
}

// FormatTimestamp renders a trailer timestamp in the fixed locale/zone
// pairing. Falls back to UTC when zone data is unavailable.
func FormatTimestamp(ts time.Time) string {
	loc, err := time.LoadLocation(timestampZone)
	if err != nil {
		loc = time.UTC
	}
	return ts.In(loc).Format(timestampLayout)
}
