package bill

import (
	"regexp"
	"strings"
)

// CommitteePrefix opens a tracking detail that records a committee referral.
const CommitteePrefix = "En comisión "

var trackingDate = regexp.MustCompile(`\d{2}/\d{2}/\d{4}`)

// CollapseSpace trims s and folds every whitespace run into one space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeName trims a raw signer token and rewrites its first double space,
// which separates surnames from given names at the source, into ", ".
func NormalizeName(raw string) string {
	return strings.Replace(strings.TrimSpace(raw), "  ", ", ", 1)
}

// ParseSigners splits a comma separated signer list. Blank tokens are dropped
// and duplicates collapse.
func ParseSigners(raw string) []Legislator {
	var out []Legislator
	for _, token := range strings.Split(raw, ",") {
		name := NormalizeName(token)
		if name == "" {
			continue
		}
		out = AppendUnique(out, Legislator{Name: name})
	}
	return out
}

// ParseTracking segments free text on dd/MM/yyyy dates. Each segment is paired
// with the date that precedes it; text before the first date, blank segments
// and impossible dates are skipped.
func ParseTracking(text string) []TrackingEvent {
	locs := trackingDate.FindAllStringIndex(text, -1)
	var out []TrackingEvent
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		detail := strings.TrimSpace(text[loc[1]:end])
		if detail == "" {
			continue
		}
		date, err := ParseDate(LayoutTracking, text[loc[0]:loc[1]])
		if err != nil {
			continue
		}
		out = AppendUnique(out, TrackingEvent{Date: date, Detail: detail})
	}
	return out
}

// CommitteeFromDetail extracts the committee named by a referral detail:
// the text after CommitteePrefix, trimmed, cut at the first hyphen.
func CommitteeFromDetail(detail string) (string, bool) {
	rest, ok := strings.CutPrefix(detail, CommitteePrefix)
	if !ok {
		return "", false
	}
	rest = strings.TrimSpace(rest)
	if i := strings.IndexByte(rest, '-'); i >= 0 {
		rest = rest[:i]
	}
	return rest, true
}

// CommitteesFromTracking derives the committee set of a tracking history.
func CommitteesFromTracking(events []TrackingEvent) []Committee {
	var out []Committee
	for _, ev := range events {
		if name, ok := CommitteeFromDetail(ev.Detail); ok && name != "" {
			out = AppendUnique(out, Committee{Name: name})
		}
	}
	return out
}
