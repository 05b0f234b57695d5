package segment

import (
	"regexp"
	"sort"
	"strings"
)

// These patterns match `events.name = 'v'`, `'v' = events.name`, and
// `events.name IN (...)` list members, tolerating backtick-quoted
// identifiers and either quote style around the literal. It is a
// best-effort static scan, not a SQL parser, and deliberately
// under-approximates on input it cannot parse.
var (
	eqLeftToRight = regexp.MustCompile(`events\x60?\.\x60?name\x60?\s*=\s*['"]([^'"]*)['"]`)
	eqRightToLeft = regexp.MustCompile(`['"]([^'"]*)['"]\s*=\s*events\x60?\.\x60?name\x60?`)
	inList        = regexp.MustCompile(`events\x60?\.\x60?name\x60?\s+IN\s*\(([^)]*)\)`)
	listLiteral   = regexp.MustCompile(`['"]([^'"]*)['"]`)
)

// ExtractEventTriggers returns the set of event names statically
// extractable from a segment's SQL. It never errors: on unparseable input
// it returns an empty set and the segment simply is not fast-pathed by
// event ingestion; it is still reevaluated on user writes and on segment
// create/update.
func ExtractEventTriggers(sql string) map[string]struct{} {
	normalized := strings.ReplaceAll(sql, "`", "")
	triggers := make(map[string]struct{})

	for _, m := range eqLeftToRight.FindAllStringSubmatch(normalized, -1) {
		triggers[m[1]] = struct{}{}
	}
	for _, m := range eqRightToLeft.FindAllStringSubmatch(normalized, -1) {
		triggers[m[1]] = struct{}{}
	}
	for _, m := range inList.FindAllStringSubmatch(normalized, -1) {
		for _, lit := range listLiteral.FindAllStringSubmatch(m[1], -1) {
			triggers[lit[1]] = struct{}{}
		}
	}
	return triggers
}

// TriggerNames returns ExtractEventTriggers as a sorted slice, for tests
// and for writing SegmentEventTrigger rows deterministically.
func TriggerNames(sql string) []string {
	set := ExtractEventTriggers(sql)
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
