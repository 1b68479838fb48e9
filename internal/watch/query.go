package watch

import (
	"sort"
	"strconv"
	"strings"

	"github.com/dgnsrekt/reviewsync/internal/page"
)

// EntriesQuery serializes watched entries as
// "<typeID>:<id1>,<id2>;<typeID2>:<id3>". Type groups and ids are sorted so
// identical watch sets produce identical URLs.
func EntriesQuery(entries []page.Entry) string {
	groups := make(map[string][]string)
	for _, e := range entries {
		groups[e.TypeID()] = append(groups[e.TypeID()], e.ID())
	}

	types := make([]string, 0, len(groups))
	for t := range groups {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return lessKey(types[i], types[j]) })

	parts := make([]string, 0, len(types))
	for _, t := range types {
		ids := groups[t]
		sort.Slice(ids, func(i, j int) bool { return lessKey(ids[i], ids[j]) })
		parts = append(parts, t+":"+strings.Join(ids, ","))
	}
	return strings.Join(parts, ";")
}

// ParseEntriesQuery is the inverse of EntriesQuery. It returns type ids
// mapped to entry ids in query order.
func ParseEntriesQuery(q string) map[string][]string {
	out := make(map[string][]string)
	for _, group := range strings.Split(q, ";") {
		typeID, ids, ok := strings.Cut(group, ":")
		if !ok || typeID == "" {
			continue
		}
		for _, id := range strings.Split(ids, ",") {
			if id = strings.TrimSpace(id); id != "" {
				out[typeID] = append(out[typeID], id)
			}
		}
	}
	return out
}

// lessKey compares numerically when both sides are integers.
func lessKey(a, b string) bool {
	ai, aerr := strconv.ParseInt(a, 10, 64)
	bi, berr := strconv.ParseInt(b, 10, 64)
	if aerr == nil && berr == nil {
		return ai < bi
	}
	return a < b
}
