package schema

// Wildcard stands for every field not otherwise named in a priority list.
const Wildcard = "*"

// DefaultPriority is the presentation order of acquisition forms.
var DefaultPriority = []string{
	"num_images",
	"exp_time",
	"osc_range",
	"osc_start",
	"resolution",
	"transmission",
	"energy",
	Wildcard,
}

// Order returns the field names of s in presentation order. Named fields
// come first in priority order, then the remaining fields in declaration
// order at the position of the wildcard (or at the end when there is none).
// Priority entries not declared by s are skipped.
func Order(s *Schema, priority []string) []string {
	named := make(map[string]bool, len(priority))
	for _, p := range priority {
		if p != Wildcard && s.Has(p) {
			named[p] = true
		}
	}
	var rest []string
	for _, n := range s.names {
		if !named[n] {
			rest = append(rest, n)
		}
	}

	out := make([]string, 0, s.Len())
	seen := make(map[string]bool, s.Len())
	placed := false
	for _, p := range priority {
		if p == Wildcard {
			if !placed {
				out = append(out, rest...)
				placed = true
			}
			continue
		}
		if named[p] && !seen[p] {
			out = append(out, p)
			seen[p] = true
		}
	}
	if !placed {
		out = append(out, rest...)
	}
	return out
}
