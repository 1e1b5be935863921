package billing

import (
	"slices"
	"strings"

	"github.com/johnmatter/timewarrior-invoice/pkg/timeentry"
)

// UnspecifiedKey groups entries that carry no usable tag.
const UnspecifiedKey = "unspecified"

// GroupKeyFunc selects the billing key for an entry.
type GroupKeyFunc func(timeentry.Entry) string

// SmallestTag groups by the lexicographically smallest tag. Entries may carry
// several tags, so the smallest one is the documented tie-break.
func SmallestTag(e timeentry.Entry) string {
	return smallest(e.Tags)
}

// TaskKey behaves like SmallestTag but ignores "project:"/"client:" tags and
// any tag listed in exclude (typically client identifiers used for filtering).
func TaskKey(exclude ...string) GroupKeyFunc {
	return func(e timeentry.Entry) string {
		tags := make([]string, 0, len(e.Tags))
		for _, tag := range e.Tags {
			if strings.HasPrefix(tag, "project:") || strings.HasPrefix(tag, "client:") {
				continue
			}
			if slices.Contains(exclude, tag) {
				continue
			}
			tags = append(tags, tag)
		}
		return smallest(tags)
	}
}

func smallest(tags []string) string {
	if len(tags) == 0 {
		return UnspecifiedKey
	}
	return slices.Min(tags)
}
