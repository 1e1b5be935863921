package billing

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/johnmatter/timewarrior-invoice/pkg/timeentry"
)

const (
	// HoursPlaces is the precision of Item.Hours.
	HoursPlaces = 2
	// CurrencyPlaces is the precision of every monetary amount.
	CurrencyPlaces = 2
)

var nanosPerHour = decimal.NewFromInt(int64(time.Hour))

// Item is one rated line on an invoice.
type Item struct {
	Key         string          `json:"key"`
	Description string          `json:"description"`
	Hours       decimal.Decimal `json:"hours"`
	Rate        decimal.Decimal `json:"rate"`
	Amount      decimal.Decimal `json:"amount"`
	Tags        []string        `json:"tags"` // distinct tags seen in the group, ascending
	Entries     int             `json:"entries"`
	OpenEntries int             `json:"open_entries,omitempty"`
}

// Aggregator turns entries into line items.
type Aggregator struct {
	// KeyFunc selects the grouping key. Nil means SmallestTag.
	KeyFunc GroupKeyFunc
	// Sink receives a KindOpenInterval diagnostic for every open entry.
	Sink timeentry.Sink
}

// Aggregate groups entries with SmallestTag and rates them.
func Aggregate(entries []timeentry.Entry, rates RateTable) ([]Item, error) {
	return Aggregator{}.Aggregate(entries, rates)
}

type group struct {
	key         string
	duration    time.Duration
	entries     int
	open        int
	tags        map[string]struct{}
	annotations []string
}

// Aggregate returns one Item per distinct key, ordered by the first entry
// that produced the key. Durations are summed exactly and converted to
// hours once per group, so output is reproducible for identical input.
// Groups whose entries are all open still yield a zero-amount item.
func (a Aggregator) Aggregate(entries []timeentry.Entry, rates RateTable) ([]Item, error) {
	keyFn := a.KeyFunc
	if keyFn == nil {
		keyFn = SmallestTag
	}

	var order []*group
	groups := make(map[string]*group)

	for _, e := range entries {
		key := keyFn(e)
		g, ok := groups[key]
		if !ok {
			g = &group{key: key, tags: make(map[string]struct{})}
			groups[key] = g
			order = append(order, g)
		}

		g.entries++
		for _, tag := range e.Tags {
			g.tags[tag] = struct{}{}
		}
		if e.Annotation != "" && !slices.Contains(g.annotations, e.Annotation) {
			g.annotations = append(g.annotations, e.Annotation)
		}

		if e.IsOpen() {
			g.open++
			if a.Sink != nil {
				a.Sink(timeentry.Diagnostic{
					Kind:    timeentry.KindOpenInterval,
					Index:   e.Index,
					Raw:     e.String(),
					Message: fmt.Sprintf("open interval excluded from %q; contributes zero hours", key),
				})
			}
			continue
		}
		g.duration += e.Duration()
	}

	items := make([]Item, 0, len(order))
	for _, g := range order {
		rate, err := rates.Lookup(g.key)
		if err != nil {
			return nil, err
		}

		hours := decimal.NewFromInt(int64(g.duration)).Div(nanosPerHour).RoundBank(HoursPlaces)
		items = append(items, Item{
			Key:         g.key,
			Description: describe(g),
			Hours:       hours,
			Rate:        rate,
			Amount:      hours.Mul(rate).RoundBank(CurrencyPlaces),
			Tags:        sortedKeys(g.tags),
			Entries:     g.entries,
			OpenEntries: g.open,
		})
	}
	return items, nil
}

// TotalHours sums the hours of items.
func TotalHours(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Hours)
	}
	return total
}

// Keys returns the billing keys of items in item order.
func Keys(items []Item) []string {
	keys := make([]string, 0, len(items))
	for _, item := range items {
		keys = append(keys, item.Key)
	}
	return keys
}

func describe(g *group) string {
	if len(g.annotations) == 0 {
		return g.key
	}
	return g.key + ": " + strings.Join(g.annotations, "; ")
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
