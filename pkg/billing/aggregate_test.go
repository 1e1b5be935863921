package billing

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/johnmatter/timewarrior-invoice/pkg/timeentry"
)

func entry(start, end string, tags ...string) timeentry.Entry {
	s, err := timeentry.ParseTimestamp(start)
	if err != nil {
		panic(err)
	}
	e := timeentry.Entry{Start: s, Tags: tags}
	if end != "" {
		t, err := timeentry.ParseTimestamp(end)
		if err != nil {
			panic(err)
		}
		e.End = &t
	}
	return e
}

func rates(pairs map[string]string) RateTable {
	table := RateTable{}
	for k, v := range pairs {
		table[k] = decimal.RequireFromString(v)
	}
	return table
}

func TestAggregateSingleGroup(t *testing.T) {
	entries := []timeentry.Entry{
		entry("2025-07-01T09:00", "2025-07-01T11:00", "code"),
		entry("2025-07-01T13:00", "2025-07-01T14:30", "code"),
	}

	items, err := Aggregate(entries, rates(map[string]string{"code": "150.0"}))
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("Aggregate() returned %d items, expected 1", len(items))
	}

	item := items[0]
	if item.Description != "code" {
		t.Errorf("Description = %q, expected %q", item.Description, "code")
	}
	if got := item.Hours.StringFixed(2); got != "3.50" {
		t.Errorf("Hours = %s, expected 3.50", got)
	}
	if got := item.Amount.StringFixed(2); got != "525.00" {
		t.Errorf("Amount = %s, expected 525.00", got)
	}
	if item.Entries != 2 {
		t.Errorf("Entries = %d, expected 2", item.Entries)
	}
}

func TestAggregateSmallestTagWins(t *testing.T) {
	entries := []timeentry.Entry{
		entry("2025-07-01T09:00", "2025-07-01T10:00", "code", "design"),
	}
	items, err := Aggregate(entries, rates(map[string]string{"default": "100"}))
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if items[0].Key != "code" {
		t.Errorf("Key = %q, expected %q", items[0].Key, "code")
	}
	if !slices.Equal(items[0].Tags, []string{"code", "design"}) {
		t.Errorf("Tags = %v", items[0].Tags)
	}
}

func TestAggregateUntaggedEntries(t *testing.T) {
	entries := []timeentry.Entry{
		entry("2025-07-01T09:00", "2025-07-01T09:30"),
	}
	items, err := Aggregate(entries, rates(map[string]string{"default": "80"}))
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if items[0].Key != UnspecifiedKey {
		t.Errorf("Key = %q, expected %q", items[0].Key, UnspecifiedKey)
	}
	if got := items[0].Amount.StringFixed(2); got != "40.00" {
		t.Errorf("Amount = %s, expected 40.00", got)
	}
}

func TestAggregateFirstSeenOrder(t *testing.T) {
	entries := []timeentry.Entry{
		entry("2025-07-01T09:00", "2025-07-01T10:00", "review"),
		entry("2025-07-01T10:00", "2025-07-01T11:00", "code"),
		entry("2025-07-01T11:00", "2025-07-01T12:00", "review"),
		entry("2025-07-01T12:00", "2025-07-01T13:00", "admin"),
	}
	items, err := Aggregate(entries, rates(map[string]string{"default": "100"}))
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	want := []string{"review", "code", "admin"}
	if got := Keys(items); !slices.Equal(got, want) {
		t.Errorf("Keys() = %v, expected %v", got, want)
	}
}

func TestAggregateRateResolution(t *testing.T) {
	table := rates(map[string]string{"code": "150", "default": "90"})
	entries := []timeentry.Entry{
		entry("2025-07-01T09:00", "2025-07-01T10:00", "code"),
		entry("2025-07-01T10:00", "2025-07-01T11:00", "meeting"),
	}
	items, err := Aggregate(entries, table)
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if !items[0].Rate.Equal(decimal.NewFromInt(150)) {
		t.Errorf("code rate = %s, expected 150", items[0].Rate)
	}
	if !items[1].Rate.Equal(decimal.NewFromInt(90)) {
		t.Errorf("meeting rate = %s, expected default 90", items[1].Rate)
	}
}

func TestAggregateMissingRate(t *testing.T) {
	entries := []timeentry.Entry{entry("2025-07-01T09:00", "2025-07-01T10:00", "code")}

	_, err := Aggregate(entries, rates(map[string]string{"design": "100"}))

	var merr *MissingRateError
	if !errors.As(err, &merr) {
		t.Fatalf("Aggregate() error = %v, expected *MissingRateError", err)
	}
	if merr.Key != "code" {
		t.Errorf("MissingRateError.Key = %q, expected code", merr.Key)
	}
}

func TestAggregateOpenIntervals(t *testing.T) {
	entries := []timeentry.Entry{
		entry("2025-07-01T09:00", "", "support"),
		entry("2025-07-01T09:00", "2025-07-01T10:00", "code"),
		entry("2025-07-01T11:00", "", "code"),
	}

	var c timeentry.Collector
	items, err := Aggregator{Sink: c.Report}.Aggregate(entries, rates(map[string]string{"default": "100"}))
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("Aggregate() returned %d items, expected 2 (zero-hour group retained)", len(items))
	}

	support := items[0]
	if !support.Hours.IsZero() || !support.Amount.IsZero() {
		t.Errorf("support item = %s h / %s, expected zero", support.Hours, support.Amount)
	}
	if support.OpenEntries != 1 {
		t.Errorf("support OpenEntries = %d, expected 1", support.OpenEntries)
	}
	if got := items[1].Hours.StringFixed(2); got != "1.00" {
		t.Errorf("code hours = %s, expected 1.00", got)
	}
	if c.Count(timeentry.KindOpenInterval) != 2 {
		t.Errorf("open interval diagnostics = %d, expected 2", c.Count(timeentry.KindOpenInterval))
	}
}

func TestAggregateRoundsOnceAtEnd(t *testing.T) {
	// 3 x 20 minutes: rounding each interval to 0.33h first would give 0.99.
	entries := []timeentry.Entry{
		entry("2025-07-01T09:00", "2025-07-01T09:20", "code"),
		entry("2025-07-01T10:00", "2025-07-01T10:20", "code"),
		entry("2025-07-01T11:00", "2025-07-01T11:20", "code"),
	}
	items, err := Aggregate(entries, rates(map[string]string{"code": "100"}))
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if got := items[0].Hours.StringFixed(2); got != "1.00" {
		t.Errorf("Hours = %s, expected 1.00", got)
	}
}

func TestAggregateDescriptionUsesAnnotations(t *testing.T) {
	a := entry("2025-07-01T09:00", "2025-07-01T10:00", "code")
	a.Annotation = "parser"
	b := entry("2025-07-01T10:00", "2025-07-01T11:00", "code")
	b.Annotation = "review"
	c := entry("2025-07-01T11:00", "2025-07-01T12:00", "code")
	c.Annotation = "parser"

	items, err := Aggregate([]timeentry.Entry{a, b, c}, rates(map[string]string{"default": "1"}))
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if want := "code: parser; review"; items[0].Description != want {
		t.Errorf("Description = %q, expected %q", items[0].Description, want)
	}
}

func TestAggregateDeterministic(t *testing.T) {
	entries := []timeentry.Entry{
		entry("2025-07-01T09:00", "2025-07-01T09:07", "b"),
		entry("2025-07-01T09:00", "2025-07-01T10:13", "a", "c"),
		entry("2025-07-02T09:00", "2025-07-02T09:01", "b"),
	}
	table := rates(map[string]string{"default": "133.37"})

	first, err := Aggregate(entries, table)
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	for i := 0; i < 50; i++ {
		again, err := Aggregate(entries, table)
		if err != nil {
			t.Fatalf("Aggregate() error = %v", err)
		}
		for j := range first {
			if first[j].Key != again[j].Key || first[j].Amount.String() != again[j].Amount.String() {
				t.Fatalf("run %d differs at item %d: %+v vs %+v", i, j, first[j], again[j])
			}
		}
	}
}

func TestTaskKey(t *testing.T) {
	key := TaskKey("acme")
	tests := []struct {
		name string
		tags []string
		want string
	}{
		{"client tag ignored", []string{"acme", "design"}, "design"},
		{"prefixed tags ignored", []string{"client:acme", "project:web", "review"}, "review"},
		{"only client tags", []string{"acme", "project:acme"}, UnspecifiedKey},
		{"smallest of remaining", []string{"zeta", "alpha", "acme"}, "alpha"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := key(timeentry.Entry{Start: time.Now(), Tags: tt.tags})
			if got != tt.want {
				t.Errorf("TaskKey()(%v) = %q, expected %q", tt.tags, got, tt.want)
			}
		})
	}
}

func TestRateTableValidate(t *testing.T) {
	if err := rates(map[string]string{"code": "10"}).Validate(); err == nil {
		t.Errorf("Validate() without default should fail")
	}
	if err := rates(map[string]string{"default": "10", "x": "-1"}).Validate(); err == nil {
		t.Errorf("Validate() with negative rate should fail")
	}
	if err := rates(map[string]string{"default": "0"}).Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestRateTableMerge(t *testing.T) {
	global := rates(map[string]string{"default": "100", "code": "150"})
	client := rates(map[string]string{"code": "175"})

	merged := global.Merge(client)
	if !merged["code"].Equal(decimal.NewFromInt(175)) {
		t.Errorf("merged code = %s, expected 175", merged["code"])
	}
	if !global["code"].Equal(decimal.NewFromInt(150)) {
		t.Errorf("Merge() mutated the receiver")
	}
}
