// Package invoiceid derives deterministic, content-addressed invoice numbers.
//
// The canonical string and digest prefix length form a versioned contract:
// changing either changes every historical invoice number, so any change
// must bump Version.
//
// Version 1 canonical string:
//
//	<client id>:<period start YYYY-MM-DD>:<period end YYYY-MM-DD>:<total hours %.2f>:<tags>:<reference RFC 3339 UTC>
//
// where <tags> is the distinct tag set sorted ascending (byte order) and
// joined with ",". The reference keeps fractional seconds (trailing zeros
// dropped, so whole-second references render as plain RFC 3339). In the
// client id and each tag, "\", ":" and "," are escaped with a backslash, so
// ["a,b"] and ["a", "b"] hash differently while ordinary values are hashed
// unchanged. The number is "<prefix>-<first 8 hex chars of SHA-256>".
package invoiceid

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// Version identifies the canonical string layout below.
	Version = 1
	// HexLength is the number of hex characters kept from the digest.
	HexLength = 8
)

// Input is everything that contributes to an invoice number.
type Input struct {
	ClientID    string
	Prefix      string
	// PeriodStart and PeriodEnd are hashed at day resolution (UTC date).
	// invoice.NewPeriod truncates to midnight; hand-built bounds with a time
	// of day hash like their midnight.
	PeriodStart time.Time
	PeriodEnd   time.Time
	TotalHours  decimal.Decimal
	Tags        []string
	// Reference must be pinned by the caller (for example to the period
	// midpoint) for repeated runs to reproduce the same number.
	Reference time.Time
}

// Canonical returns the string that is hashed for in.
func Canonical(in Input) string {
	tags := distinctSorted(in.Tags)
	for i, tag := range tags {
		tags[i] = escape(tag)
	}
	return strings.Join([]string{
		escape(in.ClientID),
		in.PeriodStart.UTC().Format(time.DateOnly),
		in.PeriodEnd.UTC().Format(time.DateOnly),
		in.TotalHours.StringFixedBank(2),
		strings.Join(tags, ","),
		in.Reference.UTC().Format(time.RFC3339Nano),
	}, ":")
}

// Digest returns the HexLength-character hash part of the number.
func Digest(in Input) string {
	sum := sha256.Sum256([]byte(Canonical(in)))
	return hex.EncodeToString(sum[:])[:HexLength]
}

// Generate returns the invoice number "<prefix>-<digest>".
func Generate(in Input) string {
	return in.Prefix + "-" + Digest(in)
}

// Verify reports whether number is the number generated for in.
func Verify(number string, in Input) bool {
	return number == Generate(in)
}

var fieldEscaper = strings.NewReplacer(`\`, `\\`, ":", `\:`, ",", `\,`)

func escape(field string) string {
	return fieldEscaper.Replace(field)
}

func distinctSorted(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	result := make([]string, 0, len(tags))
	for _, tag := range tags {
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		result = append(result, tag)
	}
	sort.Strings(result)
	return result
}
