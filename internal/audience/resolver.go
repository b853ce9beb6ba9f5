package audience

import (
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/fixhub/workshop-backend/internal/model"
	"github.com/fixhub/workshop-backend/internal/repository"
)

// Entry is one resolved recipient. CustomerID is nil for manual numbers that
// did not match an existing customer.
type Entry struct {
	CustomerID *int   `json:"customer_id,omitempty"`
	Name       string `json:"name"`
	Phone      string `json:"phone"`
}

// Preview is the read-only answer to "who would this campaign reach".
type Preview struct {
	TotalCustomers int     `json:"total_customers"`
	Sample         []Entry `json:"sample"`
	ManualTargets  []Entry `json:"manual_targets"`
	ManualCount    int     `json:"manual_count"`
}

const previewSampleSize = 5

// Resolver turns a filter spec into an ordered, deduplicated recipient list.
// Output is deterministic for an identical spec against an unchanged store:
// customers in id order first, then manual numbers in input order.
type Resolver struct {
	Customers   repository.CustomerRepositoryInterface
	CountryCode string
	Log         zerolog.Logger
}

func NewResolver(customers repository.CustomerRepositoryInterface, countryCode string, log zerolog.Logger) *Resolver {
	return &Resolver{Customers: customers, CountryCode: countryCode, Log: log}
}

// Resolve returns the full recipient list for the spec. Customers whose phone
// does not normalize are skipped; a manual number matching a customer by
// normalized phone yields a single customer-linked entry.
func (r *Resolver) Resolve(spec model.FilterSpec, now time.Time) ([]Entry, error) {
	customers, err := r.Customers.FindByFilter(spec, now)
	if err != nil {
		return nil, err
	}

	entries := []Entry{}
	seen := map[string]bool{}
	for _, c := range customers {
		phone, ok := NormalizePhone(c.Phone, r.CountryCode)
		if !ok {
			r.Log.Warn().Int("customer_id", c.ID).Str("phone", c.Phone).
				Msg("skipping customer with unusable phone")
			continue
		}
		if seen[phone] {
			continue
		}
		seen[phone] = true
		id := c.ID
		entries = append(entries, Entry{CustomerID: &id, Name: c.Name, Phone: phone})
	}

	for _, e := range r.manualEntries(spec, seen) {
		entries = append(entries, e)
	}
	return entries, nil
}

// Preview resolves the spec without persisting anything.
func (r *Resolver) Preview(spec model.FilterSpec, now time.Time) (*Preview, error) {
	customers, err := r.Customers.FindByFilter(spec, now)
	if err != nil {
		return nil, err
	}

	p := &Preview{Sample: []Entry{}, ManualTargets: []Entry{}}
	seen := map[string]bool{}
	for _, c := range customers {
		phone, ok := NormalizePhone(c.Phone, r.CountryCode)
		if !ok || seen[phone] {
			continue
		}
		seen[phone] = true
		p.TotalCustomers++
		if len(p.Sample) < previewSampleSize {
			id := c.ID
			p.Sample = append(p.Sample, Entry{CustomerID: &id, Name: c.Name, Phone: phone})
		}
	}

	p.ManualTargets = r.manualEntries(spec, seen)
	p.ManualCount = len(p.ManualTargets)
	return p, nil
}

// manualEntries normalizes and deduplicates the spec's manual numbers against
// phones already claimed by customer entries. Invalid entries are logged and
// dropped, they never fail the resolution.
func (r *Resolver) manualEntries(spec model.FilterSpec, seen map[string]bool) []Entry {
	entries := []Entry{}
	for _, raw := range spec.ManualNumbers {
		phone, ok := NormalizePhone(raw, r.CountryCode)
		if !ok {
			r.Log.Warn().Str("number", raw).Msg("skipping invalid manual number")
			continue
		}
		if seen[phone] {
			continue
		}
		seen[phone] = true
		entries = append(entries, Entry{Phone: phone})
	}
	return entries
}

// NormalizePhone reduces a raw phone to canonical digits-only international
// form: "00" international prefix stripped, national "0" dropped, countryCode
// prepended to bare national numbers. It reports false for inputs that do not
// leave 11-15 digits.
func NormalizePhone(raw, countryCode string) (string, bool) {
	var b strings.Builder
	for _, ch := range raw {
		if ch >= '0' && ch <= '9' {
			b.WriteRune(ch)
		}
	}
	digits := b.String()

	switch {
	case strings.HasPrefix(digits, "00"):
		digits = digits[2:]
	case strings.HasPrefix(digits, "0"):
		digits = countryCode + digits[1:]
	case len(digits) == 10:
		digits = countryCode + digits
	}

	if len(digits) < 11 || len(digits) > 15 {
		return "", false
	}
	return digits, true
}
