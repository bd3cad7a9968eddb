package rma

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type WarrantyStatus string

const (
	WarrantyValid   WarrantyStatus = "Valid"
	WarrantyExpired WarrantyStatus = "Expired"
	WarrantyUnknown WarrantyStatus = "Unknown"
)

// Term is a parsed warranty term such as "12 Months" or "2 Years".
type Term struct {
	N    int
	Unit string // Days | Months | Years
}

func ParseTerm(s string) (Term, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return Term{}, fmt.Errorf("malformed warranty term %q", s)
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n < 0 {
		return Term{}, fmt.Errorf("malformed warranty term %q", s)
	}
	switch unit := normalizeUnit(fields[1]); unit {
	case "Days", "Months", "Years":
		return Term{N: n, Unit: unit}, nil
	default:
		return Term{}, fmt.Errorf("unknown warranty unit %q", fields[1])
	}
}

func normalizeUnit(u string) string {
	u = strings.ToLower(strings.TrimSpace(u))
	if u == "" {
		return u
	}
	u = strings.ToUpper(u[:1]) + u[1:]
	if !strings.HasSuffix(u, "s") {
		u += "s"
	}
	return u
}

func (t Term) ExpiryFrom(start time.Time) time.Time {
	switch t.Unit {
	case "Days":
		return start.AddDate(0, 0, t.N)
	case "Months":
		return start.AddDate(0, t.N, 0)
	default:
		return start.AddDate(t.N, 0, 0)
	}
}

// StatusAt reports warranty validity at now for a unit purchased at
// purchased. An unparseable term yields Unknown rather than an error:
// warranty is informational, not a gate.
func StatusAt(term string, purchased, now time.Time) WarrantyStatus {
	t, err := ParseTerm(term)
	if err != nil {
		return WarrantyUnknown
	}
	if now.After(t.ExpiryFrom(purchased)) {
		return WarrantyExpired
	}
	return WarrantyValid
}
