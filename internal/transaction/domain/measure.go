package domain

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var measurePattern = regexp.MustCompile(`(\d+)-(day|week|month|year)`)

// CalculateEndDate derives the access end date from a measure such as
// "3-month". One-time measures return nil and ok. Unrecognized measures
// return nil and not ok.
func CalculateEndDate(start time.Time, measure string) (end *time.Time, ok bool) {
	m := strings.ToLower(strings.TrimSpace(measure))
	if strings.Contains(m, "one-time") {
		return nil, true
	}

	match := measurePattern.FindStringSubmatch(m)
	if match == nil {
		return nil, false
	}
	n, err := strconv.Atoi(match[1])
	if err != nil {
		return nil, false
	}

	var t time.Time
	switch match[2] {
	case "day":
		t = start.AddDate(0, 0, n)
	case "week":
		t = start.AddDate(0, 0, n*7)
	case "month":
		t = start.AddDate(0, n, 0)
	case "year":
		t = start.AddDate(n, 0, 0)
	}
	return &t, true
}

// ParseItems decodes the JSON-encoded items metadata value. Entries without
// an id are dropped.
func ParseItems(raw string) ([]PurchaseItem, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var items []PurchaseItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, ErrInvalidItems
	}
	out := items[:0]
	for _, item := range items {
		item.ID = strings.TrimSpace(item.ID)
		if item.ID == "" {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}
