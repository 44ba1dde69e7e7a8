package ibselect

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/Aamir1055/BrokerEye-sub005/pkg/models"
)

// FilterByActiveIB returns the items whose login belongs to the selected IB.
// With no IB selected items is returned as is.
func FilterByActiveIB[T any](s *Selector, items []T, login func(T) int64) []T {
	if s == nil || !s.Active() {
		return items
	}

	out := make([]T, 0, len(items))
	for _, item := range items {
		if s.Contains(login(item)) {
			out = append(out, item)
		}
	}
	return out
}

// FilterRecords filters dynamic rows on the numeric value of field. Rows
// whose field is missing or not numeric are dropped while an IB is selected.
func FilterRecords(s *Selector, records []models.Record, field string) []models.Record {
	if s == nil || !s.Active() {
		return records
	}

	out := make([]models.Record, 0, len(records))
	for _, r := range records {
		if login, ok := numeric(r[field]); ok && s.Contains(login) {
			out = append(out, r)
		}
	}
	return out
}

func numeric(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) || n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	}
	return 0, false
}
