package backend

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Aamir1055/BrokerEye-sub005/pkg/models"
)

// Percentage bounds accepted by the backend
const (
	MinPercentage = 0
	MaxPercentage = 100
)

// ParsePercentage parses user input into a percentage in [0, 100]
func ParsePercentage(raw string) (float64, error) {
	raw = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "%"))
	if raw == "" {
		return 0, invalid("percentage", "is required")
	}

	p, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, invalid("percentage", "must be a number")
	}
	if err := ValidatePercentage(p); err != nil {
		return 0, err
	}
	return p, nil
}

// ValidatePercentage checks p is a finite number in [0, 100]
func ValidatePercentage(p float64) error {
	if msg := percentageProblem(p); msg != "" {
		return invalid("percentage", msg)
	}
	return nil
}

func percentageProblem(p float64) string {
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return "must be a number"
	}
	if p < MinPercentage || p > MaxPercentage {
		return fmt.Sprintf("must be between %d and %d", MinPercentage, MaxPercentage)
	}
	return ""
}

// ValidateBulk checks every entry of a bulk percentage update. A single bad
// entry rejects the whole batch; the error names every offending entry.
func ValidateBulk(updates []models.PercentageUpdate) error {
	if len(updates) == 0 {
		return invalid("updates", "must not be empty")
	}

	fields := make(map[string]string)
	seen := make(map[int64]int, len(updates))
	for i, u := range updates {
		key := fmt.Sprintf("updates[%d]", i)
		switch {
		case u.ID <= 0:
			fields[key] = fmt.Sprintf("has invalid id %d", u.ID)
		case seen[u.ID] > 0:
			fields[key] = fmt.Sprintf("repeats id %d", u.ID)
		default:
			if msg := percentageProblem(u.Percentage); msg != "" {
				fields[key] = fmt.Sprintf("(id %d) percentage %s", u.ID, msg)
			}
		}
		seen[u.ID]++
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// ParseBulk parses "id=percentage" pairs into validated updates
func ParseBulk(pairs []string) ([]models.PercentageUpdate, error) {
	updates := make([]models.PercentageUpdate, 0, len(pairs))
	fields := make(map[string]string)

	for i, pair := range pairs {
		key := fmt.Sprintf("updates[%d]", i)
		idRaw, pctRaw, ok := strings.Cut(pair, "=")
		if !ok {
			fields[key] = fmt.Sprintf("%q is not id=percentage", pair)
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSpace(idRaw), 10, 64)
		if err != nil {
			fields[key] = fmt.Sprintf("has non-numeric id %q", idRaw)
			continue
		}
		pct, err := strconv.ParseFloat(strings.TrimSpace(pctRaw), 64)
		if err != nil {
			fields[key] = fmt.Sprintf("(id %d) percentage must be a number", id)
			continue
		}
		updates = append(updates, models.PercentageUpdate{ID: id, Percentage: pct})
	}

	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}
	if err := ValidateBulk(updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// ValidateAmount checks a balance operation amount
func ValidateAmount(amount float64) error {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return invalid("amount", "must be a positive number")
	}
	return nil
}
