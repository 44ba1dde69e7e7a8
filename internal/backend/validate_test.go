package backend

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/Aamir1055/BrokerEye-sub005/pkg/models"
)

func TestParsePercentage(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    float64
		wantErr bool
	}{
		{name: "integer", input: "25", want: 25},
		{name: "decimal", input: "12.5", want: 12.5},
		{name: "percent sign", input: " 40% ", want: 40},
		{name: "lower bound", input: "0", want: 0},
		{name: "upper bound", input: "100", want: 100},
		{name: "empty", input: "  ", wantErr: true},
		{name: "not a number", input: "abc", wantErr: true},
		{name: "nan", input: "NaN", wantErr: true},
		{name: "infinity", input: "Inf", wantErr: true},
		{name: "negative", input: "-1", wantErr: true},
		{name: "above range", input: "100.01", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePercentage(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParsePercentage(%q) = %v, want error", tt.input, got)
				}
				if !IsValidation(err) {
					t.Errorf("error %v is not a ValidationError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePercentage(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParsePercentage(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestValidatePercentage_NonFinite(t *testing.T) {
	for _, p := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if err := ValidatePercentage(p); err == nil {
			t.Errorf("ValidatePercentage(%v) = nil, want error", p)
		}
	}
}

func TestValidateBulk_ListsEveryOffender(t *testing.T) {
	updates := []models.PercentageUpdate{
		{ID: 1, Percentage: 10},
		{ID: 2, Percentage: 150},
		{ID: 3, Percentage: 20},
		{ID: 4, Percentage: -5},
	}

	err := ValidateBulk(updates)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("ValidateBulk() error = %v, want ValidationError", err)
	}
	if len(ve.Fields) != 2 {
		t.Fatalf("offenders = %v, want entries 1 and 3", ve.Fields)
	}
	for _, key := range []string{"updates[1]", "updates[3]"} {
		if _, ok := ve.Fields[key]; !ok {
			t.Errorf("offender %s not reported in %v", key, ve.Fields)
		}
	}
	if !strings.Contains(err.Error(), "id 2") || !strings.Contains(err.Error(), "id 4") {
		t.Errorf("error %q does not name the offending ids", err)
	}
}

func TestValidateBulk_EmptyAndDuplicates(t *testing.T) {
	if err := ValidateBulk(nil); !IsValidation(err) {
		t.Errorf("ValidateBulk(nil) = %v, want ValidationError", err)
	}

	err := ValidateBulk([]models.PercentageUpdate{{ID: 7, Percentage: 10}, {ID: 7, Percentage: 20}})
	if err == nil || !strings.Contains(err.Error(), "repeats id 7") {
		t.Errorf("ValidateBulk(duplicates) = %v, want duplicate error", err)
	}

	if err := ValidateBulk([]models.PercentageUpdate{{ID: 0, Percentage: 10}}); !IsValidation(err) {
		t.Errorf("ValidateBulk(id 0) = %v, want ValidationError", err)
	}
}

func TestParseBulk(t *testing.T) {
	updates, err := ParseBulk([]string{"1=10", " 2 = 12.5 "})
	if err != nil {
		t.Fatalf("ParseBulk() error = %v", err)
	}
	want := []models.PercentageUpdate{{ID: 1, Percentage: 10}, {ID: 2, Percentage: 12.5}}
	if len(updates) != len(want) {
		t.Fatalf("ParseBulk() = %v, want %v", updates, want)
	}
	for i := range want {
		if updates[i] != want[i] {
			t.Errorf("updates[%d] = %v, want %v", i, updates[i], want[i])
		}
	}

	for _, bad := range [][]string{{"1"}, {"x=10"}, {"1=ten"}, {"1=101"}} {
		if _, err := ParseBulk(bad); !IsValidation(err) {
			t.Errorf("ParseBulk(%v) = %v, want ValidationError", bad, err)
		}
	}
}

func TestValidateAmount(t *testing.T) {
	for _, amount := range []float64{0, -10, math.NaN(), math.Inf(1)} {
		if err := ValidateAmount(amount); err == nil {
			t.Errorf("ValidateAmount(%v) = nil, want error", amount)
		}
	}
	if err := ValidateAmount(0.01); err != nil {
		t.Errorf("ValidateAmount(0.01) = %v", err)
	}
}
