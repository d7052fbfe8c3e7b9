package pricing

import (
	"errors"
	"testing"
)

func TestDefaultParams_Valid(t *testing.T) {
	if err := DefaultParams().Validate(); err != nil {
		t.Fatalf("DefaultParams().Validate() error = %v", err)
	}
}

func TestPatch_Apply(t *testing.T) {
	infill := 55.0
	qty := 12
	currency := " eur "
	lang := "RU"
	tech := TechnologySLA

	got := Patch{
		Technology: &tech,
		Infill:     &infill,
		Quantity:   &qty,
		Currency:   &currency,
		Language:   &lang,
	}.Apply(DefaultParams())

	if got.Technology != TechnologySLA || got.Infill != 55 || got.Quantity != 12 {
		t.Errorf("Apply() = %+v", got)
	}
	if got.Currency != "EUR" || got.Language != "ru" {
		t.Errorf("currency/language = %q/%q, want EUR/ru", got.Currency, got.Language)
	}
	if got.MaterialDensity != DefaultParams().MaterialDensity {
		t.Errorf("untouched field changed: density = %v", got.MaterialDensity)
	}
	if err := got.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestPatch_IsEmpty(t *testing.T) {
	if !(Patch{}).IsEmpty() {
		t.Error("zero patch should be empty")
	}
	v := 1.0
	if (Patch{Markup: &v}).IsEmpty() {
		t.Error("patch with markup should not be empty")
	}
}

func TestValidate_ReportsEveryField(t *testing.T) {
	p := DefaultParams()
	p.Quantity = 0
	p.Markup = 0
	p.TaxRate = 2

	err := p.Validate()
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Validate() error = %v, want *ValidationError", err)
	}
	if len(ve.Fields) != 3 {
		t.Errorf("len(Fields) = %d, want 3: %v", len(ve.Fields), ve)
	}
}
