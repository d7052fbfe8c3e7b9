package pricing

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Technology selects how effective print volume is derived.
type Technology string

const (
	TechnologyFDM   Technology = "FDM"
	TechnologySLA   Technology = "SLA"
	TechnologyMetal Technology = "Metal"
)

// Params are the manufacturing and economic inputs of a quote. Currency and
// Language are carried for presentation only and never affect the numbers.
type Params struct {
	Technology      Technology `json:"technology" validate:"oneof=FDM SLA Metal" enum:"FDM,SLA,Metal" doc:"Manufacturing technology"`
	MaterialDensity float64    `json:"material_density" validate:"gt=0,lte=30" doc:"Material density in g/cm³"`
	MaterialPrice   float64    `json:"material_price" validate:"gte=0,lte=1000000" doc:"Material price per kg"`
	WasteFactor     float64    `json:"waste_factor" validate:"gte=1,lte=10" doc:"Material waste multiplier"`
	Infill          float64    `json:"infill" validate:"gte=0,lte=100" doc:"Infill percentage (FDM)"`
	SupportPercent  float64    `json:"support_percent" validate:"gte=0,lte=100" doc:"Support material percentage"`

	PrintTimeH       float64 `json:"print_time_h" validate:"gte=0,lte=10000" doc:"Machine time in hours"`
	PostProcessTimeH float64 `json:"post_process_time_h" validate:"gte=0,lte=10000" doc:"Post-processing labour in hours"`
	ModelingTimeH    float64 `json:"modeling_time_h" validate:"gte=0,lte=10000" doc:"Modeling labour in hours"`

	Quantity         int     `json:"quantity" validate:"gte=1,lte=1000000" doc:"Number of units"`
	IsBatch          bool    `json:"is_batch" doc:"Units are produced as a single batch"`
	Markup           float64 `json:"markup" validate:"gte=1,lte=100" doc:"Price multiplier over unit cost"`
	RejectRate       float64 `json:"reject_rate" validate:"gte=0,lt=1" doc:"Fraction of prints expected to fail"`
	TaxRate          float64 `json:"tax_rate" validate:"gte=0,lt=1" doc:"Tax fraction applied to the price"`
	DepreciationRate float64 `json:"depreciation_rate" validate:"gte=0,lte=1000000" doc:"Machine depreciation per hour"`
	EnergyRate       float64 `json:"energy_rate" validate:"gte=0,lte=1000000" doc:"Energy cost per machine hour"`
	HourlyRate       float64 `json:"hourly_rate" validate:"gte=0,lte=1000000" doc:"Labour cost per hour"`

	Currency string `json:"currency" validate:"iso4217" doc:"Display currency (ISO 4217)"`
	Language string `json:"language" validate:"oneof=en ru" enum:"en,ru" doc:"Display language"`
}

// DefaultParams returns the parameters a project starts with.
func DefaultParams() Params {
	return Params{
		Technology:       TechnologyFDM,
		MaterialDensity:  1.24,
		MaterialPrice:    25.0,
		WasteFactor:      1.1,
		Infill:           20,
		SupportPercent:   10,
		PrintTimeH:       1.0,
		PostProcessTimeH: 0.5,
		ModelingTimeH:    0,
		Quantity:         1,
		IsBatch:          false,
		Markup:           1.5,
		RejectRate:       0.05,
		TaxRate:          0.20,
		DepreciationRate: 2.0,
		EnergyRate:       0.15,
		HourlyRate:       30.0,
		Currency:         "USD",
		Language:         "en",
	}
}

// Patch is a partial update; nil fields are left untouched.
type Patch struct {
	Technology       *Technology `json:"technology,omitempty" enum:"FDM,SLA,Metal"`
	MaterialDensity  *float64    `json:"material_density,omitempty"`
	MaterialPrice    *float64    `json:"material_price,omitempty"`
	WasteFactor      *float64    `json:"waste_factor,omitempty"`
	Infill           *float64    `json:"infill,omitempty"`
	SupportPercent   *float64    `json:"support_percent,omitempty"`
	PrintTimeH       *float64    `json:"print_time_h,omitempty"`
	PostProcessTimeH *float64    `json:"post_process_time_h,omitempty"`
	ModelingTimeH    *float64    `json:"modeling_time_h,omitempty"`
	Quantity         *int        `json:"quantity,omitempty"`
	IsBatch          *bool       `json:"is_batch,omitempty"`
	Markup           *float64    `json:"markup,omitempty"`
	RejectRate       *float64    `json:"reject_rate,omitempty"`
	TaxRate          *float64    `json:"tax_rate,omitempty"`
	DepreciationRate *float64    `json:"depreciation_rate,omitempty"`
	EnergyRate       *float64    `json:"energy_rate,omitempty"`
	HourlyRate       *float64    `json:"hourly_rate,omitempty"`
	Currency         *string     `json:"currency,omitempty"`
	Language         *string     `json:"language,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p == Patch{}
}

// Apply returns a copy of base with the patch merged in. The result is not
// validated.
func (p Patch) Apply(base Params) Params {
	out := base
	setIf(&out.Technology, p.Technology)
	setIf(&out.MaterialDensity, p.MaterialDensity)
	setIf(&out.MaterialPrice, p.MaterialPrice)
	setIf(&out.WasteFactor, p.WasteFactor)
	setIf(&out.Infill, p.Infill)
	setIf(&out.SupportPercent, p.SupportPercent)
	setIf(&out.PrintTimeH, p.PrintTimeH)
	setIf(&out.PostProcessTimeH, p.PostProcessTimeH)
	setIf(&out.ModelingTimeH, p.ModelingTimeH)
	setIf(&out.Quantity, p.Quantity)
	setIf(&out.IsBatch, p.IsBatch)
	setIf(&out.Markup, p.Markup)
	setIf(&out.RejectRate, p.RejectRate)
	setIf(&out.TaxRate, p.TaxRate)
	setIf(&out.DepreciationRate, p.DepreciationRate)
	setIf(&out.EnergyRate, p.EnergyRate)
	setIf(&out.HourlyRate, p.HourlyRate)
	if p.Currency != nil {
		out.Currency = strings.ToUpper(strings.TrimSpace(*p.Currency))
	}
	if p.Language != nil {
		out.Language = strings.ToLower(strings.TrimSpace(*p.Language))
	}
	return out
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// FieldError describes one rejected field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned when parameters are out of range. Nothing is
// computed or persisted when it occurs.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "invalid calculation parameters: " + strings.Join(parts, "; ")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks every field against its bounds.
func (p Params) Validate() error {
	err := validate.Struct(p)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("failed to validate parameters: %w", err)
	}
	out := &ValidationError{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Message: describe(fe)})
	}
	return out
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lt":
		return "must be less than " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "iso4217":
		return "must be an ISO 4217 currency code"
	}
	return fmt.Sprintf("failed %q check", fe.Tag())
}
