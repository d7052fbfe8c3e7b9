package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/meshquote-api/internal/analysis"
	"github.com/jmylchreest/meshquote-api/internal/pricing"
)

var quoteJSON bool

var quoteCmd = &cobra.Command{
	Use:   "quote <file>",
	Short: "Compute a manufacturing quote for a model file",
	Long: `Measures the model and runs the cost engine. Parameters start from the
service defaults; flags override individual values.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuote,
}

func init() {
	d := pricing.DefaultParams()
	f := quoteCmd.Flags()
	f.BoolVar(&quoteJSON, "json", false, "Output as JSON")

	f.String("technology", string(d.Technology), "Manufacturing technology (FDM, SLA, Metal)")
	f.Float64("density", d.MaterialDensity, "Material density in g/cm³")
	f.Float64("price", d.MaterialPrice, "Material price per kg")
	f.Float64("waste", d.WasteFactor, "Material waste multiplier")
	f.Float64("infill", d.Infill, "Infill percentage (FDM)")
	f.Float64("support", d.SupportPercent, "Support material percentage")
	f.Float64("print-time", d.PrintTimeH, "Machine time in hours")
	f.Float64("post-time", d.PostProcessTimeH, "Post-processing labour in hours")
	f.Float64("modeling-time", d.ModelingTimeH, "Modeling labour in hours")
	f.Int("quantity", d.Quantity, "Number of units")
	f.Bool("batch", d.IsBatch, "Produce all units as one batch")
	f.Float64("markup", d.Markup, "Price multiplier over unit cost")
	f.Float64("reject-rate", d.RejectRate, "Fraction of prints expected to fail")
	f.Float64("tax-rate", d.TaxRate, "Tax fraction applied to the price")
	f.Float64("depreciation-rate", d.DepreciationRate, "Machine depreciation per hour")
	f.Float64("energy-rate", d.EnergyRate, "Energy cost per machine hour")
	f.Float64("hourly-rate", d.HourlyRate, "Labour cost per hour")
	f.String("currency", d.Currency, "Display currency (ISO 4217)")

	rootCmd.AddCommand(quoteCmd)
}

// patchFromFlags collects the flags the user set into a patch over the
// defaults.
func patchFromFlags(cmd *cobra.Command) pricing.Patch {
	f := cmd.Flags()
	var p pricing.Patch
	float := func(name string, dst **float64) {
		if !f.Changed(name) {
			return
		}
		v, _ := f.GetFloat64(name)
		*dst = &v
	}

	if f.Changed("technology") {
		s, _ := f.GetString("technology")
		t := pricing.Technology(s)
		for _, known := range []pricing.Technology{pricing.TechnologyFDM, pricing.TechnologySLA, pricing.TechnologyMetal} {
			if strings.EqualFold(s, string(known)) {
				t = known
			}
		}
		p.Technology = &t
	}
	float("density", &p.MaterialDensity)
	float("price", &p.MaterialPrice)
	float("waste", &p.WasteFactor)
	float("infill", &p.Infill)
	float("support", &p.SupportPercent)
	float("print-time", &p.PrintTimeH)
	float("post-time", &p.PostProcessTimeH)
	float("modeling-time", &p.ModelingTimeH)
	float("markup", &p.Markup)
	float("reject-rate", &p.RejectRate)
	float("tax-rate", &p.TaxRate)
	float("depreciation-rate", &p.DepreciationRate)
	float("energy-rate", &p.EnergyRate)
	float("hourly-rate", &p.HourlyRate)
	if f.Changed("quantity") {
		q, _ := f.GetInt("quantity")
		p.Quantity = &q
	}
	if f.Changed("batch") {
		b, _ := f.GetBool("batch")
		p.IsBatch = &b
	}
	if f.Changed("currency") {
		c, _ := f.GetString("currency")
		c = strings.ToUpper(strings.TrimSpace(c))
		p.Currency = &c
	}
	return p
}

type quoteOutput struct {
	File    string            `json:"file"`
	Metrics *analysis.Metrics `json:"metrics"`
	Params  pricing.Params    `json:"params"`
	Result  *pricing.Result   `json:"result"`
}

func runQuote(cmd *cobra.Command, args []string) error {
	params := patchFromFlags(cmd).Apply(pricing.DefaultParams())
	if err := params.Validate(); err != nil {
		return err
	}

	metrics, _, err := analyzeFile(args[0])
	if err != nil {
		return err
	}
	result, err := pricing.Calculate(metrics.Volume, params)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if quoteJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(quoteOutput{File: args[0], Metrics: metrics, Params: params, Result: result})
	}

	cur := params.Currency
	fmt.Fprintln(out, "Quote")
	fmt.Fprintln(out, "=====")
	fmt.Fprintf(out, "File: %s\n", args[0])
	fmt.Fprintf(out, "Technology: %s\n", params.Technology)
	fmt.Fprintf(out, "Volume: %.3f cm³  (%.1f x %.1f x %.1f mm)\n\n", metrics.Volume, metrics.DimX, metrics.DimY, metrics.DimZ)

	fmt.Fprintln(out, "Per unit:")
	fmt.Fprintf(out, "  Weight: %.2f g\n", result.Weight)
	fmt.Fprintf(out, "  Material: %.2f %s\n", result.MaterialCost, cur)
	fmt.Fprintf(out, "  Energy: %.2f %s\n", result.EnergyCost, cur)
	fmt.Fprintf(out, "  Depreciation: %.2f %s\n", result.Depreciation, cur)
	fmt.Fprintf(out, "  Preparation: %.2f %s\n", result.PrepCost, cur)
	fmt.Fprintf(out, "  Rejects: %.2f %s\n", result.RejectCost, cur)
	fmt.Fprintf(out, "  Unit cost: %.2f %s\n", result.UnitCost, cur)
	fmt.Fprintf(out, "  Profit: %.2f %s\n", result.Profit, cur)
	fmt.Fprintf(out, "  Tax: %.2f %s\n", result.Tax, cur)
	fmt.Fprintf(out, "  Price: %.2f %s\n\n", result.PricePerUnit, cur)

	batch := ""
	if params.IsBatch {
		batch = ", batch"
	}
	fmt.Fprintf(out, "Total (%d units%s): %.2f %s\n", params.Quantity, batch, result.TotalPrice, cur)
	return nil
}
