package scan

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"rvol-scanner/internal/models"
)

// Property: admission is monotone in the thresholds. Any row admitted under
// a rule set must still be admitted after widening the price range, lowering
// the rvol and percent-change floors, and raising the volume cap. Relaxing
// filters can only grow the admitted set.
func TestProperty_AdmissionMonotoneUnderRelaxedFilters(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	rowGen := gopter.CombineGens(
		gen.Float64Range(0.01, 100),      // price
		gen.Float64Range(0, 50),          // rvol
		gen.Float64Range(-20, 20),        // pct change
		gen.Int64Range(0, 100_000_000),   // volume
	).Map(func(vals []interface{}) models.ScanRow {
		pct := vals[2].(float64)
		volume := vals[3].(int64)
		return models.ScanRow{
			Ticker:    "PROP",
			Price:     vals[0].(float64),
			Rvol:      vals[1].(float64),
			PctChange: &pct,
			Volume:    &volume,
		}
	})

	cfgGen := gopter.CombineGens(
		gen.Float64Range(0.01, 50),       // price min
		gen.Float64Range(0, 50),          // price max headroom
		gen.Float64Range(0, 20),          // min rvol
		gen.Float64Range(-5, 10),         // min pct change
		gen.Int64Range(1, 50_000_000),    // volume cap
	).Map(func(vals []interface{}) models.ScanConfig {
		min := vals[0].(float64)
		return models.ScanConfig{
			PriceMin:     min,
			PriceMax:     min + vals[1].(float64),
			MinRvol:      vals[2].(float64),
			MinPctChange: vals[3].(float64),
			VolumeCap:    vals[4].(int64),
			TopN:         5,
		}
	})

	relaxGen := gopter.CombineGens(
		gen.Float64Range(0, 5),           // widen price range each side
		gen.Float64Range(0, 5),           // lower rvol floor
		gen.Float64Range(0, 5),           // lower pct floor
		gen.Int64Range(0, 10_000_000),    // raise volume cap
	)

	properties.Property("admitted rows survive filter relaxation", prop.ForAll(
		func(row models.ScanRow, cfg models.ScanConfig, relax []interface{}) bool {
			if !passesFilters(row, cfg) {
				return true
			}

			relaxed := cfg
			relaxed.PriceMin -= relax[0].(float64)
			relaxed.PriceMax += relax[0].(float64)
			relaxed.MinRvol -= relax[1].(float64)
			relaxed.MinPctChange -= relax[2].(float64)
			relaxed.VolumeCap += relax[3].(int64)

			return passesFilters(row, relaxed)
		},
		rowGen, cfgGen, relaxGen,
	))

	properties.TestingRun(t)
}

// Property: admission is the conjunction of the four rules; a row missing
// its percent change is always rejected.
func TestProperty_MissingPctChangeAlwaysRejected(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("nil pct change never admits", prop.ForAll(
		func(price, rvol float64, volume int64) bool {
			row := models.ScanRow{Ticker: "PROP", Price: price, Rvol: rvol, Volume: &volume}
			cfg := models.ScanConfig{
				PriceMin:     0,
				PriceMax:     1000,
				MinRvol:      0,
				MinPctChange: -100,
				VolumeCap:    1 << 40,
				TopN:         5,
			}
			return !passesFilters(row, cfg)
		},
		gen.Float64Range(0.01, 1000),
		gen.Float64Range(0, 100),
		gen.Int64Range(0, 1_000_000),
	))

	properties.TestingRun(t)
}
