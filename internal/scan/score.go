package scan

import "rvol-scanner/internal/models"

// Scorer assigns a ranking score to an admitted row. Scoring is independent
// of filtering so it can be swapped without touching admission.
type Scorer interface {
	Score(row models.ScanRow) float64
}

// RvolScorer scores a row by its relative-volume ratio.
type RvolScorer struct{}

// Score returns the row's rvol.
func (RvolScorer) Score(row models.ScanRow) float64 {
	return row.Rvol
}
