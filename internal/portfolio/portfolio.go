// Package portfolio computes PnL aggregates and the equity curve over
// positions. All functions are pure over loaded positions.
package portfolio

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"rvol-scanner/internal/models"
)

// Realized returns the realized PnL of a position; zero while it has no
// exit price.
func Realized(p models.Position) float64 {
	if p.ExitPrice == nil {
		return 0
	}
	delta := *p.ExitPrice - p.EntryPrice
	if p.Side == models.SideShort {
		delta = p.EntryPrice - *p.ExitPrice
	}
	return delta * p.Qty
}

// Unrealized returns the open PnL of a position marked at its current
// price, falling back to entry when no mark exists. Closed positions have
// no unrealized PnL.
func Unrealized(p models.Position) float64 {
	if p.ClosedAt != nil {
		return 0
	}
	current := p.EntryPrice
	if p.CurrentPrice != nil {
		current = *p.CurrentPrice
	}
	delta := current - p.EntryPrice
	if p.Side == models.SideShort {
		delta = p.EntryPrice - current
	}
	return delta * p.Qty
}

// Summarize builds the portfolio summary and equity series. The series has
// a Start point, one point per close timestamp (cumulative realized PnL,
// labeled with the closed tickers), and a Now point that includes
// unrealized PnL.
func Summarize(positions []models.Position, startingCapital float64, now time.Time) models.PortfolioSummary {
	var realizedTotal, unrealizedTotal float64
	for _, p := range positions {
		realizedTotal += Realized(p)
		unrealizedTotal += Unrealized(p)
	}

	summary := models.PortfolioSummary{
		StartingCapital: startingCapital,
		CurrentCapital:  startingCapital + realizedTotal + unrealizedTotal,
		RealizedPnL:     realizedTotal,
		UnrealizedPnL:   unrealizedTotal,
	}

	if len(positions) == 0 {
		summary.EquitySeries = []models.PortfolioPoint{
			{Timestamp: now, Label: "Start", Equity: startingCapital},
			{Timestamp: now, Label: "Now", Equity: startingCapital},
		}
		return summary
	}

	first := now
	for _, p := range positions {
		if p.CreatedAt.Before(first) {
			first = p.CreatedAt
		}
	}

	series := []models.PortfolioPoint{
		{Timestamp: first, Label: "Start", Equity: startingCapital},
	}

	type closeEvent struct {
		ticker   string
		realized float64
	}
	events := make(map[time.Time][]closeEvent)
	for _, p := range positions {
		if p.ClosedAt == nil {
			continue
		}
		events[*p.ClosedAt] = append(events[*p.ClosedAt], closeEvent{ticker: p.Ticker, realized: Realized(p)})
	}

	timestamps := make([]time.Time, 0, len(events))
	for ts := range events {
		timestamps = append(timestamps, ts)
	}
	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i].Before(timestamps[j]) })

	var cumulative float64
	for _, ts := range timestamps {
		var delta float64
		tickerSet := make(map[string]struct{})
		for _, ev := range events[ts] {
			delta += ev.realized
			tickerSet[ev.ticker] = struct{}{}
		}
		cumulative += delta

		tickers := make([]string, 0, len(tickerSet))
		for t := range tickerSet {
			tickers = append(tickers, t)
		}
		sort.Strings(tickers)

		series = append(series, models.PortfolioPoint{
			Timestamp: ts,
			Label:     fmt.Sprintf("Closed %s", strings.Join(tickers, ", ")),
			Realized:  cumulative,
			Equity:    startingCapital + cumulative,
		})
	}

	series = append(series, models.PortfolioPoint{
		Timestamp:  now,
		Label:      "Now",
		Realized:   cumulative,
		Unrealized: unrealizedTotal,
		Equity:     startingCapital + cumulative + unrealizedTotal,
	})

	summary.EquitySeries = series
	return summary
}
