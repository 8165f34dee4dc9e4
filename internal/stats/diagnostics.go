package stats

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"evotrader/internal/model"
)

// GenerationDiagnostics summarizes the wealth spread of one generation's population.
type GenerationDiagnostics struct {
	Generation   int     `json:"generation"`
	StartingCash float64 `json:"starting_cash"`
	MeanWealth   float64 `json:"mean_wealth"`
	StdWealth    float64 `json:"std_wealth"`
	MinWealth    float64 `json:"min_wealth"`
	MaxWealth    float64 `json:"max_wealth"`
	// BestEfficiency is MaxWealth / StartingCash.
	BestEfficiency float64 `json:"best_efficiency"`
	Improved       bool    `json:"improved"`
	MutationRate   float64 `json:"mutation_rate"`
	Sessions       int     `json:"sessions"`
	StopReason     string  `json:"stop_reason,omitempty"`
}

// Diagnose computes wealth statistics. An empty population yields zero values.
func Diagnose(generation int, startingCash float64, wealth []float64) GenerationDiagnostics {
	d := GenerationDiagnostics{Generation: generation, StartingCash: startingCash}
	if len(wealth) == 0 {
		return d
	}
	if len(wealth) == 1 {
		d.MeanWealth = wealth[0]
	} else {
		d.MeanWealth, d.StdWealth = stat.MeanStdDev(wealth, nil)
	}
	d.MinWealth = floats.Min(wealth)
	d.MaxWealth = floats.Max(wealth)
	if startingCash > 0 {
		d.BestEfficiency = d.MaxWealth / startingCash
	}
	d.Improved = d.MaxWealth > startingCash
	return d
}

// EfficiencySummary aggregates the stored winning generations of one run.
type EfficiencySummary struct {
	Generations int     `json:"generations"`
	Best        float64 `json:"best"`
	Mean        float64 `json:"mean"`
	Std         float64 `json:"std"`
	Final       float64 `json:"final"`
	FinalRate   float64 `json:"final_rate"`
}

func SummarizeGenerations(records []model.GenerationRecord) EfficiencySummary {
	if len(records) == 0 {
		return EfficiencySummary{}
	}
	values := make([]float64, len(records))
	for i, r := range records {
		values[i] = r.Efficiency
	}
	summary := EfficiencySummary{
		Generations: len(records),
		Best:        floats.Max(values),
		Final:       values[len(values)-1],
		FinalRate:   records[len(records)-1].MutationRate,
	}
	if len(values) == 1 {
		summary.Mean = values[0]
	} else {
		summary.Mean, summary.Std = stat.MeanStdDev(values, nil)
	}
	return summary
}
