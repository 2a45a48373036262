package main

import (
	"context"
	"log/slog"
	"math"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/homeostasis/config"
	"github.com/pthm-cable/homeostasis/sim"
	"github.com/pthm-cable/homeostasis/telemetry"
)

// Fitness weights. Lower fitness is better.
const (
	outOfBandWeight  = 1.0 // mean fraction of ticks outside the band
	volatilityWeight = 0.5 // mean window population CV
	extinctionWeight = 2.0 // scaled by the fraction of the run lost

	// invalidFitness scores candidates that cannot be simulated at all. It
	// stays finite so CMA-ES can still rank them.
	invalidFitness = 1e3
)

// FitnessEvaluator runs simulations and scores how well they stay in band.
type FitnessEvaluator struct {
	params     *ParamVector
	maxTicks   int64
	seeds      []int64
	baseConfig *config.Config

	mu          sync.Mutex
	lastSummary runSummary
}

// runSummary describes one evaluated run.
type runSummary struct {
	InBand     float64 // mean in-band fraction
	CV         float64 // mean window population CV
	Survived   float64 // fraction of the run before extinction
	Population float64 // mean final population
	Invalid    bool    // the candidate could not be simulated
}

// NewFitnessEvaluator creates a new evaluator.
func NewFitnessEvaluator(params *ParamVector, maxTicks int64, seeds []int64, baseCfg *config.Config) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:     params,
		maxTicks:   maxTicks,
		seeds:      seeds,
		baseConfig: baseCfg,
	}
}

// LastSummary returns the averaged summary of the most recent evaluation.
func (fe *FitnessEvaluator) LastSummary() runSummary {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastSummary
}

// Evaluate computes fitness for a raw parameter vector, averaged over seeds.
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	results := make([]runSummary, len(fe.seeds))
	var wg sync.WaitGroup

	for i, seed := range fe.seeds {
		wg.Add(1)
		go func(idx int, s int64) {
			defer wg.Done()
			results[idx] = fe.runSimulation(x, s)
		}(i, seed)
	}
	wg.Wait()

	fitness := make([]float64, len(results))
	var avg runSummary
	for i, r := range results {
		fitness[i] = computeFitness(r)
		avg.InBand += r.InBand
		avg.CV += r.CV
		avg.Survived += r.Survived
		avg.Population += r.Population
		avg.Invalid = avg.Invalid || r.Invalid
	}
	n := float64(len(results))
	avg.InBand /= n
	avg.CV /= n
	avg.Survived /= n
	avg.Population /= n

	fe.mu.Lock()
	fe.lastSummary = avg
	fe.mu.Unlock()

	return stat.Mean(fitness, nil)
}

// computeFitness combines in-band time, volatility and extinction into one
// score. A perfectly stable run scores 0.
func computeFitness(r runSummary) float64 {
	if r.Invalid {
		return invalidFitness
	}
	f := outOfBandWeight*(1-r.InBand) + volatilityWeight*r.CV
	f += extinctionWeight * (1 - r.Survived)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return invalidFitness
	}
	return f
}

// runSimulation runs one seed and summarizes its windows.
func (fe *FitnessEvaluator) runSimulation(x []float64, seed int64) runSummary {
	cfg, err := fe.baseConfig.Clone()
	if err != nil {
		slog.Error("failed to clone config", "error", err)
		return runSummary{Invalid: true}
	}
	fe.params.ApplyToConfig(cfg, x)
	cfg.Seed = seed
	cfg.Recovery.Enabled = false
	cfg.Parallel.Workers = 1

	var windows []telemetry.WindowStats
	s, err := sim.New(cfg, sim.Options{
		StatsCallback: func(ws telemetry.WindowStats) { windows = append(windows, ws) },
	})
	if err != nil {
		slog.Warn("invalid candidate", "error", err)
		return runSummary{Invalid: true}
	}
	defer s.Close()

	survived := fe.maxTicks
	for s.Tick() < fe.maxTicks {
		if err := s.Run(context.Background(), min(1000, fe.maxTicks-s.Tick())); err != nil {
			break
		}
		if s.Population() == 0 {
			survived = s.Tick()
			break
		}
	}
	return summarize(windows, float64(survived)/float64(fe.maxTicks), s.Population())
}

func summarize(windows []telemetry.WindowStats, survived float64, pop int) runSummary {
	r := runSummary{Survived: survived, Population: float64(pop)}
	if len(windows) == 0 {
		return r
	}
	inBand := make([]float64, len(windows))
	cv := make([]float64, len(windows))
	for i, w := range windows {
		inBand[i] = w.InBandFrac
		cv[i] = w.PopulationCV
	}
	r.InBand = stat.Mean(inBand, nil)
	r.CV = stat.Mean(cv, nil)
	return r
}
