package main

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pthm-cable/homeostasis/config"
)

// evalLog appends one CSV row per evaluation, prints progress and
// checkpoints the best config whenever a candidate improves on it.
type evalLog struct {
	dir      string
	params   *ParamVector
	baseCfg  *config.Config
	maxEvals int

	file *os.File
	w    *csv.Writer

	count       int
	bestFitness float64
	best        []float64
	start       time.Time
}

func newEvalLog(dir string, params *ParamVector, baseCfg *config.Config, maxEvals int) (*evalLog, error) {
	f, err := os.Create(filepath.Join(dir, "optimize_log.csv"))
	if err != nil {
		return nil, err
	}
	l := &evalLog{
		dir:         dir,
		params:      params,
		baseCfg:     baseCfg,
		maxEvals:    maxEvals,
		file:        f,
		w:           csv.NewWriter(f),
		bestFitness: 1e9,
		start:       time.Now(),
	}

	// Header is built from the parameter list, one column per spec
	header := []string{"eval", "fitness", "in_band", "cv", "survived", "invalid"}
	for _, spec := range params.Specs {
		header = append(header, spec.Name)
	}
	if err := l.w.Write(header); err != nil {
		f.Close()
		return nil, err
	}
	return l, nil
}

// Record logs one evaluation of the clamped values actually simulated.
func (l *evalLog) Record(clamped []float64, fitness float64, sum runSummary) {
	l.count++
	improved := fitness < l.bestFitness
	if improved {
		l.bestFitness = fitness
		l.best = append([]float64(nil), clamped...)
	}

	row := []string{
		strconv.Itoa(l.count),
		fmt.Sprintf("%.6f", fitness),
		fmt.Sprintf("%.4f", sum.InBand),
		fmt.Sprintf("%.4f", sum.CV),
		fmt.Sprintf("%.4f", sum.Survived),
		strconv.FormatBool(sum.Invalid),
	}
	for _, v := range clamped {
		row = append(row, fmt.Sprintf("%.6f", v))
	}
	if err := l.w.Write(row); err != nil {
		log.Printf("failed to log evaluation %d: %v", l.count, err)
	}
	l.w.Flush()

	// Checkpoint so an interrupted search keeps its best candidate
	if improved {
		if _, err := l.SaveConfig(l.best); err != nil {
			log.Printf("failed to checkpoint best config: %v", err)
		}
	}

	elapsed := l.Elapsed()
	remaining := time.Duration(l.maxEvals-l.count) * (elapsed / time.Duration(l.count))
	fmt.Printf("Eval %d/%d: fitness=%.4f in_band=%.2f cv=%.3f survived=%.2f (best=%.4f) | elapsed: %s, ETA: %s\n",
		l.count, l.maxEvals, fitness, sum.InBand, sum.CV, sum.Survived, l.bestFitness,
		formatDuration(elapsed), formatDuration(remaining))
}

// SaveConfig writes the base config with values applied to best_config.yaml.
func (l *evalLog) SaveConfig(values []float64) (string, error) {
	cfg, err := l.baseCfg.Clone()
	if err != nil {
		return "", err
	}
	l.params.ApplyToConfig(cfg, values)
	path := bestConfigPath(l.dir)
	return path, cfg.WriteYAML(path)
}

// Best returns the best clamped values seen and their fitness.
func (l *evalLog) Best() ([]float64, float64) { return l.best, l.bestFitness }

// Count returns the number of recorded evaluations.
func (l *evalLog) Count() int { return l.count }

// Elapsed returns the time since the log was opened.
func (l *evalLog) Elapsed() time.Duration { return time.Since(l.start) }

// Close flushes and closes the CSV file.
func (l *evalLog) Close() error {
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		l.file.Close()
		return err
	}
	return l.file.Close()
}
