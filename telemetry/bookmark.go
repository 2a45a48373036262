package telemetry

import (
	"fmt"
	"log/slog"

	"github.com/pthm-cable/homeostasis/config"
)

// BookmarkType identifies the type of bookmark.
type BookmarkType string

const (
	BookmarkPopulationCrash  BookmarkType = "population_crash"
	BookmarkBandBreach       BookmarkType = "band_breach"
	BookmarkBandReturn       BookmarkType = "band_return"
	BookmarkStablePopulation BookmarkType = "stable_population"
	BookmarkExtinction       BookmarkType = "extinction"
)

// Bookmark represents an automatically triggered bookmark.
type Bookmark struct {
	Type        BookmarkType `csv:"type" json:"type"`
	Tick        int64        `csv:"tick" json:"tick"`
	Description string       `csv:"description" json:"description"`
}

// LogBookmark logs the bookmark using slog.
func (b Bookmark) LogBookmark() {
	slog.Info("bookmark",
		"type", string(b.Type),
		"tick", b.Tick,
		"description", b.Description,
	)
}

// BookmarkDetector detects interesting moments in the simulation.
type BookmarkDetector struct {
	cfg config.BookmarksConfig

	// Rolling history
	history *Ring[WindowStats]

	// State tracking
	recentPeak         int  // peak population since the last crash
	outsideBand        bool // last window ended outside the band
	extinct            bool
	stableWindowsCount int // consecutive windows with low population variance
}

// NewBookmarkDetector creates a detector with the given history size.
func NewBookmarkDetector(cfg config.BookmarksConfig, historySize int) *BookmarkDetector {
	if historySize < 5 {
		historySize = 5 // minimum for stability detection
	}
	return &BookmarkDetector{
		cfg:     cfg,
		history: NewRing[WindowStats](historySize),
	}
}

// Check analyzes the latest stats and returns any triggered bookmarks.
func (bd *BookmarkDetector) Check(stats WindowStats) []Bookmark {
	var bookmarks []Bookmark

	if b := bd.checkExtinction(stats); b != nil {
		bookmarks = append(bookmarks, *b)
	}

	if bd.history.Len() > 0 {
		// Population crash: dropped sharply from recent peak
		if b := bd.checkCrash(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}

		// Band breach or return
		if b := bd.checkBand(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}

		// Stable population: low variance over several windows
		if b := bd.checkStable(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}
	} else {
		bd.outsideBand = !inBand(stats)
	}

	bd.history.Push(stats)

	if stats.Population > bd.recentPeak {
		bd.recentPeak = stats.Population
	}

	return bookmarks
}

func inBand(stats WindowStats) bool {
	p := float64(stats.Population)
	return p >= stats.BandMin && p <= stats.BandMax
}

func (bd *BookmarkDetector) checkExtinction(stats WindowStats) *Bookmark {
	if stats.Population > 0 {
		bd.extinct = false
		return nil
	}
	if bd.extinct {
		return nil
	}
	bd.extinct = true
	return &Bookmark{
		Type:        BookmarkExtinction,
		Tick:        stats.WindowEndTick,
		Description: "Population reached zero",
	}
}

func (bd *BookmarkDetector) checkCrash(stats WindowStats) *Bookmark {
	if bd.recentPeak == 0 {
		return nil
	}

	c := bd.cfg.PopulationCrash
	dropPercent := 1.0 - float64(stats.Population)/float64(bd.recentPeak)
	if dropPercent > c.DropPercent && stats.Population < bd.recentPeak-c.MinDrop {
		// Reset peak after crash
		oldPeak := bd.recentPeak
		bd.recentPeak = stats.Population

		return &Bookmark{
			Type:        BookmarkPopulationCrash,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("Population crashed %.0f%% from peak %d to %d", dropPercent*100, oldPeak, stats.Population),
		}
	}

	return nil
}

func (bd *BookmarkDetector) checkBand(stats WindowStats) *Bookmark {
	outside := !inBand(stats)
	defer func() { bd.outsideBand = outside }()

	switch {
	case outside && !bd.outsideBand:
		return &Bookmark{
			Type: BookmarkBandBreach,
			Tick: stats.WindowEndTick,
			Description: fmt.Sprintf("Population %d left band [%.0f, %.0f]",
				stats.Population, stats.BandMin, stats.BandMax),
		}
	case !outside && bd.outsideBand:
		return &Bookmark{
			Type: BookmarkBandReturn,
			Tick: stats.WindowEndTick,
			Description: fmt.Sprintf("Population %d returned to band [%.0f, %.0f]",
				stats.Population, stats.BandMin, stats.BandMax),
		}
	}
	return nil
}

func (bd *BookmarkDetector) checkStable(stats WindowStats) *Bookmark {
	if stats.Population == 0 {
		bd.stableWindowsCount = 0
		return nil
	}

	const span = 4
	n := bd.history.Len()
	if n < span {
		return nil
	}

	recent := bd.history.Tail(span)
	pops := make([]float64, 0, span+1)
	for _, h := range recent {
		pops = append(pops, float64(h.Population))
	}
	pops = append(pops, float64(stats.Population))

	if CV(pops) < bd.cfg.StableBand.CVThreshold && inBand(stats) {
		bd.stableWindowsCount++
	} else {
		bd.stableWindowsCount = 0
	}

	// Trigger exactly once per stable stretch
	if bd.stableWindowsCount == bd.cfg.StableBand.StableWindows {
		return &Bookmark{
			Type: BookmarkStablePopulation,
			Tick: stats.WindowEndTick,
			Description: fmt.Sprintf("Population stable around %d inside band over %d windows",
				stats.Population, bd.cfg.StableBand.StableWindows),
		}
	}

	return nil
}
