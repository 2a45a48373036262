package sim

import (
	"log/slog"
	"math"
)

// RecoveryState tracks how long the world has been empty and how many
// reseeds were needed so far.
type RecoveryState struct {
	ZeroTicks int `json:"zero_ticks"`
	Attempts  int `json:"attempts"`
}

// checkRecovery reseeds empty groups after the population has stayed at zero
// for zero_pop_ticks ticks. Each attempt spawns one more member per group,
// up to max_per_group.
func (s *Simulation) checkRecovery(tick int64, pop int) {
	cfg := s.cfg.Recovery
	if !cfg.Enabled {
		return
	}
	if pop > 0 {
		s.recovery.ZeroTicks = 0
		return
	}
	s.recovery.ZeroTicks++
	if s.recovery.ZeroTicks < cfg.ZeroPopTicks {
		return
	}

	s.recovery.ZeroTicks = 0
	s.recovery.Attempts++
	n := min(s.recovery.Attempts, cfg.MaxPerGroup)

	if len(s.groups) == 0 {
		for i := 0; i < s.cfg.World.Groups; i++ {
			if _, err := s.FoundGroup(n); err != nil {
				slog.Warn("recovery could not found group", "error", err)
				break
			}
		}
	} else {
		for _, g := range s.groups {
			if s.roster.Count(g.ID) > 0 {
				continue
			}
			g.StarvationPressure = 0
			g.FoodPool = math.Max(g.FoodPool, s.cfg.World.InitialFood)
			s.spawnFounders(g, n)
		}
	}
	s.lastPop = s.roster.Total()

	slog.Warn("population extinct, reseeding",
		"tick", tick,
		"attempt", s.recovery.Attempts,
		"per_group", n,
		"population", s.lastPop,
	)
}
