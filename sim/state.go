package sim

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/pthm-cable/homeostasis/config"
	"github.com/pthm-cable/homeostasis/control"
	"github.com/pthm-cable/homeostasis/systems"
	"github.com/pthm-cable/homeostasis/telemetry"
)

// StateVersion is incremented when State changes shape.
const StateVersion = 1

// ErrStateVersion is returned when restoring state of another version.
var ErrStateVersion = errors.New("sim: unsupported state version")

// GroupRecord is the persistable form of a population group and its members.
type GroupRecord struct {
	ID                 int              `json:"id"`
	Territory          []int            `json:"territory"`
	StarvationPressure float64          `json:"starvation_pressure"`
	LastBirthTick      int64            `json:"last_birth_tick"`
	FoodPool           float64          `json:"food_pool"`
	OrePool            float64          `json:"ore_pool"`
	CapacityEstimate   float64          `json:"capacity_estimate"`
	CapacityReady      bool             `json:"capacity_ready"`
	ReliefUntil        int64            `json:"relief_until"`
	Members            []systems.Member `json:"members"`
}

// State is everything needed to continue a run. Random streams are not
// captured; they are reseeded from the seed and the tick on restore, so a
// restored run is deterministic but diverges from the uninterrupted one.
type State struct {
	Version     int                       `json:"version"`
	Seed        int64                     `json:"seed"`
	Tick        int64                     `json:"tick"`
	NextGroupID int                       `json:"next_group_id"`
	Stocks      []systems.ResourceStock   `json:"stocks"`
	Groups      []GroupRecord             `json:"groups"`
	Parameters  map[string]float64        `json:"parameters"`
	Band        control.Band              `json:"band"`
	Controllers control.Timings           `json:"controllers"`
	History     []telemetry.AuditSnapshot `json:"history"`
	Recovery    RecoveryState             `json:"recovery"`
}

// State captures the current simulation state.
func (s *Simulation) State() State {
	st := State{
		Version:     StateVersion,
		Seed:        s.cfg.Seed,
		Tick:        s.tick,
		NextGroupID: s.nextGroupID,
		Stocks:      s.world.Stocks(),
		Groups:      make([]GroupRecord, 0, len(s.groups)),
		Parameters:  s.controls.Registry.Values(),
		Band:        s.controls.Band.Band(),
		Controllers: s.controls.Timings(),
		History:     s.ledger.Recent(s.ledger.Len()),
		Recovery:    s.recovery,
	}
	for _, g := range s.groups {
		st.Groups = append(st.Groups, GroupRecord{
			ID:                 g.ID,
			Territory:          append([]int(nil), g.Territory...),
			StarvationPressure: g.StarvationPressure,
			LastBirthTick:      g.LastBirthTick,
			FoodPool:           g.FoodPool,
			OrePool:            g.OrePool,
			CapacityEstimate:   g.CapacityEstimate,
			CapacityReady:      g.CapacityReady,
			ReliefUntil:        g.ReliefUntil,
			Members:            s.roster.Members(g.ID),
		})
	}
	return st
}

// memberAdder is implemented by rosters that can reinstate saved members.
type memberAdder interface {
	Add(group int, m systems.Member)
}

// Restore builds a simulation that continues from st. The config supplies
// everything not captured in the state; st.Seed overrides cfg.Seed.
func Restore(cfg *config.Config, st State, opts Options) (*Simulation, error) {
	if st.Version != StateVersion {
		return nil, fmt.Errorf("%w: %d", ErrStateVersion, st.Version)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Seed = st.Seed
	cfg.Refresh()

	s := newEmpty(cfg, opts)
	adder, ok := s.roster.(memberAdder)
	if !ok {
		return nil, fmt.Errorf("sim: roster %T cannot restore members", s.roster)
	}
	if err := s.world.RestoreStocks(st.Stocks); err != nil {
		return nil, fmt.Errorf("restore stocks: %w", err)
	}

	for _, rec := range st.Groups {
		for _, id := range rec.Territory {
			if err := s.world.SetOwner(id, rec.ID); err != nil {
				return nil, fmt.Errorf("restore group %d: %w", rec.ID, err)
			}
		}
		g := systems.NewPopulationGroup(rec.ID, append([]int(nil), rec.Territory...), groupSeed(st.Seed^st.Tick, rec.ID))
		g.StarvationPressure = rec.StarvationPressure
		g.LastBirthTick = rec.LastBirthTick
		g.FoodPool = rec.FoodPool
		g.OrePool = rec.OrePool
		g.CapacityEstimate = rec.CapacityEstimate
		g.CapacityReady = rec.CapacityReady
		g.ReliefUntil = rec.ReliefUntil
		s.groups = append(s.groups, g)
		for _, m := range rec.Members {
			adder.Add(rec.ID, m)
		}
	}

	if err := s.controls.Registry.Restore(st.Parameters); err != nil {
		return nil, fmt.Errorf("restore parameters: %w", err)
	}
	s.controls.Band.Restore(st.Band)
	s.controls.RestoreTimings(st.Controllers)
	s.ledger.Restore(st.History)

	s.tick = st.Tick
	s.nextGroupID = st.NextGroupID
	s.recovery = st.Recovery
	s.collector.Resume(st.Tick)
	s.rng = rand.New(rand.NewSource(st.Seed ^ st.Tick))
	s.lastPop = s.roster.Total()
	if last, ok := s.ledger.Latest(); ok {
		s.lastWave = last.Wave
	}

	output, err := telemetry.NewOutputManager(opts.OutputDir)
	if err != nil {
		return nil, err
	}
	s.output = output

	slog.Info("simulation restored",
		"seed", st.Seed,
		"tick", s.tick,
		"groups", len(s.groups),
		"population", s.lastPop,
		"band", s.controls.Band.Band().String(),
	)
	return s, nil
}
