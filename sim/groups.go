package sim

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/pthm-cable/homeostasis/systems"
)

// ErrUnknownGroup is returned for group IDs the simulation does not hold.
var ErrUnknownGroup = errors.New("sim: unknown group")

// groupSeed derives a group's random stream from the world seed, so group
// results do not depend on scheduling or on other groups.
func groupSeed(seed int64, id int) int64 {
	return int64(uint64(seed) ^ (uint64(id+1) * 0x9E3779B97F4A7C15))
}

// FoundGroup creates a group with a fresh territory and members founders.
// Founders get staggered ages so they do not all die of old age together.
func (s *Simulation) FoundGroup(members int) (int, error) {
	id := s.nextGroupID
	territory, err := s.world.Claim(id, s.cfg.World.RegionsPerGroup)
	if err != nil {
		return 0, fmt.Errorf("founding group %d: %w", id, err)
	}
	s.nextGroupID++

	g := systems.NewPopulationGroup(id, territory, groupSeed(s.cfg.Seed, id))
	g.FoodPool = s.cfg.World.InitialFood
	s.groups = append(s.groups, g)
	s.spawnFounders(g, members)

	slog.Debug("group founded", "group", id, "regions", len(territory), "members", members)
	return id, nil
}

func (s *Simulation) spawnFounders(g *systems.PopulationGroup, n int) {
	spread := s.cfg.Demographics.AgeMidpoint * 0.5
	for i := 0; i < n; i++ {
		age := int64(s.rng.Float64() * spread)
		s.roster.Spawn(g.ID, s.tick-age)
	}
}

// DissolveGroup removes a group, its members and its territory.
func (s *Simulation) DissolveGroup(id int) error {
	idx := s.groupIndex(id)
	if idx < 0 {
		return fmt.Errorf("%w: %d", ErrUnknownGroup, id)
	}

	n := s.roster.RemoveGroup(id)
	s.world.Release(id)
	s.groups = append(s.groups[:idx], s.groups[idx+1:]...)

	slog.Info("group dissolved", "group", id, "members", n)
	return nil
}

// Groups returns the IDs of every group in ascending order.
func (s *Simulation) Groups() []int {
	ids := make([]int, len(s.groups))
	for i, g := range s.groups {
		ids[i] = g.ID
	}
	return ids
}

func (s *Simulation) groupIndex(id int) int {
	i := sort.Search(len(s.groups), func(i int) bool { return s.groups[i].ID >= id })
	if i < len(s.groups) && s.groups[i].ID == id {
		return i
	}
	return -1
}
