// Package roster is the population subsystem: it owns the members of every
// group and hands the demographic step read-only views of them.
package roster

import (
	"sort"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/homeostasis/systems"
)

// Roster is what the simulation needs from a population store.
type Roster interface {
	// Spawn creates a member of group born at tick.
	Spawn(group int, tick int64) systems.AgentID
	// Members lists the members of group ordered by ID.
	Members(group int) []systems.Member
	// Remove deletes the given members and returns how many existed.
	Remove(ids []systems.AgentID) int
	// RemoveGroup deletes every member of group and returns how many there were.
	RemoveGroup(group int) int
	// Count returns the size of group.
	Count(group int) int
	// Total returns the size of every group combined.
	Total() int
}

// Identity is the per-member component.
type Identity struct {
	ID       systems.AgentID
	BornTick int64
}

// Membership ties a member to its group.
type Membership struct {
	Group int
}

// ECS is a Roster backed by an ark world.
type ECS struct {
	world  *ecs.World
	mapper *ecs.Map2[Identity, Membership]
	filter *ecs.Filter2[Identity, Membership]

	entities map[systems.AgentID]ecs.Entity
	groups   map[systems.AgentID]int
	counts   map[int]int
	nextID   systems.AgentID
}

// NewECS creates an empty roster.
func NewECS() *ECS {
	world := ecs.NewWorld()
	return &ECS{
		world:    world,
		mapper:   ecs.NewMap2[Identity, Membership](world),
		filter:   ecs.NewFilter2[Identity, Membership](world),
		entities: make(map[systems.AgentID]ecs.Entity),
		groups:   make(map[systems.AgentID]int),
		counts:   make(map[int]int),
		nextID:   1,
	}
}

// Spawn creates a member of group born at tick.
func (r *ECS) Spawn(group int, tick int64) systems.AgentID {
	id := r.nextID
	r.nextID++
	r.add(group, Identity{ID: id, BornTick: tick})
	return id
}

// Add inserts a member with a known ID, as when restoring saved state.
func (r *ECS) Add(group int, m systems.Member) {
	if _, ok := r.entities[m.ID]; ok {
		return
	}
	r.add(group, Identity{ID: m.ID, BornTick: m.BornTick})
	if m.ID >= r.nextID {
		r.nextID = m.ID + 1
	}
}

func (r *ECS) add(group int, ident Identity) {
	member := Membership{Group: group}
	e := r.mapper.NewEntity(&ident, &member)
	r.entities[ident.ID] = e
	r.groups[ident.ID] = group
	r.counts[group]++
}

// Members lists the members of group ordered by ID.
func (r *ECS) Members(group int) []systems.Member {
	if r.counts[group] == 0 {
		return nil
	}
	out := make([]systems.Member, 0, r.counts[group])
	query := r.filter.Query()
	for query.Next() {
		ident, member := query.Get()
		if member.Group == group {
			out = append(out, systems.Member{ID: ident.ID, BornTick: ident.BornTick})
		}
	}
	sortMembers(out)
	return out
}

// ByGroup lists every group's members in one pass, each ordered by ID.
func (r *ECS) ByGroup() map[int][]systems.Member {
	out := make(map[int][]systems.Member, len(r.counts))
	query := r.filter.Query()
	for query.Next() {
		ident, member := query.Get()
		out[member.Group] = append(out[member.Group], systems.Member{ID: ident.ID, BornTick: ident.BornTick})
	}
	for _, ms := range out {
		sortMembers(ms)
	}
	return out
}

// Remove deletes the given members and returns how many existed.
func (r *ECS) Remove(ids []systems.AgentID) int {
	removed := 0
	for _, id := range ids {
		e, ok := r.entities[id]
		if !ok || !r.world.Alive(e) {
			continue
		}
		r.world.RemoveEntity(e)
		r.counts[r.groups[id]]--
		delete(r.entities, id)
		delete(r.groups, id)
		removed++
	}
	return removed
}

// RemoveGroup deletes every member of group and returns how many there were.
func (r *ECS) RemoveGroup(group int) int {
	var ids []systems.AgentID
	for id, g := range r.groups {
		if g == group {
			ids = append(ids, id)
		}
	}
	n := r.Remove(ids)
	delete(r.counts, group)
	return n
}

// Count returns the size of group.
func (r *ECS) Count(group int) int {
	return r.counts[group]
}

// Total returns the size of every group combined.
func (r *ECS) Total() int {
	return len(r.entities)
}

func sortMembers(ms []systems.Member) {
	sort.Slice(ms, func(i, j int) bool { return ms[i].ID < ms[j].ID })
}
