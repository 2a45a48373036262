package world

import (
	"errors"
	"fmt"
	"sort"

	"github.com/pthm-cable/homeostasis/config"
	"github.com/pthm-cable/homeostasis/systems"
)

// Unowned marks a region no group holds.
const Unowned = -1

var (
	ErrUnknownRegion = errors.New("world: unknown region")
	ErrNoRoom        = errors.New("world: not enough unowned regions")
)

// Region is one grid cell. Stocks exist only while the region is active.
type Region struct {
	ID          int
	X, Y        int
	Terrain     systems.Terrain
	Elevation   float64
	Moisture    float64
	Temperature float64
	Active      bool
	Owner       int
	Stocks      []systems.ResourceStock
}

// World owns every region and the territory map.
type World struct {
	cfg       config.WorldConfig
	intrinsic [systems.NumResourceTypes]float64
	regions   []Region
}

// Len returns the number of regions.
func (w *World) Len() int { return len(w.regions) }

// Region returns the region with the given ID.
func (w *World) Region(id int) (*Region, error) {
	if id < 0 || id >= len(w.regions) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRegion, id)
	}
	return &w.regions[id], nil
}

// Activate creates the stocks of a region from its terrain. Activating an
// active region is a no-op.
func (w *World) Activate(id int) error {
	r, err := w.Region(id)
	if err != nil {
		return err
	}
	if r.Active {
		return nil
	}
	r.Stocks = systems.NewStocks(id, r.Terrain, w.cfg.CapFactor, w.cfg.InitialFill, w.intrinsic)
	r.Active = true
	return nil
}

// Deactivate drops the stocks of a region and releases its owner.
func (w *World) Deactivate(id int) error {
	r, err := w.Region(id)
	if err != nil {
		return err
	}
	r.Active = false
	r.Stocks = nil
	r.Owner = Unowned
	return nil
}

// ActiveIDs returns the active region IDs in ascending order.
func (w *World) ActiveIDs() []int {
	var ids []int
	for i := range w.regions {
		if w.regions[i].Active {
			ids = append(ids, i)
		}
	}
	return ids
}

// Claim assigns n unowned regions to group and activates them. Regions are
// grown outward from the unowned region with the richest food base, so
// territories are compact and never overlap.
func (w *World) Claim(group, n int) ([]int, error) {
	if n <= 0 {
		return nil, nil
	}
	order := w.byFoodScore()
	free := 0
	for _, id := range order {
		if w.regions[id].Owner == Unowned {
			free++
		}
	}
	if free < n {
		return nil, fmt.Errorf("%w: want %d, have %d", ErrNoRoom, n, free)
	}

	claimed := make([]int, 0, n)
	taken := make(map[int]bool, n)
	for _, start := range order {
		if len(claimed) == n {
			break
		}
		if w.regions[start].Owner != Unowned || taken[start] {
			continue
		}
		// Breadth-first from the start region
		queue := []int{start}
		taken[start] = true
		for len(queue) > 0 && len(claimed) < n {
			id := queue[0]
			queue = queue[1:]
			claimed = append(claimed, id)
			for _, nb := range w.neighbors(id) {
				if !taken[nb] && w.regions[nb].Owner == Unowned {
					taken[nb] = true
					queue = append(queue, nb)
				}
			}
		}
	}

	sort.Ints(claimed)
	for _, id := range claimed {
		w.regions[id].Owner = group
		if err := w.Activate(id); err != nil {
			return nil, err
		}
	}
	return claimed, nil
}

// Release deactivates every region owned by group.
func (w *World) Release(group int) {
	for i := range w.regions {
		if w.regions[i].Owner == group {
			_ = w.Deactivate(i)
		}
	}
}

// Territory returns the regions owned by group in ascending order.
func (w *World) Territory(group int) []int {
	var ids []int
	for i := range w.regions {
		if w.regions[i].Owner == group {
			ids = append(ids, i)
		}
	}
	return ids
}

// StockRefs returns pointers to every stock of the given regions. The
// pointers stay valid until a region is deactivated.
func (w *World) StockRefs(ids []int) []*systems.ResourceStock {
	var out []*systems.ResourceStock
	for _, id := range ids {
		if id < 0 || id >= len(w.regions) {
			continue
		}
		r := &w.regions[id]
		for i := range r.Stocks {
			out = append(out, &r.Stocks[i])
		}
	}
	return out
}

// Totals sums stock amounts per resource type over active regions.
func (w *World) Totals() [systems.NumResourceTypes]float64 {
	var out [systems.NumResourceTypes]float64
	for i := range w.regions {
		for _, s := range w.regions[i].Stocks {
			out[s.Type] += s.Amount
		}
	}
	return out
}

// Stocks returns a copy of every active stock, ordered by region.
func (w *World) Stocks() []systems.ResourceStock {
	var out []systems.ResourceStock
	for i := range w.regions {
		out = append(out, w.regions[i].Stocks...)
	}
	return out
}

// RestoreStocks replaces the stocks of the regions they name, activating
// them as needed. Amounts are clamped to capacity.
func (w *World) RestoreStocks(stocks []systems.ResourceStock) error {
	byRegion := make(map[int][]systems.ResourceStock)
	for _, s := range stocks {
		if s.Region < 0 || s.Region >= len(w.regions) {
			return fmt.Errorf("%w: %d", ErrUnknownRegion, s.Region)
		}
		if s.Amount < 0 {
			s.Amount = 0
		}
		if s.Amount > s.Capacity {
			s.Amount = s.Capacity
		}
		byRegion[s.Region] = append(byRegion[s.Region], s)
	}
	for id, ss := range byRegion {
		r := &w.regions[id]
		r.Active = true
		r.Stocks = ss
	}
	return nil
}

// SetOwner records territory ownership without touching stocks.
func (w *World) SetOwner(id, group int) error {
	r, err := w.Region(id)
	if err != nil {
		return err
	}
	r.Owner = group
	return nil
}

// TerrainCounts returns a summary of terrain type distribution.
func (w *World) TerrainCounts() map[systems.Terrain]int {
	counts := make(map[systems.Terrain]int)
	for _, r := range w.regions {
		counts[r.Terrain]++
	}
	return counts
}

func (w *World) neighbors(id int) []int {
	width, height := w.cfg.Width, w.cfg.Height
	x, y := id%width, id/width
	out := make([]int, 0, 4)
	if x > 0 {
		out = append(out, id-1)
	}
	if x < width-1 {
		out = append(out, id+1)
	}
	if y > 0 {
		out = append(out, id-width)
	}
	if y < height-1 {
		out = append(out, id+width)
	}
	return out
}

// byFoodScore orders region IDs by renewable base rate, richest first.
func (w *World) byFoodScore() []int {
	ids := make([]int, len(w.regions))
	score := make([]float64, len(w.regions))
	for i, r := range w.regions {
		ids[i] = i
		base := systems.TerrainBaseRates(r.Terrain)
		for _, typ := range systems.ResourceTypes {
			if typ.Renewable() {
				score[i] += base[typ]
			}
		}
	}
	sort.SliceStable(ids, func(a, b int) bool {
		return score[ids[a]] > score[ids[b]]
	})
	return ids
}
