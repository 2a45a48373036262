// Region generation using layered simplex noise.
// Elevation, moisture and temperature maps are sampled per grid cell and
// folded into one of the terrain types the resource table knows about.
package world

import (
	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/pthm-cable/homeostasis/config"
	"github.com/pthm-cable/homeostasis/systems"
)

// Generate creates the region grid for cfg. All regions start inactive and
// unowned. Identical seeds produce identical worlds.
func Generate(cfg config.WorldConfig, res config.ResourceConfig, seed int64) *World {
	elevNoise := opensimplex.NewNormalized(seed)
	moistNoise := opensimplex.NewNormalized(seed + 1)
	tempNoise := opensimplex.NewNormalized(seed + 2)

	octaves := cfg.NoiseOctaves
	if octaves < 1 {
		octaves = 1
	}

	w := &World{
		cfg:       cfg,
		intrinsic: systems.IntrinsicRates(res),
		regions:   make([]Region, 0, cfg.Width*cfg.Height),
	}
	for y := 0; y < cfg.Height; y++ {
		for x := 0; x < cfg.Width; x++ {
			fx, fy := float64(x), float64(y)
			elev := octaveNoise(elevNoise, fx, fy, octaves, cfg.NoiseScale, 0.5)
			moist := octaveNoise(moistNoise, fx, fy, octaves, cfg.NoiseScale*0.8, 0.5)
			temp := octaveNoise(tempNoise, fx, fy, octaves, cfg.NoiseScale*0.6, 0.5)

			// Colder at altitude
			temp = temp*0.8 + (1-elev)*0.2

			w.regions = append(w.regions, Region{
				ID:          len(w.regions),
				X:           x,
				Y:           y,
				Terrain:     deriveTerrain(elev, moist, temp),
				Elevation:   elev,
				Moisture:    moist,
				Temperature: temp,
				Owner:       Unowned,
			})
		}
	}
	return w
}

// deriveTerrain maps environmental values in [0,1] to a terrain.
func deriveTerrain(elev, moist, temp float64) systems.Terrain {
	switch {
	case elev < 0.28:
		return systems.TerrainWater
	case elev < 0.33:
		if moist > 0.7 {
			return systems.TerrainIsland
		}
		return systems.TerrainCoastal
	case elev > 0.85:
		if temp < 0.35 {
			return systems.TerrainGlacier
		}
		return systems.TerrainVolcanic
	case elev > 0.72:
		return systems.TerrainMountains
	case elev > 0.62:
		if moist < 0.25 {
			return systems.TerrainCanyon
		}
		return systems.TerrainHills
	}

	switch {
	case temp < 0.25:
		return systems.TerrainTundra
	case temp < 0.35:
		return systems.TerrainTaiga
	}

	switch {
	case moist < 0.2:
		if elev < 0.4 {
			return systems.TerrainOasis
		}
		return systems.TerrainDesert
	case moist < 0.32:
		if elev > 0.55 {
			return systems.TerrainBadlands
		}
		if temp > 0.6 {
			return systems.TerrainSavanna
		}
		return systems.TerrainSteppe
	case moist > 0.72:
		if temp > 0.65 {
			return systems.TerrainJungle
		}
		if elev < 0.45 {
			return systems.TerrainSwamp
		}
		return systems.TerrainForest
	case moist > 0.5:
		if elev < 0.42 {
			return systems.TerrainValley
		}
		return systems.TerrainForest
	}
	return systems.TerrainPlains
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
