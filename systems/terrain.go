package systems

// Terrain is the land type of a region. It fixes which resources the region
// carries and how much of each.
type Terrain uint8

const (
	TerrainPlains Terrain = iota
	TerrainForest
	TerrainMountains
	TerrainDesert
	TerrainWater
	TerrainSwamp
	TerrainTundra
	TerrainJungle
	TerrainHills
	TerrainValley
	TerrainCanyon
	TerrainCoastal
	TerrainIsland
	TerrainVolcanic
	TerrainSavanna
	TerrainTaiga
	TerrainSteppe
	TerrainBadlands
	TerrainGlacier
	TerrainOasis
	numTerrains
)

var terrainNames = [numTerrains]string{
	"plains", "forest", "mountains", "desert", "water", "swamp", "tundra",
	"jungle", "hills", "valley", "canyon", "coastal", "island", "volcanic",
	"savanna", "taiga", "steppe", "badlands", "glacier", "oasis",
}

func (t Terrain) String() string {
	if t < numTerrains {
		return terrainNames[t]
	}
	return "unknown"
}

// BaseRates is the per-type resource base of a terrain. Zero means the
// terrain does not carry that resource.
type BaseRates [numResourceTypes]float64

var terrainBase = [numTerrains]BaseRates{
	TerrainPlains:    {Plant: 2.0, Animal: 1.5},
	TerrainForest:    {Plant: 3.0, Animal: 2.0, Mineral: 0.5},
	TerrainMountains: {Animal: 0.5, Mineral: 3.0},
	TerrainDesert:    {Animal: 0.3, Mineral: 1.0},
	TerrainWater:     {Fish: 4.0},
	TerrainSwamp:     {Plant: 1.5, Animal: 1.0, Fish: 1.0},
	TerrainTundra:    {Animal: 0.8, Mineral: 0.3},
	TerrainJungle:    {Plant: 4.0, Animal: 2.5},
	TerrainHills:     {Plant: 1.0, Animal: 1.0, Mineral: 2.0},
	TerrainValley:    {Plant: 2.5, Animal: 1.8},
	TerrainCanyon:    {Mineral: 2.5},
	TerrainCoastal:   {Plant: 1.0, Fish: 3.0},
	TerrainIsland:    {Plant: 1.5, Fish: 2.5},
	TerrainVolcanic:  {Mineral: 4.0},
	TerrainSavanna:   {Plant: 1.0, Animal: 2.0},
	TerrainTaiga:     {Plant: 1.5, Animal: 1.2, Mineral: 0.8},
	TerrainSteppe:    {Plant: 0.8, Animal: 1.8},
	TerrainBadlands:  {Mineral: 1.5},
	TerrainGlacier:   {Mineral: 0.2},
	TerrainOasis:     {Plant: 3.0, Animal: 1.0},
}

// TerrainBaseRates returns the resource base rates of a terrain.
func TerrainBaseRates(t Terrain) BaseRates {
	if t >= numTerrains {
		return BaseRates{}
	}
	return terrainBase[t]
}

// NewStocks creates the resource stocks of a freshly activated region.
// Capacity is base*capFactor, floored at base*2. Stocks start at
// fill*capacity.
func NewStocks(region int, t Terrain, capFactor, fill float64, intrinsic [numResourceTypes]float64) []ResourceStock {
	base := TerrainBaseRates(t)
	var stocks []ResourceStock
	for _, typ := range ResourceTypes {
		b := base[typ]
		if b <= 0 {
			continue
		}
		capacity := b * capFactor
		if capacity < b*2 {
			capacity = b * 2
		}
		stocks = append(stocks, ResourceStock{
			Region:    region,
			Type:      typ,
			Capacity:  capacity,
			RegenRate: intrinsic[typ],
			Amount:    clamp(fill, 0, 1) * capacity,
		})
	}
	return stocks
}
