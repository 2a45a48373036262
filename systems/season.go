package systems

import "strings"

// Season is one quarter of the year.
type Season uint8

const (
	Spring Season = iota
	Summer
	Autumn
	Winter
	numSeasons
)

var seasonNames = [numSeasons]string{"spring", "summer", "autumn", "winter"}

func (s Season) String() string {
	if s < numSeasons {
		return seasonNames[s]
	}
	return "unknown"
}

// SeasonAt returns the season for a tick. ticksPerSeason <= 0 means always spring.
func SeasonAt(tick, ticksPerSeason int64) Season {
	if ticksPerSeason <= 0 || tick < 0 {
		return Spring
	}
	return Season((tick / ticksPerSeason) % int64(numSeasons))
}

// SeasonTable holds the regeneration multiplier per season and resource type.
type SeasonTable [numSeasons][numResourceTypes]float64

// NewSeasonTable builds a table from season -> type -> multiplier names.
// Entries that are not listed default to 1.0.
func NewSeasonTable(m map[string]map[string]float64) SeasonTable {
	var t SeasonTable
	for s := range t {
		for r := range t[s] {
			t[s][r] = 1.0
		}
	}
	for sname, row := range m {
		s, ok := parseSeason(sname)
		if !ok {
			continue
		}
		for rname, v := range row {
			if r, ok := ParseResourceType(rname); ok {
				t[s][r] = v
			}
		}
	}
	return t
}

// Multiplier returns the regeneration multiplier for a type in a season.
func (t *SeasonTable) Multiplier(s Season, r ResourceType) float64 {
	if s >= numSeasons || r >= numResourceTypes {
		return 1.0
	}
	return t[s][r]
}

func parseSeason(name string) (Season, bool) {
	name = strings.ToLower(name)
	for i, n := range seasonNames {
		if n == name {
			return Season(i), true
		}
	}
	return 0, false
}
