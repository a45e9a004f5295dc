package domain

import (
	"regexp"
	"sort"

	"github.com/paulmach/orb/geojson"
)

// ShardDescriptor identifies one horizontal shard of the postcode spatial
// store: a database name and the partition-key prefix derived from it.
// Descriptors are read-only and fetched fresh from the shard map every run.
type ShardDescriptor struct {
	DatabaseName string `json:"databaseName"`
	PartitionKey string `json:"-"`
}

// AreaMatch is a postcode area whose geometry intersects a flood geometry.
type AreaMatch struct {
	AreaCode string
	Geometry *geojson.Geometry
}

// DistrictMatch is a postcode district whose geometry intersects a flood
// geometry. The district name's leading letters are its parent area code.
type DistrictMatch struct {
	Name string
}

// PostcodeMatch is a full postcode whose geometry intersects a flood
// geometry, the leaf of the matching pipeline. Feature carries the matched
// geometry for verification only; identity is the postcode string.
type PostcodeMatch struct {
	Postcode string
	Feature  *geojson.Feature
}

// MatchResult is the fan-in of one flood's spatial match. Incomplete marks
// that at least one shard, area or district query failed, so Postcodes may be
// missing contributions and must not be cached as authoritative.
type MatchResult struct {
	FloodAreaID string
	Postcodes   []PostcodeMatch
	Incomplete  bool
	Errs        []error
}

// PostcodeSet returns the sorted, deduplicated postcode strings of a result.
func (r MatchResult) PostcodeSet() []string {
	seen := make(map[string]struct{}, len(r.Postcodes))
	out := make([]string, 0, len(r.Postcodes))
	for _, m := range r.Postcodes {
		if _, ok := seen[m.Postcode]; ok {
			continue
		}
		seen[m.Postcode] = struct{}{}
		out = append(out, m.Postcode)
	}
	sort.Strings(out)
	return out
}

var areaCodePattern = regexp.MustCompile(`^\D+`)

// DistrictAreaCode extracts the parent area code from a district name:
// the leading non-digit characters ("NE1" -> "NE"). Empty when the name does
// not start with letters.
func DistrictAreaCode(district string) string {
	return areaCodePattern.FindString(district)
}
