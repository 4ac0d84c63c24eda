package utils

import (
	"math"
	"sort"

	"github.com/mmcloughlin/geohash"
)

// StoredGeohashPrecision is the length of geohashes persisted on requests
// (about 1.2m x 0.6m cells).
const StoredGeohashPrecision = 10

const maxQueryPrecision = 9

// GeohashRange is an inclusive lexicographic range over stored geohashes.
type GeohashRange struct {
	Start string
	End   string
}

func EncodeGeohash(lat, lng float64) string {
	return geohash.EncodeWithPrecision(lat, lng, StoredGeohashPrecision)
}

// QueryPrecision picks the longest geohash whose cell around (lat, lng) is at
// least radiusMeters on its shorter side, so the cell plus its eight
// neighbours cover every point within the radius.
func QueryPrecision(lat, lng, radiusMeters float64) uint {
	for precision := uint(maxQueryPrecision); precision > 1; precision-- {
		box := geohash.BoundingBox(geohash.EncodeWithPrecision(lat, lng, precision))
		height := DistanceMeters(box.MinLat, lng, box.MaxLat, lng)
		width := DistanceMeters(lat, box.MinLng, lat, box.MaxLng)
		if math.Min(height, width) >= radiusMeters {
			return precision
		}
	}
	return 1
}

// GeohashQueryBounds returns the disjoint prefix ranges that together cover
// the circle of radiusMeters around (lat, lng). Each range must be queried
// separately and the results unioned; points outside the circle may be
// included and are expected to be filtered by exact distance afterwards.
func GeohashQueryBounds(lat, lng, radiusMeters float64) []GeohashRange {
	precision := QueryPrecision(lat, lng, radiusMeters)
	center := geohash.EncodeWithPrecision(lat, lng, precision)

	cells := append([]string{center}, geohash.Neighbors(center)...)
	sort.Strings(cells)

	bounds := make([]GeohashRange, 0, len(cells))
	for i, cell := range cells {
		if i > 0 && cells[i-1] == cell {
			continue
		}
		bounds = append(bounds, GeohashRange{Start: cell, End: cell + "~"})
	}
	return bounds
}

// Contains reports whether hash falls inside the range.
func (r GeohashRange) Contains(hash string) bool {
	return hash >= r.Start && hash <= r.End
}
