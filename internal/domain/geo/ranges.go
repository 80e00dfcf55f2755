package geo

import (
	"math"
	"strings"

	"github.com/mmcloughlin/geohash"
)

const (
	// StoredPrecision is the geohash length written on every geo-indexed
	// document. Computed once at write time, never mutated.
	StoredPrecision = 10

	bitsPerChar            = 5
	maxBitsPrecision       = 22 * bitsPerChar
	earthEqRadiusMeters    = 6378137.0
	meridianCircumference  = 40007860.0
	metersPerDegreeLatGeodetic = 110574.0
	e2                     = 0.00669447819799
	epsilon                = 1e-12
)

const base32Chars = "0123456789bcdefghjkmnpqrstuvwxyz"

// HashRange is a contiguous range of geohash keys. A range query over
// [Start, End] returns a superset of the documents inside the circle it was
// derived from; callers filter by exact distance.
type HashRange struct {
	Start string
	End   string
}

// EncodeHash returns the geohash stored on a document at write time.
func EncodeHash(p Point) string {
	return geohash.EncodeWithPrecision(p.Lat, p.Lng, StoredPrecision)
}

// CoveringRanges computes the set of geohash ranges that together cover the
// circle (center, radiusMeters). Every point inside the circle hashes into
// one of the returned ranges; points outside may too.
func CoveringRanges(center Point, radiusMeters float64) []HashRange {
	queryBits := boundingBoxBits(center, radiusMeters)
	if queryBits < 1 {
		queryBits = 1
	}
	precision := uint((queryBits + bitsPerChar - 1) / bitsPerChar)

	corners := boundingBoxCorners(center, radiusMeters)

	ranges := make([]HashRange, 0, len(corners))
	for _, c := range corners {
		r := rangeForHash(geohash.EncodeWithPrecision(c.Lat, c.Lng, precision), queryBits)

		dup := false
		for _, prev := range ranges {
			if prev == r {
				dup = true
				break
			}
		}
		if !dup {
			ranges = append(ranges, r)
		}
	}

	return ranges
}

// rangeForHash widens a geohash to the [start, end] key range that covers
// every hash sharing its first queryBits bits.
func rangeForHash(hash string, queryBits int) HashRange {
	precision := (queryBits + bitsPerChar - 1) / bitsPerChar
	if len(hash) < precision {
		return HashRange{Start: hash, End: hash + "~"}
	}

	hash = hash[:precision]
	base := hash[:len(hash)-1]
	lastValue := strings.IndexByte(base32Chars, hash[len(hash)-1])

	significantBits := queryBits - len(base)*bitsPerChar
	unusedBits := bitsPerChar - significantBits
	startValue := (lastValue >> uint(unusedBits)) << uint(unusedBits)
	endValue := startValue + (1 << uint(unusedBits))

	if endValue > 31 {
		return HashRange{
			Start: base + string(base32Chars[startValue]),
			End:   base + "~",
		}
	}
	return HashRange{
		Start: base + string(base32Chars[startValue]),
		End:   base + string(base32Chars[endValue]),
	}
}

// boundingBoxBits returns the number of leading geohash bits needed so a
// single cell is at least as large as the bounding box of the circle.
func boundingBoxBits(center Point, sizeMeters float64) int {
	latDelta := sizeMeters / metersPerDegreeLatGeodetic
	latNorth := math.Min(90, center.Lat+latDelta)
	latSouth := math.Max(-90, center.Lat-latDelta)

	bitsLat := int(math.Floor(latitudeBitsForResolution(sizeMeters))) * 2
	bitsLngNorth := int(math.Floor(longitudeBitsForResolution(sizeMeters, latNorth)))*2 - 1
	bitsLngSouth := int(math.Floor(longitudeBitsForResolution(sizeMeters, latSouth)))*2 - 1

	bits := bitsLat
	if bitsLngNorth < bits {
		bits = bitsLngNorth
	}
	if bitsLngSouth < bits {
		bits = bitsLngSouth
	}
	if bits > maxBitsPrecision {
		bits = maxBitsPrecision
	}
	return bits
}

// boundingBoxCorners returns the center, edge midpoints, and corners of the
// bounding box around the circle. Hashing each yields every cell the circle
// can touch at the query precision.
func boundingBoxCorners(center Point, radiusMeters float64) []Point {
	latDelta := radiusMeters / metersPerDegreeLatGeodetic
	latNorth := math.Min(90, center.Lat+latDelta)
	latSouth := math.Max(-90, center.Lat-latDelta)

	lngDeltaNorth := metersToLongitudeDegrees(radiusMeters, latNorth)
	lngDeltaSouth := metersToLongitudeDegrees(radiusMeters, latSouth)
	lngDelta := math.Max(lngDeltaNorth, lngDeltaSouth)

	return []Point{
		{center.Lat, center.Lng},
		{center.Lat, wrapLongitude(center.Lng - lngDelta)},
		{center.Lat, wrapLongitude(center.Lng + lngDelta)},
		{latNorth, center.Lng},
		{latNorth, wrapLongitude(center.Lng - lngDelta)},
		{latNorth, wrapLongitude(center.Lng + lngDelta)},
		{latSouth, center.Lng},
		{latSouth, wrapLongitude(center.Lng - lngDelta)},
		{latSouth, wrapLongitude(center.Lng + lngDelta)},
	}
}

func latitudeBitsForResolution(resolutionMeters float64) float64 {
	bits := math.Log2(meridianCircumference / 2 / resolutionMeters)
	return math.Min(bits, maxBitsPrecision)
}

func longitudeBitsForResolution(resolutionMeters, latitude float64) float64 {
	degrees := metersToLongitudeDegrees(resolutionMeters, latitude)
	if math.Abs(degrees) <= 0.000001 {
		return 1
	}
	return math.Max(1, math.Log2(360/degrees))
}

// metersToLongitudeDegrees converts a distance to degrees of longitude at a
// given latitude, accounting for the WGS-84 ellipsoid.
func metersToLongitudeDegrees(distanceMeters, latitude float64) float64 {
	radians := degreesToRadians(latitude)
	num := math.Cos(radians) * earthEqRadiusMeters * math.Pi / 180
	denom := 1 / math.Sqrt(1-e2*math.Sin(radians)*math.Sin(radians))
	deltaDeg := num * denom

	if deltaDeg < epsilon {
		if distanceMeters > 0 {
			return 360
		}
		return 0
	}
	return math.Min(360, distanceMeters/deltaDeg)
}

func wrapLongitude(longitude float64) float64 {
	if longitude <= 180 && longitude >= -180 {
		return longitude
	}
	adjusted := longitude + 180
	if adjusted > 0 {
		return math.Mod(adjusted, 360) - 180
	}
	return 180 - math.Mod(-adjusted, 360)
}
