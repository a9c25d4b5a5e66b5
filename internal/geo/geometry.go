package geo

import "math"

const earthRadiusKm = 6371

// Point is a WGS84 coordinate in decimal degrees
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }
func toDeg(rad float64) float64 { return rad * 180 / math.Pi }

// DistanceKm calculates the great-circle distance between two points in kilometers
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := toRad(lat1)
	phi2 := toRad(lat2)
	deltaPhi := toRad(lat2 - lat1)
	deltaLambda := toRad(lon2 - lon1)

	a := math.Sin(deltaPhi/2)*math.Sin(deltaPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(deltaLambda/2)*math.Sin(deltaLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

// Bearing calculates the initial bearing from point 1 to point 2 in degrees (0-360)
func Bearing(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := toRad(lat1)
	phi2 := toRad(lat2)
	deltaLambda := toRad(lon2 - lon1)

	x := math.Sin(deltaLambda) * math.Cos(phi2)
	y := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(deltaLambda)

	return math.Mod(toDeg(math.Atan2(x, y))+360, 360)
}

// Project returns the destination reached by travelling distanceKm from
// (lat, lon) along the great circle with the given initial bearing.
// Zero distance returns the origin unchanged.
func Project(lat, lon, distanceKm, bearingDeg float64) (float64, float64) {
	if distanceKm == 0 {
		return lat, lon
	}

	brng := toRad(bearingDeg)
	d := distanceKm / earthRadiusKm
	phi1 := toRad(lat)
	lambda1 := toRad(lon)

	phi2 := math.Asin(math.Sin(phi1)*math.Cos(d) + math.Cos(phi1)*math.Sin(d)*math.Cos(brng))
	lambda2 := lambda1 + math.Atan2(
		math.Sin(brng)*math.Sin(d)*math.Cos(phi1),
		math.Cos(d)-math.Sin(phi1)*math.Sin(phi2),
	)

	return toDeg(phi2), normalizeLon(toDeg(lambda2))
}

// RelativeAngle returns the signed difference target - heading folded into
// (-180, 180]. Positive values are to the right of the heading.
func RelativeAngle(headingDeg, targetDeg float64) float64 {
	diff := math.Mod(targetDeg-headingDeg, 360)
	if diff > 180 {
		diff -= 360
	} else if diff <= -180 {
		diff += 360
	}
	return diff
}

// Round rounds v to the given number of decimals
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

func normalizeLon(lon float64) float64 {
	return math.Mod(lon+540, 360) - 180
}
