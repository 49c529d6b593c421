// Package geodesy places points on the host simulator's spherical earth.
//
// The host measures distance in nautical miles of one arc-minute each, so the
// sphere used here is derived from that relationship rather than from WGS-84.
// Longitudes are east-positive on both sides of Translate.
package geodesy

import "math"

const (
	FeetPerNauticalMile    = 6076.12
	NauticalMilesPerDegree = 60.0

	// EarthRadiusFt is the radius of a sphere on which one degree of arc is
	// exactly NauticalMilesPerDegree nautical miles.
	EarthRadiusFt = FeetPerNauticalMile * NauticalMilesPerDegree * 180 / math.Pi

	// poleEpsilon is the smallest |cos(latitude)| treated as off-pole.
	poleEpsilon = 1e-12
)

// Translate returns the point reached by travelling distanceFt feet from
// (lat, lon) along the great-circle bearing headingDeg. All angles are degrees.
func Translate(headingDeg, distanceFt, lat, lon float64) (float64, float64) {
	if distanceFt == 0 {
		return lat, lon
	}

	theta := Radians(headingDeg)
	phi1 := Radians(lat)
	lambda1 := Radians(lon)
	delta := distanceFt / EarthRadiusFt

	sinPhi1, cosPhi1 := math.Sincos(phi1)
	sinDelta, cosDelta := math.Sincos(delta)

	phi2 := math.Asin(sinPhi1*cosDelta + cosPhi1*sinDelta*math.Cos(theta))

	lambda2 := lambda1
	if math.Abs(cosPhi1) > poleEpsilon {
		lambda2 = lambda1 + math.Atan2(
			math.Sin(theta)*sinDelta*cosPhi1,
			cosDelta-sinPhi1*math.Sin(phi2),
		)
	}

	return Degrees(phi2), NormalizeLongitude(Degrees(lambda2))
}

// Mod is the floored modulus: the result takes the sign of d.
func Mod(n, d float64) float64 {
	return n - d*math.Floor(n/d)
}

// NormalizeLongitude folds lon into [-180, 180).
func NormalizeLongitude(lon float64) float64 {
	lon = Mod(lon+180, 360) - 180
	// Mod rounds up to d for tiny negative n.
	if lon >= 180 {
		lon -= 360
	}
	return lon
}

// NormalizeHeading folds a heading into [0, 360).
func NormalizeHeading(deg float64) float64 {
	return Mod(deg, 360)
}

func Radians(deg float64) float64 { return deg * math.Pi / 180 }

func Degrees(rad float64) float64 { return rad * 180 / math.Pi }
