package units

import "math"

// Wind is a single wind draw: speed in m/s and bearing in degrees.
type Wind struct {
	Speed     float64 `json:"speed"`
	Direction float64 `json:"direction"`
}

// WrapDegrees folds an angle into [0, 360).
func WrapDegrees(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	if deg >= 360 {
		deg = 0
	}
	return deg
}

// BearingVector returns the unit vector (east, north) for a compass bearing.
// A bearing of 90 points along +x.
func BearingVector(deg float64) (x, y float64) {
	rad := (90 - deg) * math.Pi / 180
	return math.Cos(rad), math.Sin(rad)
}

// Components returns the wind as a planar vector scaled by its speed.
func (w Wind) Components() (x, y float64) {
	ux, uy := BearingVector(w.Direction)
	return w.Speed * ux, w.Speed * uy
}

// WindFromComponents is the inverse of Wind.Components. A zero vector
// yields a calm wind with bearing 0.
func WindFromComponents(x, y float64) Wind {
	speed := math.Hypot(x, y)
	if speed == 0 {
		return Wind{}
	}
	deg := 90 - math.Atan2(y, x)*180/math.Pi
	return Wind{Speed: speed, Direction: WrapDegrees(deg)}
}
