package domain

import "math"

type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vector3) Sub(o Vector3) Vector3 {
	return Vector3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

func (v Vector3) Length() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

func (v Vector3) Distance(o Vector3) float64 {
	return v.Sub(o).Length()
}

// Position is a point in a named world plus the head orientation.
type Position struct {
	World string  `json:"world"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
	Pitch float32 `json:"pitch"`
	Yaw   float32 `json:"yaw"`
}

func (p Position) Vector() Vector3 {
	return Vector3{X: p.X, Y: p.Y, Z: p.Z}
}

// InRange reports whether both positions share a world and lie within radius.
func (p Position) InRange(o Position, radius float64) bool {
	if p.World != o.World {
		return false
	}
	return p.Vector().Distance(o.Vector()) <= radius
}

// LocationUpdate is one position delivery for a listener.
// It is comparable, so identical updates collapse inside a set.
type LocationUpdate struct {
	Source     ClientID `json:"source"`
	Position   Position `json:"position"`
	RelativeTo Vector3  `json:"relative_to"`
}
