package xarm

import "math"

// Angle limits in degrees. The 0..1000 position range spans 250
// degrees centered on PositionCenter, 4 units per degree, quantized
// to 0.25 degree steps.
const (
	AngleMin = -125.0
	AngleMax = 125.0

	unitsPerDegree = 4
	angleStep      = 0.25
)

// ToAngle converts a raw position to degrees, rounded to the nearest
// 0.25 degree step. Exact inverse of ToPosition on the quantization
// grid: ToPosition(ToAngle(p)) == p for every p in [0, 1000].
func ToAngle(position int) float64 {
	degrees := float64(position-PositionCenter) / unitsPerDegree
	return math.Round(degrees/angleStep) * angleStep
}

// ToPosition converts degrees to a raw position. Results outside
// [PositionMin, PositionMax] are rejected upstream as an
// ArgumentError, never clamped.
func ToPosition(angle float64) int {
	return int(math.Round(angle*unitsPerDegree)) + PositionCenter
}
