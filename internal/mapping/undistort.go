package mapping

import "gazemap-go/internal/types"

const undistortIterations = 10

// Undistort removes radial and tangential lens distortion from an image
// point using the calibration's camera matrix and (k1, k2, p1, p2, k3)
// coefficients. Points pass through unchanged for a zero calibration.
func Undistort(cal types.Calibration, p types.Point) types.Point {
	if cal.IsZero() {
		return p
	}
	fx, fy := cal.CameraMatrix[0][0], cal.CameraMatrix[1][1]
	cx, cy := cal.CameraMatrix[0][2], cal.CameraMatrix[1][2]

	var k1, k2, p1, p2, k3 float64
	d := cal.Distortion
	if len(d) > 0 {
		k1 = d[0]
	}
	if len(d) > 1 {
		k2 = d[1]
	}
	if len(d) > 2 {
		p1 = d[2]
	}
	if len(d) > 3 {
		p2 = d[3]
	}
	if len(d) > 4 {
		k3 = d[4]
	}

	x0 := (p.X - cx) / fx
	y0 := (p.Y - cy) / fy
	x, y := x0, y0
	for i := 0; i < undistortIterations; i++ {
		r2 := x*x + y*y
		radial := 1 + k1*r2 + k2*r2*r2 + k3*r2*r2*r2
		dx := 2*p1*x*y + p2*(r2+2*x*x)
		dy := p1*(r2+2*y*y) + 2*p2*x*y
		x = (x0 - dx) / radial
		y = (y0 - dy) / radial
	}
	return types.Point{X: x*fx + cx, Y: y*fy + cy}
}
