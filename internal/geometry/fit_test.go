package geometry

import (
	"math"
	"testing"
)

const tolerance = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) <= tolerance
}

// TestFitKnownScenario checks the reference placement: a 1200×800 raster in
// a 960×600 stage scales by 0.75 to 900×600, centered at x=30, y=0, and a
// click at (300,150) lands at document coords (360,200).
func TestFitKnownScenario(t *testing.T) {
	f := Fit(Size{960, 600}, Size{1200, 800})

	if !almostEqual(f.Width, 900) || !almostEqual(f.Height, 600) {
		t.Errorf("draw size = %gx%g, want 900x600", f.Width, f.Height)
	}
	if !almostEqual(f.OffsetX, 30) || !almostEqual(f.OffsetY, 0) {
		t.Errorf("offset = (%g,%g), want (30,0)", f.OffsetX, f.OffsetY)
	}
	if !almostEqual(f.ScaleX, 0.75) || !almostEqual(f.ScaleY, 0.75) {
		t.Errorf("scale = (%g,%g), want (0.75,0.75)", f.ScaleX, f.ScaleY)
	}

	x, y := f.ToDocument(300, 150)
	if !almostEqual(x, 360) || !almostEqual(y, 200) {
		t.Errorf("ToDocument(300,150) = (%g,%g), want (360,200)", x, y)
	}
}

// TestFitPreservesAspectAndCenters verifies that for a range of stage and
// raster sizes the scale is uniform and leftover space splits evenly.
func TestFitPreservesAspectAndCenters(t *testing.T) {
	stages := []Size{{960, 600}, {300, 900}, {1920, 1080}, {512, 512}}
	images := []Size{{1200, 800}, {800, 1200}, {100, 2000}, {640, 640}}

	for _, stage := range stages {
		for _, image := range images {
			f := Fit(stage, image)

			if !almostEqual(f.ScaleX, f.ScaleY) {
				t.Errorf("stage %v image %v: non-uniform scale %g vs %g", stage, image, f.ScaleX, f.ScaleY)
			}
			if f.Width > stage.Width+tolerance || f.Height > stage.Height+tolerance {
				t.Errorf("stage %v image %v: draw %gx%g exceeds stage", stage, image, f.Width, f.Height)
			}

			rightGap := stage.Width - f.OffsetX - f.Width
			bottomGap := stage.Height - f.OffsetY - f.Height
			if !almostEqual(rightGap, f.OffsetX) || !almostEqual(bottomGap, f.OffsetY) {
				t.Errorf("stage %v image %v: not centered, gaps (%g,%g) vs offsets (%g,%g)",
					stage, image, rightGap, bottomGap, f.OffsetX, f.OffsetY)
			}
		}
	}
}

// TestRoundTrip maps document points to the stage and back.
func TestRoundTrip(t *testing.T) {
	f := Fit(Size{960, 600}, Size{1200, 800})

	points := [][2]float64{{0, 0}, {1200, 800}, {360, 200}, {17.5, 793.25}, {600, 400}}
	for _, p := range points {
		sx, sy := f.ToStage(p[0], p[1])
		dx, dy := f.ToDocument(sx, sy)
		if !almostEqual(dx, p[0]) || !almostEqual(dy, p[1]) {
			t.Errorf("round trip (%g,%g) -> (%g,%g)", p[0], p[1], dx, dy)
		}
	}
}

// TestFitNoRaster returns the identity fit over the full stage.
func TestFitNoRaster(t *testing.T) {
	f := Fit(Size{960, 600}, Size{})

	if f.OffsetX != 0 || f.OffsetY != 0 {
		t.Errorf("offset = (%g,%g), want (0,0)", f.OffsetX, f.OffsetY)
	}
	if f.ScaleX != 1 || f.ScaleY != 1 {
		t.Errorf("scale = (%g,%g), want identity", f.ScaleX, f.ScaleY)
	}
	if f.Width != 960 || f.Height != 600 {
		t.Errorf("size = %gx%g, want full stage", f.Width, f.Height)
	}

	x, y := f.ToDocument(123, 45)
	if x != 123 || y != 45 {
		t.Errorf("identity ToDocument(123,45) = (%g,%g)", x, y)
	}
}
