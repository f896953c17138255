// Package geometry maps between on-screen stage coordinates and document
// space, the coordinate system of the original plan raster at its native
// resolution. Points are always stored in document space so they stay
// anchored when the stage is resized.
package geometry

// Size is a width/height pair in abstract units (pixels or PDF points).
type Size struct {
	Width  float64
	Height float64
}

// FitBox describes how a raster is placed inside a stage: the scaled
// dimensions, the centering offset, and the per-axis scale factors
// relative to the raster's native size.
type FitBox struct {
	OffsetX float64
	OffsetY float64
	Width   float64
	Height  float64
	ScaleX  float64
	ScaleY  float64
}

// Fit computes the placement of a raster inside a stage: a single uniform
// scale of min(stageW/imgW, stageH/imgH), centered on both axes. When no
// raster is loaded (zero image dimensions) the fit is the identity box
// covering the full stage.
func Fit(stage, image Size) FitBox {
	if image.Width <= 0 || image.Height <= 0 {
		return FitBox{
			Width:  stage.Width,
			Height: stage.Height,
			ScaleX: 1,
			ScaleY: 1,
		}
	}

	scale := stage.Width / image.Width
	if s := stage.Height / image.Height; s < scale {
		scale = s
	}

	drawW := image.Width * scale
	drawH := image.Height * scale

	return FitBox{
		OffsetX: (stage.Width - drawW) / 2,
		OffsetY: (stage.Height - drawH) / 2,
		Width:   drawW,
		Height:  drawH,
		ScaleX:  drawW / image.Width,
		ScaleY:  drawH / image.Height,
	}
}

// ToDocument converts a pointer position in stage pixels to document-space
// coordinates by inverting the centering offset and the per-axis scale.
// No rounding is applied; rounding for display belongs to the caller.
func (f FitBox) ToDocument(x, y float64) (float64, float64) {
	return (x - f.OffsetX) / f.ScaleX, (y - f.OffsetY) / f.ScaleY
}

// ToStage converts document-space coordinates to stage pixels.
func (f FitBox) ToStage(x, y float64) (float64, float64) {
	return x*f.ScaleX + f.OffsetX, y*f.ScaleY + f.OffsetY
}
