package frames

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"

	"github.com/mdouchement/hdr"
	"github.com/mdouchement/hdr/codec/rgbe"
	"github.com/mdouchement/hdr/hdrcolor"
	"github.com/mdouchement/hdr/tmo"

	"github.com/abworrall/motion-stack/pkg/emath"
)

// hdrPlane presents a plane as a grey HDR image. Pixels with no data are black.
type hdrPlane struct {
	*emath.FloatGrid
	scale float64
}

var _ hdr.Image = hdrPlane{}

// Implement image.Image
func (p hdrPlane) ColorModel() color.Model { return hdrcolor.RGBModel }
func (p hdrPlane) At(x, y int) color.Color { return p.HDRAt(x, y) }

// Implement hdr.Image
func (p hdrPlane) Size() int { return p.Dx() * p.Dy() }
func (p hdrPlane) HDRAt(x, y int) hdrcolor.Color {
	v := p.Get(x, y)
	if math.IsNaN(v) || v < 0 {
		v = 0
	}
	v *= p.scale
	return hdrcolor.RGB{R: v, G: v, B: v}
}

// SaveHDR writes the plane as a Radiance RGBE file, scaled so the
// brightest pixel is 1.0. You can load this into photoshop or other HDR tools.
func SaveHDR(filename string, plane *emath.FloatGrid) error {
	_, max := plane.MinMax()
	scale := 1.0
	if max > 0 && !math.IsInf(max, 0) {
		scale = 1.0 / max
	}

	writer, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("open+w '%s': %v", filename, err)
	}
	defer writer.Close()

	if err := rgbe.Encode(writer, hdrPlane{FloatGrid: plane, scale: scale}); err != nil {
		return fmt.Errorf("encoding RGBE file '%s': %v", filename, err)
	}
	return nil
}

// SavePreview writes a stretched PNG with the title drawn on it.
func SavePreview(filename, title string, plane *emath.FloatGrid) error {
	for plane.Dx() > previewMaxWidth {
		small := plane.DownSample()
		plane = &small
	}
	if err := plane.ToImg(title, filename); err != nil {
		return fmt.Errorf("preview '%s': %v", filename, err)
	}
	return nil
}

const previewMaxWidth = 2048

// Tonemappers lists the operators SaveTonemapped knows about.
var Tonemappers = []string{"drago03", "durand", "icam06", "linear", "reinhard05"}

func tonemapper(name string, m hdr.Image) (tmo.ToneMappingOperator, error) {
	switch name {
	case "drago03":
		op := tmo.NewDefaultDrago03(m)
		op.Bias = 1.0 // keeps the bright cores of stars from blowing out
		return op, nil
	case "durand":
		return tmo.NewDefaultDurand(m), nil
	case "icam06":
		op := tmo.NewDefaultICam06(m)
		op.MaxClipping = 0.99999
		return op, nil
	case "linear":
		return tmo.NewLinear(m), nil
	case "reinhard05":
		return tmo.NewDefaultReinhard05(m), nil
	}
	return nil, fmt.Errorf("no tonemapper named '%s' (have %v)", name, Tonemappers)
}

// SaveTonemapped renders the plane through one of the HDR tone mapping
// operators, and writes it as a PNG.
func SaveTonemapped(filename, name string, plane *emath.FloatGrid) error {
	_, max := plane.MinMax()
	scale := 1.0
	if max > 0 && !math.IsInf(max, 0) {
		scale = 1.0 / max
	}
	op, err := tonemapper(name, hdrPlane{FloatGrid: plane, scale: scale})
	if err != nil {
		return err
	}
	return WritePNG(op.Perform(), filename)
}

func WritePNG(img image.Image, filename string) error {
	writer, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("open+w '%s': %v", filename, err)
	}
	defer writer.Close()
	return png.Encode(writer, img)
}
