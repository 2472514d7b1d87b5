package emath

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"sort"

	"github.com/fogleman/gg" // Move to https://pkg.go.dev/golang.org/x/image/font#Drawer sometime
)

// A FloatGrid is a grid of floats, with some operations. It is the
// in-memory form of a single image plane. NaN marks a pixel that holds
// no data (e.g. it was shifted in from outside the source image).
type FloatGrid struct {
	stride int
	values []float64
}

// BytesPerPixel is the footprint of one grid value, used for memory budgeting.
const BytesPerPixel = 8

func NewFloatGrid(w, h int) FloatGrid {
	return FloatGrid{
		stride: w,
		values: make([]float64, w*h),
	}
}

// NewFloatGridFrom wraps an existing row-major slice (x varies fastest).
func NewFloatGridFrom(w, h int, values []float64) (FloatGrid, error) {
	if w <= 0 || h <= 0 {
		return FloatGrid{}, fmt.Errorf("bad grid dimensions %dx%d", w, h)
	}
	if len(values) != w*h {
		return FloatGrid{}, fmt.Errorf("grid %dx%d needs %d values, got %d", w, h, w*h, len(values))
	}
	return FloatGrid{stride: w, values: values}, nil
}

func (g1 *FloatGrid) NewFromThis() FloatGrid  { return NewFloatGrid(g1.Dx(), g1.Dy()) }
func (fg *FloatGrid) Set(x, y int, v float64) { fg.values[fg.stride*y+x] = v }
func (fg *FloatGrid) Get(x, y int) float64    { return fg.values[fg.stride*y+x] }
func (fg *FloatGrid) Dx() int                 { return fg.stride }
func (fg *FloatGrid) Values() []float64       { return fg.values }
func (fg *FloatGrid) IsEmpty() bool           { return len(fg.values) == 0 }
func (fg *FloatGrid) Bytes() int64            { return int64(len(fg.values)) * BytesPerPixel }

func (fg *FloatGrid) Dy() int {
	if fg.stride == 0 {
		return 0
	}
	return len(fg.values) / fg.stride
}

func (fg *FloatGrid) Bounds() image.Rectangle {
	return image.Rectangle{Max: image.Point{fg.Dx(), fg.Dy()}}
}

func (fg *FloatGrid) SameSize(other *FloatGrid) bool {
	return fg.Dx() == other.Dx() && fg.Dy() == other.Dy()
}

func (g1 *FloatGrid) Copy() *FloatGrid {
	g2 := FloatGrid{stride: g1.stride, values: make([]float64, len(g1.values))}
	copy(g2.values, g1.values)
	return &g2
}

// CopyInto overwrites g2 with the values of g1; both must be the same size.
func (g1 *FloatGrid) CopyInto(g2 *FloatGrid) {
	copy(g2.values, g1.values)
}

func (fg *FloatGrid) Fill(v float64) {
	for i := range fg.values {
		fg.values[i] = v
	}
}

// Bilinear samples the grid at a fractional position. Pixel centres sit
// on integer coords. The second return value is false if the position
// lies outside the grid.
func (fg *FloatGrid) Bilinear(x, y float64) (float64, bool) {
	w, h := fg.Dx(), fg.Dy()
	if x < 0 || y < 0 || x > float64(w-1) || y > float64(h-1) || math.IsNaN(x) || math.IsNaN(y) {
		return math.NaN(), false
	}

	x0, y0 := int(math.Floor(x)), int(math.Floor(y))
	fx, fy := x-float64(x0), y-float64(y0)

	// Don't touch the neighbour when we sit exactly on a pixel; at the
	// right/bottom edge it doesn't exist.
	x1, y1 := x0, y0
	if fx > 0 {
		x1 = x0 + 1
	}
	if fy > 0 {
		y1 = y0 + 1
	}

	v00 := fg.Get(x0, y0)
	if fx == 0 && fy == 0 {
		return v00, true
	}
	v10 := fg.Get(x1, y0)
	v01 := fg.Get(x0, y1)
	v11 := fg.Get(x1, y1)

	top := v00*(1-fx) + v10*fx
	bot := v01*(1-fx) + v11*fx
	return top*(1-fy) + bot*fy, true
}

// CountNaN returns how many pixels hold no data.
func (fg *FloatGrid) CountNaN() int {
	n := 0
	for _, v := range fg.values {
		if math.IsNaN(v) {
			n++
		}
	}
	return n
}

// DownSample returns a grid that is 1/4 of the size, averaging the values from the
// original. NaN values are skipped; a block with no data stays NaN.
func (g1 *FloatGrid) DownSample() FloatGrid {
	width := g1.Dx() / 2
	height := g1.Dy() / 2
	g2 := NewFloatGrid(width, height)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			p, n := 0.0, 0
			for _, v := range []float64{g1.Get(2*x, 2*y), g1.Get(2*x+1, 2*y), g1.Get(2*x, 2*y+1), g1.Get(2*x+1, 2*y+1)} {
				if !math.IsNaN(v) {
					p += v
					n++
				}
			}
			if n == 0 {
				g2.Set(x, y, math.NaN())
			} else {
				g2.Set(x, y, p/float64(n))
			}
		}
	}

	return g2
}

// FindMinMaxAtPercentile returns the values found at the two
// percentiles (range [0.0, 1.0]) of the non-NaN pixels. Used to stretch
// previews so a few hot pixels don't wash everything out.
func (I *FloatGrid) FindMinMaxAtPercentile(minPrct, maxPrct float64) (float64, float64) {
	vI := make([]float64, 0, len(I.values))
	for _, val := range I.values {
		if !math.IsNaN(val) {
			vI = append(vI, val)
		}
	}
	if len(vI) == 0 {
		return 0, 0
	}

	sort.Float64s(vI)

	iMin := int(minPrct * float64(len(vI)))
	iMax := int(maxPrct * float64(len(vI)))
	if iMin < 0 {
		iMin = 0
	}
	if iMax >= len(vI) {
		iMax = len(vI) - 1
	}
	if iMin >= len(vI) {
		iMin = len(vI) - 1
	}

	return vI[iMin], vI[iMax]
}

// MinMax ignores NaNs. Both values are NaN if there is no data at all.
func (fg *FloatGrid) MinMax() (float64, float64) {
	min, max := math.Inf(1), math.Inf(-1)
	for _, v := range fg.values {
		if math.IsNaN(v) {
			continue
		}
		if v > max {
			max = v
		}
		if v < min {
			min = v
		}
	}
	if math.IsInf(min, 1) {
		return math.NaN(), math.NaN()
	}
	return min, max
}

func (fg *FloatGrid) Stats() string {
	min, max := fg.MinMax()
	return fmt.Sprintf("fg[%dx%d, vals{%f,%f}, %d nodata]", fg.Dx(), fg.Dy(), min, max, fg.CountNaN())
}

// ToImage renders a grayscale image, stretched between the given
// percentiles and gamma expanded so it looks normal for human vision.
// Pixels without data come out black.
func (fg *FloatGrid) ToImage(minPrct, maxPrct float64) *image.RGBA64 {
	min, max := fg.FindMinMaxAtPercentile(minPrct, maxPrct)
	span := max - min
	if span <= 0 {
		span = 1
	}

	img := image.NewRGBA64(fg.Bounds())
	for x := 0; x < fg.Dx(); x++ {
		for y := 0; y < fg.Dy(); y++ {
			v := fg.Get(x, y)
			if math.IsNaN(v) {
				img.Set(x, y, color.RGBA64{0, 0, 0, 0xFFFF})
				continue
			}
			lum := (v - min) / span
			if lum < 0 {
				lum = 0
			} else if lum > 1 {
				lum = 1
			}
			gray := uint16(GammaExpand_F64(lum) * 65535.0)
			img.Set(x, y, color.RGBA64{gray, gray, gray, 0xFFFF})
		}
	}
	return img
}

// ToImg saves a stretched grayscale PNG with a title drawn in the top left.
func (fg *FloatGrid) ToImg(title, filename string) error {
	dc := gg.NewContextForImage(fg.ToImage(0.01, 0.995))
	dc.SetRGB(1, 1, 1)
	dc.DrawString(title, 10, 20)
	return dc.SavePNG(filename)
}
