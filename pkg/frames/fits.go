package frames

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/astrogo/fitsio"

	"github.com/abworrall/motion-stack/pkg/emath"
	"github.com/abworrall/motion-stack/pkg/wcs"
)

// openFITSImage returns the primary image HDU of a FITS file; the caller
// must close the file.
func openFITSImage(filename string) (*fitsio.File, fitsio.Image, *os.File, error) {
	r, err := os.Open(filename)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open+r '%s': %v", filename, err)
	}
	f, err := fitsio.Open(r)
	if err != nil {
		r.Close()
		return nil, nil, nil, fmt.Errorf("fits parsing '%s': %v", filename, err)
	}
	img, ok := f.HDU(0).(fitsio.Image)
	if !ok {
		f.Close()
		r.Close()
		return nil, nil, nil, fmt.Errorf("'%s': primary HDU is not an image", filename)
	}
	return f, img, r, nil
}

func fitsCards(hdr *fitsio.Header) Cards {
	cards := Cards{}
	for _, key := range hdr.Keys() {
		if card := hdr.Get(key); card != nil {
			cards[strings.ToUpper(key)] = card.Value
		}
	}
	return cards
}

func headerFromCards(filename string, w, h int, cards Cards) (Header, error) {
	hdr := Header{
		Filename: filename,
		Width:    w,
		Height:   h,
		ExpTime:  cards.expTime(),
		Cards:    cards,
	}
	hdr.Filter, _ = cards.String("FILTER")
	hdr.Object, _ = cards.String("OBJECT")

	if t, err := cards.obsTime(); err == nil {
		hdr.ObsTime = t
	}

	if tan, err := wcs.FromKeywords(cards); err == nil {
		hdr.WCS = tan
	}

	return hdr, nil
}

// LoadFITSHeader reads the primary header. Frames without a plate
// solution or a timestamp are returned with those fields empty; deciding
// what that means is up to the caller.
func LoadFITSHeader(filename string) (Header, error) {
	f, img, r, err := openFITSImage(filename)
	if err != nil {
		return Header{}, err
	}
	defer r.Close()
	defer f.Close()

	axes := img.Header().Axes()
	if len(axes) < 2 {
		return Header{}, fmt.Errorf("'%s': image has %d axes, need 2", filename, len(axes))
	}
	return headerFromCards(filename, axes[0], axes[1], fitsCards(img.Header()))
}

// LoadFITS reads the header and the first image plane. BSCALE/BZERO are
// applied, so unsigned 16-bit data comes back as [0, 65535].
func LoadFITS(filename string) (Frame, error) {
	f, img, r, err := openFITSImage(filename)
	if err != nil {
		return Frame{}, err
	}
	defer r.Close()
	defer f.Close()

	fh := img.Header()
	axes := fh.Axes()
	if len(axes) < 2 {
		return Frame{}, fmt.Errorf("'%s': image has %d axes, need 2", filename, len(axes))
	}
	w, h := axes[0], axes[1]
	n := 1
	for _, a := range axes {
		n *= a
	}

	cards := fitsCards(fh)
	hdr, err := headerFromCards(filename, w, h, cards)
	if err != nil {
		return Frame{}, err
	}

	raw, err := readFITSValues(img, fh.Bitpix(), n)
	if err != nil {
		return Frame{}, fmt.Errorf("fits data '%s': %v", filename, err)
	}

	bscale, ok := cards.Float("BSCALE")
	if !ok {
		bscale = 1
	}
	bzero, _ := cards.Float("BZERO")

	// Only the first plane of a data cube, copied so the rest can go
	vals := raw[:w*h]
	if len(raw) > w*h {
		vals = make([]float64, w*h)
		copy(vals, raw)
	}
	if bscale != 1 || bzero != 0 {
		for i, v := range vals {
			vals[i] = v*bscale + bzero
		}
	}

	plane, err := emath.NewFloatGridFrom(w, h, vals)
	if err != nil {
		return Frame{}, fmt.Errorf("'%s': %v", filename, err)
	}
	return Frame{Header: hdr, Plane: plane}, nil
}

func readFITSValues(img fitsio.Image, bitpix, n int) ([]float64, error) {
	out := make([]float64, n)

	switch bitpix {
	case 8:
		data := make([]uint8, n)
		if err := img.Read(&data); err != nil {
			return nil, err
		}
		for i, v := range data {
			out[i] = float64(v)
		}
	case 16:
		data := make([]int16, n)
		if err := img.Read(&data); err != nil {
			return nil, err
		}
		for i, v := range data {
			out[i] = float64(v)
		}
	case 32:
		data := make([]int32, n)
		if err := img.Read(&data); err != nil {
			return nil, err
		}
		for i, v := range data {
			out[i] = float64(v)
		}
	case 64:
		data := make([]int64, n)
		if err := img.Read(&data); err != nil {
			return nil, err
		}
		for i, v := range data {
			out[i] = float64(v)
		}
	case -32:
		data := make([]float32, n)
		if err := img.Read(&data); err != nil {
			return nil, err
		}
		for i, v := range data {
			out[i] = float64(v)
		}
	case -64:
		if err := img.Read(&out); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported BITPIX %d", bitpix)
	}

	return out, nil
}

// SaveFITS writes a single plane as the primary HDU. The data is stored
// as 32-bit float unless wide is set, in which case it's 64-bit; values
// that don't fit in a float32 are never clipped.
func SaveFITS(filename string, plane *emath.FloatGrid, cards []Card, wide bool) error {
	w, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("open+w '%s': %v", filename, err)
	}
	defer w.Close()

	f, err := fitsio.Create(w)
	if err != nil {
		return fmt.Errorf("fits create '%s': %v", filename, err)
	}
	defer f.Close()

	bitpix := -32
	if wide {
		bitpix = -64
	}
	img := fitsio.NewImage(bitpix, []int{plane.Dx(), plane.Dy()})
	defer img.Close()

	fcards := make([]fitsio.Card, 0, len(cards))
	for _, c := range cards {
		fcards = append(fcards, fitsio.Card{Name: c.Name, Value: c.Value, Comment: c.Comment})
	}
	if err := img.Header().Append(fcards...); err != nil {
		return fmt.Errorf("fits header '%s': %v", filename, err)
	}

	if wide {
		err = img.Write(plane.Values())
	} else {
		data := make([]float32, len(plane.Values()))
		for i, v := range plane.Values() {
			data[i] = float32(v)
		}
		err = img.Write(data)
	}
	if err != nil {
		return fmt.Errorf("fits data '%s': %v", filename, err)
	}

	if err := f.Write(img); err != nil {
		return fmt.Errorf("fits write '%s': %v", filename, err)
	}
	return nil
}

// FitsInFloat32 is false if any value would overflow a float32.
func FitsInFloat32(plane *emath.FloatGrid) bool {
	for _, v := range plane.Values() {
		if !math.IsNaN(v) && math.Abs(v) > math.MaxFloat32 {
			return false
		}
	}
	return true
}
