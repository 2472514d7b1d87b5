// Package wcs maps between sky coordinates and image pixel coordinates.
//
// Only the gnomonic (TAN) projection with a linear CD matrix is
// implemented, which is what plate solvers write for small fields. Pixel
// coordinates are 0-based: the centre of the first pixel is (0,0), which
// is FITS pixel (1,1).
package wcs

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrNoSolution = errors.New("no celestial coordinate solution")
	ErrSingular   = errors.New("coordinate solution has a singular CD matrix")
	ErrBehind     = errors.New("sky position is more than 90deg from the tangent point")
)

// A SkyCoord is an equatorial position, in degrees.
type SkyCoord struct {
	RA  float64 `yaml:"ra"`
	Dec float64 `yaml:"dec"`
}

func (c SkyCoord) String() string {
	return fmt.Sprintf("(RA=%.6f, Dec=%+.6f)", c.RA, c.Dec)
}

// A Solution is the per-image mapping from the sky into pixel space.
type Solution interface {
	SkyToPixel(c SkyCoord) (x, y float64, err error)
	PixelScale() float64 // arcsec per pixel
}

// Params are the FITS-style values that define a TAN solution. CRPix
// is 1-based, as in a FITS header; CD is row-major, degrees per pixel.
type Params struct {
	CRPix [2]float64 `yaml:"crpix"`
	CRVal [2]float64 `yaml:"crval"`
	CD    [4]float64 `yaml:"cd"`
}

// TAN is a gnomonic projection.
type TAN struct {
	Params
	inv      *mat.Dense // maps standard coords (deg) to pixel offsets
	det      float64
	singular bool
}

func NewTAN(p Params) *TAN {
	t := &TAN{Params: p}

	cd := mat.NewDense(2, 2, p.CD[:])
	t.det = mat.Det(cd)
	if t.det == 0 || math.IsNaN(t.det) || math.IsInf(t.det, 0) {
		t.singular = true
		return t
	}

	var inv mat.Dense
	if err := inv.Inverse(cd); err != nil {
		// A mat.Condition error still gives a result; anything else doesn't
		var cond mat.Condition
		if !errors.As(err, &cond) {
			t.singular = true
			return t
		}
	}
	t.inv = &inv
	return t
}

// NewSimpleTAN builds an unrotated solution with north up and east
// left, at the given scale, centred on a reference pixel.
func NewSimpleTAN(centre SkyCoord, crpixX, crpixY, arcsecPerPixel float64) *TAN {
	s := arcsecPerPixel / 3600.0
	return NewTAN(Params{
		CRPix: [2]float64{crpixX, crpixY},
		CRVal: [2]float64{centre.RA, centre.Dec},
		CD:    [4]float64{-s, 0, 0, s},
	})
}

func (t *TAN) String() string {
	return fmt.Sprintf("TAN[crval=(%.5f,%+.5f) crpix=(%.1f,%.1f) %.3f\"/pix]",
		t.CRVal[0], t.CRVal[1], t.CRPix[0], t.CRPix[1], t.PixelScale())
}

// PixelScale is the geometric mean scale, in arcsec per pixel. A
// singular solution has zero scale.
func (t *TAN) PixelScale() float64 {
	if t.singular {
		return 0
	}
	return math.Sqrt(math.Abs(t.det)) * 3600.0
}

func (t *TAN) Singular() bool { return t.singular }

// StandardCoords projects a sky position onto the tangent plane, giving
// (xi, eta) in degrees. xi is the RA offset already scaled by cos(dec),
// so offsets near the pole are not compressed.
func (t *TAN) StandardCoords(c SkyCoord) (float64, float64, error) {
	ra0, dec0 := rad(t.CRVal[0]), rad(t.CRVal[1])
	ra, dec := rad(c.RA), rad(c.Dec)
	dRA := ra - ra0

	cosC := math.Sin(dec0)*math.Sin(dec) + math.Cos(dec0)*math.Cos(dec)*math.Cos(dRA)
	if cosC <= 0 {
		return 0, 0, ErrBehind
	}

	xi := math.Cos(dec) * math.Sin(dRA) / cosC
	eta := (math.Cos(dec0)*math.Sin(dec) - math.Sin(dec0)*math.Cos(dec)*math.Cos(dRA)) / cosC
	return deg(xi), deg(eta), nil
}

func (t *TAN) SkyToPixel(c SkyCoord) (float64, float64, error) {
	if t.singular {
		return 0, 0, ErrSingular
	}
	xi, eta, err := t.StandardCoords(c)
	if err != nil {
		return 0, 0, err
	}

	u := t.inv.At(0, 0)*xi + t.inv.At(0, 1)*eta
	v := t.inv.At(1, 0)*xi + t.inv.At(1, 1)*eta
	return t.CRPix[0] - 1 + u, t.CRPix[1] - 1 + v, nil
}

func (t *TAN) PixelToSky(x, y float64) (SkyCoord, error) {
	if t.singular {
		return SkyCoord{}, ErrSingular
	}
	u := x - (t.CRPix[0] - 1)
	v := y - (t.CRPix[1] - 1)
	xi := rad(t.CD[0]*u + t.CD[1]*v)
	eta := rad(t.CD[2]*u + t.CD[3]*v)

	ra0, dec0 := rad(t.CRVal[0]), rad(t.CRVal[1])
	rho := math.Hypot(xi, eta)
	if rho == 0 {
		return SkyCoord{RA: t.CRVal[0], Dec: t.CRVal[1]}, nil
	}
	c := math.Atan(rho)
	sinC, cosC := math.Sin(c), math.Cos(c)

	dec := math.Asin(cosC*math.Sin(dec0) + eta*sinC*math.Cos(dec0)/rho)
	ra := ra0 + math.Atan2(xi*sinC, rho*math.Cos(dec0)*cosC-eta*math.Sin(dec0)*sinC)

	return SkyCoord{RA: NormalizeRA(deg(ra)), Dec: deg(dec)}, nil
}

// Keywords is the view of an image header needed to build a solution.
type Keywords interface {
	Float(key string) (float64, bool)
	String(key string) (string, bool)
}

// FromKeywords reads a TAN solution from FITS WCS keywords. It accepts a
// CD matrix, a PC matrix with CDELT, or CDELT with CROTA2.
func FromKeywords(kw Keywords) (*TAN, error) {
	if ctype, ok := kw.String("CTYPE1"); ok && !strings.Contains(strings.ToUpper(ctype), "TAN") {
		return nil, fmt.Errorf("%w: projection %q not supported", ErrNoSolution, ctype)
	}

	p := Params{}
	var ok1, ok2, ok3, ok4 bool
	if p.CRPix[0], ok1 = kw.Float("CRPIX1"); !ok1 {
		return nil, fmt.Errorf("%w: missing CRPIX1", ErrNoSolution)
	}
	if p.CRPix[1], ok2 = kw.Float("CRPIX2"); !ok2 {
		return nil, fmt.Errorf("%w: missing CRPIX2", ErrNoSolution)
	}
	if p.CRVal[0], ok1 = kw.Float("CRVAL1"); !ok1 {
		return nil, fmt.Errorf("%w: missing CRVAL1", ErrNoSolution)
	}
	if p.CRVal[1], ok2 = kw.Float("CRVAL2"); !ok2 {
		return nil, fmt.Errorf("%w: missing CRVAL2", ErrNoSolution)
	}

	p.CD[0], ok1 = kw.Float("CD1_1")
	p.CD[1], ok2 = kw.Float("CD1_2")
	p.CD[2], ok3 = kw.Float("CD2_1")
	p.CD[3], ok4 = kw.Float("CD2_2")
	if ok1 || ok2 || ok3 || ok4 {
		return NewTAN(p), nil
	}

	cdelt1, ok1 := kw.Float("CDELT1")
	cdelt2, ok2 := kw.Float("CDELT2")
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("%w: no CD matrix or CDELT", ErrNoSolution)
	}

	pc := [4]float64{1, 0, 0, 1}
	havePC := false
	for i, key := range []string{"PC1_1", "PC1_2", "PC2_1", "PC2_2"} {
		if v, ok := kw.Float(key); ok {
			pc[i] = v
			havePC = true
		}
	}
	if !havePC {
		if crota, ok := kw.Float("CROTA2"); ok {
			r := rad(crota)
			pc = [4]float64{math.Cos(r), -math.Sin(r) * cdelt2 / cdelt1, math.Sin(r) * cdelt1 / cdelt2, math.Cos(r)}
		}
	}

	p.CD = [4]float64{cdelt1 * pc[0], cdelt1 * pc[1], cdelt2 * pc[2], cdelt2 * pc[3]}
	return NewTAN(p), nil
}

// NormalizeRA wraps an RA into [0, 360).
func NormalizeRA(ra float64) float64 {
	ra = math.Mod(ra, 360.0)
	if ra < 0 {
		ra += 360.0
	}
	return ra
}

func rad(d float64) float64 { return d * math.Pi / 180.0 }
func deg(r float64) float64 { return r * 180.0 / math.Pi }
