package frames

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/image/tiff"
	"gopkg.in/yaml.v2"

	"github.com/abworrall/motion-stack/pkg/emath"
	"github.com/abworrall/motion-stack/pkg/wcs"
)

/* TIFFs exported from a raw developer carry no plate solution, so the
   solver's answer lives in a YAML sidecar next to the image, named
   after it with ".yaml" appended. Anything in the sidecar wins over the
   EXIF data.

date-obs: "2024-03-01T02:14:05.2"
filter: L
exptime: 30
object: 2024 AB1
wcs:
  crpix: [2464.5, 1640.5]
  crval: [150.1182, 20.2541]
  cd: [-0.000271, 0.0, 0.0, 0.000271]

*/

type sidecar struct {
	DateObs string      `yaml:"date-obs"`
	Filter  string      `yaml:"filter"`
	ExpTime float64     `yaml:"exptime"`
	Object  string      `yaml:"object"`
	WCS     *wcs.Params `yaml:"wcs"`
}

func SidecarFilename(filename string) string { return filename + ".yaml" }

func loadSidecar(filename string) (*sidecar, error) {
	contents, err := os.ReadFile(SidecarFilename(filename))
	if os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("sidecar read '%s': %v", SidecarFilename(filename), err)
	}
	sc := sidecar{}
	if err := yaml.Unmarshal(contents, &sc); err != nil {
		return nil, fmt.Errorf("sidecar parse '%s': %v", SidecarFilename(filename), err)
	}
	return &sc, nil
}

// loadTIFFExif fills in what the camera recorded. A TIFF without EXIF
// is fine; we just know less about it.
func loadTIFFExif(filename string, hdr *Header) error {
	reader, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("open+r exif '%s': %v", filename, err)
	}
	defer reader.Close()

	ex, err := exif.Decode(reader)
	if err != nil {
		return nil
	}

	if t, err := ex.DateTime(); err == nil {
		hdr.ObsTime = t.UTC()
		hdr.Cards["DATE-OBS"] = hdr.ObsTime.Format("2006-01-02T15:04:05")
	}

	if tag, err := ex.Get(exif.ExposureTime); err == nil {
		if num, denom, err := tag.Rat2(0); err == nil && denom != 0 {
			hdr.ExpTime = float64(num) / float64(denom)
			hdr.Cards["EXPTIME"] = hdr.ExpTime
		}
	}

	if tag, err := ex.Get(exif.ISOSpeedRatings); err == nil {
		if val, err := tag.Int64(0); err == nil {
			hdr.Cards["ISO"] = val
		}
	}

	return nil
}

func (sc *sidecar) apply(hdr *Header) error {
	if sc == nil {
		return nil
	}
	if sc.DateObs != "" {
		t, err := ParseObsTime(sc.DateObs)
		if err != nil {
			return err
		}
		hdr.ObsTime = t
		hdr.Cards["DATE-OBS"] = sc.DateObs
	}
	if sc.Filter != "" {
		hdr.Filter = sc.Filter
		hdr.Cards["FILTER"] = sc.Filter
	}
	if sc.ExpTime > 0 {
		hdr.ExpTime = sc.ExpTime
		hdr.Cards["EXPTIME"] = sc.ExpTime
	}
	if sc.Object != "" {
		hdr.Object = sc.Object
		hdr.Cards["OBJECT"] = sc.Object
	}
	if sc.WCS != nil {
		hdr.WCS = wcs.NewTAN(*sc.WCS)
	}
	return nil
}

func LoadTIFFHeader(filename string) (Header, error) {
	hdr := Header{Filename: filename, Cards: Cards{}}

	reader, err := os.Open(filename)
	if err != nil {
		return hdr, fmt.Errorf("open+r img '%s': %v", filename, err)
	}
	cfg, err := tiff.DecodeConfig(reader)
	reader.Close()
	if err != nil {
		return hdr, fmt.Errorf("tiff config '%s': %v", filename, err)
	}
	hdr.Width, hdr.Height = cfg.Width, cfg.Height

	if err := loadTIFFExif(filename, &hdr); err != nil {
		return hdr, err
	}

	sc, err := loadSidecar(filename)
	if err != nil {
		return hdr, err
	}
	if err := sc.apply(&hdr); err != nil {
		return hdr, fmt.Errorf("sidecar '%s': %v", SidecarFilename(filename), err)
	}

	return hdr, nil
}

// LoadTIFF reads the image as a single luminance plane, in [0, 65535].
func LoadTIFF(filename string) (Frame, error) {
	hdr, err := LoadTIFFHeader(filename)
	if err != nil {
		return Frame{}, err
	}

	reader, err := os.Open(filename)
	if err != nil {
		return Frame{}, fmt.Errorf("open+r img '%s': %v", filename, err)
	}
	defer reader.Close()

	img, err := tiff.Decode(reader)
	if err != nil {
		return Frame{}, fmt.Errorf("tiff loading '%s': %v", filename, err)
	}

	return Frame{Header: hdr, Plane: ImageToPlane(img)}, nil
}

// ImageToPlane flattens an image into luminance.
func ImageToPlane(img image.Image) emath.FloatGrid {
	b := img.Bounds()
	plane := emath.NewFloatGrid(b.Dx(), b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g := color.Gray16Model.Convert(img.At(x, y)).(color.Gray16)
			plane.Set(x-b.Min.X, y-b.Min.Y, float64(g.Y))
		}
	}
	return plane
}

func isTIFF(filename string) bool {
	lc := strings.ToLower(filename)
	return strings.HasSuffix(lc, ".tif") || strings.HasSuffix(lc, ".tiff")
}
