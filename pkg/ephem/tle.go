package ephem

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/abworrall/motion-stack/pkg/wcs"
)

// WGS-84
const (
	wgs84A  = 6378.137 // km
	wgs84F  = 1.0 / 298.257223563
	wgs84E2 = wgs84F * (2 - wgs84F)
)

// A Site is where the observer stands. Satellites are close enough that
// parallax moves them by degrees, so their positions are topocentric.
type Site struct {
	Lat float64 `yaml:"lat"` // degrees north
	Lon float64 `yaml:"lon"` // degrees east
	Alt float64 `yaml:"alt"` // metres above the ellipsoid
}

// ecef returns the site position in Earth-fixed coords, km.
func (s Site) ecef() (float64, float64, float64) {
	lat, lon := s.Lat*math.Pi/180, s.Lon*math.Pi/180
	sinLat := math.Sin(lat)
	n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)
	alt := s.Alt / 1000.0
	return (n + alt) * math.Cos(lat) * math.Cos(lon),
		(n + alt) * math.Cos(lat) * math.Sin(lon),
		(n*(1-wgs84E2) + alt) * sinLat
}

// A TLE predicts one satellite with SGP4. The RA/Dec it returns are in
// the true-equator mean-equinox frame of the date, not J2000; over one
// observing sequence the difference is a near-constant offset.
type TLE struct {
	Name string
	sat  satellite.Satellite
	site Site
}

func NewTLE(name, line1, line2 string, site Site) (*TLE, error) {
	if err := validateTLELines(line1, line2); err != nil {
		return nil, fmt.Errorf("bad TLE for %q: %w", name, err)
	}
	sat := satellite.TLEToSat(strings.TrimSpace(line1), strings.TrimSpace(line2), satellite.GravityWGS84)
	if sat.Error != 0 {
		return nil, fmt.Errorf("sgp4 init failed for %q: code=%d %s", name, sat.Error, sat.ErrorStr)
	}
	return &TLE{Name: name, sat: sat, site: site}, nil
}

// go-satellite calls log.Fatal on input it can't parse, so check the
// basic shape first.
func validateTLELines(line1, line2 string) error {
	line1 = strings.TrimSpace(line1)
	line2 = strings.TrimSpace(line2)

	if len(line1) != 69 {
		return fmt.Errorf("line1 length %d, expected 69", len(line1))
	}
	if len(line2) != 69 {
		return fmt.Errorf("line2 length %d, expected 69", len(line2))
	}
	if line1[0] != '1' {
		return fmt.Errorf("line1 must start with '1', got '%c'", line1[0])
	}
	if line2[0] != '2' {
		return fmt.Errorf("line2 must start with '2', got '%c'", line2[0])
	}
	return nil
}

func (tle *TLE) Predict(ctx context.Context, object string, t time.Time) (wcs.SkyCoord, error) {
	if err := ctx.Err(); err != nil {
		return wcs.SkyCoord{}, unavailable(err)
	}
	if normName(object) != normName(tle.Name) {
		return wcs.SkyCoord{}, fmt.Errorf("%w: TLE is for %q, not %q", ErrUnavailable, tle.Name, object)
	}

	t = t.UTC()
	pos, _ := satellite.Propagate(tle.sat, t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())
	if math.IsNaN(pos.X) || math.IsNaN(pos.Y) || math.IsNaN(pos.Z) ||
		math.IsInf(pos.X, 0) || math.IsInf(pos.Y, 0) || math.IsInf(pos.Z, 0) {
		return wcs.SkyCoord{}, fmt.Errorf("%w: sgp4 propagation failed for %q at %s", ErrUnavailable, tle.Name, t.Format(time.RFC3339))
	}

	// Rotate the site from Earth-fixed into TEME by sidereal time
	gmst := satellite.GSTimeFromDate(t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())
	ex, ey, ez := tle.site.ecef()
	cosG, sinG := math.Cos(gmst), math.Sin(gmst)
	ox := ex*cosG - ey*sinG
	oy := ex*sinG + ey*cosG
	oz := ez

	rx, ry, rz := pos.X-ox, pos.Y-oy, pos.Z-oz
	r := math.Sqrt(rx*rx + ry*ry + rz*rz)
	if r == 0 {
		return wcs.SkyCoord{}, fmt.Errorf("%w: degenerate geometry for %q", ErrUnavailable, tle.Name)
	}

	return wcs.SkyCoord{
		RA:  wcs.NormalizeRA(math.Atan2(ry, rx) * 180 / math.Pi),
		Dec: math.Asin(rz/r) * 180 / math.Pi,
	}, nil
}

// TLESet answers for every satellite in a TLE file, by name.
type TLESet map[string]*TLE

func (ts TLESet) Predict(ctx context.Context, object string, t time.Time) (wcs.SkyCoord, error) {
	tle, exists := ts[normName(object)]
	if !exists {
		return wcs.SkyCoord{}, fmt.Errorf("%w: no TLE for %q", ErrUnavailable, object)
	}
	return tle.Predict(ctx, tle.Name, t)
}

// LoadTLEFile reads the usual text format: an optional name line, then
// the two element lines, repeated. Unnamed satellites go by their
// catalog number.
func LoadTLEFile(filename string, site Site) (TLESet, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open TLE file: %w", err)
	}
	defer f.Close()

	ts := TLESet{}
	name := ""
	var line1 string

	scanner := bufio.NewScanner(f)
	for lineNum := 1; scanner.Scan(); lineNum++ {
		line := strings.TrimRight(scanner.Text(), " \r")
		switch {
		case strings.TrimSpace(line) == "":
			continue
		case strings.HasPrefix(line, "1 ") && len(line) == 69:
			line1 = line
		case strings.HasPrefix(line, "2 ") && len(line) == 69:
			if line1 == "" {
				return nil, fmt.Errorf("%s:%d: element line 2 without line 1", filename, lineNum)
			}
			if name == "" {
				name = strings.TrimSpace(line1[2:7])
			}
			tle, err := NewTLE(name, line1, line, site)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: %w", filename, lineNum, err)
			}
			ts[normName(name)] = tle
			name, line1 = "", ""
		default:
			name = strings.TrimSpace(strings.TrimPrefix(line, "0 "))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", filename, err)
	}
	if len(ts) == 0 {
		return nil, fmt.Errorf("%s: no TLEs found", filename)
	}
	return ts, nil
}
