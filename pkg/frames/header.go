// Package frames reads and writes the image containers the stacker deals
// with: FITS frames from astro cameras, 16-bit TIFFs exported from raw
// photo tools, and the HDR/PNG renderings of a finished stack.
package frames

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/abworrall/motion-stack/pkg/emath"
	"github.com/abworrall/motion-stack/pkg/wcs"
)

// Header is everything we know about an exposure without its pixels.
type Header struct {
	Filename string
	Width    int
	Height   int
	WCS      wcs.Solution // nil if the frame isn't plate solved
	ObsTime  time.Time    // zero if unknown
	Filter   string
	ExpTime  float64 // seconds, 0 if unknown
	Object   string

	Cards Cards // raw keywords, as found in the file
}

// A Frame is an exposure loaded into memory, as a single float plane.
type Frame struct {
	Header
	Plane emath.FloatGrid
}

func (h Header) String() string {
	return fmt.Sprintf("%s[%dx%d, t=%s, filter=%q, exp=%.1fs, wcs=%v]",
		h.Filename, h.Width, h.Height, h.ObsTime.Format(time.RFC3339), h.Filter, h.ExpTime, h.WCS != nil)
}

// Bytes is the footprint of the frame's plane once loaded.
func (h Header) Bytes() int64 {
	return int64(h.Width) * int64(h.Height) * emath.BytesPerPixel
}

// Cards holds header keywords by (upper case) name.
type Cards map[string]interface{}

func (c Cards) Float(key string) (float64, bool) {
	switch v := c[strings.ToUpper(key)].(type) {
	case float64:
		return v, !math.IsNaN(v)
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	return 0, false
}

func (c Cards) String(key string) (string, bool) {
	switch v := c[strings.ToUpper(key)].(type) {
	case string:
		return strings.TrimSpace(v), true
	case nil:
		return "", false
	default:
		return fmt.Sprintf("%v", v), true
	}
}

// A Card is one keyword to write into an output header.
type Card struct {
	Name    string
	Value   interface{}
	Comment string
}

var obsTimeFormats = []string{
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006:01:02 15:04:05", // EXIF
	"2006-01-02",
}

// ParseObsTime reads a FITS/ISO style timestamp. Times without a zone
// are UTC, as FITS requires.
func ParseObsTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, f := range obsTimeFormats {
		if t, err := time.Parse(f, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable observation time %q", s)
}

// MJD 0 is 1858-11-17T00:00:00Z
var mjdEpoch = time.Date(1858, 11, 17, 0, 0, 0, 0, time.UTC)

func fromMJD(mjd float64) time.Time {
	return mjdEpoch.Add(time.Duration(mjd * 86400 * float64(time.Second))).UTC()
}

// obsTime looks through the usual keywords for the start of the
// exposure: DATE-OBS (with TIME-OBS if it only holds a date), then
// MJD-OBS.
func (c Cards) obsTime() (time.Time, error) {
	if d, ok := c.String("DATE-OBS"); ok && d != "" {
		if !strings.ContainsAny(d, "T ") {
			if tm, ok := c.String("TIME-OBS"); ok && tm != "" {
				d = d + "T" + tm
			}
		}
		return ParseObsTime(d)
	}
	if mjd, ok := c.Float("MJD-OBS"); ok && mjd > 0 {
		return fromMJD(mjd), nil
	}
	return time.Time{}, fmt.Errorf("no DATE-OBS or MJD-OBS")
}

func (c Cards) expTime() float64 {
	for _, key := range []string{"EXPTIME", "EXPOSURE"} {
		if v, ok := c.Float(key); ok && v > 0 {
			return v
		}
	}
	return 0
}
