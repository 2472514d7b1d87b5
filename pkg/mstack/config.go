package mstack

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/abworrall/motion-stack/pkg/frames"
)

/* Example config file ...

object: 2024 AB1
referencetime: "2024-03-01T02:00:00"
method: median
sigmaclip: true
sigmalow: 4
sigmahigh: 3
scale: invmedian
memorylimit: 1073741824
chunksize: 8
ephemeristimeout: 10s

*/

// Config is everything that controls one integration run. It is passed
// in whole to Integrate; the engine keeps no settings of its own.
type Config struct {
	Object         string `yaml:"object"`
	MotionTracking bool   `yaml:"motiontracking"` // false stacks on the star field
	ReferenceTime  string `yaml:"referencetime"`  // default is the first exposure

	Method          string  `yaml:"method"` // average, median, sum
	SigmaClip       bool    `yaml:"sigmaclip"`
	SigmaLow        float64 `yaml:"sigmalow"`
	SigmaHigh       float64 `yaml:"sigmahigh"`
	SigmaIterations int     `yaml:"sigmaiterations"`
	Scale           string  `yaml:"scale"` // "", or invmedian

	MemoryLimit   int64   `yaml:"memorylimit"` // bytes; 0 means no limit
	ChunkSize     int     `yaml:"chunksize"`   // 0 means derive from MemoryLimit
	ForceChunked  bool    `yaml:"forcechunked"`
	SinglePassMax int     `yaml:"singlepassmax"` // longest sequence done in one pass
	SafetyFactor  float64 `yaml:"safetyfactor"`

	EphemerisTimeout  time.Duration `yaml:"ephemeristimeout"`
	MinPixelScale     float64       `yaml:"minpixelscale"` // arcsec/pixel
	MaxPixelScale     float64       `yaml:"maxpixelscale"`
	ExposureTolerance float64       `yaml:"exposuretolerance"` // relative

	// Values we figure out in Finalize
	method   Method
	combiner CombinerFunc
	refTime  time.Time
}

const GB = 1 << 30

func NewConfig() Config {
	return Config{
		MotionTracking:    true,
		Method:            string(Average),
		SigmaClip:         true,
		SigmaLow:          5,
		SigmaHigh:         5,
		SigmaIterations:   3,
		MemoryLimit:       2 * GB,
		ChunkSize:         10,
		SinglePassMax:     10,
		SafetyFactor:      2,
		EphemerisTimeout:  30 * time.Second,
		MinPixelScale:     0.01,
		MaxPixelScale:     3600,
		ExposureTolerance: 0.01,
	}
}

func ParseConfig(b []byte) (Config, error) {
	c := NewConfig()
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, err
	}
	return c, c.Finalize()
}

func LoadConfig(filename string) (Config, error) {
	contents, err := os.ReadFile(filename)
	if err != nil {
		return NewConfig(), fmt.Errorf("config read %s: %v", filename, err)
	}
	c, err := ParseConfig(contents)
	if err != nil {
		return c, fmt.Errorf("config %s: %w", filename, err)
	}
	return c, nil
}

func (c Config) AsYaml() string {
	b, err := yaml.Marshal(c)
	if err != nil {
		log.Printf("Can't marshal config yaml: %v\n", err)
	}
	return string(b)
}

// Finalize does sanity checks, and resolves the strategy names.
func (c *Config) Finalize() error {
	if c.Method == "" {
		c.Method = string(Average)
	}
	m, err := ParseMethod(c.Method)
	if err != nil {
		return err
	}
	c.method = m

	switch m {
	case Average:
		c.combiner = CombineAverage
	case Median:
		c.combiner = CombineMedian
	case Sum:
		c.combiner = CombineSum
	}

	switch strings.ToLower(c.Scale) {
	case "", "none":
		c.Scale = ""
	case "invmedian":
		c.Scale = "invmedian"
	default:
		return fmt.Errorf("no scale strategy named '%s'", c.Scale)
	}

	c.refTime = time.Time{}
	if c.ReferenceTime != "" {
		t, err := frames.ParseObsTime(c.ReferenceTime)
		if err != nil {
			return fmt.Errorf("reference time: %w", err)
		}
		c.refTime = t
	}

	switch {
	case c.SigmaClip && (c.SigmaLow <= 0 || c.SigmaHigh <= 0):
		return fmt.Errorf("sigma bounds must be positive, got low=%g high=%g", c.SigmaLow, c.SigmaHigh)
	case c.SigmaClip && c.SigmaIterations < 1:
		return fmt.Errorf("sigma iterations must be at least 1, got %d", c.SigmaIterations)
	case c.MemoryLimit < 0:
		return fmt.Errorf("memory limit must not be negative")
	case c.ChunkSize < 0:
		return fmt.Errorf("chunk size must not be negative")
	case c.SafetyFactor < 1:
		return fmt.Errorf("safety factor must be at least 1, got %g", c.SafetyFactor)
	case c.MinPixelScale < 0 || c.MaxPixelScale <= c.MinPixelScale:
		return fmt.Errorf("bad pixel scale range [%g, %g]", c.MinPixelScale, c.MaxPixelScale)
	}

	return nil
}

// Tracking is true when the run follows a moving object.
func (c Config) Tracking() bool {
	return c.MotionTracking && strings.TrimSpace(c.Object) != ""
}

func (c Config) finalized() bool { return c.combiner != nil }
