package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/abworrall/motion-stack/pkg/ephem"
	"github.com/abworrall/motion-stack/pkg/mstack"
)

var Log = log.New(os.Stdout, "", log.Ldate|log.Ltime)

var rootCmd = &cobra.Command{
	Use:   "mstack",
	Short: "Stack telescope exposures onto a moving object",
	Long: `mstack combines a sequence of plate solved exposures into one image,
shifting each exposure so a moving object (asteroid, comet, satellite)
stays put while the stars trail. Long sequences are combined in chunks
that fit a memory budget.

Settings come from --config (YAML), then MSTACK_* environment variables,
then flags.`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initViper)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "YAML file of integration settings")
	pf.String("ephemeris", "", "YAML table of object positions")
	pf.String("tle", "", "file of two-line elements, for satellites")
	pf.Float64("lat", 0, "observer latitude, degrees north (for --tle)")
	pf.Float64("lon", 0, "observer longitude, degrees east (for --tle)")
	pf.Float64("alt", 0, "observer altitude, metres (for --tle)")
	pf.Duration("ephemeris-timeout", 0, "give up on an ephemeris lookup after this long")
	_ = viper.BindPFlags(pf)
}

func initViper() {
	viper.SetEnvPrefix("MSTACK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig starts from --config (or the defaults) and applies any
// flags or env vars that were set.
func loadConfig() (mstack.Config, error) {
	cfg := mstack.NewConfig()
	if f := viper.GetString("config"); f != "" {
		var err error
		if cfg, err = mstack.LoadConfig(f); err != nil {
			return cfg, err
		}
	}

	if s := viper.GetString("reference-time"); s != "" {
		cfg.ReferenceTime = s
	}
	if s := viper.GetString("method"); s != "" {
		cfg.Method = s
	}
	if viper.GetBool("no-sigma-clip") {
		cfg.SigmaClip = false
	}
	if viper.GetBool("standard") {
		cfg.MotionTracking = false
	}
	if viper.GetBool("flat-scale") {
		cfg.Scale = "invmedian"
	}
	if gb := viper.GetFloat64("memory-limit"); gb > 0 {
		cfg.MemoryLimit = int64(gb * mstack.GB)
	}
	if n := viper.GetInt("chunk-size"); n > 0 {
		cfg.ChunkSize = n
	}
	if viper.GetBool("force-chunked") {
		cfg.ForceChunked = true
	}
	if d := viper.GetDuration("ephemeris-timeout"); d > 0 {
		cfg.EphemerisTimeout = d
	}

	return cfg, cfg.Finalize()
}

// buildPredictor puts together whichever ephemeris sources were given.
// It returns nil if there are none.
func buildPredictor() (ephem.Predictor, error) {
	m := ephem.Multi{}

	if f := viper.GetString("ephemeris"); f != "" {
		tb, err := ephem.LoadTable(f)
		if err != nil {
			return nil, err
		}
		Log.Printf("Ephemeris table '%s': %s\n", f, strings.Join(tb.Objects(), ", "))
		m = append(m, tb)
	}

	if f := viper.GetString("tle"); f != "" {
		site := ephem.Site{Lat: viper.GetFloat64("lat"), Lon: viper.GetFloat64("lon"), Alt: viper.GetFloat64("alt")}
		set, err := ephem.LoadTLEFile(f, site)
		if err != nil {
			return nil, err
		}
		Log.Printf("TLE file '%s': %d satellites\n", f, len(set))
		m = append(m, set)
	}

	if len(m) == 0 {
		return nil, nil
	}
	return m, nil
}
