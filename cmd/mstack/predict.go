package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/abworrall/motion-stack/pkg/ephem"
	"github.com/abworrall/motion-stack/pkg/frames"
)

var predictCmd = &cobra.Command{
	Use:   "predict <object> <time...>",
	Short: "Print where the ephemeris sources put an object",
	Long: `Print the RA/Dec the configured ephemeris sources (--ephemeris, --tle)
give for an object at each time. Times are UTC, e.g. 2024-03-01T02:30:00.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runPredict,
}

func init() {
	rootCmd.AddCommand(predictCmd)
}

func runPredict(cmd *cobra.Command, args []string) error {
	p, err := buildPredictor()
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("no ephemeris sources; use --ephemeris or --tle")
	}

	timeout := viper.GetDuration("ephemeris-timeout")
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	p = ephem.WithTimeout(p, timeout)

	object := args[0]
	for _, arg := range args[1:] {
		t, err := frames.ParseObsTime(arg)
		if err != nil {
			return err
		}
		c, err := p.Predict(context.Background(), object, t)
		if err != nil {
			fmt.Printf("%s  %s: %v\n", t.Format(time.RFC3339), object, err)
			continue
		}
		fmt.Printf("%s  %s %s\n", t.Format(time.RFC3339), object, c)
	}
	return nil
}
