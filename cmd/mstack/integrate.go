package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/abworrall/motion-stack/pkg/frames"
	"github.com/abworrall/motion-stack/pkg/mstack"
)

var integrateCmd = &cobra.Command{
	Use:   "integrate <object> <files or dirs...>",
	Short: "Stack a sequence of exposures onto a moving object",
	Long: `Stack a sequence of exposures onto a moving object. Use an object name
of "" (or --standard) to stack on the stars instead.

Interrupting a run (^C) stops it after the current chunk, and writes out
what has been combined so far, marked INCOMPLT.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runIntegrate,
}

func init() {
	f := integrateCmd.Flags()
	f.StringP("output", "o", "stack.fits", "output FITS file")
	f.String("reference-time", "", "time of the reference position (default: first exposure)")
	f.String("method", "", "how to combine pixels: average, median or sum")
	f.Bool("no-sigma-clip", false, "don't reject outlying pixel values")
	f.Bool("standard", false, "stack on the stars, ignoring the object's motion")
	f.Bool("flat-scale", false, "scale each exposure so its median is 1")
	f.Float64("memory-limit", 0, "memory budget, in GB")
	f.Int("chunk-size", 0, "images per chunk")
	f.Bool("force-chunked", false, "combine in chunks, even if everything fits")
	f.String("preview", "", "also write an annotated PNG preview")
	f.String("hdr", "", "also write a Radiance HDR file")
	f.String("ldr", "", "also write a tonemapped PNG")
	f.String("tonemapper", "reinhard05", fmt.Sprintf("tone mapping operator for --ldr, one of %v", frames.Tonemappers))
	f.String("coverage", "", "also write a PNG of how many exposures cover each pixel")
	_ = viper.BindPFlags(f)

	rootCmd.AddCommand(integrateCmd)
}

// logProgress reports chunk progress to the log, and asks the engine to
// stop once ctx is done.
type logProgress struct {
	ctx context.Context
}

func (lp logProgress) Report(f float64) { Log.Printf("... %3.0f%%\n", f*100) }
func (lp logProgress) Cancelled() bool  { return lp.ctx.Err() != nil }

func runIntegrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Object = args[0]

	refs, err := frames.ExpandPaths(args[1:]...)
	if err != nil {
		return err
	}
	Log.Printf("Found %d files\n", len(refs))

	p, err := buildPredictor()
	if err != nil {
		return err
	}
	if cfg.Tracking() && p == nil {
		return fmt.Errorf("tracking %q needs --ephemeris or --tle (or --standard to stack on the stars)", cfg.Object)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	e := mstack.NewEngine(frames.FileLoader{}, p)
	e.Log = Log
	e.Progress = logProgress{ctx: ctx}

	res, err := e.Integrate(ctx, refs, cfg)
	if err != nil {
		return err
	}

	out := viper.GetString("output")
	if err := frames.SaveFITS(out, &res.Plane, res.Cards(), res.Metadata.Saturated); err != nil {
		return err
	}
	Log.Printf("FITS output file written '%s'\n", out)

	if f := viper.GetString("hdr"); f != "" {
		if err := frames.SaveHDR(f, &res.Plane); err != nil {
			return err
		}
		Log.Printf("HDR output file written '%s'\n", f)
	}

	if f := viper.GetString("ldr"); f != "" {
		name := viper.GetString("tonemapper")
		if err := frames.SaveTonemapped(f, name, &res.Plane); err != nil {
			return err
		}
		Log.Printf("LDR output file written '%s' (%s)\n", f, name)
	}

	if f := viper.GetString("preview"); f != "" {
		title := fmt.Sprintf("%s: %d exposures, %s", res.Metadata.Object, res.Metadata.Combined, res.Metadata.Method)
		if res.Metadata.Object == "" {
			title = fmt.Sprintf("%d exposures, %s", res.Metadata.Combined, res.Metadata.Method)
		}
		if err := frames.SavePreview(f, title, &res.Plane); err != nil {
			return err
		}
		Log.Printf("Preview written '%s'\n", f)
	}

	if f := viper.GetString("coverage"); f != "" {
		if err := frames.WritePNG(res.Count.ToImage(0, 1), f); err != nil {
			return err
		}
		Log.Printf("Coverage map written '%s'\n", f)
	}

	printSummary(os.Stdout, res)
	return nil
}

func printSummary(w io.Writer, res *mstack.Result) {
	fmt.Fprintf(w, "\n")
	for _, e := range res.Metadata.Entries() {
		fmt.Fprintf(w, "  %-24s %v\n", e.Key, e.Value)
	}
	fmt.Fprintf(w, "  %-24s %s\n", "QUALITY", res.Quality)

	if len(res.Exclusions) > 0 {
		fmt.Fprintf(w, "\nExcluded:\n")
		for _, ex := range res.Exclusions {
			fmt.Fprintf(w, "  %s\n", ex)
		}
	}
	if len(res.FailedChunks) > 0 {
		fmt.Fprintf(w, "\nFailed chunks:\n")
		for _, cf := range res.FailedChunks {
			fmt.Fprintf(w, "  %s\n", cf)
		}
	}
	if res.Incomplete {
		fmt.Fprintf(w, "\nRun was interrupted; the output only holds the chunks finished by then.\n")
	}
}
