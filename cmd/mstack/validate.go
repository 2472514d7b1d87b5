package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abworrall/motion-stack/pkg/frames"
	"github.com/abworrall/motion-stack/pkg/mstack"
)

var validateCmd = &cobra.Command{
	Use:   "validate <files or dirs...>",
	Short: "Check which exposures could be stacked, without loading pixels",
	Long: `Read the headers of every exposure and report which ones would be
stacked, and why any would be left out. With --object, exposures without a
usable coordinate solution are excluded too, as they would be when tracking.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().String("object", "", "the object that would be tracked")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if obj, _ := cmd.Flags().GetString("object"); obj != "" {
		cfg.Object = obj
	}

	refs, err := frames.ExpandPaths(args...)
	if err != nil {
		return err
	}

	e := mstack.NewEngine(frames.FileLoader{}, nil)
	e.Log = Log
	v, err := e.ValidateSequence(context.Background(), refs, cfg)

	for _, it := range v.Eligible {
		fmt.Printf("  ok    %s\n", it.Header)
	}
	for _, ex := range v.Exclusions {
		fmt.Printf("  skip  %s\n", ex)
	}
	for _, w := range v.Warnings {
		fmt.Printf("  warn  %s\n", w)
	}
	fmt.Printf("\n%d of %d exposures can be stacked\n", len(v.Eligible), len(refs))

	var verr *mstack.ValidationError
	if errors.As(err, &verr) {
		return fmt.Errorf("nothing to stack: %s", verr.Reason)
	}
	return err
}
