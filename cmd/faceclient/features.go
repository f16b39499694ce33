// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/loopholelabs/faceclient/internal/config"
	"github.com/loopholelabs/faceclient/pkg/call"
	"github.com/loopholelabs/faceclient/pkg/client"
)

type featuresOptions struct {
	configPath string
	address    string
	useAge     bool
	useGender  bool
	useFeature bool
	count      int
	timeout    time.Duration
}

var featuresOpts featuresOptions

var featuresCmd = &cobra.Command{
	Use:   "features <image>",
	Short: "Request face features for an image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFeatures(cmd, args[0])
	},
}

func init() {
	flags := featuresCmd.Flags()
	flags.StringVar(&featuresOpts.configPath, "config", "", "TOML config file")
	flags.StringVar(&featuresOpts.address, "addr", "", "service address, overrides the config file")
	flags.BoolVar(&featuresOpts.useAge, "age", true, "estimate age")
	flags.BoolVar(&featuresOpts.useGender, "gender", true, "estimate gender")
	flags.BoolVar(&featuresOpts.useFeature, "feature", false, "compute the embedding")
	flags.IntVar(&featuresOpts.count, "count", 1, "number of concurrent requests")
	flags.DurationVar(&featuresOpts.timeout, "timeout", time.Second*15, "wait budget per request")
	rootCmd.AddCommand(featuresCmd)
}

func loadOptions() (*config.Config, error) {
	cfg := config.Default()
	if featuresOpts.configPath != "" {
		loaded, err := config.Load(featuresOpts.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if featuresOpts.address != "" {
		cfg.Address = featuresOpts.address
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runFeatures(cmd *cobra.Command, path string) error {
	if featuresOpts.count < 1 {
		return fmt.Errorf("count must be positive, got %d", featuresOpts.count)
	}
	cfg, err := loadOptions()
	if err != nil {
		return err
	}
	img, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("unable to read image: %w", err)
	}

	logger := newLogger()
	c, err := client.New(cmd.Context(), cfg.Options(logger, nil))
	if err != nil {
		return err
	}
	defer c.Close()

	calls := make([]*call.Call, featuresOpts.count)
	for i := range calls {
		calls[i] = c.GetFeatures(img, featuresOpts.useFeature, featuresOpts.useAge, featuresOpts.useGender)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "SERIAL\tFACE\tBOX\tAGE\tGENDER\tROTATE\tFEATURE\tLATENCY")
	var failed error
	for _, pending := range calls {
		if _, err = pending.WaitTimeout(featuresOpts.timeout); err != nil {
			failed = errors.Join(failed, fmt.Errorf("serial %d: %w", pending.Serial(), err))
			continue
		}
		features, err := pending.Features()
		if err != nil {
			failed = errors.Join(failed, err)
			continue
		}
		if features.FaceNum == 0 {
			fmt.Fprintf(w, "%d\t-\t-\t-\t-\t-\t-\t%s\n", pending.Serial(), pending.Latency())
		}
		for i, face := range features.Features {
			fmt.Fprintf(w, "%d\t%d\t%d,%d %dx%d\t%d (%.2f)\t%d (%.2f)\t%d\t%d\t%s\n",
				pending.Serial(), i, face.Left, face.Top, face.Width, face.Height,
				face.Age, face.ConfidenceAge, face.Gender, face.ConfidenceGender,
				face.Rotate, face.FeatureLen, pending.Latency())
		}
	}
	w.Flush()
	return failed
}
