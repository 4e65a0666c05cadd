package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/docscan/internal/api"
	"github.com/jackzampolin/docscan/internal/dispatch"
	"github.com/jackzampolin/docscan/internal/home"
	"github.com/jackzampolin/docscan/internal/imageproc"
	"github.com/jackzampolin/docscan/internal/jobs"
	"github.com/jackzampolin/docscan/internal/mediastore"
	"github.com/jackzampolin/docscan/internal/providers"
)

var (
	scanRecognizer    string
	scanAllowUntagged bool
	scanTextOnly      bool
)

// discardSink drops view updates; the one-shot pass reads the task instead.
type discardSink struct{}

func (discardSink) SetRecognizedText(string) {}
func (discardSink) SetCopyVisible()          {}
func (discardSink) SetDismissVisible()       {}

var scanCmd = &cobra.Command{
	Use:   "scan <image>",
	Short: "Recognize text in an image without a server",
	Long: `Run one recognition pass over a local image and print the result.

The image goes through the same steps as a picked image on the server:
orientation is read from EXIF, the image is rotated upright and handed to
the first registered recognizer in defaults.recognizers.

Examples:
  docscan scan page.jpg
  docscan scan page.png --allow-untagged --text
  docscan scan page.jpg --recognizer openai -o json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		logger, err := newLogger()
		if err != nil {
			return err
		}
		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		cfgMgr, err := loadConfig(h)
		if err != nil {
			return err
		}
		cfgMgr.SetLogger(logger)
		cfg := cfgMgr.Get()

		if _, err := os.Stat(args[0]); err != nil {
			return fmt.Errorf("image not found: %w", err)
		}

		registry := providers.NewRegistryFromConfig(cfg.ToRegistryConfig(), logger)
		order := cfg.Defaults.Recognizers
		if scanRecognizer != "" {
			order = []string{scanRecognizer}
		}

		processor := imageproc.New(imageproc.Config{
			Resolver: mediastore.New(h.MediaPath(), logger),
			Recognizer: func() (providers.Recognizer, error) {
				return registry.Preferred(order)
			},
			Executor:           &dispatch.Inline{},
			Logger:             logger,
			RequireOrientation: cfg.Processing.RequireOrientation && !scanAllowUntagged,
		})

		task := processor.Process(ctx, mediastore.FileReference(args[0]), discardSink{})
		select {
		case <-task.Done():
		case <-ctx.Done():
			task.Cancel()
			return ctx.Err()
		}

		record := task.Record()
		if scanTextOnly {
			if record.Text == nil {
				return fmt.Errorf("no text recognized (phase: %s)", record.Phase)
			}
			fmt.Println(*record.Text)
			return nil
		}
		if err := api.Output(record); err != nil {
			return err
		}
		if record.Phase == jobs.PhaseFailed {
			return fmt.Errorf("recognition failed: %s", record.Error)
		}
		return nil
	},
}

func init() {
	scanCmd.Flags().StringVar(&scanRecognizer, "recognizer", "", "Recognizer name (default: first of defaults.recognizers)")
	scanCmd.Flags().BoolVar(&scanAllowUntagged, "allow-untagged", false, "Recognize images without EXIF orientation as upright")
	scanCmd.Flags().BoolVar(&scanTextOnly, "text", false, "Print only the recognized text")

	rootCmd.AddCommand(scanCmd)
}
