package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yourusername/url-relay-go/internal/app"
	"github.com/yourusername/url-relay-go/internal/domain"
	"github.com/yourusername/url-relay-go/pkg/format"
	"github.com/yourusername/url-relay-go/pkg/logger"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [locator]",
	Short: "Acquire a locator in this process, without the server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		filename, _ := cmd.Flags().GetString("name")
		plain, _ := cmd.Flags().GetBool("plain")
		verbose, _ := cmd.Flags().GetBool("verbose")

		config, err := app.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		level := "error"
		if verbose {
			level = "debug"
		}
		log, err := logger.New(logger.Config{Level: level, Format: "console", OutputPath: "stderr"})
		if err != nil {
			return err
		}
		defer log.Sync()

		dispatcher, closeEngines, err := app.BuildDispatcher(config, log)
		if err != nil {
			return err
		}
		defer func() {
			if err := closeEngines(); err != nil {
				log.Warn("Failed to close swarm engine", zap.Error(err))
			}
		}()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		task := domain.NewActiveTask(0, args[0])
		go func() {
			<-ctx.Done()
			task.Cancel()
		}()

		req := domain.AcquisitionRequest{Locator: args[0], Filename: filename}

		var finish func()
		if plain {
			reporter := app.NewProgressReporter(domain.StatusUpdaterFunc(func(_ context.Context, text string) error {
				fmt.Printf("%s\n\n", text)
				return nil
			}), &config.Progress, log)
			req.Sink = reporter.Sink(ctx)
			finish = func() { reporter.Flush(context.Background()) }
		} else {
			sink, done := barSink()
			req.Sink = sink
			finish = done
		}

		result, err := dispatcher.Download(context.Background(), task, req)
		finish()
		if err != nil {
			return fmt.Errorf("%s", domain.AsAcquisitionError(err).UserMessage())
		}

		fmt.Printf("Saved %s (%s)\n", result.Path, format.Bytes(result.Size))
		return nil
	},
}

// barSink renders samples on a terminal progress bar. The bar starts as a
// spinner and gets a maximum once a sample carries a total.
func barSink() (domain.ProgressSink, func()) {
	bar := progressbar.DefaultBytes(-1, "Starting")
	var total int64 = -1
	var phase string

	sink := func(s domain.ProgressSample) {
		if s.Phase != phase {
			phase = s.Phase
			bar.Describe(phase)
		}
		if s.Total > 0 && s.Total != total {
			total = s.Total
			bar.ChangeMax64(total)
		}
		_ = bar.Set64(s.Done)
	}
	return sink, func() {
		_ = bar.Finish()
		fmt.Fprintln(os.Stderr)
	}
}

func init() {
	fetchCmd.Flags().StringP("config", "c", "", "Path to config file")
	fetchCmd.Flags().StringP("name", "n", "", "Desired file name for direct downloads")
	fetchCmd.Flags().Bool("plain", false, "Print status frames instead of a progress bar")
	fetchCmd.Flags().BoolP("verbose", "v", false, "Log debug output to stderr")
}
