package infrastructure

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"github.com/yourusername/url-relay-go/pkg/logger"
	"go.uber.org/zap"
)

const ytdlpProgressInterval = 500 * time.Millisecond

// YTDLPEngine implements MediaEngine with yt-dlp
type YTDLPEngine struct {
	logger *zap.Logger
}

// NewYTDLPEngine creates a new yt-dlp backed engine
func NewYTDLPEngine(log *zap.Logger) *YTDLPEngine {
	return &YTDLPEngine{logger: logger.OrNop(log)}
}

// InstallYTDLP downloads a yt-dlp binary into the library cache if none is available
func InstallYTDLP(ctx context.Context) error {
	if _, err := ytdlp.Install(ctx, nil); err != nil {
		return fmt.Errorf("failed to install yt-dlp: %w", err)
	}
	return nil
}

// Extract runs yt-dlp for one URL
func (e *YTDLPEngine) Extract(ctx context.Context, req MediaRequest, progress func(MediaProgress)) (string, error) {
	var (
		mu       sync.Mutex
		filename string
	)

	dl := ytdlp.New().
		Format(req.Format).
		MergeOutputFormat(req.MergeFormat).
		RestrictFilenames().
		NoPlaylist().
		Output(filepath.Join(req.OutputDir, "%(title)s.%(ext)s")).
		ProgressFunc(ytdlpProgressInterval, func(update ytdlp.ProgressUpdate) {
			mu.Lock()
			if update.Filename != "" {
				filename = update.Filename
			}
			mu.Unlock()

			if progress != nil {
				progress(MediaProgress{
					Done:     int64(update.DownloadedBytes),
					Total:    int64(update.TotalBytes),
					Filename: update.Filename,
				})
			}
		})

	e.logger.Debug("Running yt-dlp", zap.String("url", req.URL), zap.String("output_dir", req.OutputDir))

	result, err := dl.Run(ctx, req.URL)
	if err != nil {
		if result != nil {
			e.logger.Debug("yt-dlp failed",
				zap.String("command", CommandLine(result.Executable, result.Args...)),
				zap.Int("exit_code", result.ExitCode))
		}
		if result != nil && result.Stderr != "" {
			return "", fmt.Errorf("%w: %s", err, lastLines(result.Stderr, 3))
		}
		return "", err
	}

	mu.Lock()
	defer mu.Unlock()
	return filename, nil
}

// lastLines returns the last n non-empty lines of s, joined with "; ".
func lastLines(s string, n int) string {
	var lines []string
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "; ")
}
