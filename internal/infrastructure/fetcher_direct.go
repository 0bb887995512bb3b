package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/yourusername/url-relay-go/internal/domain"
	"github.com/yourusername/url-relay-go/pkg/format"
	"github.com/yourusername/url-relay-go/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const defaultChunkSize = 4 * 1024 * 1024

// DirectFetcher streams an HTTP(S) resource to disk in large chunks
type DirectFetcher struct {
	client  *http.Client
	config  *domain.DownloadConfig
	limiter *rate.Limiter
	space   SpaceChecker
	logger  *zap.Logger
}

// NewDirectFetcher creates a new direct stream fetcher. A nil space checker disables
// the free-space pre-flight.
func NewDirectFetcher(client *http.Client, config *domain.DownloadConfig, space SpaceChecker, log *zap.Logger) *DirectFetcher {
	if client == nil {
		client = NewHTTPClient(config)
	}
	if space == nil {
		space = noSpaceCheck{}
	}

	f := &DirectFetcher{
		client: client,
		config: config,
		space:  space,
		logger: logger.OrNop(log),
	}

	if config.SpeedLimit > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(config.SpeedLimit), f.chunkSize())
	}

	return f
}

// Fetch downloads job's URL into the configured download directory
func (f *DirectFetcher) Fetch(ctx context.Context, job *domain.Job) (*domain.AcquisitionResult, error) {
	return f.FetchTo(ctx, job, f.config.Dir)
}

// FetchTo downloads job's URL into dir
func (f *DirectFetcher) FetchTo(ctx context.Context, job *domain.Job, dir string) (*domain.AcquisitionResult, error) {
	rawURL := job.Locator.URL

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, domain.WrapError(domain.KindInternal, err, "failed to create download directory")
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, domain.WrapError(domain.KindInvalidLocator, err, "invalid URL")
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Range", "bytes=0-")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return nil, &domain.AcquisitionError{
			Kind:       domain.KindRemoteRejected,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("server returned %s", resp.Status),
		}
	}

	total := resp.ContentLength
	if total < 0 {
		total = 0
	}

	if limit := f.config.MaxFileSize; limit > 0 && total > limit {
		return nil, domain.NewError(domain.KindTooLarge, "file size %s exceeds the %s limit",
			format.Bytes(total), format.Bytes(limit))
	}

	if err := f.space.Check(dir, total); err != nil {
		return nil, err
	}

	name := ResolveFilename(job.Filename, resp, rawURL)
	path := UniquePath(dir, name)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return nil, domain.WrapError(domain.KindInternal, err, "failed to create output file")
	}
	job.TrackPath(path)

	f.logger.Info("Streaming download",
		zap.String("url", rawURL),
		zap.String("path", path),
		zap.Int64("size", total),
		zap.Int("status", resp.StatusCode))

	body := newIdleReader(resp.Body, f.readTimeout(), func() { cancel(errIdleTimeout) })
	defer body.stop()

	written, streamErr := f.stream(ctx, job, body, file, total)
	if closeErr := file.Close(); streamErr == nil && closeErr != nil {
		streamErr = domain.WrapError(domain.KindInternal, closeErr, "failed to close output file")
	}

	if streamErr != nil {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			f.logger.Warn("Failed to remove partial file", zap.String("path", path), zap.Error(err))
		}
		f.logger.Warn("Download aborted",
			zap.String("url", rawURL),
			zap.Int64("written", written),
			zap.Error(streamErr))
		return nil, streamErr
	}

	return &domain.AcquisitionResult{
		Path: path,
		Name: filepath.Base(path),
		Size: written,
		Kind: job.Locator.Kind,
	}, nil
}

// stream copies body to w chunk by chunk, reporting after each chunk and checking
// the cancellation flag at every chunk boundary.
func (f *DirectFetcher) stream(ctx context.Context, job *domain.Job, body io.Reader, w io.Writer, total int64) (int64, error) {
	buf := make([]byte, f.chunkSize())
	limit := f.config.MaxFileSize
	var done int64

	for {
		n, readErr := io.ReadFull(body, buf)
		if n > 0 {
			if limit > 0 && done+int64(n) > limit {
				return done, domain.NewError(domain.KindTooLarge, "download exceeded the %s limit", format.Bytes(limit))
			}

			if _, err := w.Write(buf[:n]); err != nil {
				return done, domain.WrapError(domain.KindInternal, err, "failed to write to disk")
			}
			done += int64(n)

			if f.limiter != nil {
				if err := f.limiter.WaitN(ctx, n); err != nil {
					return done, classifyTransportError(ctx, err)
				}
			}

			job.Sink.Emit(domain.ProgressSample{Done: done, Total: total, Phase: domain.PhaseDownloading})

			if job.Cancelled() {
				return done, domain.NewError(domain.KindCancelled, "cancelled after %s", format.Bytes(done))
			}
		}

		if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
			break
		}
		if readErr != nil {
			return done, classifyTransportError(ctx, readErr)
		}
	}

	if total > 0 && done < total {
		return done, domain.NewError(domain.KindNetwork, "connection closed after %s of %s",
			format.Bytes(done), format.Bytes(total))
	}

	if total == 0 {
		job.Sink.Emit(domain.ProgressSample{Done: done, Total: done, Phase: domain.PhaseDownloading})
	}

	return done, nil
}

func (f *DirectFetcher) chunkSize() int {
	if f.config.ChunkSize > 0 {
		return f.config.ChunkSize
	}
	return defaultChunkSize
}

func (f *DirectFetcher) readTimeout() time.Duration {
	if f.config.ReadTimeout > 0 {
		return f.config.ReadTimeout
	}
	return 30 * time.Second
}

// idleReader fires onIdle when no bytes have been read for the timeout.
type idleReader struct {
	r       io.Reader
	timeout time.Duration
	timer   *time.Timer
}

func newIdleReader(r io.Reader, timeout time.Duration, onIdle func()) *idleReader {
	return &idleReader{r: r, timeout: timeout, timer: time.AfterFunc(timeout, onIdle)}
}

func (ir *idleReader) Read(p []byte) (int, error) {
	n, err := ir.r.Read(p)
	if n > 0 {
		ir.timer.Reset(ir.timeout)
	}
	return n, err
}

func (ir *idleReader) stop() {
	ir.timer.Stop()
}
