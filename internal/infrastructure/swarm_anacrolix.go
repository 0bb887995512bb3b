package infrastructure

import (
	"fmt"
	"os"
	"sync"

	analog "github.com/anacrolix/log"
	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/anacrolix/torrent/storage"
	"github.com/yourusername/url-relay-go/internal/domain"
	"github.com/yourusername/url-relay-go/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	minUploadBurst   = 256 * 1024
	minDownloadBurst = 1024 * 1024
)

// AnacrolixEngine implements SwarmEngine with one anacrolix client per process.
// The client is created on first use so processes that never see a torrent do not
// open a listen port.
type AnacrolixEngine struct {
	config        *domain.SwarmConfig
	downloadLimit int64
	logger        *zap.Logger

	mu     sync.Mutex
	client *torrent.Client
}

// NewAnacrolixEngine creates a new swarm engine. downloadLimit (bytes/s, 0 = unlimited)
// is the shared speed governor.
func NewAnacrolixEngine(config *domain.SwarmConfig, downloadLimit int64, log *zap.Logger) *AnacrolixEngine {
	return &AnacrolixEngine{
		config:        config,
		downloadLimit: downloadLimit,
		logger:        logger.OrNop(log),
	}
}

func (e *AnacrolixEngine) ensureClient() (*torrent.Client, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.client != nil {
		return e.client, nil
	}

	if err := os.MkdirAll(e.config.TorrentDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create torrent directory: %w", err)
	}

	analog.Default.SetHandlers(analog.DiscardHandler)

	cfg := torrent.NewDefaultClientConfig()
	cfg.DataDir = e.config.TorrentDir
	cfg.DefaultStorage = storage.NewFile(e.config.TorrentDir)
	cfg.Seed = false
	cfg.DisableUTP = true
	if e.config.ListenPort > 0 {
		cfg.ListenPort = e.config.ListenPort
	}
	if e.config.UploadLimit > 0 {
		cfg.UploadRateLimiter = rate.NewLimiter(rate.Limit(e.config.UploadLimit), burstFor(e.config.UploadLimit, minUploadBurst))
	}
	if e.downloadLimit > 0 {
		cfg.DownloadRateLimiter = rate.NewLimiter(rate.Limit(e.downloadLimit), burstFor(e.downloadLimit, minDownloadBurst))
	}

	client, err := torrent.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to start torrent client: %w", err)
	}

	e.logger.Info("Torrent client started",
		zap.String("data_dir", e.config.TorrentDir),
		zap.Int("listen_port", cfg.ListenPort),
		zap.Int64("upload_limit", e.config.UploadLimit))

	e.client = client
	return client, nil
}

// AddMagnet opens a handle for a magnet URI, storing its payload under dir
func (e *AnacrolixEngine) AddMagnet(uri, dir string) (SwarmHandle, error) {
	spec, err := torrent.TorrentSpecFromMagnetUri(uri)
	if err != nil {
		return nil, fmt.Errorf("failed to parse magnet: %w", err)
	}
	return e.add(spec, dir)
}

// AddTorrentFile opens a handle for a local .torrent descriptor, storing its payload under dir
func (e *AnacrolixEngine) AddTorrentFile(path, dir string) (SwarmHandle, error) {
	mi, err := metainfo.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse torrent file: %w", err)
	}
	spec, err := torrent.TorrentSpecFromMetaInfoErr(mi)
	if err != nil {
		return nil, fmt.Errorf("failed to read torrent file: %w", err)
	}
	return e.add(spec, dir)
}

// add registers spec with its own file storage. A torrent already held by the client
// belongs to another task and is refused.
func (e *AnacrolixEngine) add(spec *torrent.TorrentSpec, dir string) (SwarmHandle, error) {
	client, err := e.ensureClient()
	if err != nil {
		return nil, err
	}

	st := storage.NewFile(dir)
	spec.Storage = st

	t, isNew, err := client.AddTorrentSpec(spec)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to add torrent: %w", err)
	}
	if !isNew {
		_ = st.Close()
		return nil, ErrSwarmInUse
	}
	return &anacrolixHandle{t: t, storage: st}, nil
}

// DataDir returns where torrent content is stored
func (e *AnacrolixEngine) DataDir() string {
	return e.config.TorrentDir
}

// Close shuts the client down
func (e *AnacrolixEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.client != nil {
		e.client.Close()
		e.client = nil
	}
	return nil
}

func burstFor(limit int64, floor int) int {
	if limit > int64(floor) {
		return int(limit)
	}
	return floor
}

type anacrolixHandle struct {
	t       *torrent.Torrent
	storage storage.ClientImplCloser
}

func (h *anacrolixHandle) GotInfo() <-chan struct{} { return h.t.GotInfo() }
func (h *anacrolixHandle) Closed() <-chan struct{}  { return h.t.Closed() }
func (h *anacrolixHandle) DownloadAll()             { h.t.DownloadAll() }
func (h *anacrolixHandle) Name() string             { return h.t.Name() }
func (h *anacrolixHandle) BytesCompleted() int64    { return h.t.BytesCompleted() }

func (h *anacrolixHandle) Drop() {
	h.t.Drop()
	_ = h.storage.Close()
}

func (h *anacrolixHandle) Length() int64 {
	if h.t.Info() == nil {
		return 0
	}
	return h.t.Length()
}

func (h *anacrolixHandle) MultiFile() bool {
	info := h.t.Info()
	return info != nil && len(info.Files) > 0
}

func (h *anacrolixHandle) Peers() (active, seeds int) {
	stats := h.t.Stats()
	return stats.ActivePeers, stats.ConnectedSeeders
}
