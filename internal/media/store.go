// Package media はダウンロードした生成アセットをプロセスメモリ上に保持し、
// ブラウザから解決できる URL を払い出します。
package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound は指定された ID のメディアが存在しない場合に返されます。
var ErrNotFound = errors.New("media not found")

// ErrTooLarge はメディアがサイズ上限を超える場合に返されます。
var ErrTooLarge = errors.New("media exceeds size limit")

// StoredMedia は保存済みメディアのメタデータです。
type StoredMedia struct {
	ID        string    `json:"id"`
	MimeType  string    `json:"mime_type"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// SaveRequest はメディア保存のための入力です。
type SaveRequest struct {
	Data     []byte
	MimeType string
}

// Store はメディアの保存先を抽象化します。
type Store interface {
	Save(ctx context.Context, req SaveRequest) (*StoredMedia, error)
	Get(ctx context.Context, id string) ([]byte, *StoredMedia, error)
	URL(id string) string
}

// StoreConfig は MemoryStore の設定です。
type StoreConfig struct {
	BaseURL     string `mapstructure:"base_url"`
	MaxBlobSize int64  `mapstructure:"max_blob_bytes"`
	MaxBlobs    int    `mapstructure:"max_blobs"`
}

// DefaultStoreConfig はデフォルト設定を返します。
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		BaseURL:     "/api/blobs",
		MaxBlobSize: 200 * 1024 * 1024, // 200MB
		MaxBlobs:    32,
	}
}

type entry struct {
	meta StoredMedia
	data []byte
}

// MemoryStore は Store のメモリ実装です。上限数を超えると古いものから破棄します。
type MemoryStore struct {
	config StoreConfig
	logger *slog.Logger
	mu     sync.RWMutex
	items  map[string]*entry
	order  []string
}

// NewMemoryStore は新しい MemoryStore を作成します。
func NewMemoryStore(cfg StoreConfig, logger *slog.Logger) *MemoryStore {
	if logger == nil {
		logger = slog.Default()
	}

	defaults := DefaultStoreConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.MaxBlobSize <= 0 {
		cfg.MaxBlobSize = defaults.MaxBlobSize
	}
	if cfg.MaxBlobs <= 0 {
		cfg.MaxBlobs = defaults.MaxBlobs
	}

	return &MemoryStore{
		config: cfg,
		logger: logger,
		items:  make(map[string]*entry),
	}
}

// Save はデータを保存し、メタデータを返します。
func (s *MemoryStore) Save(_ context.Context, req SaveRequest) (*StoredMedia, error) {
	size := int64(len(req.Data))
	if size > s.config.MaxBlobSize {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, size, s.config.MaxBlobSize)
	}

	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	e := &entry{
		meta: StoredMedia{
			ID:        uuid.NewString(),
			MimeType:  mimeType,
			Size:      size,
			CreatedAt: time.Now(),
		},
		data: req.Data,
	}

	s.mu.Lock()
	s.items[e.meta.ID] = e
	s.order = append(s.order, e.meta.ID)
	for len(s.order) > s.config.MaxBlobs {
		evicted := s.order[0]
		s.order = s.order[1:]
		delete(s.items, evicted)
		s.logger.Debug("media evicted", "id", evicted)
	}
	s.mu.Unlock()

	s.logger.Info("media saved", "id", e.meta.ID, "mime_type", mimeType, "size", size)
	meta := e.meta
	return &meta, nil
}

// Get は ID のデータとメタデータを返します。
func (s *MemoryStore) Get(_ context.Context, id string) ([]byte, *StoredMedia, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.items[id]
	if !ok {
		return nil, nil, ErrNotFound
	}
	meta := e.meta
	return e.data, &meta, nil
}

// URL はブラウザから解決できるメディアの URL を返します。
func (s *MemoryStore) URL(id string) string {
	return s.config.BaseURL + "/" + id
}
