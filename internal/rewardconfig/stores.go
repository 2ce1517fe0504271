package rewardconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"reward-ledger/internal/models"
)

// FileStore reads the configuration from a YAML document on every Load
type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

func (s *FileStore) Load(ctx context.Context) (*HalvingConfig, error) {
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoConfig, s.Path)
		}
		return nil, fmt.Errorf("failed to read reward config: %w", err)
	}

	var cfg HalvingConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse reward config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid reward config %s: %w", s.Path, err)
	}
	return &cfg, nil
}

// DBStore reads the newest configuration document from the database
type DBStore struct {
	db *gorm.DB
}

func NewDBStore(db *gorm.DB) *DBStore {
	return &DBStore{db: db}
}

func (s *DBStore) Load(ctx context.Context) (*HalvingConfig, error) {
	var doc models.RewardConfigDocument
	err := s.db.WithContext(ctx).Order("created_at DESC").Order("id DESC").First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoConfig
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load reward config document: %w", err)
	}

	var cfg HalvingConfig
	if err := json.Unmarshal([]byte(doc.Document), &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode reward config document %d: %w", doc.ID, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid reward config document %d: %w", doc.ID, err)
	}
	return &cfg, nil
}

// Save appends a new configuration version
func (s *DBStore) Save(ctx context.Context, cfg *HalvingConfig, createdBy string) (*models.RewardConfigDocument, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode reward config: %w", err)
	}
	doc := &models.RewardConfigDocument{
		Document:  string(raw),
		CreatedBy: createdBy,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(doc).Error; err != nil {
		return nil, fmt.Errorf("failed to save reward config: %w", err)
	}
	return doc, nil
}
