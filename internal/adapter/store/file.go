package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/berfenger/surplus2mqtt/internal/core/domain"
	"github.com/berfenger/surplus2mqtt/internal/core/port"
	"gopkg.in/yaml.v3"
)

// FileStore keeps device records in a single file holding a list of
// devices. Files ending in .yaml or .yml are YAML, anything else is JSON.
type FileStore struct {
	Path string
}

var _ port.DeviceStore = (*FileStore)(nil)

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

func (s *FileStore) isYAML() bool {
	ext := strings.ToLower(filepath.Ext(s.Path))
	return ext == ".yaml" || ext == ".yml"
}

// LoadDevices returns no records when the file does not exist yet.
func (s *FileStore) LoadDevices() ([]domain.DeviceRecord, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return []domain.DeviceRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading device file: %w", err)
	}

	var records []domain.DeviceRecord
	if s.isYAML() {
		err = yaml.Unmarshal(data, &records)
	} else if len(strings.TrimSpace(string(data))) > 0 {
		err = json.Unmarshal(data, &records)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing device file %s: %w", s.Path, err)
	}
	if records == nil {
		records = []domain.DeviceRecord{}
	}
	return records, nil
}

// SaveDevices replaces the file atomically.
func (s *FileStore) SaveDevices(records []domain.DeviceRecord) error {
	if records == nil {
		records = []domain.DeviceRecord{}
	}
	var (
		data []byte
		err  error
	)
	if s.isYAML() {
		data, err = yaml.Marshal(records)
	} else {
		data, err = json.MarshalIndent(records, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encoding devices: %w", err)
	}

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating device file directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return fmt.Errorf("replacing device file: %w", err)
	}
	return nil
}
