package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Backend abstracts config storage so tests can substitute an in-memory map.
type Backend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}

// fileBackend stores config as a flat JSON object keyed by dotted names.
type fileBackend struct {
	path string
}

func newFileBackend(path string) *fileBackend {
	return &fileBackend{path: path}
}

func (b *fileBackend) load() (map[string]any, error) {
	data, err := os.ReadFile(b.path)
	if os.IsNotExist(err) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", b.path, err)
	}
	return m, nil
}

func (b *fileBackend) save(m map[string]any) error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(b.path, data, 0o600)
}

func (b *fileBackend) GetString(key string) (string, bool, error) {
	m, err := b.load()
	if err != nil {
		return "", false, err
	}
	v, ok := m[key]
	if !ok {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", false, fmt.Errorf("config key %q is not a string", key)
	}
	return s, true, nil
}

func (b *fileBackend) GetInt(key string) (int, bool, error) {
	m, err := b.load()
	if err != nil {
		return 0, false, err
	}
	v, ok := m[key]
	if !ok {
		return 0, false, nil
	}
	f, ok := v.(float64)
	if !ok {
		return 0, false, fmt.Errorf("config key %q is not a number", key)
	}
	return int(f), true, nil
}

func (b *fileBackend) SetString(key, val string) error {
	m, err := b.load()
	if err != nil {
		return err
	}
	m[key] = val
	return b.save(m)
}

func (b *fileBackend) SetInt(key string, val int) error {
	m, err := b.load()
	if err != nil {
		return err
	}
	m[key] = val
	return b.save(m)
}

func (b *fileBackend) Delete(key string) error {
	m, err := b.load()
	if err != nil {
		return err
	}
	delete(m, key)
	return b.save(m)
}
