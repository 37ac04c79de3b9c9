// Package config reads the settings file. The file format follows its extension.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

type Driver interface {
	Exists() (bool, error)
	Write(config Config) error
	Read() (Config, error)
}

// NewDriver picks a driver by the extension of filePath.
func NewDriver(filePath string) (Driver, error) {
	switch ext := strings.ToLower(filepath.Ext(filePath)); ext {
	case ".yaml", ".yml":
		return NewYAML(filePath), nil
	case ".toml":
		return NewTOML(filePath), nil
	case ".json":
		return NewJSON(filePath), nil
	default:
		return nil, fmt.Errorf("config %s: unknown format %q", filePath, ext)
	}
}

// NewStore writes the default config when the file does not exist yet.
func NewStore(driver Driver) (Store, error) {
	exists, err := driver.Exists()
	if err != nil {
		return Store{}, err
	}
	if !exists {
		if err := driver.Write(defaultConfig); err != nil {
			return Store{}, err
		}
	}

	return Store{
		driver: driver,
	}, nil
}

type Store struct {
	driver Driver
}

func (s Store) GetConfig() (Config, error) {
	return s.driver.Read()
}

// Load reads the config at filePath, creating it first if needed.
func Load(filePath string) (Config, error) {
	driver, err := NewDriver(filePath)
	if err != nil {
		return Config{}, err
	}

	store, err := NewStore(driver)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", filePath, err)
	}

	cfg, err := store.GetConfig()
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", filePath, err)
	}

	return cfg, nil
}
