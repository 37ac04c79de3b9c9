package config

import (
	"encoding/json"
	"errors"
	"io"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/ItsNotGoodName/x-keyremapper/internal/core"
	"gopkg.in/yaml.v3"
)

// readFile decodes filePath, or returns the default config when it is missing.
func readFile(filePath string, decode func(r io.Reader, cfg *Config) error) (Config, error) {
	file, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig, nil
		}
		return Config{}, err
	}
	defer file.Close()

	var cfg Config
	if err := decode(file, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// writeFile encodes into a temporary file and renames it over filePath.
func writeFile(filePath string, cfg Config, encode func(w io.Writer, cfg Config) error) error {
	filePathTmp := filePath + ".tmp"
	file, err := os.OpenFile(filePathTmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}

	if err := encode(file, cfg); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}

	return os.Rename(filePathTmp, filePath)
}

func NewYAML(filePath string) YAML {
	return YAML{
		filePath: filePath,
	}
}

type YAML struct {
	filePath string
}

// Exists implements Driver.
func (y YAML) Exists() (bool, error) {
	return core.FileExists(y.filePath)
}

func (y YAML) Read() (Config, error) {
	return readFile(y.filePath, func(r io.Reader, cfg *Config) error {
		err := yaml.NewDecoder(r).Decode(cfg)
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	})
}

func (y YAML) Write(cfg Config) error {
	return writeFile(y.filePath, cfg, func(w io.Writer, cfg Config) error {
		enc := yaml.NewEncoder(w)
		if err := enc.Encode(cfg); err != nil {
			return err
		}
		return enc.Close()
	})
}

func NewTOML(filePath string) TOML {
	return TOML{
		filePath: filePath,
	}
}

type TOML struct {
	filePath string
}

// Exists implements Driver.
func (t TOML) Exists() (bool, error) {
	return core.FileExists(t.filePath)
}

func (t TOML) Read() (Config, error) {
	return readFile(t.filePath, func(r io.Reader, cfg *Config) error {
		_, err := toml.NewDecoder(r).Decode(cfg)
		return err
	})
}

func (t TOML) Write(cfg Config) error {
	return writeFile(t.filePath, cfg, func(w io.Writer, cfg Config) error {
		return toml.NewEncoder(w).Encode(cfg)
	})
}

func NewJSON(filePath string) JSON {
	return JSON{
		filePath: filePath,
	}
}

type JSON struct {
	filePath string
}

// Exists implements Driver.
func (j JSON) Exists() (bool, error) {
	return core.FileExists(j.filePath)
}

func (j JSON) Read() (Config, error) {
	return readFile(j.filePath, func(r io.Reader, cfg *Config) error {
		return json.NewDecoder(r).Decode(cfg)
	})
}

func (j JSON) Write(cfg Config) error {
	return writeFile(j.filePath, cfg, func(w io.Writer, cfg Config) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	})
}
