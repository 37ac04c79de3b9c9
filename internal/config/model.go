package config

import "github.com/ItsNotGoodName/x-keyremapper/internal/filter"

var defaultConfig = Config{
	KeyMap:  "keymap.txt",
	Filters: []filter.Rule{},
	Command: []string{},
	Watch:   false,
}

type Config struct {
	// KeyMap is the key map file, relative to the working directory.
	KeyMap  string        `json:"key_map" yaml:"key_map" toml:"key_map"`
	Filters []filter.Rule `json:"filters" yaml:"filters" toml:"filters"`
	// Command is started and scopes adoption to its windows.
	Command []string `json:"command" yaml:"command" toml:"command"`
	Watch   bool     `json:"watch" yaml:"watch" toml:"watch"`
}
