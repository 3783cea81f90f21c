// Package config loads the YAML document that sizes a heapvm arena: how
// many bytes to give the arena, how many words to reserve for the code
// area, and how many free-list classes to keep (for experimentation — the
// heap package itself fixes K at 32, the reference value).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Config mirrors the shape of compileopts.Options in spirit: a plain
// struct of named knobs, validated once after loading rather than
// scattered through call sites.
type Config struct {
	ArenaBytes      int `yaml:"arena_bytes"`
	CodeWords       int `yaml:"code_words"`
	FreeListClasses int `yaml:"free_list_classes"`
}

// Default returns the configuration used when no file is given: a 64 KiB
// arena with a 64-word code area.
func Default() Config {
	return Config{
		ArenaBytes: 64 * 1024,
		CodeWords:  64,
	}
}

// Load reads and validates a YAML configuration file.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := cfg.Verify(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Verify checks that the arena size is a positive whole number of words
// and that the code area leaves at least one word of it free. It does not
// check that the rest holds both a bitmap and a heap region; SetHeapStart
// in the heap package rejects arenas where it does not.
func (c Config) Verify() error {
	if c.ArenaBytes <= 0 {
		return fmt.Errorf("config: arena_bytes must be positive, got %d", c.ArenaBytes)
	}
	if c.ArenaBytes%4 != 0 {
		return fmt.Errorf("config: arena_bytes must be a multiple of the word size (4), got %d", c.ArenaBytes)
	}
	if c.CodeWords < 0 {
		return fmt.Errorf("config: code_words must not be negative, got %d", c.CodeWords)
	}
	if words := c.ArenaBytes / 4; c.CodeWords >= words {
		return fmt.Errorf("config: code_words (%d) leaves no room in a %d word arena", c.CodeWords, words)
	}
	if c.FreeListClasses < 0 {
		return fmt.Errorf("config: free_list_classes must not be negative, got %d", c.FreeListClasses)
	}
	return nil
}
