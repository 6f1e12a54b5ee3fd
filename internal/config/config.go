// Package config loads necessist.toml with BurntSushi/toml (see
// DESIGN.md for why this is the one ungrounded dependency in this
// module).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/necessist/necessist/internal/model"
)

// FileName is the config file's fixed name within a project root.
const FileName = "necessist.toml"

// Load reads <root>/necessist.toml if present, returning the zero Config
// (no error) when the file does not exist — necessist runs fine unconfigured.
func Load(root model.Path) (model.Config, error) {
	path := filepath.Join(string(root), FileName)

	var cfg model.Config

	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return model.Config{}, nil
		}

		return model.Config{}, fmt.Errorf("decode %s: %w", path, err)
	}

	return cfg, nil
}

// Default returns the starter configuration written by `--default-config`
// (spec §6): sample ignored_functions/ignored_methods/ignored_macros
// patterns and the Either disambiguation. ignored_tests and
// walkable_functions are left unset.
func Default() model.Config {
	return model.Config{
		IgnoredFunctions:          []string{"assert*", "console.*"},
		IgnoredMethods:            []string{"unwrap", "clone"},
		IgnoredMacros:             []string{"assert_eq"},
		IgnoredPathDisambiguation: model.DisambiguateEither,
	}
}

// WriteDefault writes the starter config to <root>/necessist.toml,
// refusing to clobber an existing file.
func WriteDefault(root model.Path) error {
	path := filepath.Join(string(root), FileName)

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)

	return enc.Encode(Default())
}
