// Copyright 2023 Upbound Inc
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/crossplane/crossplane-runtime/pkg/errors"
)

// Location of the xform config file.
const (
	ConfigDir  = ".xform"
	ConfigFile = "config.json"

	// CacheDir is the default shared workspace store location, relative to
	// the config directory.
	CacheDir = "cache"
)

const (
	errReadConfig  = "cannot read config file"
	errParseConfig = "cannot parse config file"
	errWriteConfig = "cannot write config file"
)

// HomeDirFn indicates the location of a user's home directory.
type HomeDirFn func() (string, error)

// Config is the format of the xform configuration file.
type Config struct {
	Cache Cache `json:"cache"`
}

// Cache contains configuration for the shared transform workspace store.
type Cache struct {
	// Root overrides the location of the shared workspace store. Relative
	// paths are resolved against the user's home directory.
	Root string `json:"root,omitempty"`
}

// Load reads the config file under the supplied home directory. A missing or
// empty file yields the zero Config.
func Load(fs afero.Fs, home HomeDirFn) (*Config, error) {
	p, err := location(home)
	if err != nil {
		return nil, err
	}
	b, err := afero.ReadFile(fs, p)
	if os.IsNotExist(err) {
		return &Config{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errReadConfig)
	}
	conf := &Config{}
	if len(b) == 0 {
		return conf, nil
	}
	if err := json.Unmarshal(b, conf); err != nil {
		return nil, errors.Wrap(err, errParseConfig)
	}
	return conf, nil
}

// Save writes the config file under the supplied home directory, creating
// the config directory if it does not exist yet.
func Save(fs afero.Fs, home HomeDirFn, c *Config) error {
	p, err := location(home)
	if err != nil {
		return err
	}
	b, err := json.Marshal(c)
	if err != nil {
		return errors.Wrap(err, errWriteConfig)
	}
	if err := fs.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return errors.Wrap(err, errWriteConfig)
	}
	return errors.Wrap(afero.WriteFile(fs, p, b, 0600), errWriteConfig)
}

func location(home HomeDirFn) (string, error) {
	h, err := home()
	if err != nil {
		return "", err
	}
	return filepath.Join(h, ConfigDir, ConfigFile), nil
}
