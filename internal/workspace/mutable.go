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

package workspace

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"

	"github.com/crossplane/crossplane-runtime/pkg/errors"

	"github.com/upbound/xform/internal/execution"
)

// transformsDir is where mutable workspaces live inside a project's build
// directory.
const transformsDir = "transforms"

// Mutable stores transform workspaces inside a producer project's build
// directory. Because the producing project can rewrite its outputs during a
// build, entries are only reusable within the build that executed them;
// stale workspaces from prior builds are executed over in place.
type Mutable struct {
	fs   afero.Fs
	root string

	mu       sync.Mutex
	executed map[string]bool
}

// MutableOption represents an option that can be applied to Mutable.
type MutableOption func(*Mutable)

// WithMutableFS defines the filesystem that is configured for Mutable.
func WithMutableFS(fs afero.Fs) MutableOption {
	return func(s *Mutable) {
		s.fs = fs
	}
}

// NewMutable creates a store rooted in the supplied project build directory.
func NewMutable(buildDir string, opts ...MutableOption) *Mutable {
	s := &Mutable{
		fs:       afero.NewOsFs(),
		root:     filepath.Join(buildDir, transformsDir),
		executed: make(map[string]bool),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Root returns the store's root directory.
func (s *Mutable) Root() string {
	return s.root
}

// Locate returns the workspace for the supplied identity only when it was
// executed during this build.
func (s *Mutable) Locate(id string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.executed[id] {
		return "", false, nil
	}
	dir := filepath.Join(s.root, id)
	ok, err := afero.Exists(s.fs, filepath.Join(dir, ResultsFile))
	if err != nil {
		return "", false, err
	}
	return dir, ok, nil
}

// Allocate returns the identity's workspace directory, clearing any outcome
// recorded by a prior build.
func (s *Mutable) Allocate(id string) (execution.Workspace, error) {
	dir := filepath.Join(s.root, id)
	if err := s.fs.RemoveAll(filepath.Join(dir, ResultsFile)); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, errFmtAllocate, id)
	}
	if err := s.fs.MkdirAll(filepath.Join(dir, OutputDir), os.ModePerm); err != nil {
		return nil, errors.Wrapf(err, errFmtAllocate, id)
	}
	return &inPlace{store: s, id: id, dir: dir}, nil
}

// Clean removes all workspaces from the store.
func (s *Mutable) Clean() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.executed = make(map[string]bool)
	return s.fs.RemoveAll(s.root)
}

// inPlace is a workspace that executes directly in its identity location.
type inPlace struct {
	store *Mutable
	id    string
	dir   string
}

func (w *inPlace) Dir() string {
	return w.dir
}

func (w *inPlace) Commit() (string, error) {
	s := w.store
	s.mu.Lock()
	defer s.mu.Unlock()

	s.executed[w.id] = true
	return w.dir, nil
}

func (w *inPlace) Discard() error {
	return w.store.fs.RemoveAll(w.dir)
}
