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
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/crossplane/crossplane-runtime/pkg/errors"
	"github.com/crossplane/crossplane-runtime/pkg/logging"

	"github.com/upbound/xform/internal/config"
	"github.com/upbound/xform/internal/execution"
)

const (
	stagingDir = ".staging"

	errFmtAllocate = "cannot allocate workspace for identity %s"
	errFmtCommit   = "cannot commit workspace for identity %s"
)

// Immutable stores completed transform workspaces in a filesystem-backed,
// identity-addressed store shared across builds, in a thread-safe manner.
// Workspaces are staged aside and only become visible under their identity
// once committed, so the store never exposes a partial entry.
type Immutable struct {
	fs   afero.Fs
	home config.HomeDirFn
	log  logging.Logger
	mu   sync.RWMutex
	root string
	path string
}

// NewImmutable creates a new Immutable store.
func NewImmutable(opts ...ImmutableOption) (*Immutable, error) {
	s := &Immutable{
		fs:   afero.NewOsFs(),
		home: os.UserHomeDir,
		log:  logging.NewNopLogger(),
		path: filepath.Join(config.ConfigDir, config.CacheDir),
	}

	for _, o := range opts {
		o(s)
	}

	home, err := s.home()
	if err != nil {
		return nil, err
	}

	root, err := filepath.Abs(filepath.Join(home, s.path))
	if err != nil {
		return nil, err
	}
	s.root = root
	return s, nil
}

// ImmutableOption represents an option that can be applied to Immutable.
type ImmutableOption func(*Immutable)

// WithFS defines the filesystem that is configured for Immutable.
func WithFS(fs afero.Fs) ImmutableOption {
	return func(s *Immutable) {
		s.fs = fs
	}
}

// WithRoot defines the root of the store.
func WithRoot(root string) ImmutableOption {
	return func(s *Immutable) {
		// in the event ~/cache/dir is passed in trim ~/ to avoid $HOME/~/cache/dir
		s.path = strings.TrimPrefix(root, "~/")
	}
}

// WithHomeDirFn defines how the user's home directory is resolved.
func WithHomeDirFn(fn config.HomeDirFn) ImmutableOption {
	return func(s *Immutable) {
		s.home = fn
	}
}

// WithLogger defines the logger for the store.
func WithLogger(log logging.Logger) ImmutableOption {
	return func(s *Immutable) {
		s.log = log
	}
}

// Root returns the store's root directory.
func (s *Immutable) Root() string {
	return s.root
}

// Locate returns the committed workspace for the supplied identity, if one
// exists with a recorded outcome.
func (s *Immutable) Locate(id string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dir := filepath.Join(s.root, id)
	ok, err := afero.Exists(s.fs, filepath.Join(dir, ResultsFile))
	if err != nil {
		return "", false, err
	}
	return dir, ok, nil
}

// Allocate stages a fresh workspace for the supplied identity. The workspace
// becomes visible to Locate only after Commit.
func (s *Immutable) Allocate(id string) (execution.Workspace, error) {
	dir := filepath.Join(s.root, stagingDir, uuid.NewString())
	if err := s.fs.MkdirAll(filepath.Join(dir, OutputDir), os.ModePerm); err != nil {
		return nil, errors.Wrapf(err, errFmtAllocate, id)
	}
	return &staged{store: s, id: id, dir: dir}, nil
}

// Entries returns the identities of all committed workspaces in the store.
func (s *Immutable) Entries() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos, err := afero.ReadDir(s.fs, s.root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(infos))
	for _, fi := range infos {
		if !fi.IsDir() || fi.Name() == stagingDir {
			continue
		}
		ok, err := afero.Exists(s.fs, filepath.Join(s.root, fi.Name(), ResultsFile))
		if err != nil {
			return nil, err
		}
		if ok {
			ids = append(ids, fi.Name())
		}
	}
	return ids, nil
}

// Clean removes all entries from the store. Returns nil if the directory DNE.
func (s *Immutable) Clean() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.fs.RemoveAll(s.root)
}

// staged is a workspace staged under a temporary name, renamed into its
// identity location on commit.
type staged struct {
	store *Immutable
	id    string
	dir   string
}

func (w *staged) Dir() string {
	return w.dir
}

func (w *staged) Commit() (string, error) {
	s := w.store
	s.mu.Lock()
	defer s.mu.Unlock()

	final := filepath.Join(s.root, w.id)
	ok, err := afero.Exists(s.fs, filepath.Join(final, ResultsFile))
	if err != nil {
		return "", errors.Wrapf(err, errFmtCommit, w.id)
	}
	if ok {
		// Another build committed this identity first; equal identities are
		// eligible to share a workspace.
		_ = s.fs.RemoveAll(w.dir)
		return final, nil
	}

	if err := s.fs.MkdirAll(filepath.Dir(final), os.ModePerm); err != nil {
		return "", errors.Wrapf(err, errFmtCommit, w.id)
	}
	if err := s.fs.Rename(w.dir, final); err != nil {
		// Some filesystems cannot move a tree; copy instead.
		if cerr := copyTree(s.fs, w.dir, final); cerr != nil {
			return "", errors.Wrapf(cerr, errFmtCommit, w.id)
		}
		_ = s.fs.RemoveAll(w.dir)
	}
	s.log.Debug("Committed workspace", "identity", w.id, "workspace", final)
	return final, nil
}

func (w *staged) Discard() error {
	return w.store.fs.RemoveAll(w.dir)
}

func copyTree(fs afero.Fs, src, dst string) error {
	return afero.Walk(fs, src, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return fs.MkdirAll(target, info.Mode())
		}
		b, err := afero.ReadFile(fs, p)
		if err != nil {
			return err
		}
		return afero.WriteFile(fs, target, b, info.Mode())
	})
}
