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

package snapshot

import (
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/spf13/afero"

	v1 "github.com/google/go-containerregistry/pkg/v1"

	"github.com/crossplane/crossplane-runtime/pkg/errors"

	"github.com/upbound/xform/internal/hasher"
)

const (
	errFmtSnapshot    = "cannot snapshot %s"
	errFmtFingerprint = "cannot fingerprint %s"
)

// A Snapshotter produces content snapshots and fingerprints for files and
// directory trees in a thread-safe manner. Snapshots are memoized by path for
// the lifetime of the Snapshotter.
type Snapshotter struct {
	fs afero.Fs

	mu    sync.Mutex
	cache map[string]FileSnapshot
}

// Option configures a Snapshotter.
type Option func(*Snapshotter)

// WithFS defines the filesystem the Snapshotter reads from.
func WithFS(fs afero.Fs) Option {
	return func(s *Snapshotter) {
		s.fs = fs
	}
}

// New constructs a Snapshotter.
func New(opts ...Option) *Snapshotter {
	s := &Snapshotter{
		fs:    afero.NewOsFs(),
		cache: make(map[string]FileSnapshot),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Snapshot captures the current content of the file or directory tree at the
// supplied absolute path.
func (s *Snapshotter) Snapshot(path string) (FileSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap, ok := s.cache[path]; ok {
		return snap, nil
	}

	h := hasher.New()
	if err := s.appendTree(h, path, DirectoryDefault, func(rel string, _ string) string { return rel }); err != nil {
		return FileSnapshot{}, errors.Wrapf(err, errFmtSnapshot, path)
	}
	snap := FileSnapshot{AbsolutePath: path, Hash: h.Sum()}
	s.cache[path] = snap
	return snap, nil
}

// Forget drops any memoized snapshot for the supplied path. Callers use this
// when they know the path has been rewritten within a build.
func (s *Snapshotter) Forget(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, path)
}

// Fingerprinter returns a Fingerprinter bound to the supplied normalization
// policy.
func (s *Snapshotter) Fingerprinter(n Normalizer, d DirectorySensitivity) Fingerprinter {
	return Fingerprinter{snap: s, norm: n, sens: d}
}

// A Fingerprinter computes normalized fingerprints for file collections under
// a fixed normalization policy.
type Fingerprinter struct {
	snap *Snapshotter
	norm Normalizer
	sens DirectorySensitivity
}

// NormalizedPath returns the path component a snapshot contributes to a
// fingerprint under this policy.
func (f Fingerprinter) NormalizedPath(snap FileSnapshot) string {
	switch f.norm {
	case NameOnly:
		return filepath.Base(snap.AbsolutePath)
	case IgnorePath:
		return ""
	default:
		return snap.AbsolutePath
	}
}

// Fingerprint computes a single digest covering the supplied file collection.
// An empty collection produces the digest of zero inputs, which is stable.
func (f Fingerprinter) Fingerprint(paths []string) (v1.Hash, error) {
	sorted := make([]string, len(paths))
	copy(sorted, paths)
	sort.Strings(sorted)

	h := hasher.New()
	for _, p := range sorted {
		if err := f.snap.appendTree(h, p, f.sens, f.normalize); err != nil {
			return v1.Hash{}, errors.Wrapf(err, errFmtFingerprint, p)
		}
	}
	return h.Sum(), nil
}

func (f Fingerprinter) normalize(rel, base string) string {
	switch f.norm {
	case NameOnly:
		return base
	case IgnorePath:
		return ""
	default:
		return rel
	}
}

// appendTree feeds the file or tree at path into h. The pathFn maps each
// entry's path (relative to the walk root, with the root itself mapped to its
// absolute path) and base name to the string that participates in the hash.
func (s *Snapshotter) appendTree(h hasher.Hasher, path string, sens DirectorySensitivity, pathFn func(rel, base string) string) error {
	return afero.Walk(s.fs, path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(path, p)
		if err != nil {
			return err
		}
		if rel == "." {
			rel = p
		}
		if info.IsDir() {
			if sens == IgnoreEmptyDirectories || p == path {
				return nil
			}
			h.PutString(pathFn(filepath.ToSlash(rel), info.Name()) + "/")
			return nil
		}
		h.PutString(pathFn(filepath.ToSlash(rel), info.Name()))
		b, err := afero.ReadFile(s.fs, p)
		if err != nil {
			return err
		}
		h.PutBytes(b)
		return nil
	})
}
