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
	v1 "github.com/google/go-containerregistry/pkg/v1"

	"github.com/upbound/xform/internal/hasher"
)

// A Normalizer selects which aspects of a file's path contribute to its
// fingerprint.
type Normalizer string

// Supported normalizers.
const (
	// AbsolutePath fingerprints the full path of each file.
	AbsolutePath Normalizer = "absolute-path"
	// NameOnly fingerprints only the base name of each file.
	NameOnly Normalizer = "name-only"
	// IgnorePath fingerprints file contents alone.
	IgnorePath Normalizer = "ignore-path"
)

// DirectorySensitivity describes whether empty directories contribute to a
// tree's fingerprint.
type DirectorySensitivity string

// Supported directory sensitivities.
const (
	DirectoryDefault       DirectorySensitivity = "default"
	IgnoreEmptyDirectories DirectorySensitivity = "ignore-empty-directories"
)

// A Snapshot is an opaque fingerprint component. Snapshots compare by value
// and know how to contribute themselves to a Hasher.
type Snapshot interface {
	AppendToHasher(h hasher.Hasher)
}

// A StringSnapshot fingerprints a plain string value.
type StringSnapshot string

// AppendToHasher writes the string to the supplied hasher.
func (s StringSnapshot) AppendToHasher(h hasher.Hasher) {
	h.PutString(string(s))
}

// A HashSnapshot fingerprints a precomputed digest.
type HashSnapshot v1.Hash

// AppendToHasher writes the digest to the supplied hasher.
func (s HashSnapshot) AppendToHasher(h hasher.Hasher) {
	h.PutHash(v1.Hash(s))
}

// A FileSnapshot captures the location and content digest of a file or
// directory tree at a point in time.
type FileSnapshot struct {
	// AbsolutePath is the host-absolute location that was snapshotted.
	AbsolutePath string

	// Hash is the content digest. For directories it covers the relative
	// path and content of every file in the tree.
	Hash v1.Hash
}
