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

package transform

import (
	v1 "github.com/google/go-containerregistry/pkg/v1"

	"github.com/upbound/xform/internal/hasher"
	"github.com/upbound/xform/internal/snapshot"
)

// An ImmutableIdentity keys invocations whose input artifact comes from an
// external, content-addressed source. Its workspace may be reused across
// builds.
type ImmutableIdentity struct {
	// InputPath is the normalized-path snapshot of the input artifact.
	InputPath snapshot.StringSnapshot

	// InputHash is the raw content snapshot of the input artifact.
	InputHash snapshot.HashSnapshot

	// Secondary is the snapshot of the transformer's input properties hash.
	Secondary snapshot.HashSnapshot

	// DependenciesHash fingerprints the artifact's dependencies.
	DependenciesHash v1.Hash
}

// UniqueID returns a stable hex digest over the identity's fields, in fixed
// order.
func (i ImmutableIdentity) UniqueID() string {
	h := hasher.New()
	i.InputPath.AppendToHasher(h)
	i.InputHash.AppendToHasher(h)
	i.Secondary.AppendToHasher(h)
	h.PutHash(i.DependenciesHash)
	return h.Sum().Hex
}

// A MutableIdentity keys invocations whose input artifact is produced by a
// local project. The producing project can rewrite the artifact during a
// build, so the identity is the artifact's location rather than its content;
// staleness is caught through the regular-inputs fingerprint instead.
type MutableIdentity struct {
	// InputPath is the absolute path of the input artifact.
	InputPath string

	// Secondary is the snapshot of the transformer's input properties hash.
	Secondary snapshot.HashSnapshot

	// DependenciesHash fingerprints the artifact's dependencies.
	DependenciesHash v1.Hash
}

// UniqueID returns a stable hex digest over the identity's fields, in fixed
// order.
func (i MutableIdentity) UniqueID() string {
	h := hasher.New()
	h.PutString(i.InputPath)
	i.Secondary.AppendToHasher(h)
	h.PutHash(i.DependenciesHash)
	return h.Sum().Hex
}
