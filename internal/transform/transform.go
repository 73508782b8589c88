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

// Package transform implements the artifact-transform execution core: stable
// invocation identities, workspace-backed caching of transformer outcomes,
// and the invocation factory that ties them to the execution engine.
package transform

import (
	"context"
	"fmt"

	v1 "github.com/google/go-containerregistry/pkg/v1"

	"github.com/upbound/xform/internal/execution"
	"github.com/upbound/xform/internal/snapshot"
)

// A Transformer converts one artifact into zero or more artifacts. It is
// opaque user code; the engine interrogates it only through this contract.
type Transformer interface {
	// DisplayName names the transformer for diagnostics.
	DisplayName() string

	// ImplementationHash fingerprints the transformer's implementation.
	ImplementationHash() v1.Hash

	// SecondaryInputHash summarizes the transformer's non-file parameters.
	SecondaryInputHash() v1.Hash

	// InputArtifactNormalizer and InputArtifactDirectorySensitivity describe
	// how the input artifact contributes to fingerprints.
	InputArtifactNormalizer() snapshot.Normalizer
	InputArtifactDirectorySensitivity() snapshot.DirectorySensitivity

	// DependenciesNormalizer and DependenciesDirectorySensitivity describe
	// how the artifact's dependencies contribute to fingerprints.
	DependenciesNormalizer() snapshot.Normalizer
	DependenciesDirectorySensitivity() snapshot.DirectorySensitivity

	// Cacheable reports whether outcomes may be reused across builds.
	Cacheable() bool

	// RequiresInputChanges reports whether the transformer consumes
	// incremental change information.
	RequiresInputChanges() bool

	// Transform converts the input artifact, writing outputs under
	// outputDir, and returns the produced files. changes is nil when no
	// incremental information is available.
	Transform(ctx context.Context, input string, outputDir string, deps Dependencies, changes *execution.InputChanges) ([]string, error)
}

// Dependencies exposes the files an input artifact's transitive dependencies
// resolve to.
type Dependencies interface {
	// Files returns the dependency files, or an empty slice when the
	// artifact has none.
	Files() ([]string, error)
}

// NewDependencies wraps a fixed file list as Dependencies.
func NewDependencies(paths ...string) Dependencies {
	return fileDependencies(paths)
}

// EmptyDependencies returns a Dependencies with no files.
func EmptyDependencies() Dependencies {
	return fileDependencies(nil)
}

type fileDependencies []string

func (d fileDependencies) Files() ([]string, error) {
	return []string(d), nil
}

// A ComponentIdentifier identifies the component an artifact originates
// from: either a local producer project or an external module.
type ComponentIdentifier struct {
	// Project is the path of the producing project, when the artifact is
	// built locally.
	Project string

	// Module holds the external coordinates otherwise.
	Module string
}

// IsProject reports whether the component is a local producer project.
func (c ComponentIdentifier) IsProject() bool {
	return c.Project != ""
}

// String returns the identifier's display form.
func (c ComponentIdentifier) String() string {
	if c.IsProject() {
		return fmt.Sprintf("project %s", c.Project)
	}
	return c.Module
}

// A Subject is the artifact being transformed, as seen by the invocation
// factory: it carries the initial component identifier that selects the
// workspace variant.
type Subject struct {
	// Component is the initial component identifier of the subject.
	Component ComponentIdentifier
}
