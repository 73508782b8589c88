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
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"

	v1 "github.com/google/go-containerregistry/pkg/v1"

	"github.com/upbound/xform/internal/execution"
	"github.com/upbound/xform/internal/operations"
	"github.com/upbound/xform/internal/snapshot"
)

// testTransformer is a configurable Transformer for tests.
type testTransformer struct {
	name        string
	impl        v1.Hash
	secondary   v1.Hash
	cacheable   bool
	incremental bool
	norm        snapshot.Normalizer
	sens        snapshot.DirectorySensitivity
	depsNorm    snapshot.Normalizer
	depsSens    snapshot.DirectorySensitivity
	fn          func(ctx context.Context, input, outputDir string, deps Dependencies, changes *execution.InputChanges) ([]string, error)
}

func newTestTransformer() *testTransformer {
	return &testTransformer{
		name:      "Unzip",
		impl:      v1.Hash{Algorithm: "sha256", Hex: "11"},
		secondary: v1.Hash{Algorithm: "sha256", Hex: "aa"},
		cacheable: true,
		norm:      snapshot.AbsolutePath,
		sens:      snapshot.DirectoryDefault,
		depsNorm:  snapshot.AbsolutePath,
		depsSens:  snapshot.DirectoryDefault,
		fn: func(_ context.Context, _, _ string, _ Dependencies, _ *execution.InputChanges) ([]string, error) {
			return nil, nil
		},
	}
}

func (t *testTransformer) DisplayName() string           { return t.name }
func (t *testTransformer) ImplementationHash() v1.Hash   { return t.impl }
func (t *testTransformer) SecondaryInputHash() v1.Hash   { return t.secondary }
func (t *testTransformer) Cacheable() bool               { return t.cacheable }
func (t *testTransformer) RequiresInputChanges() bool    { return t.incremental }

func (t *testTransformer) InputArtifactNormalizer() snapshot.Normalizer {
	return t.norm
}

func (t *testTransformer) InputArtifactDirectorySensitivity() snapshot.DirectorySensitivity {
	return t.sens
}

func (t *testTransformer) DependenciesNormalizer() snapshot.Normalizer {
	return t.depsNorm
}

func (t *testTransformer) DependenciesDirectorySensitivity() snapshot.DirectorySensitivity {
	return t.depsSens
}

func (t *testTransformer) Transform(ctx context.Context, input, outputDir string, deps Dependencies, changes *execution.InputChanges) ([]string, error) {
	return t.fn(ctx, input, outputDir, deps, changes)
}

// writesOutput configures the transformer to write a single file under the
// output directory and return it.
func (t *testTransformer) writesOutput(fs afero.Fs, name string) *testTransformer {
	t.fn = func(_ context.Context, _, outputDir string, _ Dependencies, _ *execution.InputChanges) ([]string, error) {
		out := filepath.Join(outputDir, name)
		if err := afero.WriteFile(fs, out, []byte("transformed"), 0644); err != nil {
			return nil, err
		}
		return []string{out}, nil
	}
	return t
}

// testEnv bundles the collaborators an execution unit needs.
type testEnv struct {
	fs   afero.Fs
	snap *snapshot.Snapshotter
	ops  *operations.Runner
}

func newTestEnv(t *testing.T, files map[string]string) testEnv {
	t.Helper()
	fs := afero.NewMemMapFs()
	for p, c := range files {
		if err := afero.WriteFile(fs, p, []byte(c), 0644); err != nil {
			t.Fatalf("writing %s: %v", p, err)
		}
	}
	return testEnv{
		fs:   fs,
		snap: snapshot.New(snapshot.WithFS(fs)),
		ops:  operations.NewRunner(),
	}
}
