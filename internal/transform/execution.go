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
	"time"

	"github.com/spf13/afero"

	v1 "github.com/google/go-containerregistry/pkg/v1"

	"github.com/crossplane/crossplane-runtime/pkg/errors"

	"github.com/upbound/xform/internal/execution"
	"github.com/upbound/xform/internal/hasher"
	"github.com/upbound/xform/internal/operations"
	"github.com/upbound/xform/internal/snapshot"
	"github.com/upbound/xform/internal/workspace"
)

// Identity-input and output property names. These are part of the external
// contract: fingerprints are keyed on them, so renaming one invalidates
// every cache entry ever written.
const (
	PropInputArtifact             = "inputArtifact"
	PropInputArtifactPath         = "inputArtifactPath"
	PropInputArtifactSnapshot     = "inputArtifactSnapshot"
	PropInputArtifactDependencies = "inputArtifactDependencies"
	PropInputPropertiesHash       = "inputPropertiesHash"
	PropOutputDirectory           = "outputDirectory"
	PropResultsFile               = "resultsFile"
)

// CachingDisabledMessage is reported for transformers that opted out of
// caching.
const CachingDisabledMessage = "Caching not enabled."

const (
	errFmtMissingProperty = "identity input %q was not fingerprinted"
)

// baseExecution implements the unit-of-work contract shared by the immutable
// and mutable execution variants: input and output declaration, execution
// within an operation span, and outcome recording.
type baseExecution struct {
	transformer Transformer
	input       string
	deps        Dependencies
	subject     Subject

	fs    afero.Fs
	snap  *snapshot.Snapshotter
	ops   *operations.Runner
	start time.Time
}

func newBaseExecution(t Transformer, input string, deps Dependencies, subject Subject, fs afero.Fs, snap *snapshot.Snapshotter, ops *operations.Runner) baseExecution {
	if deps == nil {
		deps = EmptyDependencies()
	}
	return baseExecution{
		transformer: t,
		input:       input,
		deps:        deps,
		subject:     subject,
		fs:          fs,
		snap:        snap,
		ops:         ops,
		start:       time.Now(),
	}
}

// DisplayName names the unit after the transformer and its input.
func (e *baseExecution) DisplayName() string {
	return e.transformer.DisplayName() + " " + filepath.Base(e.input)
}

// visitBaseIdentityInputs declares the identity inputs common to both
// variants: the combined input properties hash and the dependencies
// fingerprint.
func (e *baseExecution) visitBaseIdentityInputs(v execution.InputVisitor) {
	v.InputProperty(PropInputPropertiesHash, func() (snapshot.Snapshot, error) {
		h := hasher.New()
		h.PutHash(e.transformer.ImplementationHash())
		h.PutHash(e.transformer.SecondaryInputHash())
		return snapshot.HashSnapshot(h.Sum()), nil
	})
	v.InputFileProperty(PropInputArtifactDependencies,
		execution.NonIncremental,
		e.transformer.DependenciesNormalizer(),
		e.transformer.DependenciesDirectorySensitivity(),
		func() ([]string, error) {
			files, err := e.deps.Files()
			if err != nil {
				return nil, err
			}
			if files == nil {
				files = []string{}
			}
			return files, nil
		})
}

// VisitRegularInputs declares the input artifact itself, which does not
// participate in identity.
func (e *baseExecution) VisitRegularInputs(v execution.InputVisitor) {
	kind := execution.NonIncremental
	if e.transformer.RequiresInputChanges() {
		kind = execution.Incremental
	}
	v.InputFileProperty(PropInputArtifact,
		kind,
		e.transformer.InputArtifactNormalizer(),
		e.transformer.InputArtifactDirectorySensitivity(),
		func() ([]string, error) {
			return []string{e.input}, nil
		})
}

// VisitOutputs declares the output directory and the results file.
func (e *baseExecution) VisitOutputs(ws string, v execution.OutputVisitor) {
	v.OutputDirectory(PropOutputDirectory, filepath.Join(ws, workspace.OutputDir))
	v.OutputFile(PropResultsFile, filepath.Join(ws, workspace.ResultsFile))
}

// Execute invokes the transformer inside a named operation span and records
// its outputs in the workspace manifest. The manifest is only written when
// the transformer succeeds.
func (e *baseExecution) Execute(ctx context.Context, req execution.Request) (execution.Result, error) {
	outDir := filepath.Join(req.Workspace, workspace.OutputDir)
	var outputs []string
	err := e.ops.Run(ctx, e.DisplayName(), func(ctx context.Context) error {
		files, err := e.transformer.Transform(ctx, e.input, outDir, e.deps, req.Changes)
		if err != nil {
			return err
		}
		if err := workspace.WriteResults(e.fs, req.Workspace, e.input, files); err != nil {
			return err
		}
		outputs = files
		return nil
	})
	if err != nil {
		return execution.Result{}, err
	}
	return execution.Result{Workspace: req.Workspace, Outputs: outputs}, nil
}

// LoadRestoredOutput decodes the outcome recorded in the supplied workspace.
func (e *baseExecution) LoadRestoredOutput(ws string) (execution.Result, error) {
	outputs, err := workspace.ReadResults(e.fs, ws, e.input)
	if err != nil {
		return execution.Result{}, err
	}
	return execution.Result{Workspace: ws, Outputs: outputs}, nil
}

// ShouldDisableCaching disables across-build reuse for transformers that are
// not cacheable.
func (e *baseExecution) ShouldDisableCaching() *execution.CachingDisabledReason {
	if !e.transformer.Cacheable() {
		return &execution.CachingDisabledReason{
			Category: execution.CategoryNotCacheable,
			Message:  CachingDisabledMessage,
		}
	}
	return nil
}

// ChangeTracking advertises incremental parameters only when the transformer
// asked for input changes.
func (e *baseExecution) ChangeTracking() execution.ChangeTracking {
	if e.transformer.RequiresInputChanges() {
		return execution.TrackIncrementalParameters
	}
	return execution.TrackNone
}

// Timeout is absent; transforms run to completion.
func (e *baseExecution) Timeout() (time.Duration, bool) {
	return 0, false
}

// MarkExecutionTime returns the wall-clock time since the unit was
// constructed.
func (e *baseExecution) MarkExecutionTime() time.Duration {
	return time.Since(e.start)
}

func secondarySnapshot(values map[string]snapshot.Snapshot) (snapshot.HashSnapshot, error) {
	s, ok := values[PropInputPropertiesHash].(snapshot.HashSnapshot)
	if !ok {
		return snapshot.HashSnapshot{}, errors.Errorf(errFmtMissingProperty, PropInputPropertiesHash)
	}
	return s, nil
}

func dependenciesHash(files map[string]v1.Hash) (v1.Hash, error) {
	h, ok := files[PropInputArtifactDependencies]
	if !ok {
		return v1.Hash{}, errors.Errorf(errFmtMissingProperty, PropInputArtifactDependencies)
	}
	return h, nil
}
