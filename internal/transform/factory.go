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
	"sync"

	"github.com/spf13/afero"

	"github.com/crossplane/crossplane-runtime/pkg/errors"
	"github.com/crossplane/crossplane-runtime/pkg/logging"

	"github.com/upbound/xform/internal/events"
	"github.com/upbound/xform/internal/execution"
	"github.com/upbound/xform/internal/operations"
	"github.com/upbound/xform/internal/snapshot"
	"github.com/upbound/xform/internal/workspace"
)

const errNoImmutableStore = "no immutable workspace store configured"

// A ProjectWorkspaces resolves the workspace store owned by a producer
// project.
type ProjectWorkspaces func(project string) (*workspace.Mutable, error)

// A Factory creates transform invocations. It dispatches on the subject's
// producer project to pick the workspace variant, submits the matching
// execution unit to the engine, and wraps the outcome in a two-state
// invocation handle.
type Factory struct {
	engine    *execution.Engine
	immutable *workspace.Immutable
	projects  ProjectWorkspaces
	bus       *events.Bus
	snap      *snapshot.Snapshotter
	ops       *operations.Runner
	fs        afero.Fs
	log       logging.Logger

	mu       sync.Mutex
	projectWS map[string]*workspace.Mutable
}

// A FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithFS defines the filesystem invocations read and write through.
func WithFS(fs afero.Fs) FactoryOption {
	return func(f *Factory) {
		f.fs = fs
	}
}

// WithImmutableStore defines the shared store for external artifacts.
func WithImmutableStore(s *workspace.Immutable) FactoryOption {
	return func(f *Factory) {
		f.immutable = s
	}
}

// WithProjectWorkspaces defines how producer-project stores are resolved.
func WithProjectWorkspaces(p ProjectWorkspaces) FactoryOption {
	return func(f *Factory) {
		f.projects = p
	}
}

// WithBus defines the listener bus invocation events are delivered to.
func WithBus(b *events.Bus) FactoryOption {
	return func(f *Factory) {
		f.bus = b
	}
}

// WithSnapshotter defines the snapshotter identity inputs are computed with.
func WithSnapshotter(s *snapshot.Snapshotter) FactoryOption {
	return func(f *Factory) {
		f.snap = s
	}
}

// WithLogger defines the factory's logger.
func WithLogger(log logging.Logger) FactoryOption {
	return func(f *Factory) {
		f.log = log
	}
}

// NewFactory constructs a Factory.
func NewFactory(opts ...FactoryOption) (*Factory, error) {
	f := &Factory{
		fs:        afero.NewOsFs(),
		bus:       events.NewBus(),
		log:       logging.NewNopLogger(),
		projectWS: make(map[string]*workspace.Mutable),
	}
	for _, o := range opts {
		o(f)
	}
	if f.snap == nil {
		f.snap = snapshot.New(snapshot.WithFS(f.fs))
	}
	f.ops = operations.NewRunner(operations.WithLogger(f.log))
	if f.projects == nil {
		f.projects = f.defaultProjectWorkspaces
	}
	if f.immutable == nil {
		s, err := workspace.NewImmutable(workspace.WithFS(f.fs), workspace.WithLogger(f.log))
		if err != nil {
			return nil, err
		}
		f.immutable = s
	}
	e, err := execution.NewEngine(execution.WithLogger(f.log), execution.WithSnapshotter(f.snap))
	if err != nil {
		return nil, err
	}
	f.engine = e
	return f, nil
}

// CreateInvocation resolves an invocation of the supplied transformer on the
// supplied input artifact. The handle is cached when the engine recovered a
// prior outcome; otherwise it defers execution, bracketed by listener
// events. Failures surfaced by the engine are remapped to *Error.
func (f *Factory) CreateInvocation(ctx context.Context, t Transformer, inputArtifact string, deps Dependencies, subject Subject) (*Invocation, error) {
	var unit execution.UnitOfWork
	var provider execution.WorkspaceProvider

	if subject.Component.IsProject() {
		ws, err := f.projects(subject.Component.Project)
		if err != nil {
			return nil, NewError(t.DisplayName()+" "+filepath.Base(inputArtifact), err)
		}
		unit = NewMutableExecution(t, inputArtifact, deps, subject, f.fs, f.snap, f.ops)
		provider = ws
	} else {
		if f.immutable == nil {
			return nil, errors.New(errNoImmutableStore)
		}
		unit = NewImmutableExecution(t, inputArtifact, deps, subject, f.fs, f.snap, f.ops)
		provider = f.immutable
	}

	deferred, err := f.engine.Submit(ctx, unit, provider)
	if err != nil {
		return nil, NewError(unit.DisplayName(), err)
	}

	if r, ok := deferred.Completed(); ok {
		f.log.Debug("Reusing cached transform", "unit", unit.DisplayName())
		return CachedInvocation(r), nil
	}

	inv := events.Invocation{Transformer: t.DisplayName(), Subject: subject.Component.String()}
	name := unit.DisplayName()
	return DeferredInvocation(func(ctx context.Context) (execution.Result, error) {
		f.bus.Before(inv)
		defer f.bus.After(inv)
		r, err := deferred.Run(ctx)
		if err != nil {
			return execution.Result{}, NewError(name, err)
		}
		return r, nil
	}), nil
}

// defaultProjectWorkspaces roots each project's store in its build
// directory, memoizing stores so a project's in-build cache is shared.
func (f *Factory) defaultProjectWorkspaces(project string) (*workspace.Mutable, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ws, ok := f.projectWS[project]; ok {
		return ws, nil
	}
	ws := workspace.NewMutable(filepath.Join(project, "build"), workspace.WithMutableFS(f.fs))
	f.projectWS[project] = ws
	return ws, nil
}
