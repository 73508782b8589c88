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

package execution

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	v1 "github.com/google/go-containerregistry/pkg/v1"

	"github.com/crossplane/crossplane-runtime/pkg/errors"
	"github.com/crossplane/crossplane-runtime/pkg/logging"

	"github.com/upbound/xform/internal/snapshot"
)

const defaultIdentityCacheSize = 512

const (
	errIdentify        = "cannot identify unit of work"
	errLocateWorkspace = "cannot locate workspace"
	errRestoreOutput   = "cannot restore recorded outputs"
	errFmtProperty     = "cannot resolve input property %q"
	errFmtFileProperty = "cannot fingerprint file input property %q"
)

// An Engine drives units of work through the identify, cache-lookup, and
// execute lifecycle. Many units may be submitted concurrently from worker
// threads; the engine guarantees at most one concurrent execution per
// identity.
type Engine struct {
	log  logging.Logger
	snap *snapshot.Snapshotter
	ids  *lru.Cache[string, Result]

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// An EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger defines the logger the engine reports to.
func WithLogger(log logging.Logger) EngineOption {
	return func(e *Engine) {
		e.log = log
	}
}

// WithSnapshotter defines the snapshotter used to fingerprint file inputs.
func WithSnapshotter(s *snapshot.Snapshotter) EngineOption {
	return func(e *Engine) {
		e.snap = s
	}
}

// NewEngine constructs an Engine.
func NewEngine(opts ...EngineOption) (*Engine, error) {
	ids, err := lru.New[string, Result](defaultIdentityCacheSize)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		log:   logging.NewNopLogger(),
		snap:  snapshot.New(),
		ids:   ids,
		locks: make(map[string]*sync.Mutex),
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// A Deferred is the two-state outcome of a submission: a result that was
// already available, or a pending execution the caller must run. Callers can
// distinguish the two without forcing execution.
type Deferred struct {
	result *Result
	run    func(ctx context.Context) (Result, error)
}

// Completed returns the already-available result, if there is one.
func (d *Deferred) Completed() (Result, bool) {
	if d.result == nil {
		return Result{}, false
	}
	return *d.result, true
}

// Run forces the pending execution. Calling Run on a completed Deferred
// returns the recorded result.
func (d *Deferred) Run(ctx context.Context) (Result, error) {
	if d.result != nil {
		return *d.result, nil
	}
	return d.run(ctx)
}

// Submit computes the unit's identity and resolves it against the in-memory
// identity cache and the provider's workspace store. The returned Deferred is
// completed on a hit; otherwise it encapsulates the execution.
func (e *Engine) Submit(_ context.Context, unit UnitOfWork, ws WorkspaceProvider) (*Deferred, error) {
	c := newCollector(e.snap)
	unit.VisitIdentityInputs(c)
	if c.err != nil {
		return nil, c.err
	}

	id, err := unit.Identify(c.values, c.files)
	if err != nil {
		return nil, errors.Wrap(err, errIdentify)
	}
	uid := id.UniqueID()

	if r, ok := e.ids.Get(uid); ok {
		e.log.Debug("Reusing in-memory result", "unit", unit.DisplayName(), "identity", uid)
		return &Deferred{result: &r}, nil
	}

	// Across-build reuse is only permitted for cacheable units. Non-cacheable
	// units still execute into a workspace and record their outputs.
	if unit.ShouldDisableCaching() == nil {
		dir, ok, err := ws.Locate(uid)
		if err != nil {
			return nil, errors.Wrap(err, errLocateWorkspace)
		}
		if ok {
			r, err := unit.LoadRestoredOutput(dir)
			if err != nil {
				return nil, errors.Wrap(err, errRestoreOutput)
			}
			e.log.Debug("Restored result from workspace", "unit", unit.DisplayName(), "identity", uid, "workspace", dir)
			e.ids.Add(uid, r)
			return &Deferred{result: &r}, nil
		}
	}

	return &Deferred{run: func(ctx context.Context) (Result, error) {
		return e.execute(ctx, unit, ws, uid)
	}}, nil
}

func (e *Engine) execute(ctx context.Context, unit UnitOfWork, ws WorkspaceProvider, uid string) (Result, error) {
	l := e.identityLock(uid)
	l.Lock()
	defer l.Unlock()

	// Another worker may have produced this identity while we waited.
	if r, ok := e.ids.Get(uid); ok {
		return r, nil
	}

	w, err := ws.Allocate(uid)
	if err != nil {
		return Result{}, err
	}

	if _, err := unit.Execute(ctx, Request{Workspace: w.Dir()}); err != nil {
		_ = w.Discard()
		return Result{}, err
	}

	dir, err := w.Commit()
	if err != nil {
		return Result{}, err
	}

	// Re-reading the recorded outcome from its final location keeps results
	// independent of where the workspace was staged.
	r, err := unit.LoadRestoredOutput(dir)
	if err != nil {
		return Result{}, errors.Wrap(err, errRestoreOutput)
	}
	e.ids.Add(uid, r)
	e.log.Debug("Executed unit of work", "unit", unit.DisplayName(), "identity", uid, "workspace", dir)
	return r, nil
}

func (e *Engine) identityLock(uid string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[uid]
	if !ok {
		l = &sync.Mutex{}
		e.locks[uid] = l
	}
	return l
}

// A collector is the InputVisitor the engine fingerprints identity inputs
// with. Suppliers are forced as they are declared.
type collector struct {
	snap   *snapshot.Snapshotter
	values map[string]snapshot.Snapshot
	files  map[string]v1.Hash
	err    error
}

func newCollector(s *snapshot.Snapshotter) *collector {
	return &collector{
		snap:   s,
		values: make(map[string]snapshot.Snapshot),
		files:  make(map[string]v1.Hash),
	}
}

func (c *collector) InputProperty(name string, value ValueSupplier) {
	if c.err != nil {
		return
	}
	s, err := value()
	if err != nil {
		c.err = errors.Wrapf(err, errFmtProperty, name)
		return
	}
	c.values[name] = s
}

func (c *collector) InputFileProperty(name string, _ FilePropertyKind, norm snapshot.Normalizer, sens snapshot.DirectorySensitivity, files FileSupplier) {
	if c.err != nil {
		return
	}
	paths, err := files()
	if err != nil {
		c.err = errors.Wrapf(err, errFmtFileProperty, name)
		return
	}
	h, err := c.snap.Fingerprinter(norm, sens).Fingerprint(paths)
	if err != nil {
		c.err = errors.Wrapf(err, errFmtFileProperty, name)
		return
	}
	c.files[name] = h
}
