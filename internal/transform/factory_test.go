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
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"

	"github.com/crossplane/crossplane-runtime/pkg/errors"

	"github.com/upbound/xform/internal/events"
	"github.com/upbound/xform/internal/execution"
	"github.com/upbound/xform/internal/snapshot"
	"github.com/upbound/xform/internal/workspace"
)

var externalSubject = Subject{Component: ComponentIdentifier{Module: "com.example:lib:1.0"}}

// countingListener counts before/after event deliveries.
type countingListener struct {
	mu     sync.Mutex
	before int
	after  int
}

func (l *countingListener) BeforeTransform(events.Invocation) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.before++
}

func (l *countingListener) AfterTransform(events.Invocation) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.after++
}

func (l *countingListener) counts() (int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.before, l.after
}

// newTestFactory wires a factory over the supplied filesystem, standing in
// for one build's engine. A fresh factory over the same filesystem stands in
// for a later build.
func newTestFactory(t *testing.T, fs afero.Fs, l events.Listener) *Factory {
	t.Helper()
	store, err := workspace.NewImmutable(
		workspace.WithFS(fs),
		workspace.WithRoot("/cache"),
		workspace.WithHomeDirFn(func() (string, error) { return "/", nil }),
	)
	if err != nil {
		t.Fatalf("NewImmutable(...): %v", err)
	}
	bus := events.NewBus()
	if l != nil {
		bus.Register(l)
	}
	f, err := NewFactory(
		WithFS(fs),
		WithImmutableStore(store),
		WithBus(bus),
		WithSnapshotter(snapshot.New(snapshot.WithFS(fs))),
	)
	if err != nil {
		t.Fatalf("NewFactory(...): %v", err)
	}
	return f
}

func TestCreateInvocationColdCache(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, testInputArtifact, []byte("jar"), 0644); err != nil {
		t.Fatalf("writing input: %v", err)
	}
	l := &countingListener{}
	f := newTestFactory(t, fs, l)
	tr := newTestTransformer().writesOutput(fs, "lib.class")

	inv, err := f.CreateInvocation(context.Background(), tr, testInputArtifact, EmptyDependencies(), externalSubject)
	if err != nil {
		t.Fatalf("CreateInvocation(...): %v", err)
	}

	if _, ok := inv.Cached(); ok {
		t.Fatal("CreateInvocation(...) returned a cached invocation on a cold cache")
	}
	if b, a := l.counts(); b != 0 || a != 0 {
		t.Fatalf("listener events fired before Invoke: before=%d after=%d", b, a)
	}

	r, err := inv.Invoke(context.Background())
	if err != nil {
		t.Fatalf("Invoke(...): %v", err)
	}

	want := []string{filepath.Join(r.Workspace, workspace.OutputDir, "lib.class")}
	if diff := cmp.Diff(want, r.Outputs); diff != "" {
		t.Errorf("\nInvoke(...): -want outputs, +got outputs:\n%s", diff)
	}

	b, err := afero.ReadFile(fs, filepath.Join(r.Workspace, workspace.ResultsFile))
	if err != nil {
		t.Fatalf("reading manifest: %v", err)
	}
	if diff := cmp.Diff("o/lib.class\n", string(b)); diff != "" {
		t.Errorf("\nInvoke(...): -want manifest, +got manifest:\n%s", diff)
	}

	if before, after := l.counts(); before != 1 || after != 1 {
		t.Errorf("non-cached execution should fire one before/after pair, got before=%d after=%d", before, after)
	}
}

func TestCreateInvocationWarmCache(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, testInputArtifact, []byte("jar"), 0644); err != nil {
		t.Fatalf("writing input: %v", err)
	}
	tr := newTestTransformer().writesOutput(fs, "lib.class")

	// First build executes.
	f1 := newTestFactory(t, fs, nil)
	inv, err := f1.CreateInvocation(context.Background(), tr, testInputArtifact, EmptyDependencies(), externalSubject)
	if err != nil {
		t.Fatalf("CreateInvocation(...): %v", err)
	}
	first, err := inv.Invoke(context.Background())
	if err != nil {
		t.Fatalf("Invoke(...): %v", err)
	}

	// Second build recovers the outcome; listener events fire zero times.
	l := &countingListener{}
	f2 := newTestFactory(t, fs, l)
	inv2, err := f2.CreateInvocation(context.Background(), tr, testInputArtifact, EmptyDependencies(), externalSubject)
	if err != nil {
		t.Fatalf("CreateInvocation(...): %v", err)
	}

	r, ok := inv2.Cached()
	if !ok {
		t.Fatal("CreateInvocation(...) should hit the cache on a second build")
	}
	if diff := cmp.Diff(first, r); diff != "" {
		t.Errorf("\nCached result should match the executed result: -want, +got:\n%s", diff)
	}
	if before, after := l.counts(); before != 0 || after != 0 {
		t.Errorf("cached retrieval should fire no events, got before=%d after=%d", before, after)
	}
}

func TestCreateInvocationContentSensitive(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, testInputArtifact, []byte("jar"), 0644); err != nil {
		t.Fatalf("writing input: %v", err)
	}
	tr := newTestTransformer().writesOutput(fs, "lib.class")

	f1 := newTestFactory(t, fs, nil)
	inv, _ := f1.CreateInvocation(context.Background(), tr, testInputArtifact, EmptyDependencies(), externalSubject)
	if _, err := inv.Invoke(context.Background()); err != nil {
		t.Fatalf("Invoke(...): %v", err)
	}

	// A new build sees different artifact content at the same path; the
	// identity must miss.
	if err := afero.WriteFile(fs, testInputArtifact, []byte("rebuilt"), 0644); err != nil {
		t.Fatalf("rewriting input: %v", err)
	}
	f2 := newTestFactory(t, fs, nil)
	inv2, err := f2.CreateInvocation(context.Background(), tr, testInputArtifact, EmptyDependencies(), externalSubject)
	if err != nil {
		t.Fatalf("CreateInvocation(...): %v", err)
	}
	if _, ok := inv2.Cached(); ok {
		t.Error("CreateInvocation(...) reused a workspace for changed content")
	}
}

func TestCreateInvocationProjectSubject(t *testing.T) {
	fs := afero.NewMemMapFs()
	input := "/ws/proj/build/out/a.o"
	if err := afero.WriteFile(fs, input, []byte("obj"), 0644); err != nil {
		t.Fatalf("writing input: %v", err)
	}
	f := newTestFactory(t, fs, nil)
	tr := newTestTransformer().writesOutput(fs, "a.to")
	subject := Subject{Component: ComponentIdentifier{Project: "/ws/proj"}}

	inv, err := f.CreateInvocation(context.Background(), tr, input, EmptyDependencies(), subject)
	if err != nil {
		t.Fatalf("CreateInvocation(...): %v", err)
	}
	r, err := inv.Invoke(context.Background())
	if err != nil {
		t.Fatalf("Invoke(...): %v", err)
	}

	// A producer-project subject executes in the project's build directory,
	// not the shared store.
	if !strings.HasPrefix(r.Workspace, filepath.Join("/ws/proj", "build", "transforms")) {
		t.Errorf("Invoke(...) workspace = %s, want under the project build dir", r.Workspace)
	}

	// Within the build the outcome is reused without re-execution.
	inv2, err := f.CreateInvocation(context.Background(), tr, input, EmptyDependencies(), subject)
	if err != nil {
		t.Fatalf("CreateInvocation(...): %v", err)
	}
	if _, ok := inv2.Cached(); !ok {
		t.Error("CreateInvocation(...) should reuse a mutable outcome within the build")
	}
}

func TestCreateInvocationNotCacheable(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, testInputArtifact, []byte("jar"), 0644); err != nil {
		t.Fatalf("writing input: %v", err)
	}
	tr := newTestTransformer().writesOutput(fs, "lib.class")
	tr.cacheable = false

	f1 := newTestFactory(t, fs, nil)
	inv, err := f1.CreateInvocation(context.Background(), tr, testInputArtifact, EmptyDependencies(), externalSubject)
	if err != nil {
		t.Fatalf("CreateInvocation(...): %v", err)
	}
	r, err := inv.Invoke(context.Background())
	if err != nil {
		t.Fatalf("Invoke(...): %v", err)
	}

	// Results are still written.
	if ok, _ := afero.Exists(fs, filepath.Join(r.Workspace, workspace.ResultsFile)); !ok {
		t.Error("a non-cacheable execution should still record its outcome")
	}

	// But a later build must not reuse them.
	f2 := newTestFactory(t, fs, nil)
	inv2, err := f2.CreateInvocation(context.Background(), tr, testInputArtifact, EmptyDependencies(), externalSubject)
	if err != nil {
		t.Fatalf("CreateInvocation(...): %v", err)
	}
	if _, ok := inv2.Cached(); ok {
		t.Error("CreateInvocation(...) reused a non-cacheable outcome across builds")
	}
}

func TestCreateInvocationFailure(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, testInputArtifact, []byte("jar"), 0644); err != nil {
		t.Fatalf("writing input: %v", err)
	}
	errBoom := errors.New("boom")
	l := &countingListener{}
	f := newTestFactory(t, fs, l)
	tr := newTestTransformer()
	tr.fn = func(context.Context, string, string, Dependencies, *execution.InputChanges) ([]string, error) {
		return nil, errBoom
	}

	inv, err := f.CreateInvocation(context.Background(), tr, testInputArtifact, EmptyDependencies(), externalSubject)
	if err != nil {
		t.Fatalf("CreateInvocation(...): %v", err)
	}

	_, err = inv.Invoke(context.Background())
	if err == nil {
		t.Fatal("Invoke(...) should surface the transformer failure")
	}

	var te *Error
	if !errors.As(err, &te) {
		t.Fatalf("Invoke(...) error should be a transform Error, got %T", err)
	}
	if !strings.HasPrefix(err.Error(), "Execution failed for ") {
		t.Errorf("Invoke(...) error = %q, want Execution failed prefix", err.Error())
	}
	if !errors.Is(err, errBoom) {
		t.Error("Invoke(...) error should wrap the transformer's failure")
	}

	// The after event fires on failure too.
	if before, after := l.counts(); before != 1 || after != 1 {
		t.Errorf("failed execution should fire one before/after pair, got before=%d after=%d", before, after)
	}

	// Nothing was committed to the store.
	f2 := newTestFactory(t, fs, nil)
	tr2 := newTestTransformer().writesOutput(fs, "lib.class")
	tr2.impl = tr.impl
	inv2, err := f2.CreateInvocation(context.Background(), tr2, testInputArtifact, EmptyDependencies(), externalSubject)
	if err != nil {
		t.Fatalf("CreateInvocation(...): %v", err)
	}
	if _, ok := inv2.Cached(); ok {
		t.Error("a failed execution must not populate the cache")
	}
}

func TestCreateInvocationStrayOutput(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, testInputArtifact, []byte("jar"), 0644); err != nil {
		t.Fatalf("writing input: %v", err)
	}
	l := &countingListener{}
	f := newTestFactory(t, fs, l)
	tr := newTestTransformer()
	tr.fn = func(context.Context, string, string, Dependencies, *execution.InputChanges) ([]string, error) {
		return []string{"/tmp/stray.txt"}, nil
	}

	inv, err := f.CreateInvocation(context.Background(), tr, testInputArtifact, EmptyDependencies(), externalSubject)
	if err != nil {
		t.Fatalf("CreateInvocation(...): %v", err)
	}

	_, err = inv.Invoke(context.Background())
	if err == nil {
		t.Fatal("Invoke(...) should fail on an output outside both roots")
	}
	if !strings.Contains(err.Error(), "Invalid result path: /tmp/stray.txt") {
		t.Errorf("Invoke(...) error = %q, want invalid result path", err.Error())
	}
	if before, after := l.counts(); before != 1 || after != 1 {
		t.Errorf("failed execution should fire one before/after pair, got before=%d after=%d", before, after)
	}
}
