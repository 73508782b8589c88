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

package operations

import (
	"context"
	"time"

	"github.com/crossplane/crossplane-runtime/pkg/logging"
)

// A Runner executes functions inside named, timed operation spans.
type Runner struct {
	log logging.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger defines the logger spans are reported to.
func WithLogger(log logging.Logger) Option {
	return func(r *Runner) {
		r.log = log
	}
}

// NewRunner constructs a Runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		log: logging.NewNopLogger(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run executes fn inside a span with the supplied display name. The span is
// closed on every exit path and its duration is recorded.
func (r *Runner) Run(ctx context.Context, name string, fn func(context.Context) error) error {
	start := time.Now()
	r.log.Debug("Starting operation", "operation", name)
	err := fn(ctx)
	if err != nil {
		r.log.Debug("Operation failed", "operation", name, "duration", time.Since(start).String(), "error", err)
		return err
	}
	r.log.Debug("Operation completed", "operation", name, "duration", time.Since(start).String())
	return nil
}
