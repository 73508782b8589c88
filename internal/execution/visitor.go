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
	"github.com/upbound/xform/internal/snapshot"
)

// A FilePropertyKind describes how a file input participates in change
// detection.
type FilePropertyKind string

// Supported file property kinds.
const (
	// NonIncremental file inputs trigger full re-execution on change.
	NonIncremental FilePropertyKind = "non-incremental"
	// Incremental file inputs have their individual changes reported to the
	// unit of work.
	Incremental FilePropertyKind = "incremental"
)

// A ValueSupplier lazily produces a value snapshot. The engine invokes it
// when, and only if, it fingerprints the declaring property.
type ValueSupplier func() (snapshot.Snapshot, error)

// A FileSupplier lazily produces the file collection backing a file property.
type FileSupplier func() ([]string, error)

// An InputVisitor receives a unit of work's input declarations during
// fingerprinting.
type InputVisitor interface {
	// InputProperty declares a scalar input property.
	InputProperty(name string, value ValueSupplier)

	// InputFileProperty declares a file input property along with the
	// normalization policy its fingerprint is computed under.
	InputFileProperty(name string, kind FilePropertyKind, norm snapshot.Normalizer, sens snapshot.DirectorySensitivity, files FileSupplier)
}

// An OutputVisitor receives a unit of work's output declarations.
type OutputVisitor interface {
	// OutputDirectory declares an output tree rooted at path.
	OutputDirectory(name, path string)

	// OutputFile declares a single-file output at path.
	OutputFile(name, path string)
}
