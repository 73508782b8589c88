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

package workspace

import (
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/crossplane/crossplane-runtime/pkg/errors"
)

// Workspace directory layout. Stable across versions: recorded outcomes are
// restored from these names alone.
const (
	// OutputDir is the directory, relative to a workspace, that transformers
	// write their outputs into.
	OutputDir = "transformed"

	// ResultsFile is the output manifest, relative to a workspace. UTF-8
	// text, one workspace-relative token per line.
	ResultsFile = "results.bin"
)

// Manifest tokens. The output directory and the input artifact are the only
// permitted roots; entries are encoded relative to one of them so that a
// workspace can be relocated.
const (
	outputToken = "o/"
	inputToken  = "i/"
)

const (
	errFmtInvalidResultPath = "Invalid result path: %s"
	errFmtCannotParse       = "Cannot parse result path string: %s"
	errFmtWriteResults      = "cannot write %s"
	errFmtReadResults       = "cannot read %s"
)

// WriteResults encodes the supplied output files into the workspace's
// manifest. Every output must be the workspace's output directory, the input
// artifact, or a descendant of one of those; anything else is a programmer
// error. Ordering is preserved.
func WriteResults(fs afero.Fs, wsDir, inputArtifact string, outputs []string) error {
	outDir := filepath.Join(wsDir, OutputDir)
	var b strings.Builder
	for _, o := range outputs {
		t, err := encodeResult(o, outDir, inputArtifact)
		if err != nil {
			return err
		}
		b.WriteString(t)
		b.WriteString("\n")
	}
	return errors.Wrapf(afero.WriteFile(fs, filepath.Join(wsDir, ResultsFile), []byte(b.String()), 0644), errFmtWriteResults, ResultsFile)
}

// ReadResults decodes the workspace's manifest back into absolute file
// paths, resolving output tokens against the workspace and input tokens
// against the supplied input artifact.
func ReadResults(fs afero.Fs, wsDir, inputArtifact string) ([]string, error) {
	b, err := afero.ReadFile(fs, filepath.Join(wsDir, ResultsFile))
	if err != nil {
		return nil, errors.Wrapf(err, errFmtReadResults, ResultsFile)
	}

	outDir := filepath.Join(wsDir, OutputDir)
	lines := strings.Split(string(b), "\n")
	results := make([]string, 0, len(lines))
	for i, l := range lines {
		// A trailing newline is tolerated but not required.
		if l == "" && i == len(lines)-1 {
			break
		}
		p, err := decodeResult(l, outDir, inputArtifact)
		if err != nil {
			return nil, err
		}
		results = append(results, p)
	}
	return results, nil
}

func encodeResult(path, outDir, inputArtifact string) (string, error) {
	switch {
	case path == outDir:
		return outputToken, nil
	case path == inputArtifact:
		return inputToken, nil
	case strings.HasPrefix(path, outDir+string(filepath.Separator)):
		return outputToken + filepath.ToSlash(strings.TrimPrefix(path, outDir+string(filepath.Separator))), nil
	case strings.HasPrefix(path, inputArtifact+string(filepath.Separator)):
		return inputToken + filepath.ToSlash(strings.TrimPrefix(path, inputArtifact+string(filepath.Separator))), nil
	}
	return "", errors.Errorf(errFmtInvalidResultPath, path)
}

func decodeResult(line, outDir, inputArtifact string) (string, error) {
	switch {
	case line == outputToken:
		return outDir, nil
	case line == inputToken:
		return inputArtifact, nil
	case strings.HasPrefix(line, outputToken):
		return filepath.Join(outDir, filepath.FromSlash(strings.TrimPrefix(line, outputToken))), nil
	case strings.HasPrefix(line, inputToken):
		return filepath.Join(inputArtifact, filepath.FromSlash(strings.TrimPrefix(line, inputToken))), nil
	}
	return "", errors.Errorf(errFmtCannotParse, line)
}
