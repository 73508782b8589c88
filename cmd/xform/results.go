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

package main

import (
	"github.com/pterm/pterm"
	"github.com/spf13/afero"

	"github.com/upbound/xform/internal/workspace"
)

type resultsCmd struct {
	Show showCmd `cmd:"" help:"Decode a workspace's recorded outputs."`
}

type showCmd struct {
	Workspace     string `arg:"" help:"Workspace directory to decode."`
	InputArtifact string `arg:"" help:"Input artifact the workspace's transform consumed."`
}

// Run executes the show command.
func (c *showCmd) Run() error {
	outputs, err := workspace.ReadResults(afero.NewOsFs(), c.Workspace, c.InputArtifact)
	if err != nil {
		return err
	}
	for _, o := range outputs {
		pterm.Println(o)
	}
	return nil
}
