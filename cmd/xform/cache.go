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
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/afero"

	"github.com/upbound/xform/internal/config"
	"github.com/upbound/xform/internal/workspace"
)

type cacheCmd struct {
	Ls      lsCmd      `cmd:"" help:"List committed workspaces in the store."`
	Clean   cleanCmd   `cmd:"" help:"Remove all workspaces from the store."`
	SetRoot setRootCmd `cmd:"" name:"set-root" help:"Persist an alternate store location."`
}

// openStore resolves the shared store, honoring a cache root override from
// the config file.
func openStore() (*workspace.Immutable, error) {
	conf, err := config.Load(afero.NewOsFs(), os.UserHomeDir)
	if err != nil {
		return nil, err
	}
	opts := []workspace.ImmutableOption{}
	if conf.Cache.Root != "" {
		opts = append(opts, workspace.WithRoot(conf.Cache.Root))
	}
	return workspace.NewImmutable(opts...)
}

type lsCmd struct{}

// Run executes the ls command.
func (c *lsCmd) Run() error {
	store, err := openStore()
	if err != nil {
		return err
	}
	ids, err := store.Entries()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		pterm.Println("No workspaces in " + store.Root())
		return nil
	}
	data := pterm.TableData{{"IDENTITY"}}
	for _, id := range ids {
		data = append(data, []string{id})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

type cleanCmd struct{}

// Run executes the clean command.
func (c *cleanCmd) Run() error {
	store, err := openStore()
	if err != nil {
		return err
	}
	if err := store.Clean(); err != nil {
		return err
	}
	pterm.Success.Println("Removed all workspaces from " + store.Root())
	return nil
}

type setRootCmd struct {
	Path string `arg:"" help:"Store location; relative paths resolve against the home directory."`
}

// Run executes the set-root command.
func (c *setRootCmd) Run() error {
	fs := afero.NewOsFs()
	conf, err := config.Load(fs, os.UserHomeDir)
	if err != nil {
		return err
	}
	conf.Cache.Root = c.Path
	if err := config.Save(fs, os.UserHomeDir, conf); err != nil {
		return err
	}
	pterm.Success.Println("Workspace store root set to " + c.Path)
	return nil
}
