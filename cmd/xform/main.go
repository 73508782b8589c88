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
	"fmt"

	"github.com/alecthomas/kong"

	"github.com/upbound/xform/internal/version"
)

type versionFlag bool

// BeforeApply indicates that we want to execute the logic before running any
// commands.
func (v versionFlag) BeforeApply(ctx *kong.Context) error { // nolint:unparam
	fmt.Fprintln(ctx.Stdout, "Version: "+version.GetVersion())
	ctx.Exit(0)
	return nil
}

type cli struct {
	Version versionFlag `short:"v" name:"version" help:"Print version and exit."`

	Cache   cacheCmd   `cmd:"" help:"Interact with the shared transform workspace store."`
	Results resultsCmd `cmd:"" help:"Inspect recorded transform outcomes."`
}

func main() {
	c := cli{}
	ctx := kong.Parse(&c,
		kong.Name("xform"),
		kong.Description("A tool for inspecting artifact-transform workspace stores."),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run())
}
