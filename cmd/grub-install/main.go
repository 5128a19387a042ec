/*
Copyright © 2022-2025 SUSE LLC
SPDX-License-Identifier: Apache-2.0

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/nixos-infra/grub-install/internal/cli/action"
	"github.com/nixos-infra/grub-install/internal/cli/cmd"
)

var (
	version   = "v0.0.1"
	gitCommit = ""
)

func main() {
	app := cmd.NewApp()
	app.UsageText = cmd.AppName + " <config-xml-path> <default-system-path>"
	app.Action = action.Generate
	app.Commands = []*cli.Command{
		cmd.NewVersionCommand(printVersion),
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func printVersion(*cli.Context) error {
	commit := gitCommit
	if len(commit) > 7 {
		commit = gitCommit[:7]
	}
	fmt.Printf("%s+g%s\n", version, commit)
	return nil
}
