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

package action

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/nixos-infra/grub-install/internal/cli/cmd"
	"github.com/nixos-infra/grub-install/pkg/bootloader/orchestrator"
	"github.com/nixos-infra/grub-install/pkg/sys"
)

// Generate is the action behind the program's only command: build the GRUB
// 2 menu for the configuration and currently-activated system given as the
// two positional arguments, then install it.
func Generate(ctx *cli.Context) error {
	if ctx.Args().Len() != 2 {
		return fmt.Errorf("usage: %s <config-xml-path> <default-system-path>", cmd.AppName)
	}

	if ctx.App.Metadata == nil || ctx.App.Metadata["system"] == nil {
		return fmt.Errorf("error setting up initial configuration")
	}
	s := ctx.App.Metadata["system"].(*sys.System)

	configPath := ctx.Args().Get(0)
	defaultSystemPath := ctx.Args().Get(1)

	o := orchestrator.New(s.FS(), s.Runner(), s.Logger(), ctx.Bool("dry-run"))
	if err := o.Run(ctx.Context, configPath, defaultSystemPath); err != nil {
		s.Logger().Error("failed generating GRUB 2 boot configuration: %v", err)
		return err
	}
	return nil
}
