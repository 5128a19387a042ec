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

// Package orchestrator drives the configuration loader, the path
// resolver, the menu builder, the kernel stager and the install driver
// in the order the boot-config engine requires, owning the run's
// dry-run flag and its shared copied-paths set.
package orchestrator

import (
	"context"
	"os"

	"k8s.io/mount-utils"

	"github.com/nixos-infra/grub-install/pkg/bootloader/config"
	"github.com/nixos-infra/grub-install/pkg/bootloader/install"
	"github.com/nixos-infra/grub-install/pkg/bootloader/kernel"
	"github.com/nixos-infra/grub-install/pkg/bootloader/menu"
	"github.com/nixos-infra/grub-install/pkg/bootloader/pathresolver"
	"github.com/nixos-infra/grub-install/pkg/log"
	"github.com/nixos-infra/grub-install/pkg/sys"
	"github.com/nixos-infra/grub-install/pkg/vfs"
)

// Orchestrator owns the pieces a single invocation shares across every
// stage: the dry-run flag and the copied-paths set consulted by the
// kernel stager and the install driver's obsolete-file sweep.
type Orchestrator struct {
	fs     vfs.FS
	runner sys.Runner
	logger log.Logger
	dryRun bool
}

// New builds an Orchestrator.
func New(fs vfs.FS, runner sys.Runner, logger log.Logger, dryRun bool) *Orchestrator {
	return &Orchestrator{fs: fs, runner: runner, logger: logger, dryRun: dryRun}
}

// Run loads configPath, resolves the boot/store path pairs for
// defaultSystemPath (the currently-activated generation), builds the
// grub.cfg text and hands it to the install driver.
func (o *Orchestrator) Run(ctx context.Context, configPath, defaultSystemPath string) error {
	cfg, err := config.Load(o.fs, configPath)
	if err != nil {
		return err
	}

	if cfg.Path != "" {
		_ = os.Setenv("PATH", cfg.Path)
	}

	resolved, err := pathresolver.Resolve(o.fs, mount.New(""), pathresolver.OSDeviceStatter(), cfg)
	if err != nil {
		return err
	}

	o.logger.Info("updating GRUB 2 menu...")

	copied := map[string]struct{}{}
	stager := kernel.NewStager(o.fs, o.runner, o.logger, cfg, resolved, copied, o.dryRun)
	builder := menu.NewBuilder(o.fs, o.logger, cfg, resolved, stager, defaultSystemPath, o.dryRun)

	menuText, err := builder.Build(ctx)
	if err != nil {
		return err
	}

	driver := install.NewDriver(o.fs, o.runner, o.logger, cfg, stager, o.dryRun)
	return driver.Install(ctx, menuText)
}
