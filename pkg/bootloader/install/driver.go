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

package install

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/nixos-infra/grub-install/pkg/bootloader/bootcfgerror"
	"github.com/nixos-infra/grub-install/pkg/bootloader/config"
	"github.com/nixos-infra/grub-install/pkg/bootloader/kernel"
	"github.com/nixos-infra/grub-install/pkg/bootloader/state"
	"github.com/nixos-infra/grub-install/pkg/cleanstack"
	"github.com/nixos-infra/grub-install/pkg/log"
	"github.com/nixos-infra/grub-install/pkg/sys"
	"github.com/nixos-infra/grub-install/pkg/vfs"
)

// Driver writes the generated grub.cfg to disk, optionally augments it
// with os-prober output, atomically publishes it, removes obsolete
// kernel files, and runs grub-install for whichever of BIOS/EFI the
// target matrix calls for.
type Driver struct {
	fs        vfs.FS
	runner    sys.Runner
	logger    log.Logger
	cfg       *config.Configuration
	stager    *kernel.Stager
	dryRun    bool
	DryRunOut io.Writer
}

// NewDriver builds a Driver.
func NewDriver(fs vfs.FS, runner sys.Runner, logger log.Logger, cfg *config.Configuration, stager *kernel.Stager, dryRun bool) *Driver {
	return &Driver{fs: fs, runner: runner, logger: logger, cfg: cfg, stager: stager, dryRun: dryRun, DryRunOut: os.Stdout}
}

// Install publishes menuText as grub.cfg and reinstalls the GRUB
// binaries when the reconciled state calls for it.
func (d *Driver) Install(ctx context.Context, menuText string) error {
	matrix, err := DeduceTargetMatrix(d.cfg)
	if err != nil {
		return err
	}

	if d.dryRun {
		fmt.Fprintln(d.DryRunOut, menuText)
		return nil
	}

	grubDir := filepath.Join(d.cfg.BootPath, "grub")
	conf := filepath.Join(grubDir, "grub.cfg")
	tmp := filepath.Join(grubDir, "grub.cfg.tmp")

	if err := vfs.MkdirAll(d.fs, grubDir, vfs.DirPerm); err != nil {
		return bootcfgerror.New(bootcfgerror.FilesystemIO, grubDir, err)
	}
	if err := d.fs.WriteFile(tmp, []byte(menuText), vfs.FilePerm); err != nil {
		return bootcfgerror.New(bootcfgerror.FilesystemIO, tmp, err)
	}

	if err := d.runPrepareConfig(ctx); err != nil {
		return err
	}
	if err := d.runOsProber(ctx, matrix, tmp); err != nil {
		return err
	}

	if err := d.fs.Rename(tmp, conf); err != nil {
		return bootcfgerror.New(bootcfgerror.FilesystemIO, conf, err)
	}

	if err := d.stager.RemoveObsolete(); err != nil {
		return err
	}

	statePath := filepath.Join(d.cfg.BootPath, "grub", "state")
	reconciler := state.NewReconciler(d.fs, statePath)
	desired := state.Desired{
		FullName:             d.cfg.FullName,
		FullVersion:          d.cfg.FullVersion,
		EfiMode:              matrix.EfiMode(),
		Devices:              d.cfg.Devices,
		EfiSysMountPoint:     d.cfg.EfiSysMountPoint,
		ExtraGrubInstallArgs: d.cfg.ExtraGrubInstallArgs,
	}

	if !reconciler.Update(desired) {
		d.logger.Info("GRUB parameters unchanged, not reinstalling boot loader")
		return nil
	}

	if os.Getenv("NIXOS_INSTALL_GRUB") == "1" {
		d.logger.Warn("NIXOS_INSTALL_GRUB env var deprecated, use NIXOS_INSTALL_BOOTLOADER")
		_ = os.Setenv("NIXOS_INSTALL_BOOTLOADER", "1")
	}

	if err := d.installBios(ctx, matrix); err != nil {
		return err
	}
	if err := d.installEfi(ctx, matrix); err != nil {
		return err
	}

	if err := reconciler.Persist(); err != nil {
		return err
	}
	return nil
}

func (d *Driver) runPrepareConfig(ctx context.Context) error {
	prepare := strings.ReplaceAll(d.cfg.ExtraPrepareConfig, "@bootPath@", d.cfg.BootPath)
	if prepare == "" {
		return nil
	}
	if err := d.runner.RunForwarded(ctx, d.cfg.Shell, "-c", prepare); err != nil {
		return bootcfgerror.New(bootcfgerror.SubprocessFailure, d.cfg.Shell, err)
	}
	return nil
}

func (d *Driver) runOsProber(ctx context.Context, matrix TargetMatrix, tmp string) error {
	if !d.cfg.UseOsProber {
		return nil
	}
	pkg := matrix.OsProberPackage()
	if pkg == "" {
		return nil
	}

	shellCmd := fmt.Sprintf("pkgdatadir=%s/share/grub %s/etc/grub.d/30_os-prober", pkg, pkg)
	if d.cfg.DefaultEntryIsSaved() {
		shellCmd = "GRUB_SAVEDEFAULT=true " + shellCmd
	}

	out, err := d.runner.RunCaptured(ctx, d.cfg.Shell, "-c", shellCmd)
	if err != nil {
		return bootcfgerror.New(bootcfgerror.SubprocessFailure, "30_os-prober", err)
	}

	current, err := d.fs.ReadFile(tmp)
	if err != nil {
		return bootcfgerror.New(bootcfgerror.FilesystemIO, tmp, err)
	}
	if err := d.fs.WriteFile(tmp, append(current, out...), vfs.FilePerm); err != nil {
		return bootcfgerror.New(bootcfgerror.FilesystemIO, tmp, err)
	}
	return nil
}

func (d *Driver) installBios(ctx context.Context, matrix TargetMatrix) (err error) {
	if matrix.Bios == nil {
		return nil
	}

	tmpDir, err := vfs.TempDir(d.fs, "", "grub-install-")
	if err != nil {
		return bootcfgerror.New(bootcfgerror.FilesystemIO, tmpDir, err)
	}
	cleanup := cleanstack.NewCleanStack()
	cleanup.Push(func() error { return d.fs.RemoveAll(tmpDir) })
	defer func() { err = cleanup.Cleanup(err) }()

	if err := d.fs.Symlink(d.cfg.BootPath, filepath.Join(tmpDir, "boot")); err != nil {
		return bootcfgerror.New(bootcfgerror.FilesystemIO, tmpDir, err)
	}

	for _, dev := range d.cfg.Devices {
		if dev == "nodev" {
			continue
		}

		canonDev, err := vfs.Canonicalize(d.fs, dev)
		if err != nil {
			return bootcfgerror.New(bootcfgerror.FilesystemIO, dev, err)
		}

		d.logger.Info("installing the GRUB 2 boot loader on %s...", dev)

		args := []string{"--recheck", "--root-directory=" + tmpDir, canonDev}
		args = append(args, d.cfg.ExtraGrubInstallArgs...)
		if d.cfg.ForceInstall {
			args = append(args, "--force")
		}
		if matrix.Bios.Target != "" {
			args = append(args, "--target="+matrix.Bios.Target)
		}

		install := filepath.Join(matrix.Bios.Package, "sbin/grub-install")
		if err := d.runner.RunForwarded(ctx, install, args...); err != nil {
			return bootcfgerror.New(bootcfgerror.SubprocessFailure, dev, fmt.Errorf("installation of GRUB on %s failed: %w", dev, err))
		}
	}
	return nil
}

func (d *Driver) installEfi(ctx context.Context, matrix TargetMatrix) error {
	if matrix.Efi == nil {
		return nil
	}

	d.logger.Info("installing the GRUB 2 boot loader into %s...", d.cfg.EfiSysMountPoint)

	args := []string{
		"--recheck",
		"--target=" + matrix.Efi.Target,
		"--boot-directory=" + d.cfg.BootPath,
		"--efi-directory=" + d.cfg.EfiSysMountPoint,
	}
	args = append(args, d.cfg.ExtraGrubInstallArgs...)
	if d.cfg.ForceInstall {
		args = append(args, "--force")
	}
	args = append(args, "--bootloader-id="+d.cfg.BootloaderID)

	if !d.cfg.CanTouchEfiVariables {
		args = append(args, "--no-nvram")
		if d.cfg.EfiInstallAsRemovable {
			args = append(args, "--removable")
		}
	}

	install := filepath.Join(matrix.Efi.Package, "sbin/grub-install")
	if err := d.runner.RunForwarded(ctx, install, args...); err != nil {
		return bootcfgerror.New(bootcfgerror.SubprocessFailure, d.cfg.EfiSysMountPoint,
			fmt.Errorf("installation of GRUB EFI into %s failed: %w", d.cfg.EfiSysMountPoint, err))
	}
	return nil
}
