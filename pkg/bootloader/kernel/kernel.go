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

// Package kernel stages kernel, initrd, Xen and initrd-secrets files under
// the boot path so that the menu built by pkg/bootloader/menu can address
// them at boot time.
package kernel

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/nixos-infra/grub-install/pkg/bootloader/bootcfgerror"
	"github.com/nixos-infra/grub-install/pkg/bootloader/config"
	"github.com/nixos-infra/grub-install/pkg/bootloader/pathresolver"
	"github.com/nixos-infra/grub-install/pkg/log"
	"github.com/nixos-infra/grub-install/pkg/sys"
	"github.com/nixos-infra/grub-install/pkg/vfs"
)

const storePrefix = "/nix/store"

// Stager copies kernels, initrds and initrd secrets into the boot path (or
// reuses the store's own in-place path when the store is itself reachable
// at boot time) and tracks every path it produced in a shared copied-paths
// set owned by the orchestrator.
type Stager struct {
	fs       vfs.FS
	runner   sys.Runner
	logger   log.Logger
	cfg      *config.Configuration
	resolved *pathresolver.Resolved
	copied   map[string]struct{}
	dryRun   bool
}

// NewStager builds a Stager. copied is the orchestrator's shared
// copied-paths set; Stager only ever adds to it.
func NewStager(fs vfs.FS, runner sys.Runner, logger log.Logger, cfg *config.Configuration, resolved *pathresolver.Resolved, copied map[string]struct{}, dryRun bool) *Stager {
	return &Stager{fs: fs, runner: runner, logger: logger, cfg: cfg, resolved: resolved, copied: copied, dryRun: dryRun}
}

// Stage returns the GRUB-visible path for hostPath, a path under
// /nix/store, copying it into <boot_path>/kernels when the store is not
// directly reachable at boot time.
func (s *Stager) Stage(hostPath string) (string, error) {
	rel, err := storeRelative(hostPath)
	if err != nil {
		return "", err
	}

	if s.resolved.Store != nil {
		return filepath.Join(s.resolved.Store.GrubPath, rel), nil
	}

	name := strings.ReplaceAll(rel, "/", "-")
	dst := filepath.Join(s.cfg.BootPath, "kernels", name)

	if !s.dryRun {
		kernelsDir := filepath.Dir(dst)
		if err := vfs.MkdirAll(s.fs, kernelsDir, 0o755); err != nil {
			return "", bootcfgerror.New(bootcfgerror.FilesystemIO, kernelsDir, err)
		}
		if err := vfs.CopyFileAtomic(s.fs, hostPath, dst); err != nil {
			return "", bootcfgerror.New(bootcfgerror.FilesystemIO, dst, err)
		}
	}
	s.copied[dst] = struct{}{}

	return filepath.Join(s.resolved.Boot.GrubPath, "kernels", name), nil
}

// storeRelative validates that hostPath lives under /nix/store and returns
// the path relative to it.
func storeRelative(hostPath string) (string, error) {
	clean := filepath.Clean(hostPath)
	rel, err := filepath.Rel(storePrefix, clean)
	if err != nil || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", bootcfgerror.New(bootcfgerror.NotInStore, hostPath, fmt.Errorf("path is not under %s", storePrefix))
	}
	return rel, nil
}

// StageSecrets runs <genPath>/append-initrd-secrets, if present and
// executable, and stages its output as the generation's secrets initrd.
// name identifies the generation for logging; current distinguishes the
// booted generation (whose hook failure is fatal) from historical ones
// (whose hook failure is downgraded to a warning and simply omits the
// secrets file). It returns the GRUB-visible path of the secrets file, or
// "" if none was produced.
func (s *Stager) StageSecrets(ctx context.Context, name, genPath string, current bool) (string, error) {
	hookPath := filepath.Join(genPath, "append-initrd-secrets")
	info, err := s.fs.Stat(hookPath)
	if err != nil {
		return "", nil
	}
	if info.IsDir() || info.Mode()&0o111 == 0 {
		return "", nil
	}

	systemName := filepath.Base(filepath.Clean(genPath))
	secretsName := systemName + "-secrets"
	kernelsDir := filepath.Join(s.cfg.BootPath, "kernels")
	finalPath := filepath.Join(kernelsDir, secretsName)

	added := s.dryRun
	if !s.dryRun {
		added, err = s.runSecretsHook(ctx, hookPath, kernelsDir, secretsName, finalPath, name, current)
		if err != nil {
			return "", err
		}
	}

	if !added {
		return "", nil
	}
	s.copied[finalPath] = struct{}{}
	return filepath.Join(s.resolved.Boot.GrubPath, "kernels", secretsName), nil
}

func (s *Stager) runSecretsHook(ctx context.Context, hookPath, kernelsDir, secretsName, finalPath, name string, current bool) (bool, error) {
	if err := vfs.MkdirAll(s.fs, kernelsDir, 0o755); err != nil {
		return false, bootcfgerror.New(bootcfgerror.FilesystemIO, kernelsDir, err)
	}
	if err := s.fs.Chmod(kernelsDir, 0o755); err != nil {
		return false, bootcfgerror.New(bootcfgerror.FilesystemIO, kernelsDir, err)
	}

	// initrd must not be world readable; FAT /boot means we cannot rely on
	// chmod after the fact, so the umask is tightened for the hook's run.
	oldMask := unix.Umask(0o137)
	defer unix.Umask(oldMask)

	tmpPath := filepath.Join(kernelsDir, fmt.Sprintf("%s.%s", secretsName, uuid.NewString()))

	runErr := s.runner.RunForwarded(ctx, hookPath, tmpPath)
	if runErr != nil {
		if current {
			return false, bootcfgerror.New(bootcfgerror.SubprocessFailure, hookPath, runErr)
		}
		s.logger.Warn("failed to create initrd secrets for %q, an older generation", name)
		s.logger.Warn("note: this is normal after having removed or renamed a file in boot.initrd.secrets")
		return false, nil
	}

	fi, statErr := s.fs.Stat(tmpPath)
	if statErr != nil || fi.Size() == 0 {
		_ = s.fs.RemoveAll(tmpPath)
		return false, nil
	}

	if err := s.fs.Rename(tmpPath, finalPath); err != nil {
		return false, bootcfgerror.New(bootcfgerror.FilesystemIO, finalPath, err)
	}
	return true, nil
}

// RemoveObsolete deletes every entry under <boot_path>/kernels that is not
// in the copied-paths set, used by the install driver after grub.cfg has
// been published.
func (s *Stager) RemoveObsolete() error {
	kernelsDir := filepath.Join(s.cfg.BootPath, "kernels")
	entries, err := s.fs.ReadDir(kernelsDir)
	if err != nil {
		if exists, existsErr := vfs.Exists(s.fs, kernelsDir); existsErr == nil && !exists {
			return nil
		}
		return bootcfgerror.New(bootcfgerror.FilesystemIO, kernelsDir, err)
	}

	for _, entry := range entries {
		path := filepath.Join(kernelsDir, entry.Name())
		if _, ok := s.copied[path]; ok {
			continue
		}
		s.logger.Info("removing obsolete file %s", path)
		if err := s.fs.Remove(path); err != nil {
			return bootcfgerror.New(bootcfgerror.FilesystemIO, path, err)
		}
	}
	return nil
}
