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

// Package pathresolver computes, for the boot partition and optionally
// the Nix store partition, the pair of (physical host path, GRUB-visible
// path plus search directive) that the menu builder and kernel stager
// need to address files at boot time.
package pathresolver

import (
	"fmt"

	"k8s.io/mount-utils"

	"github.com/nixos-infra/grub-install/pkg/bootloader/bootcfgerror"
	"github.com/nixos-infra/grub-install/pkg/bootloader/config"
	"github.com/nixos-infra/grub-install/pkg/vfs"
)

// PathPair is the physical-host/GRUB-visible view of a single partition.
type PathPair struct {
	// HostPath is the path as seen by the running host.
	HostPath string
	// GrubPath is the path as GRUB addresses it at boot time.
	GrubPath string
	// SearchDirective is a complete "search --set=..." GRUB command
	// line, or "" when FsIdentifier is "provided" (no search needed).
	SearchDirective string
}

// Resolved bundles the boot pair, the optional store pair, and the
// effective copy_kernels flag, forced to true when the boot partition
// and the store live on different devices.
type Resolved struct {
	Boot        PathPair
	Store       *PathPair
	CopyKernels bool
}

// Resolve derives the path pairs and effective copy_kernels flag for cfg.
// mnt supplies the mount table used to locate the partition backing each
// host path.
func Resolve(fs vfs.FS, mnt mount.Interface, devStat DeviceStatter, cfg *config.Configuration) (*Resolved, error) {
	copyKernels := cfg.CopyKernels

	if !copyKernels {
		bootDev, err := devStat.DeviceID(cfg.BootPath)
		if err != nil {
			return nil, bootcfgerror.New(bootcfgerror.FilesystemIO, cfg.BootPath, err)
		}
		storeDev, err := devStat.DeviceID(cfg.StorePath)
		if err != nil {
			return nil, bootcfgerror.New(bootcfgerror.FilesystemIO, cfg.StorePath, err)
		}
		if bootDev != storeDev {
			copyKernels = true
		}
	}

	boot, err := resolvePair(fs, mnt, cfg.BootPath, cfg.FsIdentifier)
	if err != nil {
		return nil, err
	}

	resolved := &Resolved{Boot: *boot, CopyKernels: copyKernels}
	if !copyKernels {
		store, err := resolvePair(fs, mnt, cfg.StorePath, cfg.FsIdentifier)
		if err != nil {
			return nil, err
		}
		resolved.Store = store
	}
	return resolved, nil
}

func resolvePair(fs vfs.FS, mnt mount.Interface, hostPath string, fsIdent config.FsIdentifier) (*PathPair, error) {
	if fsIdent == config.FsIdentifierProvided {
		return &PathPair{HostPath: hostPath, GrubPath: hostPath}, nil
	}

	mp, err := findMount(mnt, hostPath)
	if err != nil {
		return nil, bootcfgerror.New(bootcfgerror.FilesystemIO, hostPath, err)
	}

	grubPath := grubVisiblePath(hostPath, mp.Path)

	var directive string
	switch fsIdent {
	case config.FsIdentifierUUID:
		id, err := uuidForDevice(fs, mp.Device)
		if err != nil {
			return nil, bootcfgerror.New(bootcfgerror.FilesystemIO, hostPath, err)
		}
		directive = fmt.Sprintf("search --set=drive1 --fs-uuid %s", id)
	case config.FsIdentifierLabel:
		label, err := labelForDevice(fs, mp.Device)
		if err != nil {
			return nil, bootcfgerror.New(bootcfgerror.FilesystemIO, hostPath, err)
		}
		directive = fmt.Sprintf("search --set=drive1 --label %s", label)
	default:
		return nil, bootcfgerror.Newf(bootcfgerror.ConfigParse, "fsIdentifier", "unhandled fs_identifier %q", fsIdent)
	}

	return &PathPair{HostPath: hostPath, GrubPath: grubPath, SearchDirective: directive}, nil
}

// grubVisiblePath strips the partition's mount point from hostPath; when
// the partition is the root filesystem, the host path is left unchanged.
func grubVisiblePath(hostPath, mountPoint string) string {
	if mountPoint == "/" || mountPoint == "" {
		return hostPath
	}
	trimmed := hostPath[len(mountPoint):]
	if trimmed == "" {
		return "/"
	}
	return trimmed
}
