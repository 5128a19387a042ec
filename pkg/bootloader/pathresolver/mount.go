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

package pathresolver

import (
	"fmt"
	"path/filepath"
	"strings"

	"k8s.io/mount-utils"

	"github.com/nixos-infra/grub-install/pkg/vfs"
)

// findMount returns the mount table entry covering path: the mount point
// that is the longest prefix of path.
func findMount(mnt mount.Interface, path string) (*mount.MountPoint, error) {
	mounts, err := mnt.List()
	if err != nil {
		return nil, fmt.Errorf("listing mount points: %w", err)
	}

	var best *mount.MountPoint
	for i := range mounts {
		mp := &mounts[i]
		if !isPathUnder(path, mp.Path) {
			continue
		}
		if best == nil || len(mp.Path) > len(best.Path) {
			best = mp
		}
	}
	if best == nil {
		return nil, fmt.Errorf("no mount found covering %s", path)
	}
	return best, nil
}

func isPathUnder(path, mountPoint string) bool {
	if mountPoint == "/" {
		return true
	}
	return path == mountPoint || strings.HasPrefix(path, mountPoint+"/")
}

// uuidForDevice resolves source (e.g. "/dev/sda1") to the filesystem
// UUID GRUB's "search --fs-uuid" expects, by matching /dev/disk/by-uuid
// symlinks back to the resolved device path.
func uuidForDevice(fs vfs.FS, source string) (string, error) {
	return resolveByDiskLink(fs, "/dev/disk/by-uuid", source)
}

// labelForDevice is the label analogue of uuidForDevice.
func labelForDevice(fs vfs.FS, source string) (string, error) {
	return resolveByDiskLink(fs, "/dev/disk/by-label", source)
}

func resolveByDiskLink(fs vfs.FS, dir, source string) (string, error) {
	resolvedSource, err := resolveSymlink(fs, source)
	if err != nil {
		return "", err
	}

	entries, err := fs.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", dir, err)
	}
	for _, entry := range entries {
		linkPath := filepath.Join(dir, entry.Name())
		target, err := fs.Readlink(linkPath)
		if err != nil {
			continue
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(dir, target)
		}
		resolvedTarget, err := resolveSymlink(fs, target)
		if err != nil {
			continue
		}
		if resolvedTarget == resolvedSource {
			return entry.Name(), nil
		}
	}
	return "", fmt.Errorf("no entry under %s resolves to %s", dir, source)
}

// resolveSymlink follows path through at most one level of symlink
// indirection, enough for /dev/disk/by-* entries which point directly at
// device nodes.
func resolveSymlink(fs vfs.FS, path string) (string, error) {
	target, err := fs.Readlink(path)
	if err != nil {
		return filepath.Clean(path), nil
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(path), target)
	}
	return filepath.Clean(target), nil
}
