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

package vfs

import (
	"fmt"
	"path/filepath"
)

const maxSymlinkDepth = 40

// Canonicalize resolves every symlink in path, component by component,
// the way realpath(3) does: each directory in the chain is itself
// resolved before the leaf is followed. It is used wherever a
// boot-time consumer (the kernel, GRUB) needs the real /nix/store path
// behind a profile or generation symlink.
func Canonicalize(fsys FS, path string) (string, error) {
	path = filepath.Clean(path)
	if path == "/" || path == "." {
		return "/", nil
	}

	parent, base := filepath.Split(path)
	resolvedParent, err := Canonicalize(fsys, filepath.Clean(parent))
	if err != nil {
		return "", err
	}

	full := filepath.Join(resolvedParent, base)
	for i := 0; i < maxSymlinkDepth; i++ {
		target, err := fsys.Readlink(full)
		if err != nil {
			return full, nil
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(full), target)
		}
		full = filepath.Clean(target)
	}
	return "", fmt.Errorf("too many levels of symbolic links resolving %s", path)
}
