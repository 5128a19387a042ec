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

package mock

import (
	"github.com/twpayne/go-vfs/v4/vfst"

	"github.com/nixos-infra/grub-install/pkg/vfs"
)

// TestFS builds an on-disk-backed scratch filesystem seeded with root
// (vfst's usual map[string]any tree description; nil yields an empty
// tree), handing back a vfs.FS, a cleanup function to remove the backing
// temp directory, and any error building the tree.
func TestFS(root any) (vfs.FS, func(), error) {
	return vfst.NewTestFS(root)
}
