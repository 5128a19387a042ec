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

package config

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/nixos-infra/grub-install/pkg/bootloader/bootcfgerror"
)

const hashedPasswordPrefix = "grub.pbkdf2."

// newHashedPassword validates that value is a grub.pbkdf2.<algo>.<iterations>.<salt-hex>.<hash-hex>
// payload of plausible shape before accepting it. It never re-derives or
// verifies the password itself, that is GRUB's job at boot time; it only
// guards against an obviously truncated or corrupted hash landing in
// grub.cfg.
func newHashedPassword(user, value string) (Password, error) {
	if !strings.HasPrefix(value, hashedPasswordPrefix) {
		return Password{}, bootcfgerror.Newf(bootcfgerror.UserAuth, user,
			"hashed password must start with %q", hashedPasswordPrefix)
	}

	fields := strings.Split(strings.TrimPrefix(value, hashedPasswordPrefix), ".")
	if len(fields) != 4 {
		return Password{}, bootcfgerror.Newf(bootcfgerror.UserAuth, user,
			"malformed %s payload: expected <algo>.<iterations>.<salt-hex>.<hash-hex>", hashedPasswordPrefix)
	}
	algo, iterStr, saltHex, hashHex := fields[0], fields[1], fields[2], fields[3]
	if algo != "sha512" {
		return Password{}, bootcfgerror.Newf(bootcfgerror.UserAuth, user, "unsupported pbkdf2 algorithm %q", algo)
	}

	iterations, err := strconv.Atoi(iterStr)
	if err != nil || iterations <= 0 {
		return Password{}, bootcfgerror.Newf(bootcfgerror.UserAuth, user, "invalid pbkdf2 iteration count %q", iterStr)
	}

	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return Password{}, bootcfgerror.Newf(bootcfgerror.UserAuth, user, "invalid pbkdf2 salt encoding: %w", err)
	}
	hash, err := hex.DecodeString(hashHex)
	if err != nil {
		return Password{}, bootcfgerror.Newf(bootcfgerror.UserAuth, user, "invalid pbkdf2 hash encoding: %w", err)
	}
	if len(salt) == 0 || len(hash) == 0 {
		return Password{}, bootcfgerror.Newf(bootcfgerror.UserAuth, user, "pbkdf2 salt or hash payload is empty")
	}

	return Password{Kind: PasswordHashed, Value: value}, nil
}
