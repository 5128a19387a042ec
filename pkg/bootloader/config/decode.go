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
	"fmt"
	"strconv"

	"github.com/nixos-infra/grub-install/pkg/bootloader/bootcfgerror"
	"github.com/nixos-infra/grub-install/pkg/vfs"
)

// fields holds the attrs map and the filesystem used to resolve *File
// password sources, threaded through every decode helper.
type fields struct {
	m  map[string]xmlAttr
	fs vfs.FS
}

func (f fields) requiredString(name string) (string, error) {
	attr, ok := f.m[name]
	if !ok {
		return "", bootcfgerror.Newf(bootcfgerror.ConfigParse, name, "missing required key %q", name)
	}
	if attr.String == nil {
		return "", bootcfgerror.Newf(bootcfgerror.ConfigParse, name, "key %q is not a <string> value", name)
	}
	return attr.String.Value, nil
}

// optionalString implements Option<String>/Option<Path> decoding: an
// absent key or an empty string both decode to "".
func (f fields) optionalString(name string) (string, error) {
	attr, ok := f.m[name]
	if !ok {
		return "", nil
	}
	if attr.String == nil {
		return "", bootcfgerror.Newf(bootcfgerror.ConfigParse, name, "key %q is not a <string> value", name)
	}
	return attr.String.Value, nil
}

func (f fields) requiredBool(name string) (bool, error) {
	attr, ok := f.m[name]
	if !ok {
		return false, bootcfgerror.Newf(bootcfgerror.ConfigParse, name, "missing required key %q", name)
	}
	if attr.Bool == nil {
		return false, bootcfgerror.Newf(bootcfgerror.ConfigParse, name, "key %q is not a <bool> value", name)
	}
	return attr.Bool.Value == "true", nil
}

func (f fields) requiredInt(name string) (int, error) {
	attr, ok := f.m[name]
	if !ok {
		return 0, bootcfgerror.Newf(bootcfgerror.ConfigParse, name, "missing required key %q", name)
	}
	if attr.Int == nil {
		return 0, bootcfgerror.Newf(bootcfgerror.ConfigParse, name, "key %q is not an <int> value", name)
	}
	n, err := strconv.ParseInt(attr.Int.Value, 10, strconv.IntSize)
	if err != nil {
		return 0, bootcfgerror.Newf(bootcfgerror.ConfigParse, name, "key %q has invalid integer value %q: %w", name, attr.Int.Value, err)
	}
	return int(n), nil
}

func (f fields) requiredStringList(name string) ([]string, error) {
	attr, ok := f.m[name]
	if !ok {
		return nil, bootcfgerror.Newf(bootcfgerror.ConfigParse, name, "missing required key %q", name)
	}
	if attr.List == nil {
		return nil, bootcfgerror.Newf(bootcfgerror.ConfigParse, name, "key %q is not a <list> value", name)
	}
	out := make([]string, 0, len(attr.List.String))
	for _, v := range attr.List.String {
		out = append(out, v.Value)
	}
	return out, nil
}

func (f fields) requiredAttrs(name string) (*xmlAttrs, error) {
	attr, ok := f.m[name]
	if !ok {
		return nil, bootcfgerror.Newf(bootcfgerror.ConfigParse, name, "missing required key %q", name)
	}
	if attr.Attrs == nil {
		return nil, bootcfgerror.Newf(bootcfgerror.ConfigParse, name, "key %q is not an <attrs> value", name)
	}
	return attr.Attrs, nil
}

func decodeFsIdentifier(f fields) (FsIdentifier, error) {
	s, err := f.requiredString("fsIdentifier")
	if err != nil {
		return "", err
	}
	switch FsIdentifier(s) {
	case FsIdentifierUUID, FsIdentifierLabel, FsIdentifierProvided:
		return FsIdentifier(s), nil
	default:
		return "", bootcfgerror.Newf(bootcfgerror.ConfigParse, "fsIdentifier", "invalid fs_identifier %q, expected uuid, label or provided", s)
	}
}

// decodeUsers resolves each user's exactly-one password source, in the
// priority order hashedPasswordFile -> hashedPassword -> passwordFile ->
// password, honouring *File variants by reading from fs.
func decodeUsers(f fields) (map[string]Password, error) {
	usersAttrs, err := f.requiredAttrs("users")
	if err != nil {
		return nil, err
	}

	users := make(map[string]Password, len(usersAttrs.Attr))
	for _, userAttr := range usersAttrs.Attr {
		name := userAttr.Name
		if userAttr.Attrs == nil {
			return nil, bootcfgerror.Newf(bootcfgerror.ConfigParse, name, "user %q is not an <attrs> value", name)
		}
		uf := fields{m: userAttr.Attrs.asMap(), fs: f.fs}

		hashedPasswordFile, err := uf.optionalString("hashedPasswordFile")
		if err != nil {
			return nil, err
		}
		hashedPassword, err := uf.optionalString("hashedPassword")
		if err != nil {
			return nil, err
		}
		passwordFile, err := uf.optionalString("passwordFile")
		if err != nil {
			return nil, err
		}
		password, err := uf.optionalString("password")
		if err != nil {
			return nil, err
		}

		pw, err := resolveUserPassword(f.fs, name, hashedPasswordFile, hashedPassword, passwordFile, password)
		if err != nil {
			return nil, err
		}
		users[name] = pw
	}
	return users, nil
}

func resolveUserPassword(fs vfs.FS, user, hashedPasswordFile, hashedPassword, passwordFile, password string) (Password, error) {
	switch {
	case hashedPasswordFile != "":
		content, err := fs.ReadFile(hashedPasswordFile)
		if err != nil {
			return Password{}, bootcfgerror.New(bootcfgerror.UserAuth, user, fmt.Errorf("reading hashedPasswordFile %q: %w", hashedPasswordFile, err))
		}
		return newHashedPassword(user, trimTrailingNewline(string(content)))
	case hashedPassword != "":
		return newHashedPassword(user, hashedPassword)
	case passwordFile != "":
		content, err := fs.ReadFile(passwordFile)
		if err != nil {
			return Password{}, bootcfgerror.New(bootcfgerror.UserAuth, user, fmt.Errorf("reading passwordFile %q: %w", passwordFile, err))
		}
		return Password{Kind: PasswordPlain, Value: trimTrailingNewline(string(content))}, nil
	case password != "":
		return Password{Kind: PasswordPlain, Value: password}, nil
	default:
		return Password{}, bootcfgerror.Newf(bootcfgerror.UserAuth, user, "user %q has no password, passwordFile, hashedPassword or hashedPasswordFile set", user)
	}
}

func trimTrailingNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
