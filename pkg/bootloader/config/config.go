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
	"bytes"
	"encoding/xml"

	"github.com/joho/godotenv"

	"github.com/nixos-infra/grub-install/pkg/bootloader/bootcfgerror"
	"github.com/nixos-infra/grub-install/pkg/vfs"
)

const osReleasePath = "/etc/os-release"

// defaultBootloaderID falls back to the distribution ID reported by
// os-release when the configuration leaves bootloaderId unset. It returns
// "" when os-release is missing, unparseable or has no ID field.
func defaultBootloaderID(fs vfs.FS) string {
	raw, err := fs.ReadFile(osReleasePath)
	if err != nil {
		return ""
	}
	vars, err := godotenv.Parse(bytes.NewReader(raw))
	if err != nil {
		return ""
	}
	return vars["ID"]
}

// Load reads and decodes the configuration XML document at path.
func Load(fs vfs.FS, path string) (*Configuration, error) {
	raw, err := fs.ReadFile(path)
	if err != nil {
		return nil, bootcfgerror.New(bootcfgerror.FilesystemIO, path, err)
	}
	return Decode(fs, raw)
}

// Decode parses raw XML bytes (the root <expr><attrs>...) into a
// Configuration.
func Decode(fs vfs.FS, raw []byte) (*Configuration, error) {
	var doc xmlExpr
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, bootcfgerror.New(bootcfgerror.ConfigParse, "", err)
	}

	f := fields{m: doc.Attrs.asMap(), fs: fs}
	cfg := &Configuration{}
	var err error

	if cfg.Grub, err = f.optionalString("grub"); err != nil {
		return nil, err
	}
	if cfg.GrubEfi, err = f.optionalString("grubEfi"); err != nil {
		return nil, err
	}
	if cfg.GrubTarget, err = f.optionalString("grubTarget"); err != nil {
		return nil, err
	}
	if cfg.GrubTargetEfi, err = f.optionalString("grubTargetEfi"); err != nil {
		return nil, err
	}

	if cfg.BootPath, err = f.requiredString("bootPath"); err != nil {
		return nil, err
	}
	if cfg.StorePath, err = f.requiredString("storePath"); err != nil {
		return nil, err
	}
	if cfg.EfiSysMountPoint, err = f.requiredString("efiSysMountPoint"); err != nil {
		return nil, err
	}

	if cfg.ExtraConfig, err = f.requiredString("extraConfig"); err != nil {
		return nil, err
	}
	if cfg.ExtraPrepareConfig, err = f.requiredString("extraPrepareConfig"); err != nil {
		return nil, err
	}
	if cfg.ExtraPerEntryConfig, err = f.optionalString("extraPerEntryConfig"); err != nil {
		return nil, err
	}
	if cfg.ExtraEntries, err = f.requiredString("extraEntries"); err != nil {
		return nil, err
	}
	if cfg.ExtraEntriesBeforeNixos, err = f.requiredBool("extraEntriesBeforeNixOS"); err != nil {
		return nil, err
	}
	if cfg.EntryOptions, err = f.requiredString("entryOptions"); err != nil {
		return nil, err
	}
	if cfg.SubEntryOptions, err = f.requiredString("subEntryOptions"); err != nil {
		return nil, err
	}

	if cfg.Font, err = f.requiredString("font"); err != nil {
		return nil, err
	}
	if cfg.Theme, err = f.optionalString("theme"); err != nil {
		return nil, err
	}
	if cfg.SplashImage, err = f.optionalString("splashImage"); err != nil {
		return nil, err
	}
	if cfg.SplashMode, err = f.optionalString("splashMode"); err != nil {
		return nil, err
	}
	if cfg.BackgroundColor, err = f.optionalString("backgroundColor"); err != nil {
		return nil, err
	}
	if cfg.GfxmodeEfi, err = f.requiredString("gfxmodeEfi"); err != nil {
		return nil, err
	}
	if cfg.GfxmodeBios, err = f.requiredString("gfxmodeBios"); err != nil {
		return nil, err
	}
	if cfg.GfxpayloadEfi, err = f.requiredString("gfxpayloadEfi"); err != nil {
		return nil, err
	}
	if cfg.GfxpayloadBios, err = f.requiredString("gfxpayloadBios"); err != nil {
		return nil, err
	}

	if cfg.ConfigurationLimit, err = f.requiredInt("configurationLimit"); err != nil {
		return nil, err
	}
	if cfg.CopyKernels, err = f.requiredBool("copyKernels"); err != nil {
		return nil, err
	}
	if cfg.Timeout, err = f.requiredInt("timeout"); err != nil {
		return nil, err
	}
	if cfg.TimeoutStyle, err = f.requiredString("timeoutStyle"); err != nil {
		return nil, err
	}
	if cfg.DefaultEntry, err = f.requiredString("default"); err != nil {
		return nil, err
	}
	if cfg.FsIdentifier, err = decodeFsIdentifier(f); err != nil {
		return nil, err
	}
	if cfg.UseOsProber, err = f.requiredBool("useOSProber"); err != nil {
		return nil, err
	}
	if cfg.CanTouchEfiVariables, err = f.requiredBool("canTouchEfiVariables"); err != nil {
		return nil, err
	}
	if cfg.EfiInstallAsRemovable, err = f.requiredBool("efiInstallAsRemovable"); err != nil {
		return nil, err
	}
	if cfg.ForceInstall, err = f.requiredBool("forceInstall"); err != nil {
		return nil, err
	}

	if cfg.BootloaderID, err = f.requiredString("bootloaderId"); err != nil {
		return nil, err
	}
	if cfg.BootloaderID == "" {
		cfg.BootloaderID = defaultBootloaderID(fs)
	}
	if cfg.FullName, err = f.requiredString("fullName"); err != nil {
		return nil, err
	}
	if cfg.FullVersion, err = f.requiredString("fullVersion"); err != nil {
		return nil, err
	}

	if cfg.Devices, err = f.requiredStringList("devices"); err != nil {
		return nil, err
	}
	if cfg.Users, err = decodeUsers(f); err != nil {
		return nil, err
	}
	if cfg.ExtraGrubInstallArgs, err = f.requiredStringList("extraGrubInstallArgs"); err != nil {
		return nil, err
	}
	if cfg.Shell, err = f.requiredString("shell"); err != nil {
		return nil, err
	}
	if cfg.Path, err = f.requiredString("path"); err != nil {
		return nil, err
	}

	return cfg, nil
}
