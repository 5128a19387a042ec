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

// Package install drives grub-install, os-prober and the atomic
// publication of grub.cfg: the target-matrix resolution and the last
// step of the menu-generation pipeline.
package install

import (
	"github.com/nixos-infra/grub-install/pkg/bootloader/bootcfgerror"
	"github.com/nixos-infra/grub-install/pkg/bootloader/config"
	"github.com/nixos-infra/grub-install/pkg/bootloader/state"
)

// BiosTarget names the BIOS GRUB package and its optional --target.
type BiosTarget struct {
	Package string
	Target  string // may be empty: grub-install auto-detects
}

// EfiTarget names the EFI GRUB package and its required --target.
type EfiTarget struct {
	Package string
	Target  string
}

// TargetMatrix is the resolved install plan: which of BIOS/EFI grub-install
// invocations (if any) this run must perform.
type TargetMatrix struct {
	Bios *BiosTarget
	Efi  *EfiTarget
}

// EfiMode encodes the matrix as the persisted state file's EFI-mode string.
func (m TargetMatrix) EfiMode() state.EfiMode {
	switch {
	case m.Bios != nil && m.Efi != nil:
		return state.EfiModeBoth
	case m.Bios != nil:
		return state.EfiModeNo
	case m.Efi != nil:
		return state.EfiModeOnly
	default:
		return state.EfiModeNeither
	}
}

// OsProberPackage returns the package whose share/grub + etc/grub.d
// 30_os-prober should be invoked: EFI when available, else BIOS.
func (m TargetMatrix) OsProberPackage() string {
	if m.Efi != nil {
		return m.Efi.Package
	}
	if m.Bios != nil {
		return m.Bios.Package
	}
	return ""
}

// DeduceTargetMatrix resolves cfg's (grub, grubEfi, grubTarget,
// grubTargetEfi) quadruple into a TargetMatrix, or an error if the
// combination is nonsensical (an EFI package without its target).
func DeduceTargetMatrix(cfg *config.Configuration) (TargetMatrix, error) {
	switch {
	case cfg.Grub != "" && cfg.GrubEfi != "":
		if cfg.GrubTarget == "" || cfg.GrubTargetEfi == "" {
			return TargetMatrix{}, bootcfgerror.Newf(bootcfgerror.ConfigParse, "grubTarget",
				"EFI can only be installed when target is set; a target is also required then for non-EFI grub")
		}
		return TargetMatrix{
			Bios: &BiosTarget{Package: cfg.Grub, Target: cfg.GrubTarget},
			Efi:  &EfiTarget{Package: cfg.GrubEfi, Target: cfg.GrubTargetEfi},
		}, nil
	case cfg.Grub != "":
		return TargetMatrix{Bios: &BiosTarget{Package: cfg.Grub, Target: cfg.GrubTarget}}, nil
	case cfg.GrubEfi != "":
		if cfg.GrubTargetEfi == "" {
			return TargetMatrix{}, bootcfgerror.Newf(bootcfgerror.ConfigParse, "grubTargetEfi",
				"EFI can only be installed when target is set")
		}
		return TargetMatrix{Efi: &EfiTarget{Package: cfg.GrubEfi, Target: cfg.GrubTargetEfi}}, nil
	default:
		return TargetMatrix{}, nil
	}
}
