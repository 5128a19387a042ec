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

// Package state loads and reconciles the persisted "last installed"
// record that makes GRUB reinstallation idempotent across invocations.
package state

import (
	"encoding/json"
	"strings"

	"github.com/nixos-infra/grub-install/pkg/bootloader/bootcfgerror"
	"github.com/nixos-infra/grub-install/pkg/vfs"
)

// EfiMode is the persisted encoding of the install target matrix.
type EfiMode string

const (
	EfiModeBoth    EfiMode = "both"
	EfiModeNo      EfiMode = "no"
	EfiModeOnly    EfiMode = "only"
	EfiModeNeither EfiMode = "neither"
)

// Extra is the structured sixth line of the state file.
type Extra struct {
	ExtraGrubInstallArgs []string `json:"extraGrubInstallArgs"`
}

// State is the persisted "last installed" record.
type State struct {
	FullName         string
	FullVersion      string
	EfiMode          EfiMode
	Devices          []string
	EfiSysMountPoint string
	Extra            Extra
}

// Desired is the state computed from the current run, compared against
// the persisted State to decide whether a reinstall is required.
type Desired struct {
	FullName             string
	FullVersion          string
	EfiMode              EfiMode
	Devices              []string
	EfiSysMountPoint     string
	ExtraGrubInstallArgs []string
}

// Load reads the six-line state file at path. It never returns an error:
// a missing or unreadable file yields an empty State, missing lines decode
// as empty fields, and a sixth line that is not valid JSON yields an empty
// Extra while the other fields are kept.
func Load(fs vfs.FS, path string) *State {
	raw, err := fs.ReadFile(path)
	if err != nil {
		return &State{}
	}
	return parse(raw)
}

func parse(raw []byte) *State {
	lines := strings.Split(string(raw), "\n")
	get := func(i int) string {
		if i < len(lines) {
			return lines[i]
		}
		return ""
	}

	s := &State{
		FullName:         get(0),
		FullVersion:      get(1),
		EfiMode:          EfiMode(get(2)),
		EfiSysMountPoint: get(4),
	}
	if devices := get(3); devices != "" {
		s.Devices = strings.Split(devices, ",")
	}

	extraLine := strings.TrimSpace(get(5))
	if extraLine == "" {
		extraLine = "{}"
	}
	var extra Extra
	if err := json.Unmarshal([]byte(extraLine), &extra); err != nil {
		// Malformed sixth line: treat the structured tail as empty
		// rather than failing the whole record.
		extra = Extra{}
	}
	s.Extra = extra

	return s
}

// Reconciler compares a persisted State against a Desired state and
// decides whether GRUB must be reinstalled.
type Reconciler struct {
	path    string
	fs      vfs.FS
	current *State
}

// NewReconciler loads the state file at path, ready for Update.
func NewReconciler(fs vfs.FS, path string) *Reconciler {
	return &Reconciler{path: path, fs: fs, current: Load(fs, path)}
}

// Update compares desired against the loaded state and reports whether a
// reinstall is required. A reinstall is required when full_name,
// full_version, the EFI mode string or efi_sys_mount_point differ, or
// when the desired device set is not disjoint from the previously
// installed device set (an overlap means at least one shared device is
// being reinstalled), and likewise for extra_grub_install_args.
//
// The "not disjoint" test, rather than a "not equal" test, is retained
// deliberately to match the documented source semantics; see the
// reconciliation note in the project's design ledger.
func (r *Reconciler) Update(desired Desired) bool {
	c := r.current
	dirty := c.FullName != desired.FullName ||
		c.FullVersion != desired.FullVersion ||
		c.EfiMode != desired.EfiMode ||
		c.EfiSysMountPoint != desired.EfiSysMountPoint ||
		!disjoint(c.Devices, desired.Devices) ||
		!disjoint(c.Extra.ExtraGrubInstallArgs, desired.ExtraGrubInstallArgs)

	if dirty {
		r.current = &State{
			FullName:         desired.FullName,
			FullVersion:      desired.FullVersion,
			EfiMode:          desired.EfiMode,
			Devices:          desired.Devices,
			EfiSysMountPoint: desired.EfiSysMountPoint,
			Extra:            Extra{ExtraGrubInstallArgs: desired.ExtraGrubInstallArgs},
		}
	}
	return dirty
}

// disjoint reports whether a and b share no elements. Two empty sets are
// disjoint.
func disjoint(a, b []string) bool {
	set := make(map[string]struct{}, len(a))
	for _, v := range a {
		set[v] = struct{}{}
	}
	for _, v := range b {
		if _, ok := set[v]; ok {
			return false
		}
	}
	return true
}

// Persist atomically writes the current (possibly updated) record to
// path: write to path+".tmp", then rename over path.
func (r *Reconciler) Persist() error {
	extra, err := json.Marshal(r.current.Extra)
	if err != nil {
		return bootcfgerror.New(bootcfgerror.FilesystemIO, r.path, err)
	}

	lines := []string{
		r.current.FullName,
		r.current.FullVersion,
		string(r.current.EfiMode),
		strings.Join(r.current.Devices, ","),
		r.current.EfiSysMountPoint,
		string(extra),
	}
	content := strings.Join(lines, "\n") + "\n"

	tmp := r.path + ".tmp"
	if err := r.fs.WriteFile(tmp, []byte(content), vfs.FilePerm); err != nil {
		return bootcfgerror.New(bootcfgerror.FilesystemIO, tmp, err)
	}
	if err := r.fs.Rename(tmp, r.path); err != nil {
		return bootcfgerror.New(bootcfgerror.FilesystemIO, r.path, err)
	}
	return nil
}
