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

package state_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nixos-infra/grub-install/pkg/bootloader/state"
	mocksys "github.com/nixos-infra/grub-install/pkg/sys/mock"
	"github.com/nixos-infra/grub-install/pkg/vfs"
)

func TestStateSuite(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "State reconciler test suite")
}

var _ = Describe("Reconciler", Label("state"), func() {
	var fs vfs.FS
	var cleanup func()
	const path = "/boot/grub/state"

	BeforeEach(func() {
		f, c, err := mocksys.TestFS(map[string]any{"boot/grub": map[string]any{}})
		Expect(err).NotTo(HaveOccurred())
		fs = f
		cleanup = c
	})

	AfterEach(func() {
		cleanup()
	})

	It("is dirty on the first run against a missing state file", func() {
		r := state.NewReconciler(fs, path)
		dirty := r.Update(state.Desired{FullName: "NixOS", EfiMode: state.EfiModeNo})
		Expect(dirty).To(BeTrue())
	})

	It("round-trips full_name, EFI mode and extra args through Persist/Load", func() {
		r := state.NewReconciler(fs, path)
		desired := state.Desired{
			FullName:             "NixOS",
			FullVersion:          "24.05",
			EfiMode:              state.EfiModeBoth,
			EfiSysMountPoint:     "/boot/efi",
			ExtraGrubInstallArgs: []string{"--removable"},
		}
		Expect(r.Update(desired)).To(BeTrue())
		Expect(r.Persist()).To(Succeed())

		reloaded := state.Load(fs, path)
		Expect(reloaded.FullName).To(Equal("NixOS"))
		Expect(reloaded.FullVersion).To(Equal("24.05"))
		Expect(reloaded.EfiMode).To(Equal(state.EfiModeBoth))
		Expect(reloaded.EfiSysMountPoint).To(Equal("/boot/efi"))
		Expect(reloaded.Extra.ExtraGrubInstallArgs).To(Equal([]string{"--removable"}))
	})

	It("stays clean across two runs with identical, disjoint-with-itself empty device sets", func() {
		desired := state.Desired{FullName: "NixOS", EfiMode: state.EfiModeNo}

		r1 := state.NewReconciler(fs, path)
		Expect(r1.Update(desired)).To(BeTrue())
		Expect(r1.Persist()).To(Succeed())

		r2 := state.NewReconciler(fs, path)
		Expect(r2.Update(desired)).To(BeFalse())
	})

	It("is dirty again when a previously installed device reappears in the desired set", func() {
		first := state.Desired{FullName: "NixOS", EfiMode: state.EfiModeNo, Devices: []string{"/dev/sda"}}

		r1 := state.NewReconciler(fs, path)
		Expect(r1.Update(first)).To(BeTrue())
		Expect(r1.Persist()).To(Succeed())

		r2 := state.NewReconciler(fs, path)
		// Same device list as before: the sets are not disjoint, so per the
		// documented "not disjoint" rule this is still considered dirty.
		Expect(r2.Update(first)).To(BeTrue())
	})

	It("falls back to an empty Extra rather than failing when the sixth line is not valid JSON", func() {
		Expect(fs.WriteFile(path, []byte("NixOS\n24.05\nno\n\n\nnot-json\n"), vfs.FilePerm)).To(Succeed())
		loaded := state.Load(fs, path)
		Expect(loaded.FullName).To(Equal("NixOS"))
		Expect(loaded.Extra.ExtraGrubInstallArgs).To(BeEmpty())
	})
})
