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

package orchestrator_test

import (
	"context"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nixos-infra/grub-install/pkg/bootloader/orchestrator"
	"github.com/nixos-infra/grub-install/pkg/log"
	mocksys "github.com/nixos-infra/grub-install/pkg/sys/mock"
	"github.com/nixos-infra/grub-install/pkg/vfs"
)

func TestOrchestratorSuite(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Orchestrator test suite")
}

const configDoc = `<expr><attrs>
  <attr name="bootPath"><string value="/boot"/></attr>
  <attr name="storePath"><string value="/nix/store"/></attr>
  <attr name="efiSysMountPoint"><string value="/boot/efi"/></attr>
  <attr name="extraConfig"><string value=""/></attr>
  <attr name="extraPrepareConfig"><string value=""/></attr>
  <attr name="extraEntries"><string value=""/></attr>
  <attr name="extraEntriesBeforeNixOS"><bool value="false"/></attr>
  <attr name="entryOptions"><string value=""/></attr>
  <attr name="subEntryOptions"><string value=""/></attr>
  <attr name="font"><string value="/font.pf2"/></attr>
  <attr name="gfxmodeEfi"><string value="auto"/></attr>
  <attr name="gfxmodeBios"><string value="auto"/></attr>
  <attr name="gfxpayloadEfi"><string value="keep"/></attr>
  <attr name="gfxpayloadBios"><string value="text"/></attr>
  <attr name="configurationLimit"><int value="0"/></attr>
  <attr name="copyKernels"><bool value="true"/></attr>
  <attr name="timeout"><int value="5"/></attr>
  <attr name="timeoutStyle"><string value="menu"/></attr>
  <attr name="default"><string value="0"/></attr>
  <attr name="fsIdentifier"><string value="provided"/></attr>
  <attr name="useOSProber"><bool value="false"/></attr>
  <attr name="canTouchEfiVariables"><bool value="false"/></attr>
  <attr name="efiInstallAsRemovable"><bool value="false"/></attr>
  <attr name="forceInstall"><bool value="false"/></attr>
  <attr name="bootloaderId"><string value="NixOS"/></attr>
  <attr name="fullName"><string value="NixOS"/></attr>
  <attr name="fullVersion"><string value="24.05"/></attr>
  <attr name="shell"><string value="/bin/sh"/></attr>
  <attr name="path"><string value="/run/current-system/sw/bin"/></attr>
  <attr name="devices"><list></list></attr>
  <attr name="extraGrubInstallArgs"><list></list></attr>
  <attr name="users"><attrs></attrs></attr>
</attrs></expr>`

var _ = Describe("Orchestrator", Label("orchestrator"), func() {
	var fs vfs.FS
	var cleanup func()

	BeforeEach(func() {
		f, c, err := mocksys.TestFS(map[string]any{
			"etc/config.xml": configDoc,
			"font.pf2":       "font bytes",
			"boot":           map[string]any{},
			"nix/var/nix/profiles": map[string]any{},
			"nix/store/sys-generation/kernel":        "kernel bytes",
			"nix/store/sys-generation/initrd":        "initrd bytes",
			"nix/store/sys-generation/init":          "init bytes",
			"nix/store/sys-generation/kernel-params": "console=ttyS0\n",
		})
		Expect(err).NotTo(HaveOccurred())
		fs = f
		cleanup = c
	})

	AfterEach(func() {
		cleanup()
	})

	It("drives the full pipeline from config to a published grub.cfg", func() {
		runner := mocksys.NewRunner()
		o := orchestrator.New(fs, runner, log.New(log.WithDiscardAll()), false)

		err := o.Run(context.Background(), "/etc/config.xml", "/nix/store/sys-generation")
		Expect(err).NotTo(HaveOccurred())

		exists, err := vfs.Exists(fs, "/boot/grub/grub.cfg")
		Expect(err).NotTo(HaveOccurred())
		Expect(exists).To(BeTrue())

		content, err := fs.ReadFile("/boot/grub/grub.cfg")
		Expect(err).NotTo(HaveOccurred())
		Expect(string(content)).To(ContainSubstring(`menuentry "NixOS"`))
		Expect(string(content)).NotTo(ContainSubstring("@distroName@"))
	})

	It("fails when the configuration file does not exist", func() {
		runner := mocksys.NewRunner()
		o := orchestrator.New(fs, runner, log.New(log.WithDiscardAll()), false)

		err := o.Run(context.Background(), "/etc/missing.xml", "/nix/store/sys-generation")
		Expect(err).To(HaveOccurred())
	})
})
