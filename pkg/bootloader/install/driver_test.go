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

package install_test

import (
	"bytes"
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nixos-infra/grub-install/pkg/bootloader/config"
	"github.com/nixos-infra/grub-install/pkg/bootloader/install"
	"github.com/nixos-infra/grub-install/pkg/bootloader/kernel"
	"github.com/nixos-infra/grub-install/pkg/bootloader/pathresolver"
	"github.com/nixos-infra/grub-install/pkg/log"
	mocksys "github.com/nixos-infra/grub-install/pkg/sys/mock"
	"github.com/nixos-infra/grub-install/pkg/vfs"
)

var _ = Describe("Driver", Label("install"), func() {
	var fs vfs.FS
	var cleanup func()
	var cfg *config.Configuration
	var resolved *pathresolver.Resolved

	BeforeEach(func() {
		f, c, err := mocksys.TestFS(map[string]any{
			"boot": map[string]any{},
		})
		Expect(err).NotTo(HaveOccurred())
		fs = f
		cleanup = c

		cfg = &config.Configuration{
			BootPath: "/boot",
			Grub:     "/nix/store/grub",
			Devices:  []string{"/dev/sda"},
		}
		resolved = &pathresolver.Resolved{Boot: pathresolver.PathPair{GrubPath: "/"}}
	})

	AfterEach(func() {
		cleanup()
	})

	It("writes the menu text to DryRunOut and performs no installation in dry-run mode", func() {
		stager := kernel.NewStager(fs, nil, log.New(log.WithDiscardAll()), cfg, resolved, map[string]struct{}{}, true)
		d := install.NewDriver(fs, nil, log.New(log.WithDiscardAll()), cfg, stager, true)
		var out bytes.Buffer
		d.DryRunOut = &out

		Expect(d.Install(context.Background(), "menu text")).To(Succeed())
		Expect(out.String()).To(ContainSubstring("menu text"))

		exists, err := vfs.Exists(fs, "/boot/grub/grub.cfg")
		Expect(err).NotTo(HaveOccurred())
		Expect(exists).To(BeFalse())
	})

	It("publishes grub.cfg and runs grub-install for a BIOS device", func() {
		runner := mocksys.NewRunner()
		stager := kernel.NewStager(fs, runner, log.New(log.WithDiscardAll()), cfg, resolved, map[string]struct{}{}, false)
		d := install.NewDriver(fs, runner, log.New(log.WithDiscardAll()), cfg, stager, false)

		Expect(d.Install(context.Background(), "menu text")).To(Succeed())

		out, err := vfs.Exists(fs, "/boot/grub/grub.cfg")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(BeTrue())

		content, err := fs.ReadFile("/boot/grub/grub.cfg")
		Expect(err).NotTo(HaveOccurred())
		Expect(string(content)).To(Equal("menu text"))

		Expect(runner.IncludesCmds([][]string{
			{"/nix/store/grub/sbin/grub-install", "--recheck"},
		})).To(Succeed())

		stateExists, err := vfs.Exists(fs, "/boot/grub/state")
		Expect(err).NotTo(HaveOccurred())
		Expect(stateExists).To(BeTrue())
	})

	It("takes no install action on a second run with no devices and an unchanged target matrix", func() {
		cfg.Devices = nil // an empty device set is disjoint with itself across runs
		runner := mocksys.NewRunner()
		stager := kernel.NewStager(fs, runner, log.New(log.WithDiscardAll()), cfg, resolved, map[string]struct{}{}, false)
		d := install.NewDriver(fs, runner, log.New(log.WithDiscardAll()), cfg, stager, false)

		Expect(d.Install(context.Background(), "menu text")).To(Succeed())
		runner.ClearCmds()

		Expect(d.Install(context.Background(), "menu text 2")).To(Succeed())
		Expect(runner.GetCmds()).To(BeEmpty())
	})

	It("appends the os-prober output to grub.cfg before publishing it", func() {
		cfg.UseOsProber = true
		cfg.Shell = "/bin/sh"
		runner := mocksys.NewRunner()
		runner.ReturnValue = []byte("menuentry \"Other OS\" {\n}\n")
		stager := kernel.NewStager(fs, runner, log.New(log.WithDiscardAll()), cfg, resolved, map[string]struct{}{}, false)
		d := install.NewDriver(fs, runner, log.New(log.WithDiscardAll()), cfg, stager, false)

		Expect(d.Install(context.Background(), "menu text\n")).To(Succeed())

		Expect(runner.IncludesCmds([][]string{
			{"/bin/sh", "-c", "pkgdatadir=/nix/store/grub/share/grub /nix/store/grub/etc/grub.d/30_os-prober"},
		})).To(Succeed())

		content, err := fs.ReadFile("/boot/grub/grub.cfg")
		Expect(err).NotTo(HaveOccurred())
		Expect(string(content)).To(HavePrefix("menu text\n"))
		Expect(string(content)).To(ContainSubstring(`menuentry "Other OS"`))
	})

	It("appends --force to grub-install when forceInstall is set", func() {
		cfg.ForceInstall = true
		runner := mocksys.NewRunner()
		stager := kernel.NewStager(fs, runner, log.New(log.WithDiscardAll()), cfg, resolved, map[string]struct{}{}, false)
		d := install.NewDriver(fs, runner, log.New(log.WithDiscardAll()), cfg, stager, false)

		Expect(d.Install(context.Background(), "menu text")).To(Succeed())

		Expect(runner.IncludesCmds([][]string{
			{"/nix/store/grub/sbin/grub-install", "--recheck", "--root-directory="},
		})).To(Succeed())
		found := false
		for _, c := range runner.GetCmds() {
			for _, a := range c {
				if a == "--force" {
					found = true
				}
			}
		}
		Expect(found).To(BeTrue())
	})
})
