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

package kernel_test

import (
	"context"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nixos-infra/grub-install/pkg/bootloader/config"
	"github.com/nixos-infra/grub-install/pkg/bootloader/kernel"
	"github.com/nixos-infra/grub-install/pkg/bootloader/pathresolver"
	"github.com/nixos-infra/grub-install/pkg/log"
	mocksys "github.com/nixos-infra/grub-install/pkg/sys/mock"
	"github.com/nixos-infra/grub-install/pkg/vfs"
)

func TestKernelSuite(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Kernel stager test suite")
}

var _ = Describe("Stager", Label("kernel"), func() {
	var fs vfs.FS
	var cleanup func()
	var cfg *config.Configuration
	var resolved *pathresolver.Resolved
	var copied map[string]struct{}

	BeforeEach(func() {
		f, c, err := mocksys.TestFS(map[string]any{
			"nix/store/abc-kernel/bzImage": "kernel bytes",
			"boot": map[string]any{},
		})
		Expect(err).NotTo(HaveOccurred())
		fs = f
		cleanup = c

		cfg = &config.Configuration{BootPath: "/boot"}
		resolved = &pathresolver.Resolved{Boot: pathresolver.PathPair{GrubPath: "/"}}
		copied = map[string]struct{}{}
	})

	AfterEach(func() {
		cleanup()
	})

	It("copies a store path into <boot>/kernels and records it as copied", func() {
		s := kernel.NewStager(fs, nil, log.New(log.WithDiscardAll()), cfg, resolved, copied, false)

		grubPath, err := s.Stage("/nix/store/abc-kernel/bzImage")
		Expect(err).NotTo(HaveOccurred())
		Expect(grubPath).To(Equal("/kernels/abc-kernel-bzImage"))

		dst := "/boot/kernels/abc-kernel-bzImage"
		exists, err := vfs.Exists(fs, dst)
		Expect(err).NotTo(HaveOccurred())
		Expect(exists).To(BeTrue())
		Expect(copied).To(HaveKey(dst))

		tmpExists, err := vfs.Exists(fs, dst+".tmp")
		Expect(err).NotTo(HaveOccurred())
		Expect(tmpExists).To(BeFalse())
	})

	It("passes through to the store's grub path without copying when store is reachable", func() {
		resolved.Store = &pathresolver.PathPair{GrubPath: "/store"}
		s := kernel.NewStager(fs, nil, log.New(log.WithDiscardAll()), cfg, resolved, copied, false)

		grubPath, err := s.Stage("/nix/store/abc-kernel/bzImage")
		Expect(err).NotTo(HaveOccurred())
		Expect(grubPath).To(Equal("/store/abc-kernel/bzImage"))
		Expect(copied).To(BeEmpty())
	})

	It("rejects a path outside /nix/store", func() {
		s := kernel.NewStager(fs, nil, log.New(log.WithDiscardAll()), cfg, resolved, copied, false)

		_, err := s.Stage("/etc/passwd")
		Expect(err).To(HaveOccurred())
	})

	It("skips copying in dry-run mode but still records the path", func() {
		s := kernel.NewStager(fs, nil, log.New(log.WithDiscardAll()), cfg, resolved, copied, true)

		grubPath, err := s.Stage("/nix/store/abc-kernel/bzImage")
		Expect(err).NotTo(HaveOccurred())
		Expect(grubPath).To(Equal("/kernels/abc-kernel-bzImage"))

		exists, err := vfs.Exists(fs, "/boot/kernels/abc-kernel-bzImage")
		Expect(err).NotTo(HaveOccurred())
		Expect(exists).To(BeFalse())
		Expect(copied).To(HaveKey("/boot/kernels/abc-kernel-bzImage"))
	})

	Describe("StageSecrets", func() {
		It("returns empty when there is no append-initrd-secrets hook", func() {
			s := kernel.NewStager(fs, nil, log.New(log.WithDiscardAll()), cfg, resolved, copied, false)

			path, err := s.StageSecrets(context.Background(), "gen", "/nix/var/nix/profiles/system", true)
			Expect(err).NotTo(HaveOccurred())
			Expect(path).To(BeEmpty())
		})

		It("stages the hook's output and reports success for the current generation", func() {
			Expect(vfs.MkdirAll(fs, "/nix/var/nix/profiles/system", 0o755)).To(Succeed())
			Expect(fs.WriteFile("/nix/var/nix/profiles/system/append-initrd-secrets", []byte("#!/bin/sh\n"), 0o755)).To(Succeed())

			runner := &mocksys.Runner{
				SideEffect: func(command string, args ...string) ([]byte, error) {
					Expect(args).To(HaveLen(1))
					return nil, fs.WriteFile(args[0], []byte("secret-bytes"), vfs.FilePerm)
				},
			}

			s := kernel.NewStager(fs, runner, log.New(log.WithDiscardAll()), cfg, resolved, copied, false)
			path, err := s.StageSecrets(context.Background(), "gen", "/nix/var/nix/profiles/system", true)
			Expect(err).NotTo(HaveOccurred())
			Expect(path).To(Equal("/kernels/system-secrets"))
			Expect(copied).To(HaveKey("/boot/kernels/system-secrets"))
		})

		It("fails hard when the hook fails for the current generation", func() {
			Expect(vfs.MkdirAll(fs, "/nix/var/nix/profiles/system", 0o755)).To(Succeed())
			Expect(fs.WriteFile("/nix/var/nix/profiles/system/append-initrd-secrets", []byte("#!/bin/sh\n"), 0o755)).To(Succeed())

			runner := &mocksys.Runner{ReturnError: context.DeadlineExceeded}

			s := kernel.NewStager(fs, runner, log.New(log.WithDiscardAll()), cfg, resolved, copied, false)
			_, err := s.StageSecrets(context.Background(), "gen", "/nix/var/nix/profiles/system", true)
			Expect(err).To(HaveOccurred())
		})

		It("downgrades a hook failure on a historical generation to a warning", func() {
			Expect(vfs.MkdirAll(fs, "/nix/var/nix/profiles/system", 0o755)).To(Succeed())
			Expect(fs.WriteFile("/nix/var/nix/profiles/system/append-initrd-secrets", []byte("#!/bin/sh\n"), 0o755)).To(Succeed())

			runner := &mocksys.Runner{ReturnError: context.DeadlineExceeded}

			s := kernel.NewStager(fs, runner, log.New(log.WithDiscardAll()), cfg, resolved, copied, false)
			path, err := s.StageSecrets(context.Background(), "gen-17", "/nix/var/nix/profiles/system", false)
			Expect(err).NotTo(HaveOccurred())
			Expect(path).To(BeEmpty())
		})
	})
})
