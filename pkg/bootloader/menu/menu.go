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

// Package menu builds the text of grub.cfg: header, users, appearance,
// the default system entry, user-supplied extra entries and the
// per-profile sub-menus, in the fixed order GRUB expects them in.
// It writes to an in-memory buffer; on disk it only copies the font,
// splash image and theme under the boot path and stages kernels through
// the kernel.Stager it drives.
package menu

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/nixos-infra/grub-install/pkg/bootloader/bootcfgerror"
	"github.com/nixos-infra/grub-install/pkg/bootloader/config"
	"github.com/nixos-infra/grub-install/pkg/bootloader/kernel"
	"github.com/nixos-infra/grub-install/pkg/bootloader/pathresolver"
	"github.com/nixos-infra/grub-install/pkg/log"
	"github.com/nixos-infra/grub-install/pkg/vfs"
)

// Builder accumulates grub.cfg's text. Every filesystem mutation it
// performs (font/splash/theme copies) goes through the shared fs and is
// skipped when the builder is in dry-run mode, and
// every kernel/initrd reference is staged through a shared kernel.Stager
// so the copied-paths set stays consistent with the orchestrator.
type Builder struct {
	fs       vfs.FS
	logger   log.Logger
	cfg      *config.Configuration
	resolved *pathresolver.Resolved
	stager   *kernel.Stager
	dryRun   bool

	defaultConfigPath string
	buf               strings.Builder
}

// NewBuilder builds a Builder for the given configuration. defaultSystem
// is the second CLI positional argument: the store path of the system
// currently being activated.
func NewBuilder(fs vfs.FS, logger log.Logger, cfg *config.Configuration, resolved *pathresolver.Resolved, stager *kernel.Stager, defaultSystem string, dryRun bool) *Builder {
	return &Builder{
		fs:                fs,
		logger:            logger,
		cfg:               cfg,
		resolved:          resolved,
		stager:            stager,
		dryRun:            dryRun,
		defaultConfigPath: defaultSystem,
	}
}

// Build drives every section in order and returns the finished grub.cfg
// text, with the @distroName@ placeholder substituted throughout.
func (b *Builder) Build(ctx context.Context) (string, error) {
	steps := []func(context.Context) error{
		b.appendHeader,
		b.appendUsers,
		b.appendFont,
		b.appendSplash,
		b.appendTheme,
		b.appendExtraConfig,
		b.appendDefaultEntries,
		b.appendProfiles,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			return "", err
		}
	}
	return strings.ReplaceAll(b.buf.String(), "@distroName@", b.cfg.FullName), nil
}

func (b *Builder) writeln(format string, args ...any) {
	fmt.Fprintf(&b.buf, format, args...)
	b.buf.WriteByte('\n')
}

func (b *Builder) appendHeader(context.Context) error {
	if b.cfg.FsIdentifier != config.FsIdentifierProvided {
		b.writeln("%s", b.resolved.Boot.SearchDirective)
	}

	b.writeln("set timeout=%d", b.cfg.Timeout)
	b.writeln("set timeout_style=%s", b.cfg.TimeoutStyle)

	if b.cfg.DefaultEntryIsSaved() {
		b.writeln(`set default="${saved_entry}"`)
	} else {
		b.writeln("set default=%s", b.cfg.DefaultEntry)
	}
	return nil
}

func (b *Builder) appendUsers(context.Context) error {
	names := make([]string, 0, len(b.cfg.Users))
	for name := range b.cfg.Users {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		pw := b.cfg.Users[name]
		switch pw.Kind {
		case config.PasswordHashed:
			b.writeln("password_pbkdf2 %s %s", name, pw.Value)
		default:
			b.writeln("password %s %s", name, pw.Value)
		}
	}

	if len(names) > 0 {
		b.writeln(`set superusers="%s"`, strings.Join(names, " "))
	}
	return nil
}

func ioErr(subject string, err error) error {
	return bootcfgerror.New(bootcfgerror.FilesystemIO, subject, err)
}

func bootcfgErrf(subject, format string, args ...any) error {
	return bootcfgerror.Newf(bootcfgerror.FilesystemIO, subject, format, args...)
}
