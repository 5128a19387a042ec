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

package menu

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/nixos-infra/grub-install/pkg/vfs"
)

const (
	profilesRoot     = "/nix/var/nix/profiles"
	systemProfile    = "system"
	systemProfileDir = "system-profiles"
)

var profileNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

func (b *Builder) appendDefaultEntries(ctx context.Context) error {
	extraEntries := strings.ReplaceAll(b.cfg.ExtraEntries, "@bootRoot@", b.resolved.Boot.GrubPath)

	if b.cfg.ExtraEntriesBeforeNixos && extraEntries != "" {
		b.writeln("%s", extraEntries)
	}

	if err := b.addGeneration(ctx, "@distroName@", "", b.defaultConfigPath, b.cfg.EntryOptions, true); err != nil {
		return err
	}

	if !b.cfg.ExtraEntriesBeforeNixos && extraEntries != "" {
		b.writeln("%s", extraEntries)
	}
	return nil
}

func (b *Builder) appendProfiles(ctx context.Context) error {
	if err := b.addProfile(ctx, filepath.Join(profilesRoot, systemProfile), "@distroName@ - All configurations"); err != nil {
		return err
	}

	profilesDir := filepath.Join(profilesRoot, systemProfileDir)
	exists, err := vfs.Exists(b.fs, profilesDir, true)
	if err != nil {
		return ioErr(profilesDir, err)
	}
	if !exists {
		return nil
	}

	entries, err := b.fs.ReadDir(profilesDir)
	if err != nil {
		return ioErr(profilesDir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		if !profileNamePattern.MatchString(name) {
			continue
		}
		profilePath := filepath.Join(profilesDir, name)
		desc := fmt.Sprintf("@distroName@ - Profile '%s'", name)
		if err := b.addProfile(ctx, profilePath, desc); err != nil {
			return err
		}
	}
	return nil
}

// addProfile emits the submenu listing every numbered generation link
// for profile, highest generation first, truncated to ConfigurationLimit.
func (b *Builder) addProfile(ctx context.Context, profile, description string) error {
	b.writeln(`submenu "%s" --class submenu {`, description)

	parent := filepath.Dir(profile)
	name := filepath.Base(profile)

	entries, err := b.fs.ReadDir(parent)
	if err != nil {
		return ioErr(parent, err)
	}

	type link struct {
		path string
		gen  uint64
	}
	var links []link
	for _, e := range entries {
		gen, ok := parseProfileLink(e.Name(), name)
		if !ok {
			continue
		}
		links = append(links, link{path: filepath.Join(parent, e.Name()), gen: gen})
	}
	sort.Slice(links, func(i, j int) bool { return links[i].gen > links[j].gen })

	limit := len(links)
	if b.cfg.ConfigurationLimit > 0 && b.cfg.ConfigurationLimit < limit {
		limit = b.cfg.ConfigurationLimit
	}

	for _, l := range links[:limit] {
		version, err := b.fs.ReadFile(filepath.Join(l.path, "nixos-version"))
		if err != nil {
			b.logger.Warn("skipping corrupt system profile entry %q", l.path)
			continue
		}
		date, err := b.generationDate(l.path)
		if err != nil {
			return err
		}

		entryName := fmt.Sprintf("@distroName@ - Configuration %d", l.gen)
		suffix := fmt.Sprintf(" (%s - %s)", date, strings.TrimSpace(string(version)))
		if err := b.addGeneration(ctx, entryName, suffix, l.path, b.cfg.SubEntryOptions, false); err != nil {
			return err
		}
	}

	b.writeln("}")
	return nil
}

// parseProfileLink parses a "<profile>-<N>-link" file name, returning
// the generation number if it belongs to profileName.
func parseProfileLink(fileName, profileName string) (uint64, bool) {
	rest, ok := strings.CutSuffix(fileName, "-link")
	if !ok {
		return 0, false
	}
	prefix, genStr, ok := cutLastDash(rest)
	if !ok || prefix != profileName {
		return 0, false
	}
	gen, err := strconv.ParseUint(genStr, 10, 32)
	if err != nil {
		return 0, false
	}
	return gen, true
}

func cutLastDash(s string) (before, after string, ok bool) {
	i := strings.LastIndex(s, "-")
	if i < 0 {
		return "", "", false
	}
	return s[:i], s[i+1:], true
}

// addGeneration emits the top-level entry for path (named name+nameSuffix)
// plus one nested entry per specialisation sorted lexicographically. When
// current is false and specialisations exist, the whole group is wrapped
// in its own submenu; the current system's entries are always flat.
func (b *Builder) addGeneration(ctx context.Context, name, nameSuffix, path, options string, current bool) error {
	specDir := filepath.Join(path, "specialisation")
	var links []string
	if exists, err := vfs.Exists(b.fs, specDir, true); err != nil {
		return ioErr(specDir, err)
	} else if exists {
		entries, err := b.fs.ReadDir(specDir)
		if err != nil {
			return ioErr(specDir, err)
		}
		for _, e := range entries {
			links = append(links, filepath.Join(specDir, e.Name()))
		}
		sort.Strings(links)
	}

	if !current && len(links) > 0 {
		b.writeln(`submenu "> %s%s" --class submenu {`, name, nameSuffix)
	}

	fullName := name
	if len(links) > 0 {
		fullName += " - Default"
	}
	fullName += nameSuffix

	if err := b.addEntry(ctx, fullName, path, options, current); err != nil {
		return err
	}

	for _, link := range links {
		date, err := b.generationDate(link)
		if err != nil {
			return err
		}

		version, err := b.fs.ReadFile(filepath.Join(link, "nixos-version"))
		versionStr := strings.TrimSpace(string(version))
		if err != nil {
			versionStr, err = b.moduleVersionFallback(link)
			if err != nil {
				return err
			}
		}

		entryName, err := b.fs.ReadFile(filepath.Join(link, "configuration-name"))
		var label string
		if err == nil {
			label = strings.TrimSpace(string(entryName))
		} else {
			label = fmt.Sprintf("(%s - %s - %s)", filepath.Base(link), date, versionStr)
		}

		if err := b.addEntry(ctx, fullName+" - "+label, link, "", current); err != nil {
			return err
		}
	}

	if !current && len(links) > 0 {
		b.writeln("}")
	}
	return nil
}

// moduleVersionFallback deduces the NixOS version from the first entry
// of <canonicalised kernel>/../lib/modules, used only when a
// specialisation has no nixos-version file. Unlike the profile-level
// fallback (which simply skips a corrupt entry) this is fatal: a
// specialisation with neither file is an unrecoverable configuration
// error.
func (b *Builder) moduleVersionFallback(link string) (string, error) {
	kernel, err := vfs.Canonicalize(b.fs, filepath.Join(link, "kernel"))
	if err != nil {
		return "", ioErr(link, err)
	}
	modulesDir := filepath.Join(filepath.Dir(kernel), "lib/modules")

	entries, err := b.fs.ReadDir(modulesDir)
	if err != nil || len(entries) == 0 {
		return "", bootcfgErrf(link, "could not deduce the NixOS version")
	}
	return entries[0].Name(), nil
}

func (b *Builder) generationDate(link string) (string, error) {
	info, err := b.fs.Stat(link)
	if err != nil {
		return "", ioErr(link, err)
	}
	return info.ModTime().UTC().Format("2006-01-02"), nil
}

// addEntry emits a single menuentry block for path, staging its kernel,
// initrd, optional Xen hypervisor and optional initrd secrets through the
// shared kernel.Stager. A generation missing kernel or initrd is skipped
// silently, matching a defensive check upstream against incomplete
// generations.
func (b *Builder) addEntry(ctx context.Context, name, path, options string, current bool) error {
	kernelHost := filepath.Join(path, "kernel")
	initrdHost := filepath.Join(path, "initrd")

	kernelExists, err := vfs.Exists(b.fs, kernelHost, true)
	if err != nil {
		return ioErr(kernelHost, err)
	}
	initrdExists, err := vfs.Exists(b.fs, initrdHost, true)
	if err != nil {
		return ioErr(initrdHost, err)
	}
	if !kernelExists || !initrdExists {
		return nil
	}

	kernelCanon, err := vfs.Canonicalize(b.fs, kernelHost)
	if err != nil {
		return ioErr(kernelHost, err)
	}
	initrdCanon, err := vfs.Canonicalize(b.fs, initrdHost)
	if err != nil {
		return ioErr(initrdHost, err)
	}

	kernelPath, err := b.stager.Stage(kernelCanon)
	if err != nil {
		return err
	}
	initrdPath, err := b.stager.Stage(initrdCanon)
	if err != nil {
		return err
	}

	secretsPath, err := b.stager.StageSecrets(ctx, name, path, current)
	if err != nil {
		return err
	}

	initCanon, err := vfs.Canonicalize(b.fs, filepath.Join(path, "init"))
	if err != nil {
		return ioErr(path, err)
	}
	kernelParamsRaw, err := b.fs.ReadFile(filepath.Join(path, "kernel-params"))
	if err != nil {
		return ioErr(path, err)
	}
	kernelParams := "init=" + initCanon
	if params := strings.TrimSpace(string(kernelParamsRaw)); params != "" {
		kernelParams += " " + params
	}

	var xenPath, xenParams string
	xenHost := filepath.Join(path, "xen.gz")
	if xenExists, err := vfs.Exists(b.fs, xenHost, true); err != nil {
		return ioErr(xenHost, err)
	} else if xenExists {
		xenCanon, err := vfs.Canonicalize(b.fs, xenHost)
		if err != nil {
			return ioErr(xenHost, err)
		}
		xenPath, err = b.stager.Stage(xenCanon)
		if err != nil {
			return err
		}
		if raw, err := b.fs.ReadFile(filepath.Join(path, "xen-params")); err == nil {
			xenParams = strings.TrimRight(string(raw), "\n")
		}
	}

	opening := fmt.Sprintf(`menuentry "%s"`, name)
	if options != "" {
		opening += " " + options
	}
	b.writeln("%s {", opening)
	if b.cfg.DefaultEntryIsSaved() {
		b.writeln("  savedefault")
	}
	if b.resolved.Boot.SearchDirective != "" {
		b.writeln("  %s", b.resolved.Boot.SearchDirective)
	}
	if b.resolved.Store != nil && b.resolved.Store.SearchDirective != "" {
		b.writeln("  %s", b.resolved.Store.SearchDirective)
	}
	if b.cfg.ExtraPerEntryConfig != "" {
		b.writeln("  %s", b.cfg.ExtraPerEntryConfig)
	}

	initrdLine := initrdPath
	if secretsPath != "" {
		initrdLine += " " + secretsPath
	}

	if xenPath != "" {
		xenLine := xenPath
		if xenParams != "" {
			xenLine += " " + xenParams
		}
		b.writeln("  multiboot %s", xenLine)
		b.writeln("  module %s %s", kernelPath, kernelParams)
		b.writeln("  module %s", initrdLine)
	} else {
		b.writeln("  linux %s %s", kernelPath, kernelParams)
		b.writeln("  initrd %s", initrdLine)
	}
	b.writeln("}")
	b.writeln("")
	return nil
}
