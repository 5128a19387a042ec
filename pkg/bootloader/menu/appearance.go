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
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/nixos-infra/grub-install/pkg/vfs"
)

func (b *Builder) appendFont(context.Context) error {
	dst := filepath.Join(b.cfg.BootPath, "converted-font.pf2")
	if !b.dryRun {
		if err := vfs.CopyFile(b.fs, b.cfg.Font, dst); err != nil {
			return ioErr(dst, err)
		}
	}

	grubFont := filepath.Join(b.resolved.Boot.GrubPath, "converted-font.pf2")
	b.writeln("insmod font")
	b.writeln("if loadfont %s; then", grubFont)
	b.writeln("  insmod gfxterm")
	b.writeln(`  if [ "${grub_platform}" = "efi" ]; then`)
	b.writeln("    set gfxmode=%s", b.cfg.GfxmodeEfi)
	b.writeln("    set gfxpayload=%s", b.cfg.GfxpayloadEfi)
	b.writeln("  else")
	b.writeln("    set gfxmode=%s", b.cfg.GfxmodeBios)
	b.writeln("    set gfxpayload=%s", b.cfg.GfxpayloadBios)
	b.writeln("  fi")
	b.writeln("  terminal_output gfxterm")
	b.writeln("fi")
	return nil
}

func (b *Builder) appendSplash(context.Context) error {
	if b.cfg.SplashImage == "" {
		return nil
	}

	ext := filepath.Ext(b.cfg.SplashImage)
	if ext == "" {
		return bootcfgErrf("splashImage", "splash image %q has no extension, cannot decide which module to load", b.cfg.SplashImage)
	}
	ext = ext[1:]
	if ext == "jpg" {
		ext = "jpeg"
	}

	target := "background." + ext
	dst := filepath.Join(b.cfg.BootPath, target)

	if b.cfg.BackgroundColor != "" {
		b.writeln("background_color '%s'", b.cfg.BackgroundColor)
	}

	if !b.dryRun {
		if err := vfs.CopyFile(b.fs, b.cfg.SplashImage, dst); err != nil {
			return ioErr(dst, err)
		}
	}

	grubTarget := filepath.Join(b.resolved.Boot.GrubPath, target)
	b.writeln("insmod %s", ext)
	b.writeln("if background_image --mode '%s' %s; then", b.cfg.SplashMode, grubTarget)
	b.writeln("  set color_normal=white/black")
	b.writeln("  set color_highlight=black/white")
	b.writeln("else")
	b.writeln("  set menu_color_normal=cyan/blue")
	b.writeln("  set menu_color_highlight=white/blue")
	b.writeln("fi")
	return nil
}

func (b *Builder) appendTheme(context.Context) error {
	themeDir := filepath.Join(b.cfg.BootPath, "theme")

	if !b.dryRun {
		if exists, err := vfs.Exists(b.fs, themeDir); err != nil {
			return ioErr(themeDir, err)
		} else if exists {
			if err := vfs.ForceRemoveAll(b.fs, themeDir); err != nil {
				return ioErr(themeDir, err)
			}
		}
	}

	if b.cfg.Theme == "" {
		return nil
	}

	modules := map[string]struct{}{}
	var fonts []string

	err := vfs.WalkDirFs(b.fs, b.cfg.Theme, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(b.cfg.Theme, path)
		if err != nil {
			return err
		}

		switch filepath.Ext(path) {
		case ".png":
			modules["png"] = struct{}{}
		case ".jpeg", ".jpg":
			modules["jpeg"] = struct{}{}
		case ".pf2":
			fonts = append(fonts, rel)
		}

		if !b.dryRun {
			dst := filepath.Join(themeDir, rel)
			if err := vfs.MkdirAll(b.fs, filepath.Dir(dst), vfs.DirPerm); err != nil {
				return err
			}
			if err := vfs.CopyFile(b.fs, path, dst); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return ioErr(b.cfg.Theme, err)
	}

	moduleNames := make([]string, 0, len(modules))
	for m := range modules {
		moduleNames = append(moduleNames, m)
	}
	sort.Strings(moduleNames)
	for _, m := range moduleNames {
		b.writeln("insmod %s", m)
	}

	grubTheme := filepath.Join(b.resolved.Boot.GrubPath, "theme")
	b.writeln("set theme=%s", filepath.Join(grubTheme, "theme.txt"))
	b.writeln("export theme")

	sort.Strings(fonts)
	for _, font := range fonts {
		b.writeln("loadfont %s", filepath.Join(grubTheme, font))
	}
	return nil
}

func (b *Builder) appendExtraConfig(context.Context) error {
	if b.cfg.ExtraConfig != "" {
		b.writeln("%s", b.cfg.ExtraConfig)
	}
	return nil
}
