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

package sys

import (
	"context"
	"os/exec"

	"github.com/nixos-infra/grub-install/pkg/log"
	"github.com/nixos-infra/grub-install/pkg/sys/runner"
	"github.com/nixos-infra/grub-install/pkg/vfs"
)

// Runner executes subprocesses on behalf of the boot-config engine.
type Runner interface {
	// RunCaptured runs cmd and returns its stdout; stderr is forwarded to
	// the parent process.
	RunCaptured(ctx context.Context, cmd string, args ...string) ([]byte, error)
	// RunForwarded runs cmd with stdout/stderr inherited from the parent
	// process, so interactive or verbose tools stream straight through.
	RunForwarded(ctx context.Context, cmd string, args ...string) error
}

// System bundles the filesystem, subprocess runner and logger that every
// boot-config component depends on, so production code runs against the
// real OS while tests substitute a scratch filesystem and a recording
// runner.
type System struct {
	logger log.Logger
	fs     vfs.FS
	runner Runner
}

type SystemOpts func(a *System) error

func WithFS(fs vfs.FS) SystemOpts {
	return func(s *System) error {
		s.fs = fs
		return nil
	}
}

func WithLogger(logger log.Logger) SystemOpts {
	return func(s *System) error {
		s.logger = logger
		return nil
	}
}

func WithRunner(r Runner) SystemOpts {
	return func(s *System) error {
		s.runner = r
		return nil
	}
}

func NewSystem(opts ...SystemOpts) (*System, error) {
	logger := log.New()
	sysObj := &System{
		fs:     vfs.OSFS(),
		logger: logger,
	}

	for _, o := range opts {
		if err := o(sysObj); err != nil {
			return nil, err
		}
	}

	// Defer the runner creation in case the caller set a custom logger.
	if sysObj.runner == nil {
		sysObj.runner = runner.NewRunner(runner.WithLogger(sysObj.logger))
	}

	return sysObj, nil
}

func (s System) FS() vfs.FS {
	return s.fs
}

func (s System) Runner() Runner {
	return s.runner
}

func (s System) Logger() log.Logger {
	return s.logger
}

// CommandExists reports whether command can be found on PATH.
func CommandExists(command string) bool {
	_, err := exec.LookPath(command)
	return err == nil
}
