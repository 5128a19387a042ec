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

// Package bootcfgerror classifies the errors the boot-config engine can
// raise, so the CLI boundary can report a single-line message while
// still letting callers distinguish, say, a malformed configuration from
// a failed grub-install invocation.
package bootcfgerror

import "fmt"

// Kind classifies the failure that produced an Error.
type Kind int

const (
	// ConfigParse covers malformed XML, a wrong root element, an
	// unexpected value tag, a missing required key, an invalid integer,
	// or an invalid fs_identifier.
	ConfigParse Kind = iota
	// UserAuth covers a user without any password source, or an invalid
	// hashed-password prefix.
	UserAuth
	// FilesystemIO covers a failed copy, rename, mkdir, read, chmod, or
	// symlink.
	FilesystemIO
	// NotInStore covers a kernel/initrd path outside /nix/store.
	NotInStore
	// SubprocessFailure covers a non-zero exit from grub-install,
	// os-prober, the shell, or the initrd-secrets hook for the current
	// system.
	SubprocessFailure
	// StateCorruption covers a state file present but unparseable. The
	// state loader handles such a file as empty and does not return an
	// error of this kind.
	StateCorruption
)

func (k Kind) String() string {
	switch k {
	case ConfigParse:
		return "config parse"
	case UserAuth:
		return "user auth"
	case FilesystemIO:
		return "filesystem io"
	case NotInStore:
		return "not in store"
	case SubprocessFailure:
		return "subprocess failure"
	case StateCorruption:
		return "state corruption"
	default:
		return "unknown"
	}
}

// Error is a Kind-tagged error that wraps the underlying cause.
type Error struct {
	Kind    Kind
	Subject string
	Err     error
}

func (e *Error) Error() string {
	if e.Subject == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s (%s): %s", e.Kind, e.Subject, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err as a Kind-tagged Error identifying subject (the offending
// key, user name or path); subject may be empty.
func New(kind Kind, subject string, err error) *Error {
	return &Error{Kind: kind, Subject: subject, Err: err}
}

// Newf is like New but builds the wrapped error from a format string.
func Newf(kind Kind, subject string, format string, args ...any) *Error {
	return New(kind, subject, fmt.Errorf(format, args...))
}
