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

package pathresolver

import "golang.org/x/sys/unix"

// DeviceStatter reports the device id backing a path, used to detect
// whether the boot partition and the Nix store partition are the same
// block device. It is a narrow seam over unix.Stat so tests can fake it
// without needing real devices.
type DeviceStatter interface {
	DeviceID(path string) (uint64, error)
}

type osDeviceStatter struct{}

// OSDeviceStatter returns a DeviceStatter backed by real unix.Stat calls.
func OSDeviceStatter() DeviceStatter {
	return osDeviceStatter{}
}

func (osDeviceStatter) DeviceID(path string) (uint64, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return 0, err
	}
	return uint64(st.Dev), nil
}
