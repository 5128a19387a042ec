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

// Package cleanstack provides a LIFO stack of cleanup callbacks, so
// multi-step operations can register teardown actions as they acquire
// resources and unwind them in reverse order regardless of how the
// operation ends.
package cleanstack

import "errors"

type runCondition int

const (
	always runCondition = iota
	errorOnly
	successOnly
)

// Job wraps a single cleanup callback and the condition under which
// Cleanup runs it.
type Job struct {
	callback func() error
	cond     runCondition
}

// Run executes the job's callback.
func (j *Job) Run() error {
	return j.callback()
}

// CleanStack is a LIFO stack of cleanup jobs.
type CleanStack struct {
	jobs []*Job
}

// NewCleanStack returns an empty CleanStack.
func NewCleanStack() *CleanStack {
	return &CleanStack{}
}

// Push registers a callback that Cleanup always runs.
func (c *CleanStack) Push(callback func() error) {
	c.jobs = append(c.jobs, &Job{callback: callback, cond: always})
}

// PushErrorOnly registers a callback that Cleanup only runs once an error
// has been observed, either passed into Cleanup or returned by a
// previously run job.
func (c *CleanStack) PushErrorOnly(callback func() error) {
	c.jobs = append(c.jobs, &Job{callback: callback, cond: errorOnly})
}

// PushSuccessOnly registers a callback that Cleanup only runs as long as
// no error has been observed yet.
func (c *CleanStack) PushSuccessOnly(callback func() error) {
	c.jobs = append(c.jobs, &Job{callback: callback, cond: successOnly})
}

// Pop removes and returns the most recently pushed job, or nil if the
// stack is empty.
func (c *CleanStack) Pop() *Job {
	if len(c.jobs) == 0 {
		return nil
	}
	job := c.jobs[len(c.jobs)-1]
	c.jobs = c.jobs[:len(c.jobs)-1]
	return job
}

// Cleanup runs every registered job in reverse push order and returns the
// accumulated error, starting from err. Whether an error-only or
// success-only job runs depends on whether an error has been observed by
// the time its turn comes, not only on err as passed in, so a failure
// partway through the stack still triggers error-only jobs queued ahead
// of it.
func (c *CleanStack) Cleanup(err error) error {
	hasError := err != nil

	for i := len(c.jobs) - 1; i >= 0; i-- {
		job := c.jobs[i]
		switch job.cond {
		case errorOnly:
			if !hasError {
				continue
			}
		case successOnly:
			if hasError {
				continue
			}
		}

		if jobErr := job.Run(); jobErr != nil {
			err = errors.Join(err, jobErr)
			hasError = true
		}
	}

	c.jobs = nil
	return err
}
