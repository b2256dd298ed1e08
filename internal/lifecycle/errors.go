/*
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

// Package lifecycle implements the Rolling Lifecycle Manager (§4.E):
// isolating, terminating, restarting, and rolling-refreshing individual
// worker instances under a minimum-healthy-capacity invariant.
package lifecycle

import "fmt"

// ErrorKind is the closed set of ways a lifecycle operation can fail (§4.E).
type ErrorKind string

const (
	KindNotFound      ErrorKind = "not_found"
	KindPrecondition  ErrorKind = "precondition"
	KindDrainTimeout  ErrorKind = "drain_timeout"
	KindHealthTimeout ErrorKind = "health_timeout"
	KindCloud         ErrorKind = "cloud"
)

// LifecycleError reports which instance and stage a lifecycle operation
// failed at. State is left observably consistent on any partial failure:
// the caller reports the stage and stops rather than attempting
// opportunistic rollback (§4.E — "operator drives recovery").
type LifecycleError struct {
	Kind     ErrorKind
	Instance string
	Stage    string
	Cause    error
}

func (e *LifecycleError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("instance %s: stage %s: %s: %v", e.Instance, e.Stage, e.Kind, e.Cause)
	}
	return fmt.Sprintf("instance %s: stage %s: %s", e.Instance, e.Stage, e.Kind)
}

func (e *LifecycleError) Unwrap() error { return e.Cause }
