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

// Package deploy implements the Blue/Green Controller (§4.D): the ten-
// state deploy state machine driving a version rollout across an
// environment's two color-ASGs.
package deploy

import (
	"fmt"

	"github.com/compiler-explorer/fleetctl/internal/config"
	"github.com/compiler-explorer/fleetctl/internal/environment"
	"github.com/compiler-explorer/fleetctl/internal/registry"
)

// Plan is the ephemeral value built at PLAN and mutated only by the
// controller for the remainder of the deploy (§3).
type Plan struct {
	Environment     environment.Environment `json:"-"`
	EnvironmentName string                  `json:"environment"`
	Version         string                  `json:"version"`
	InactiveColor   registry.Color          `json:"inactiveColor"`
	PreDeployActive registry.Color          `json:"preDeployActiveColor"`
	// PreDeployActiveVersion is what the active side was serving when the
	// plan was computed — the "old version" a live-notification announces
	// the change from.
	PreDeployActiveVersion string `json:"preDeployActiveVersion"`
	// PreDeployVersion is the inactive side's version key before this
	// deploy overwrote it, restored on rollback.
	PreDeployVersion   string                    `json:"preDeployInactiveVersion"`
	DesiredCapacity    int32                     `json:"desiredCapacity"`
	MinHealthyPercent  int32                     `json:"minHealthyPercent"`
	NotificationPolicy config.NotificationPolicy `json:"notificationPolicy"`
}

// State is one of the ten states the deploy machine moves through (§4.D),
// plus the ROLLBACK state entered on failure.
type State string

const (
	StatePlan          State = "PLAN"
	StateRecordVersion State = "RECORD_VERSION"
	StateScaleUp       State = "SCALE_UP"
	StateAwaitHealthy  State = "AWAIT_HEALTHY"
	StateSwitch        State = "SWITCH"
	StateProtectNew    State = "PROTECT_NEW"
	StateScaleDownOld  State = "SCALE_DOWN_OLD"
	StateRoutingSync   State = "ROUTING_SYNC"
	StateNotify        State = "NOTIFY"
	StateDone          State = "DONE"
	StateRollback      State = "ROLLBACK"
)

// StageError reports which state a deploy failed in, for both the
// operator-facing error message and ROLLBACK bookkeeping.
type StageError struct {
	Stage State
	Cause error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("deploy failed at stage %s: %v", e.Stage, e.Cause)
}

func (e *StageError) Unwrap() error { return e.Cause }
