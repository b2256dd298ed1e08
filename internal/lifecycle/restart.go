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

package lifecycle

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/compiler-explorer/fleetctl/internal/config"
	"github.com/compiler-explorer/fleetctl/internal/environment"
	"github.com/compiler-explorer/fleetctl/internal/gateway"
	"github.com/compiler-explorer/fleetctl/internal/logging"
	"github.com/compiler-explorer/fleetctl/internal/registry"
)

// drainPollInterval/drainTimeout bound how long restart_one waits for a
// deregistered target to finish draining (§4.E restart_one: "bounded").
const (
	drainPollInterval   = 5 * time.Second
	drainTimeout        = 5 * time.Minute
	healthPollInterval  = 5 * time.Second
	healthTimeout       = 5 * time.Minute
	refreshPollInterval = 15 * time.Second
)

// RestartOne implements §4.E restart_one: deregister, wait for draining,
// restart the worker service, re-register, wait for healthy.
func (m *Manager) RestartOne(ctx context.Context, env environment.Environment, instanceID string) error {
	ctx = logging.Named(ctx, "lifecycle")
	log := logging.FromContext(ctx)

	inst, err := m.findInstance(ctx, env, instanceID)
	if err != nil {
		return err
	}
	tgARN := registry.TargetGroupARN(env, inst.Color)

	lb, err := m.gw.LoadBalancer(ctx)
	if err != nil {
		return err
	}
	if err := lb.Deregister(ctx, tgARN, instanceID); err != nil {
		return &LifecycleError{Kind: KindCloud, Instance: instanceID, Stage: "deregister", Cause: err}
	}

	if err := m.awaitDrained(ctx, lb, tgARN, instanceID); err != nil {
		return err
	}

	commander, err := m.gw.Commander(ctx)
	if err != nil {
		return err
	}
	if err := commander.RestartService(ctx, instanceID); err != nil {
		return &LifecycleError{Kind: KindCloud, Instance: instanceID, Stage: "restart", Cause: err}
	}

	if err := lb.Register(ctx, tgARN, instanceID); err != nil {
		return &LifecycleError{Kind: KindCloud, Instance: instanceID, Stage: "register", Cause: err}
	}

	if err := m.awaitInstanceHealthy(ctx, lb, tgARN, instanceID); err != nil {
		return err
	}

	log.Infof("restarted instance %s in %s", instanceID, env.Name)
	return nil
}

func (m *Manager) awaitDrained(ctx context.Context, lb gateway.LoadBalancer, tgARN, instanceID string) error {
	deadline := time.Now().Add(drainTimeout)
	for {
		health, err := lb.DescribeTargetHealth(ctx, tgARN)
		if err != nil {
			return &LifecycleError{Kind: KindCloud, Instance: instanceID, Stage: "drain", Cause: err}
		}
		if !targetStateIs(health, instanceID, gateway.TargetDraining) {
			return nil
		}
		if time.Now().After(deadline) {
			return &LifecycleError{Kind: KindDrainTimeout, Instance: instanceID, Stage: "drain",
				Cause: fmt.Errorf("still draining after %s", drainTimeout)}
		}
		if !sleepCtx(ctx, drainPollInterval) {
			return &LifecycleError{Kind: KindDrainTimeout, Instance: instanceID, Stage: "drain", Cause: ctx.Err()}
		}
	}
}

func (m *Manager) awaitInstanceHealthy(ctx context.Context, lb gateway.LoadBalancer, tgARN, instanceID string) error {
	deadline := time.Now().Add(healthTimeout)
	for {
		health, err := lb.DescribeTargetHealth(ctx, tgARN)
		if err != nil {
			return &LifecycleError{Kind: KindCloud, Instance: instanceID, Stage: "health", Cause: err}
		}
		if targetStateIs(health, instanceID, gateway.TargetHealthy) {
			return nil
		}
		if time.Now().After(deadline) {
			return &LifecycleError{Kind: KindHealthTimeout, Instance: instanceID, Stage: "health",
				Cause: fmt.Errorf("not healthy after %s", healthTimeout)}
		}
		if !sleepCtx(ctx, healthPollInterval) {
			return &LifecycleError{Kind: KindHealthTimeout, Instance: instanceID, Stage: "health", Cause: ctx.Err()}
		}
	}
}

func targetStateIs(health []gateway.TargetHealth, instanceID, state string) bool {
	for _, h := range health {
		if h.InstanceID == instanceID {
			return h.State == state
		}
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// Restart implements §4.E restart: iterate active-color instances one at
// a time (the documented default concurrency), refusing to start the
// next restart if doing so would drop the healthy count below
// ceil(total * min_healthy_percent / 100). Each instance is cycled at
// most once; the loop ends when every healthy instance has been.
func (m *Manager) Restart(ctx context.Context, env environment.Environment, cfg config.Config) error {
	ctx = logging.Named(ctx, "lifecycle")
	log := logging.FromContext(ctx)

	active, err := m.reg.ActiveColor(ctx, env)
	if err != nil {
		return &LifecycleError{Kind: KindCloud, Stage: "restart", Cause: err}
	}

	minHealthyPercent := cfg.MinHealthyPercent
	if minHealthyPercent == 0 {
		minHealthyPercent = 75
	}

	cycled := map[string]bool{}
	for {
		snap, err := m.reg.Snapshot(ctx, env)
		if err != nil {
			return &LifecycleError{Kind: KindCloud, Stage: "restart", Cause: err}
		}
		targets := snap.ByColor(active)
		total := len(targets)
		required := int(math.Ceil(float64(total) * float64(minHealthyPercent) / 100))

		var next *registry.Instance
		for i := range targets {
			if targets[i].IsHealthy() && !cycled[targets[i].InstanceID] {
				inst := targets[i]
				next = &inst
				break
			}
		}
		if next == nil {
			log.Infof("restart of %s complete: cycled %d instance(s)", env.Name, len(cycled))
			return nil
		}

		healthy := snap.HealthyCount(active)
		if healthy-1 < required {
			return &LifecycleError{Kind: KindPrecondition, Instance: next.InstanceID, Stage: "restart",
				Cause: fmt.Errorf("restarting %s would drop healthy count to %d, below required %d", next.InstanceID, healthy-1, required)}
		}

		if err := m.RestartOne(ctx, env, next.InstanceID); err != nil {
			return err
		}
		cycled[next.InstanceID] = true
	}
}

// Refresh implements §4.E refresh: delegate to the ASG's native
// rolling-replace primitive for the active color, then poll completion.
func (m *Manager) Refresh(ctx context.Context, env environment.Environment, cfg config.Config) error {
	ctx = logging.Named(ctx, "lifecycle")
	log := logging.FromContext(ctx)

	minHealthyPercent := int32(cfg.MinHealthyPercent)
	if minHealthyPercent == 0 {
		minHealthyPercent = 75
	}

	active, err := m.reg.ActiveColor(ctx, env)
	if err != nil {
		return &LifecycleError{Kind: KindCloud, Stage: "refresh", Cause: err}
	}
	asgName := registry.ASGName(env, active)

	asg, err := m.gw.ASG(ctx)
	if err != nil {
		return err
	}
	refreshID, err := asg.Refresh(ctx, asgName, minHealthyPercent)
	if err != nil {
		return &LifecycleError{Kind: KindCloud, Stage: "refresh", Cause: err}
	}

	deadline := time.Now().Add(cfg.DeployTimeout)
	for {
		status, err := asg.RefreshStatus(ctx, asgName, refreshID)
		if err != nil {
			return &LifecycleError{Kind: KindCloud, Stage: "refresh", Cause: err}
		}
		switch status.Status {
		case gateway.RefreshStatusSuccessful:
			log.Infof("refresh of %s complete", asgName)
			return nil
		case gateway.RefreshStatusFailed, gateway.RefreshStatusCancelled:
			return &LifecycleError{Kind: KindCloud, Stage: "refresh",
				Cause: fmt.Errorf("instance refresh ended in state %s", status.Status)}
		}
		if time.Now().After(deadline) {
			return &LifecycleError{Kind: KindHealthTimeout, Stage: "refresh",
				Cause: fmt.Errorf("refresh still %s after %s", status.Status, cfg.DeployTimeout)}
		}
		if !sleepCtx(ctx, refreshPollInterval) {
			return &LifecycleError{Kind: KindHealthTimeout, Stage: "refresh", Cause: ctx.Err()}
		}
	}
}
