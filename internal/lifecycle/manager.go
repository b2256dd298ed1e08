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

	"github.com/compiler-explorer/fleetctl/internal/environment"
	"github.com/compiler-explorer/fleetctl/internal/gateway"
	"github.com/compiler-explorer/fleetctl/internal/logging"
	"github.com/compiler-explorer/fleetctl/internal/registry"
)

// Manager drives the Rolling Lifecycle Manager's operations against a
// Gateway and the Instance Registry snapshot it reads from.
type Manager struct {
	gw  *gateway.Gateway
	reg *registry.Registry
}

// New returns a Manager driving calls through gw, using reg for
// consistent instance snapshots.
func New(gw *gateway.Gateway, reg *registry.Registry) *Manager {
	return &Manager{gw: gw, reg: reg}
}

func (m *Manager) findInstance(ctx context.Context, env environment.Environment, instanceID string) (registry.Instance, error) {
	snap, err := m.reg.Snapshot(ctx, env)
	if err != nil {
		return registry.Instance{}, &LifecycleError{Kind: KindCloud, Instance: instanceID, Stage: "lookup", Cause: err}
	}
	inst, ok := snap.Find(instanceID)
	if !ok {
		return registry.Instance{}, &LifecycleError{Kind: KindNotFound, Instance: instanceID, Stage: "lookup"}
	}
	return inst, nil
}

// Isolate implements §4.E isolate: protect, standby, deregister, mark —
// in that strict order, so a concurrent scale-in can never kill an
// instance mid-isolation.
func (m *Manager) Isolate(ctx context.Context, env environment.Environment, instanceID string) error {
	ctx = logging.Named(ctx, "lifecycle")
	log := logging.FromContext(ctx)

	inst, err := m.findInstance(ctx, env, instanceID)
	if err != nil {
		return err
	}

	compute, err := m.gw.Compute(ctx)
	if err != nil {
		return err
	}
	if err := compute.SetInstanceProtection(ctx, instanceID, true, true); err != nil {
		return &LifecycleError{Kind: KindCloud, Instance: instanceID, Stage: "protect", Cause: err}
	}

	asg, err := m.gw.ASG(ctx)
	if err != nil {
		return err
	}
	asgName := registry.ASGName(env, inst.Color)
	if err := asg.SetScaleInProtection(ctx, asgName, []string{instanceID}, true); err != nil {
		return &LifecycleError{Kind: KindCloud, Instance: instanceID, Stage: "protect", Cause: err}
	}
	if err := asg.EnterStandby(ctx, asgName, instanceID); err != nil {
		return &LifecycleError{Kind: KindCloud, Instance: instanceID, Stage: "standby", Cause: err}
	}

	lb, err := m.gw.LoadBalancer(ctx)
	if err != nil {
		return err
	}
	tgARN := registry.TargetGroupARN(env, inst.Color)
	if err := lb.Deregister(ctx, tgARN, instanceID); err != nil {
		return &LifecycleError{Kind: KindCloud, Instance: instanceID, Stage: "deregister", Cause: err}
	}

	store, err := m.gw.ParameterStore(ctx)
	if err != nil {
		return err
	}
	if err := store.Put(ctx, registry.IsolatedMarkerKey(env, instanceID), "true", false); err != nil {
		return &LifecycleError{Kind: KindCloud, Instance: instanceID, Stage: "mark", Cause: err}
	}

	log.Infof("isolated instance %s in %s", instanceID, env.Name)
	return nil
}

// TerminateIsolated implements §4.E terminate_isolated: reject unless the
// instance is standby and carries the isolated marker, then remove
// protections and terminate. The ASG replaces it automatically.
func (m *Manager) TerminateIsolated(ctx context.Context, env environment.Environment, instanceID string) error {
	ctx = logging.Named(ctx, "lifecycle")
	log := logging.FromContext(ctx)

	inst, err := m.findInstance(ctx, env, instanceID)
	if err != nil {
		return err
	}
	if inst.Lifecycle != registry.StateStandby {
		return &LifecycleError{Kind: KindPrecondition, Instance: instanceID, Stage: "precondition",
			Cause: fmt.Errorf("instance is %s, not standby", inst.Lifecycle)}
	}

	store, err := m.gw.ParameterStore(ctx)
	if err != nil {
		return err
	}
	marked, found, err := store.Get(ctx, registry.IsolatedMarkerKey(env, instanceID))
	if err != nil {
		return &LifecycleError{Kind: KindCloud, Instance: instanceID, Stage: "precondition", Cause: err}
	}
	if !found || marked != "true" {
		return &LifecycleError{Kind: KindPrecondition, Instance: instanceID, Stage: "precondition",
			Cause: fmt.Errorf("instance does not carry the isolated marker")}
	}

	asg, err := m.gw.ASG(ctx)
	if err != nil {
		return err
	}
	asgName := registry.ASGName(env, inst.Color)
	if err := asg.SetScaleInProtection(ctx, asgName, []string{instanceID}, false); err != nil {
		return &LifecycleError{Kind: KindCloud, Instance: instanceID, Stage: "unprotect", Cause: err}
	}

	compute, err := m.gw.Compute(ctx)
	if err != nil {
		return err
	}
	if err := compute.SetInstanceProtection(ctx, instanceID, false, false); err != nil {
		return &LifecycleError{Kind: KindCloud, Instance: instanceID, Stage: "unprotect", Cause: err}
	}
	if err := compute.Terminate(ctx, instanceID); err != nil {
		return &LifecycleError{Kind: KindCloud, Instance: instanceID, Stage: "terminate", Cause: err}
	}

	// the parameter store rejects empty values, so "false" is the cleared
	// representation.
	if err := store.Put(ctx, registry.IsolatedMarkerKey(env, instanceID), "false", false); err != nil {
		log.Warnf("clearing isolated marker for %s: %v", instanceID, err)
	}

	log.Infof("terminated isolated instance %s in %s", instanceID, env.Name)
	return nil
}
