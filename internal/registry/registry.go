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

// Package registry implements the Instance Registry (§4.C): producing a
// consistent, never-cached snapshot of instances for an environment, and
// resolving the active/inactive color from the parameter store.
package registry

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/compiler-explorer/fleetctl/internal/environment"
	"github.com/compiler-explorer/fleetctl/internal/gateway"
	"github.com/compiler-explorer/fleetctl/internal/logging"
)

// maxFanout bounds concurrent description calls per snapshot, per §5:
// "a task pool sized to min(16, desired_fanout)".
const maxFanout = 16

// Registry produces Instance Registry snapshots against a Gateway.
type Registry struct {
	gw *gateway.Gateway
}

// New returns a Registry driving calls through gw.
func New(gw *gateway.Gateway) *Registry {
	return &Registry{gw: gw}
}

// ASGName returns the naming-convention ASG name for one color of env. An
// environment without blue/green enabled has a single ASG addressed with
// ColorNone. Exported for use by internal/lifecycle, which must resolve an
// instance's owning ASG by color without re-deriving this convention.
func ASGName(env environment.Environment, color Color) string {
	if !env.BlueGreenEnabled || color == ColorNone {
		return env.ASGNamePrefix
	}
	return fmt.Sprintf("%s-%s", env.ASGNamePrefix, color)
}

// TargetGroupARN returns the naming-convention target-group reference for
// one color of env. In a real deployment this is a full ARN resolved at
// setup time; the tool treats it as an opaque string handed to the
// load-balancer adapter.
func TargetGroupARN(env environment.Environment, color Color) string {
	if !env.BlueGreenEnabled || color == ColorNone {
		return env.TargetGroupPrefix + "-tg"
	}
	return fmt.Sprintf("%s-%s-tg", env.TargetGroupPrefix, color)
}

// colorsOf returns the colors an environment's instances can be bucketed
// under: both sides for blue/green environments, just ColorNone otherwise.
func colorsOf(env environment.Environment) []Color {
	if !env.BlueGreenEnabled {
		return []Color{ColorNone}
	}
	return []Color{ColorBlue, ColorGreen}
}

// IsolatedMarkerKey is the parameter-store key recording the persistent
// "isolated" tag an instance carries once the Rolling Lifecycle Manager's
// isolate completes (§4.E isolate, step d). Shared between
// internal/lifecycle, which sets and clears it, and Snapshot below, which
// reads it back to populate Instance.Isolated.
func IsolatedMarkerKey(env environment.Environment, instanceID string) string {
	return env.ParameterKey("isolated/" + instanceID)
}

// Snapshot enumerates every instance across env's ASG(s), cross-references
// each against its target group's health table, and buckets by color and
// health (§4.C). The read is not cached: every call re-queries the cloud.
func (r *Registry) Snapshot(ctx context.Context, env environment.Environment) (Snapshot, error) {
	ctx = logging.Named(ctx, "registry")
	asg, err := r.gw.ASG(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	lb, err := r.gw.LoadBalancer(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	store, err := r.gw.ParameterStore(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	colors := colorsOf(env)
	type colorResult struct {
		color     Color
		instances []gateway.ASGInstance
		health    map[string]gateway.TargetHealth
	}
	results := make([]colorResult, len(colors))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(maxFanout, len(colors)*2))
	for idx, color := range colors {
		idx, color := idx, color
		g.Go(func() error {
			instances, err := asg.ListInstances(gctx, ASGName(env, color))
			if err != nil && !gateway.IsNotFound(err) {
				return err
			}
			health, err := lb.DescribeTargetHealth(gctx, TargetGroupARN(env, color))
			if err != nil && !gateway.IsNotFound(err) {
				return err
			}
			byID := make(map[string]gateway.TargetHealth, len(health))
			for _, h := range health {
				byID[h.InstanceID] = h
			}
			results[idx] = colorResult{color: color, instances: instances, health: byID}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}

	type candidate struct {
		inst   gateway.ASGInstance
		color  Color
		health Health
	}
	var candidates []candidate
	for _, res := range results {
		for _, inst := range res.instances {
			h, ok := res.health[inst.InstanceID]
			health := Health(gateway.TargetUnused)
			if ok {
				health = Health(h.State)
			}
			candidates = append(candidates, candidate{inst: inst, color: res.color, health: health})
		}
	}

	// The isolated marker is a per-instance parameter-store key set by
	// lifecycle.Isolate and cleared by lifecycle.TerminateIsolated; fan
	// the lookups out the same way the per-color describe calls above do,
	// so a snapshot taken right after isolate completes actually reports
	// the instance as isolated instead of silently dropping it (§4.C,
	// cross-referenced with §4.E's isolate marker).
	isolated := make([]bool, len(candidates))
	if len(candidates) > 0 {
		mg, mgctx := errgroup.WithContext(ctx)
		mg.SetLimit(min(maxFanout, len(candidates)))
		for idx, c := range candidates {
			idx, c := idx, c
			mg.Go(func() error {
				marked, found, err := store.Get(mgctx, IsolatedMarkerKey(env, c.inst.InstanceID))
				if err != nil {
					return err
				}
				isolated[idx] = found && marked == "true"
				return nil
			})
		}
		if err := mg.Wait(); err != nil {
			return Snapshot{}, err
		}
	}

	out := make([]Instance, 0, len(candidates))
	for idx, c := range candidates {
		out = append(out, Instance{
			InstanceID: c.inst.InstanceID,
			Color:      c.color,
			Lifecycle:  fromASGLifecycle(c.inst.LifecycleState),
			Health:     c.health,
			Isolated:   isolated[idx],
			// TerminationProtected mirrors the ASG-reported ScaleInProtected
			// flag: Isolate and TerminateIsolated always toggle both
			// protections together (§4.E), so the flag ListInstances
			// already returns is a faithful stand-in without a second,
			// per-instance EC2 describe-instance-attribute call.
			Protection: ProtectionFlags{
				ScaleInProtected:     c.inst.ScaleInProtected,
				TerminationProtected: c.inst.ScaleInProtected,
			},
		})
	}

	logging.FromContext(ctx).Debugf("snapshot for %s: %d instances", env.Name, len(out))
	return Snapshot{Environment: string(env.Name), Instances: out}, nil
}

// fromASGLifecycle maps the ASG's own lifecycle-state vocabulary onto the
// tool's closed LifecycleState enum (§3).
func fromASGLifecycle(s string) LifecycleState {
	switch s {
	case "Pending", "Pending:Wait", "Pending:Proceed":
		return StatePending
	case "InService":
		return StateInService
	case "Standby":
		return StateStandby
	case "Terminating", "Terminating:Wait", "Terminating:Proceed", "Terminated":
		return StateTerminating
	default:
		return StatePending
	}
}

// ActiveColor reads the well-known active-color key for env from the
// parameter store (§4.C).
func (r *Registry) ActiveColor(ctx context.Context, env environment.Environment) (Color, error) {
	store, err := r.gw.ParameterStore(ctx)
	if err != nil {
		return "", err
	}
	value, found, err := store.Get(ctx, env.ParameterKey("active-color"))
	if err != nil {
		return "", err
	}
	if !found {
		return ColorNone, nil
	}
	return Color(value), nil
}

// InactiveColor is the inverse of ActiveColor; it fails if env currently
// has no active color recorded.
func (r *Registry) InactiveColor(ctx context.Context, env environment.Environment) (Color, error) {
	active, err := r.ActiveColor(ctx, env)
	if err != nil {
		return "", err
	}
	return Invert(active)
}
