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

// Package killswitch implements the Traffic Kill-Switch (§4.G): a direct,
// declarative-infrastructure-bypassing mutation of a listener rule's
// path-pattern, for seconds-scale recovery.
package killswitch

import (
	"context"
	"fmt"
	"time"

	"github.com/compiler-explorer/fleetctl/internal/deploy"
	"github.com/compiler-explorer/fleetctl/internal/environment"
	"github.com/compiler-explorer/fleetctl/internal/gateway"
	"github.com/compiler-explorer/fleetctl/internal/logging"
)

// sentinelPathPattern cannot match any real request, so traffic falls
// through to the fallback rule within seconds of being set (§4.G disable).
const sentinelPathPattern = "/__disabled__"

// Status is the classification status(env) reports for one environment's
// primary compilation rule.
type Status string

const (
	StatusEnabled          Status = "enabled"
	StatusKillswitchActive Status = "killswitch_active"
	StatusNotFound         Status = "not_found"
)

// Driver mutates the primary listener rule directly through the Gateway's
// load-balancer adapter.
type Driver struct {
	gw *gateway.Gateway
}

// New returns a Driver driving calls through gw.
func New(gw *gateway.Gateway) *Driver {
	return &Driver{gw: gw}
}

// findPrimaryRule locates the non-default rule on env's listener whose
// current path patterns are either the well-known template or the
// disabled sentinel — the "primary" compilation-path rule (§4.G).
func findPrimaryRule(ctx context.Context, lb gateway.LoadBalancer, env environment.Environment) (gateway.ListenerRule, Status, error) {
	rules, err := lb.DescribeListenerRules(ctx, env.ListenerARN)
	if err != nil {
		return gateway.ListenerRule{}, "", err
	}
	for _, r := range rules {
		if r.IsDefault {
			continue
		}
		if containsPattern(r.PathPatterns, sentinelPathPattern) {
			return r, StatusKillswitchActive, nil
		}
		if containsPattern(r.PathPatterns, env.PrimaryPathPattern) {
			return r, StatusEnabled, nil
		}
	}
	return gateway.ListenerRule{}, StatusNotFound, nil
}

func containsPattern(patterns []string, want string) bool {
	for _, p := range patterns {
		if p == want {
			return true
		}
	}
	return false
}

// refuseDuringDeploy rejects a rule mutation while env's deploy lock is
// held: the active-color key and the listener rule form the traffic-switch
// commit, and only one writer may touch them at a time (§5).
func (d *Driver) refuseDuringDeploy(ctx context.Context, env environment.Environment) error {
	store, err := d.gw.ParameterStore(ctx)
	if err != nil {
		return err
	}
	owner, until, held, err := deploy.LockHeld(ctx, store, env)
	if err != nil {
		return err
	}
	if held {
		return fmt.Errorf("refusing to mutate listener rules for %s: deploy-lock held by %s until %s", env.Name, owner, until.Format(time.RFC3339))
	}
	return nil
}

// Disable mutates the primary rule's path-pattern to the sentinel,
// falling traffic through to the fallback target group within seconds
// (§4.G disable).
func (d *Driver) Disable(ctx context.Context, env environment.Environment) error {
	ctx = logging.Named(ctx, "killswitch")
	log := logging.FromContext(ctx)

	if err := d.refuseDuringDeploy(ctx, env); err != nil {
		return err
	}
	lb, err := d.gw.LoadBalancer(ctx)
	if err != nil {
		return err
	}
	rule, status, err := findPrimaryRule(ctx, lb, env)
	if err != nil {
		return err
	}
	switch status {
	case StatusNotFound:
		return fmt.Errorf("no primary rule found on listener %s for %s", env.ListenerARN, env.Name)
	case StatusKillswitchActive:
		log.Infof("kill-switch already active for %s", env.Name)
		return nil
	}
	if err := lb.ModifyRulePathPattern(ctx, rule.ARN, []string{sentinelPathPattern}); err != nil {
		return err
	}
	log.Infof("kill-switch engaged for %s", env.Name)
	return nil
}

// Enable restores the original path pattern from env's well-known
// template (§4.G enable).
func (d *Driver) Enable(ctx context.Context, env environment.Environment) error {
	ctx = logging.Named(ctx, "killswitch")
	log := logging.FromContext(ctx)

	if err := d.refuseDuringDeploy(ctx, env); err != nil {
		return err
	}
	lb, err := d.gw.LoadBalancer(ctx)
	if err != nil {
		return err
	}
	rule, status, err := findPrimaryRule(ctx, lb, env)
	if err != nil {
		return err
	}
	switch status {
	case StatusNotFound:
		return fmt.Errorf("no primary rule found on listener %s for %s", env.ListenerARN, env.Name)
	case StatusEnabled:
		log.Infof("kill-switch already disengaged for %s", env.Name)
		return nil
	}
	if err := lb.ModifyRulePathPattern(ctx, rule.ARN, []string{env.PrimaryPathPattern}); err != nil {
		return err
	}
	log.Infof("kill-switch disengaged for %s", env.Name)
	return nil
}

// Status reports the current classification of env's primary rule.
func (d *Driver) Status(ctx context.Context, env environment.Environment) (Status, error) {
	ctx = logging.Named(ctx, "killswitch")
	lb, err := d.gw.LoadBalancer(ctx)
	if err != nil {
		return "", err
	}
	_, status, err := findPrimaryRule(ctx, lb, env)
	return status, err
}
