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

package deploy

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/compiler-explorer/fleetctl/internal/config"
	"github.com/compiler-explorer/fleetctl/internal/environment"
	"github.com/compiler-explorer/fleetctl/internal/gateway"
	"github.com/compiler-explorer/fleetctl/internal/logging"
	"github.com/compiler-explorer/fleetctl/internal/registry"
	"github.com/compiler-explorer/fleetctl/internal/result"
	"github.com/compiler-explorer/fleetctl/internal/retry"
)

// maxNoProgressPolls bounds how many AWAIT_HEALTHY polls may pass with a
// non-increasing healthy count before the deploy gives up and rolls back
// (§4.D step 4: "no progress ... for a bounded number of polls").
const maxNoProgressPolls = 20

// consecutiveSuccessSpacing is the minimum gap between the two
// consecutive successful polls AWAIT_HEALTHY requires (§4.D step 4).
const consecutiveSuccessSpacing = 30 * time.Second

// RoutingSyncer is the Compiler Routing Synchronizer's interface as seen
// by the controller (§4.D step 8). Satisfied structurally by
// *routing.Syncer — no import cycle, per the teacher's convention of
// small locally-declared interfaces at the consumer.
type RoutingSyncer interface {
	Sync(ctx context.Context, env environment.Environment, dryRun bool) (result.Result, error)
}

// Notifier is the Notification Dispatcher's interface as seen by the
// controller (§4.D step 9). Satisfied structurally by *notify.Dispatcher.
type Notifier interface {
	NotifyLive(ctx context.Context, env environment.Environment, oldVersion, newVersion string) error
}

// Controller drives the blue/green state machine of §4.D.
type Controller struct {
	gw      *gateway.Gateway
	reg     *registry.Registry
	routing RoutingSyncer
	notify  Notifier
	clock   clock.Clock
}

// New returns a Controller. routing and/or notify may be nil, in which
// case ROUTING_SYNC/NOTIFY are skipped with a warning log — useful for
// callers (and tests) that only care about the core scale/switch state
// machine. The clock defaults to the real wall clock; tests needing to
// drive consecutiveSuccessSpacing deterministically swap it with SetClock,
// the same way the teacher's consolidation controller threads
// k8s.io/utils/clock through for fake-time testing.
func New(gw *gateway.Gateway, reg *registry.Registry, routing RoutingSyncer, notify Notifier) *Controller {
	return &Controller{gw: gw, reg: reg, routing: routing, notify: notify, clock: clock.RealClock{}}
}

// SetClock overrides the Controller's time source, used by tests to avoid
// waiting out the real consecutiveSuccessSpacing gap.
func (c *Controller) SetClock(clk clock.Clock) {
	c.clock = clk
}

// Deploy runs the full §4.D state machine for version on env.
func (c *Controller) Deploy(ctx context.Context, env environment.Environment, version string, cfg config.Config) (result.Result, error) {
	ctx = logging.Named(ctx, "deploy")
	log := logging.FromContext(ctx)

	store, err := c.gw.ParameterStore(ctx)
	if err != nil {
		return result.Result{}, err
	}

	owner := lockOwner(ctx, c.gw)
	if err := acquireLock(ctx, store, env, cfg.LeaseTTL, owner); err != nil {
		return result.Result{Kind: result.Precondition}, err
	}
	defer func() {
		if err := releaseLock(context.WithoutCancel(ctx), store, env); err != nil {
			log.Warnf("releasing deploy lock for %s: %v", env.Name, err)
		}
	}()

	plan, err := c.plan(ctx, env, version, cfg)
	if err != nil {
		return result.Result{Kind: result.Precondition}, err
	}
	log.Infof("deploy plan for %s: %s -> %s (capacity %d, min healthy %d%%)",
		env.Name, plan.PreDeployActive, plan.InactiveColor, plan.DesiredCapacity, plan.MinHealthyPercent)

	if cfg.DryRun {
		return result.Ok(plan), nil
	}

	deployCtx, cancel := context.WithTimeout(ctx, cfg.DeployTimeout)
	defer cancel()

	if err := c.recordVersion(deployCtx, env, plan); err != nil {
		return c.rollback(ctx, env, plan, StateRecordVersion, err)
	}
	if err := c.scaleUp(deployCtx, env, plan); err != nil {
		return c.rollback(ctx, env, plan, StateScaleUp, err)
	}
	if err := c.awaitHealthy(deployCtx, env, plan, cfg); err != nil {
		return c.rollback(ctx, env, plan, StateAwaitHealthy, err)
	}
	if err := c.switchTraffic(deployCtx, env, plan); err != nil {
		return c.rollback(ctx, env, plan, StateSwitch, err)
	}
	if err := c.protectNew(deployCtx, env, plan); err != nil {
		log.Errorf("PROTECT_NEW step failed for %s (traffic already switched, not rolling back): %v", env.Name, err)
	}
	if err := c.scaleDownOld(deployCtx, env, plan); err != nil {
		log.Errorf("SCALE_DOWN_OLD step failed for %s: %v", env.Name, err)
	}
	c.routingSync(ctx, env, log)
	c.notifyLive(ctx, env, plan, log)

	log.Infof("deploy of %s to %s complete", version, env.Name)
	return result.Ok(plan), nil
}

// lockOwner stamps the lease with who is deploying. The STS caller ARN
// makes the S6-style "deploy-lock held by <owner>" message actionable for
// whoever hits it; the random suffix keeps two sessions of the same
// principal distinct. Identity resolution failing (no credentials in a
// dry-run shell) degrades to the bare token.
func lockOwner(ctx context.Context, gw *gateway.Gateway) string {
	token := uuid.NewString()
	id, err := gw.Identity(ctx)
	if err != nil {
		return token
	}
	arn, err := id.CallerARN(ctx)
	if err != nil || arn == "" {
		return token
	}
	return arn + "/" + token[:8]
}

func (c *Controller) plan(ctx context.Context, env environment.Environment, version string, cfg config.Config) (Plan, error) {
	if !env.BlueGreenEnabled {
		return Plan{}, &PreconditionError{Reason: fmt.Sprintf("environment %s is not blue/green enabled", env.Name)}
	}
	active, err := c.reg.ActiveColor(ctx, env)
	if err != nil {
		return Plan{}, err
	}
	if active == registry.ColorNone {
		return Plan{}, &PreconditionError{Reason: fmt.Sprintf("environment %s has no active color recorded", env.Name)}
	}
	inactive, err := registry.Invert(active)
	if err != nil {
		return Plan{}, &PreconditionError{Reason: err.Error()}
	}

	store, err := c.gw.ParameterStore(ctx)
	if err != nil {
		return Plan{}, err
	}
	activeVersion, _, err := store.Get(ctx, env.ParameterKey("version/"+string(active)))
	if err != nil {
		return Plan{}, err
	}
	if activeVersion == version {
		return Plan{}, &PreconditionError{Reason: fmt.Sprintf("active color %s is already serving %s", active, version)}
	}
	inactiveVersion, _, err := store.Get(ctx, env.ParameterKey("version/"+string(inactive)))
	if err != nil {
		return Plan{}, err
	}

	asg, err := c.gw.ASG(ctx)
	if err != nil {
		return Plan{}, err
	}
	activeASGName := registry.ASGName(env, active)
	activeInfo, err := asg.Describe(ctx, activeASGName)
	if err != nil && !gateway.IsNotFound(err) {
		return Plan{}, err
	}
	desired := activeInfo.DesiredCapacity
	if desired == 0 {
		if cfg.Capacity == 0 {
			return Plan{}, &PreconditionError{Reason: fmt.Sprintf("environment %s is currently drained (desired capacity 0); supply --capacity", env.Name)}
		}
		desired = int32(cfg.Capacity)
	}

	minHealthy := int32(cfg.MinHealthyPercent)
	if minHealthy == 0 {
		minHealthy = 75
	}

	return Plan{
		Environment:            env,
		EnvironmentName:        string(env.Name),
		Version:                version,
		InactiveColor:          inactive,
		PreDeployActive:        active,
		PreDeployActiveVersion: activeVersion,
		PreDeployVersion:       inactiveVersion,
		DesiredCapacity:        desired,
		MinHealthyPercent:      minHealthy,
		NotificationPolicy:     cfg.NotificationPolicy,
	}, nil
}

func (c *Controller) recordVersion(ctx context.Context, env environment.Environment, plan Plan) error {
	store, err := c.gw.ParameterStore(ctx)
	if err != nil {
		return err
	}
	return store.Put(ctx, env.ParameterKey("version/"+string(plan.InactiveColor)), plan.Version, false)
}

func (c *Controller) scaleUp(ctx context.Context, env environment.Environment, plan Plan) error {
	asg, err := c.gw.ASG(ctx)
	if err != nil {
		return err
	}
	asgName := registry.ASGName(env, plan.InactiveColor)
	if err := asg.SetMinSize(ctx, asgName, plan.DesiredCapacity); err != nil {
		return err
	}
	return asg.SetDesired(ctx, asgName, plan.DesiredCapacity)
}

func (c *Controller) awaitHealthy(ctx context.Context, env environment.Environment, plan Plan, cfg config.Config) error {
	log := logging.FromContext(ctx)
	requiredMinHealthy := int32(math.Ceil(float64(plan.DesiredCapacity) * float64(plan.MinHealthyPercent) / 100))

	interval := cfg.PollIntervalInitial
	var lastHealthy int32 = -1
	var noProgress int
	var consecutiveSuccesses int
	var lastSuccessAt time.Time

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for %s healthy targets: %w", plan.InactiveColor, ctx.Err())
		default:
		}

		snap, err := c.reg.Snapshot(ctx, env)
		if err != nil {
			if gateway.IsTransient(err) {
				log.Warnf("transient error polling health for %s: %v", env.Name, err)
				interval = backoff(interval, cfg.PollIntervalMax)
				if !sleepCtx(ctx, interval) {
					return ctx.Err()
				}
				continue
			}
			return err
		}

		healthy := int32(snap.HealthyCount(plan.InactiveColor))
		log.Debugf("%s/%s healthy=%d desired=%d required=%d", env.Name, plan.InactiveColor, healthy, plan.DesiredCapacity, requiredMinHealthy)

		if healthy >= plan.DesiredCapacity && healthy >= requiredMinHealthy {
			if consecutiveSuccesses == 0 || c.clock.Since(lastSuccessAt) >= consecutiveSuccessSpacing {
				consecutiveSuccesses++
				lastSuccessAt = c.clock.Now()
			}
			if consecutiveSuccesses >= 2 {
				return nil
			}
			// a flat healthy count while waiting out the success spacing is
			// not "no progress"
			noProgress = 0
		} else {
			consecutiveSuccesses = 0
			if lastHealthy >= 0 && healthy <= lastHealthy {
				noProgress++
			} else {
				noProgress = 0
			}
			if noProgress >= maxNoProgressPolls {
				return fmt.Errorf("no progress after %d polls: healthy count stuck at %d", noProgress, healthy)
			}
		}
		lastHealthy = healthy

		if !sleepCtx(ctx, interval) {
			return ctx.Err()
		}
	}
}

func backoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// switchTraffic is the observable commit point of a deploy (§4.D step 5):
// the active-color key is written first, then the listener rule. If the
// rule write fails after the key write succeeded, the key is rolled back
// immediately — this ordering is fixed by SPEC_FULL.md's Open Question
// resolution, not left to SDK call order.
func (c *Controller) switchTraffic(ctx context.Context, env environment.Environment, plan Plan) error {
	store, err := c.gw.ParameterStore(ctx)
	if err != nil {
		return err
	}
	if err := store.Put(ctx, env.ParameterKey("active-color"), string(plan.InactiveColor), false); err != nil {
		return err
	}

	lb, err := c.gw.LoadBalancer(ctx)
	if err != nil {
		return err
	}
	rule, err := findDefaultRule(ctx, lb, env.ListenerARN)
	if err != nil {
		return err
	}
	newTG := registry.TargetGroupARN(env, plan.InactiveColor)
	if err := lb.ModifyRuleForwardTargetGroup(ctx, rule.ARN, newTG); err != nil {
		if putErr := store.Put(ctx, env.ParameterKey("active-color"), string(plan.PreDeployActive), false); putErr != nil {
			logging.FromContext(ctx).Errorf("rolling back active-color key after rule-write failure: %v", putErr)
		}
		return fmt.Errorf("switching listener rule, rolled back active-color key: %w", err)
	}
	return nil
}

func (c *Controller) protectNew(ctx context.Context, env environment.Environment, plan Plan) error {
	asg, err := c.gw.ASG(ctx)
	if err != nil {
		return err
	}
	newActiveASG := registry.ASGName(env, plan.InactiveColor)
	if err := asg.SetMinSize(ctx, newActiveASG, plan.DesiredCapacity); err != nil {
		return err
	}

	oldActiveASG := registry.ASGName(env, plan.PreDeployActive)
	instances, err := asg.ListInstances(ctx, oldActiveASG)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(instances))
	for _, inst := range instances {
		ids = append(ids, inst.InstanceID)
	}
	return asg.SetScaleInProtection(ctx, oldActiveASG, ids, false)
}

func (c *Controller) scaleDownOld(ctx context.Context, env environment.Environment, plan Plan) error {
	asg, err := c.gw.ASG(ctx)
	if err != nil {
		return err
	}
	oldActiveASG := registry.ASGName(env, plan.PreDeployActive)
	return asg.SetDesired(ctx, oldActiveASG, 0)
}

// routingSync invokes §4.D step 8; a failure is a warning, not fatal
// (§4.D step 8: "Treat failure as a warning, not fatal").
func (c *Controller) routingSync(ctx context.Context, env environment.Environment, log interface {
	Warnf(string, ...interface{})
}) {
	if c.routing == nil {
		return
	}
	if _, err := c.routing.Sync(ctx, env, false); err != nil {
		log.Warnf("routing sync for %s failed after deploy: %v", env.Name, err)
	}
}

// notifyLive invokes §4.D step 9; a failure is a warning, not fatal.
func (c *Controller) notifyLive(ctx context.Context, env environment.Environment, plan Plan, log interface {
	Warnf(string, ...interface{})
}) {
	if c.notify == nil {
		return
	}
	if !env.IsProduction() {
		return
	}
	if plan.PreDeployActiveVersion == plan.Version {
		return
	}
	if err := c.notify.NotifyLive(ctx, env, plan.PreDeployActiveVersion, plan.Version); err != nil {
		log.Warnf("notification dispatch for %s failed: %v", env.Name, err)
	}
}

// rollback implements the ROLLBACK state (§4.D): restore the pre-deploy
// active color and the inactive side's version key, restore the listener
// rule, scale the failed inactive ASG back to 0, and report the failing
// step.
func (c *Controller) rollback(ctx context.Context, env environment.Environment, plan Plan, stage State, cause error) (result.Result, error) {
	log := logging.FromContext(ctx)
	log.Errorf("rolling back deploy of %s to %s at stage %s: %v", plan.Version, env.Name, stage, cause)

	rollbackCtx := context.WithoutCancel(ctx)

	if store, err := c.gw.ParameterStore(rollbackCtx); err == nil {
		if err := store.Put(rollbackCtx, env.ParameterKey("active-color"), string(plan.PreDeployActive), false); err != nil {
			log.Errorf("restoring active-color key during rollback: %v", err)
		}
		if plan.PreDeployVersion != "" {
			if err := store.Put(rollbackCtx, env.ParameterKey("version/"+string(plan.InactiveColor)), plan.PreDeployVersion, false); err != nil {
				log.Errorf("restoring %s version key during rollback: %v", plan.InactiveColor, err)
			}
		}
	}
	if lb, err := c.gw.LoadBalancer(rollbackCtx); err == nil {
		if rule, err := findDefaultRule(rollbackCtx, lb, env.ListenerARN); err == nil {
			oldTG := registry.TargetGroupARN(env, plan.PreDeployActive)
			if err := lb.ModifyRuleForwardTargetGroup(rollbackCtx, rule.ARN, oldTG); err != nil {
				log.Errorf("restoring listener rule during rollback: %v", err)
			}
		} else {
			log.Errorf("locating default listener rule during rollback: %v", err)
		}
	}
	if asg, err := c.gw.ASG(rollbackCtx); err == nil {
		failedASG := registry.ASGName(env, plan.InactiveColor)
		if err := retry.Do(rollbackCtx, 3, time.Second, 10*time.Second, func() error {
			return asg.SetDesired(rollbackCtx, failedASG, 0)
		}); err != nil {
			log.Errorf("scaling failed ASG back to 0 during rollback: %v", err)
		}
	}

	return result.Result{Kind: result.Timeout}, &StageError{Stage: stage, Cause: cause}
}
