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
	"errors"
	"testing"
	"time"

	. "github.com/onsi/gomega"
	fakeclock "k8s.io/utils/clock/testing"

	"github.com/compiler-explorer/fleetctl/internal/config"
	"github.com/compiler-explorer/fleetctl/internal/environment"
	"github.com/compiler-explorer/fleetctl/internal/gateway"
	"github.com/compiler-explorer/fleetctl/internal/gateway/gatewaytest"
	"github.com/compiler-explorer/fleetctl/internal/registry"
)

func betaEnv(t *testing.T) environment.Environment {
	t.Helper()
	env, err := environment.ByName("beta")
	if err != nil {
		t.Fatal(err)
	}
	return env
}

func TestPlan_rejectsNonBlueGreenEnv(t *testing.T) {
	g := NewWithT(t)
	env, err := environment.ByName("gpu")
	g.Expect(err).NotTo(HaveOccurred())

	fake := gatewaytest.New()
	reg := registry.New(fake.Gateway())
	c := New(fake.Gateway(), reg, nil, nil)

	_, err = c.plan(context.Background(), env, "v2", config.Defaults())
	g.Expect(err).To(HaveOccurred())
	var precondition *PreconditionError
	g.Expect(errors.As(err, &precondition)).To(BeTrue())
}

func TestPlan_rejectsNoActiveColorRecorded(t *testing.T) {
	g := NewWithT(t)
	env := betaEnv(t)

	fake := gatewaytest.New()
	reg := registry.New(fake.Gateway())
	c := New(fake.Gateway(), reg, nil, nil)

	_, err := c.plan(context.Background(), env, "v2", config.Defaults())
	g.Expect(err).To(HaveOccurred())
	var precondition *PreconditionError
	g.Expect(errors.As(err, &precondition)).To(BeTrue())
}

func TestPlan_rejectsSameVersionAlreadyActive(t *testing.T) {
	g := NewWithT(t)
	env := betaEnv(t)

	fake := gatewaytest.New()
	fake.Params[env.ParameterKey("active-color")] = string(registry.ColorBlue)
	fake.Params[env.ParameterKey("version/blue")] = "v1"
	reg := registry.New(fake.Gateway())
	c := New(fake.Gateway(), reg, nil, nil)

	_, err := c.plan(context.Background(), env, "v1", config.Defaults())
	g.Expect(err).To(HaveOccurred())
	var precondition *PreconditionError
	g.Expect(errors.As(err, &precondition)).To(BeTrue())
}

func TestPlan_rejectsDrainedWithoutCapacityOverride(t *testing.T) {
	g := NewWithT(t)
	env := betaEnv(t)

	fake := gatewaytest.New()
	fake.Params[env.ParameterKey("active-color")] = string(registry.ColorBlue)
	fake.ASGs[registry.ASGName(env, registry.ColorBlue)] = &gateway.ASGInfo{DesiredCapacity: 0}
	reg := registry.New(fake.Gateway())
	c := New(fake.Gateway(), reg, nil, nil)

	cfg := config.Defaults()
	cfg.Capacity = 0
	_, err := c.plan(context.Background(), env, "v2", cfg)
	g.Expect(err).To(HaveOccurred())
	var precondition *PreconditionError
	g.Expect(errors.As(err, &precondition)).To(BeTrue())
}

func TestPlan_succeedsAndCapturesInactiveSide(t *testing.T) {
	g := NewWithT(t)
	env := betaEnv(t)

	fake := gatewaytest.New()
	fake.Params[env.ParameterKey("active-color")] = string(registry.ColorBlue)
	fake.Params[env.ParameterKey("version/blue")] = "v1"
	fake.Params[env.ParameterKey("version/green")] = "v0"
	fake.ASGs[registry.ASGName(env, registry.ColorBlue)] = &gateway.ASGInfo{DesiredCapacity: 3}
	reg := registry.New(fake.Gateway())
	c := New(fake.Gateway(), reg, nil, nil)

	plan, err := c.plan(context.Background(), env, "v2", config.Defaults())
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(plan.InactiveColor).To(Equal(registry.ColorGreen))
	g.Expect(plan.PreDeployActive).To(Equal(registry.ColorBlue))
	g.Expect(plan.PreDeployActiveVersion).To(Equal("v1"))
	g.Expect(plan.PreDeployVersion).To(Equal("v0"))
	g.Expect(plan.DesiredCapacity).To(Equal(int32(3)))
	g.Expect(plan.MinHealthyPercent).To(Equal(int32(75)))
}

// failingLB wraps a gatewaytest.Fake's load-balancer surface, forcing
// ModifyRuleForwardTargetGroup to fail so switchTraffic's rollback path
// can be exercised without a live listener.
type failingLB struct {
	*gatewaytest.Fake
}

func (f *failingLB) ModifyRuleForwardTargetGroup(ctx context.Context, ruleARN, targetGroupARN string) error {
	return errors.New("simulated rule-write failure")
}

func TestSwitchTraffic_commitsKeyThenRule(t *testing.T) {
	g := NewWithT(t)
	env := betaEnv(t)

	fake := gatewaytest.New()
	fake.ListenerRules[env.ListenerARN] = []gateway.ListenerRule{
		{ARN: "default-rule", IsDefault: true},
	}
	gw := fake.Gateway()
	c := New(gw, registry.New(gw), nil, nil)

	plan := Plan{InactiveColor: registry.ColorGreen, PreDeployActive: registry.ColorBlue}
	g.Expect(c.switchTraffic(context.Background(), env, plan)).NotTo(HaveOccurred())

	active, found, err := fake.Get(context.Background(), env.ParameterKey("active-color"))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(found).To(BeTrue())
	g.Expect(active).To(Equal(string(registry.ColorGreen)))
	g.Expect(fake.ListenerRules[env.ListenerARN][0].ForwardTargetGroup).To(Equal(registry.TargetGroupARN(env, registry.ColorGreen)))
}

func TestSwitchTraffic_rollsBackKeyOnRuleFailure(t *testing.T) {
	g := NewWithT(t)
	env := betaEnv(t)

	fake := gatewaytest.New()
	fake.ListenerRules[env.ListenerARN] = []gateway.ListenerRule{
		{ARN: "default-rule", IsDefault: true},
	}
	fake.Params[env.ParameterKey("active-color")] = string(registry.ColorBlue)

	gw := gateway.NewWithAdapters(fake, fake, &failingLB{Fake: fake}, fake, fake, fake, fake, fake)
	c := New(gw, registry.New(gw), nil, nil)

	plan := Plan{InactiveColor: registry.ColorGreen, PreDeployActive: registry.ColorBlue}
	err := c.switchTraffic(context.Background(), env, plan)
	g.Expect(err).To(HaveOccurred())

	active, found, getErr := fake.Get(context.Background(), env.ParameterKey("active-color"))
	g.Expect(getErr).NotTo(HaveOccurred())
	g.Expect(found).To(BeTrue())
	g.Expect(active).To(Equal(string(registry.ColorBlue)), "active-color key must roll back to its pre-switch value")
}

func TestAwaitHealthy_failsAfterNoProgressPolls(t *testing.T) {
	g := NewWithT(t)
	env := betaEnv(t)

	fake := gatewaytest.New()
	asgName := registry.ASGName(env, registry.ColorGreen)
	tgARN := registry.TargetGroupARN(env, registry.ColorGreen)
	fake.Instances[asgName] = []gateway.ASGInstance{
		{InstanceID: "i-1", LifecycleState: "InService"},
		{InstanceID: "i-2", LifecycleState: "InService"},
	}
	// only one of the two ever reports healthy: desired capacity (2) at
	// 75% min-healthy is never reached, so healthy stays stuck and the
	// no-progress counter trips.
	fake.TargetHealth[tgARN] = []gateway.TargetHealth{
		{InstanceID: "i-1", State: gateway.TargetHealthy},
		{InstanceID: "i-2", State: gateway.TargetUnhealthy},
	}

	gw := fake.Gateway()
	c := New(gw, registry.New(gw), nil, nil)

	cfg := config.Defaults()
	cfg.PollIntervalInitial = time.Millisecond
	cfg.PollIntervalMax = time.Millisecond
	plan := Plan{InactiveColor: registry.ColorGreen, DesiredCapacity: 2, MinHealthyPercent: 75}

	err := c.awaitHealthy(context.Background(), env, plan, cfg)
	g.Expect(err).To(HaveOccurred())
	g.Expect(err.Error()).To(ContainSubstring("no progress"))
}

func TestAwaitHealthy_succeedsAfterSpacedConsecutivePolls(t *testing.T) {
	g := NewWithT(t)
	env := betaEnv(t)

	fake := gatewaytest.New()
	asgName := registry.ASGName(env, registry.ColorGreen)
	tgARN := registry.TargetGroupARN(env, registry.ColorGreen)
	fake.Instances[asgName] = []gateway.ASGInstance{
		{InstanceID: "i-1", LifecycleState: "InService"},
		{InstanceID: "i-2", LifecycleState: "InService"},
	}
	fake.TargetHealth[tgARN] = []gateway.TargetHealth{
		{InstanceID: "i-1", State: gateway.TargetHealthy},
		{InstanceID: "i-2", State: gateway.TargetHealthy},
	}

	gw := fake.Gateway()
	c := New(gw, registry.New(gw), nil, nil)
	fc := fakeclock.NewFakeClock(time.Now())
	c.SetClock(fc)

	cfg := config.Defaults()
	cfg.PollIntervalInitial = time.Millisecond
	cfg.PollIntervalMax = time.Millisecond
	plan := Plan{InactiveColor: registry.ColorGreen, DesiredCapacity: 2, MinHealthyPercent: 75}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.awaitHealthy(ctx, env, plan, cfg) }()

	// Let the first poll record its success against the fake clock, then
	// jump it past consecutiveSuccessSpacing so the very next poll counts
	// as the second, spaced-out consecutive success — without the test
	// waiting out the real 30s gap.
	time.Sleep(20 * time.Millisecond)
	fc.Step(consecutiveSuccessSpacing + time.Second)

	select {
	case err := <-done:
		g.Expect(err).NotTo(HaveOccurred())
	case <-time.After(2 * time.Second):
		t.Fatal("awaitHealthy did not return after the fake clock advanced past the spacing requirement")
	}
}

func TestRollback_restoresActiveColorAndScalesDownFailedASG(t *testing.T) {
	g := NewWithT(t)
	env := betaEnv(t)

	fake := gatewaytest.New()
	fake.ListenerRules[env.ListenerARN] = []gateway.ListenerRule{
		{ARN: "default-rule", IsDefault: true},
	}
	failedASG := registry.ASGName(env, registry.ColorGreen)
	fake.ASGs[failedASG] = &gateway.ASGInfo{DesiredCapacity: 2}
	fake.Params[env.ParameterKey("active-color")] = string(registry.ColorGreen) // mid-deploy value

	gw := fake.Gateway()
	c := New(gw, registry.New(gw), nil, nil)

	plan := Plan{InactiveColor: registry.ColorGreen, PreDeployActive: registry.ColorBlue}
	_, err := c.rollback(context.Background(), env, plan, StateAwaitHealthy, errors.New("never got healthy"))
	g.Expect(err).To(HaveOccurred())
	var stageErr *StageError
	g.Expect(errors.As(err, &stageErr)).To(BeTrue())
	g.Expect(stageErr.Stage).To(Equal(StateAwaitHealthy))

	active, _, getErr := fake.Get(context.Background(), env.ParameterKey("active-color"))
	g.Expect(getErr).NotTo(HaveOccurred())
	g.Expect(active).To(Equal(string(registry.ColorBlue)))
	g.Expect(fake.ASGs[failedASG].DesiredCapacity).To(Equal(int32(0)))
}
