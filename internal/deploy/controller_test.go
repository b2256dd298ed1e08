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

package deploy_test

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	fakeclock "k8s.io/utils/clock/testing"

	"github.com/compiler-explorer/fleetctl/internal/config"
	"github.com/compiler-explorer/fleetctl/internal/deploy"
	"github.com/compiler-explorer/fleetctl/internal/environment"
	"github.com/compiler-explorer/fleetctl/internal/gateway"
	"github.com/compiler-explorer/fleetctl/internal/gateway/gatewaytest"
	"github.com/compiler-explorer/fleetctl/internal/registry"
	"github.com/compiler-explorer/fleetctl/internal/result"
)

var _ = Describe("Controller", func() {
	var (
		env  environment.Environment
		fake *gatewaytest.Fake
		gw   *gateway.Gateway
		reg  *registry.Registry
		ctl  *deploy.Controller
		ctx  context.Context
	)

	BeforeEach(func() {
		var err error
		env, err = environment.ByName("beta")
		Expect(err).NotTo(HaveOccurred())

		fake = gatewaytest.New()
		fake.Params[env.ParameterKey("active-color")] = string(registry.ColorBlue)
		fake.Params[env.ParameterKey("version/blue")] = "v1"
		fake.Params[env.ParameterKey("version/green")] = "v0"
		fake.ASGs[registry.ASGName(env, registry.ColorBlue)] = &gateway.ASGInfo{DesiredCapacity: 3}

		gw = fake.Gateway()
		reg = registry.New(gw)
		ctl = deploy.New(gw, reg, nil, nil)
		ctx = context.Background()
	})

	Describe("Deploy", func() {
		When("run with DryRun set", func() {
			It("returns the plan without mutating any cloud state", func() {
				cfg := config.Defaults()
				cfg.DryRun = true

				res, err := ctl.Deploy(ctx, env, "v2", cfg)
				Expect(err).NotTo(HaveOccurred())
				Expect(res.Kind).To(Equal(result.OK))
				Expect(res.Plan).NotTo(BeNil())

				active, found, getErr := fake.Get(ctx, env.ParameterKey("active-color"))
				Expect(getErr).NotTo(HaveOccurred())
				Expect(found).To(BeTrue())
				Expect(active).To(Equal(string(registry.ColorBlue)), "dry run must not switch traffic")

				asgInfo := fake.ASGs[registry.ASGName(env, registry.ColorGreen)]
				Expect(asgInfo).To(BeNil(), "dry run must not scale up the inactive color")
			})
		})

		When("the environment is already serving the requested version", func() {
			It("surfaces a PreconditionError and never reaches the scale-up stage", func() {
				cfg := config.Defaults()

				_, err := ctl.Deploy(ctx, env, "v1", cfg)
				Expect(err).To(HaveOccurred())

				var precondition *deploy.PreconditionError
				Expect(err).To(BeAssignableToTypeOf(precondition))
			})
		})

		When("a second deploy starts while the lease is live", func() {
			It("fails precondition naming the holder, with no cloud writes", func() {
				cfg := config.Defaults()
				lease, marshalErr := json.Marshal(map[string]interface{}{
					"owner":      "deploy-other",
					"expires_at": time.Now().Add(10 * time.Minute).Format(time.RFC3339),
				})
				Expect(marshalErr).NotTo(HaveOccurred())
				fake.Params[env.ParameterKey("deploy-lock")] = string(lease)

				res, err := ctl.Deploy(ctx, env, "v2", cfg)
				Expect(err).To(HaveOccurred())
				Expect(res.Kind).To(Equal(result.Precondition))
				Expect(err.Error()).To(ContainSubstring("deploy-lock held by deploy-other"))

				asgInfo := fake.ASGs[registry.ASGName(env, registry.ColorGreen)]
				Expect(asgInfo).To(BeNil(), "the loser must not scale anything")
			})
		})

		When("the inactive color becomes healthy", func() {
			It("switches traffic to it and drains the old active side", func() {
				greenASG := registry.ASGName(env, registry.ColorGreen)
				greenTG := registry.TargetGroupARN(env, registry.ColorGreen)
				fake.ASGs[greenASG] = &gateway.ASGInfo{}
				fake.Instances[greenASG] = []gateway.ASGInstance{
					{InstanceID: "i-g1", LifecycleState: "InService"},
					{InstanceID: "i-g2", LifecycleState: "InService"},
					{InstanceID: "i-g3", LifecycleState: "InService"},
				}
				fake.TargetHealth[greenTG] = []gateway.TargetHealth{
					{InstanceID: "i-g1", State: gateway.TargetHealthy},
					{InstanceID: "i-g2", State: gateway.TargetHealthy},
					{InstanceID: "i-g3", State: gateway.TargetHealthy},
				}
				fake.ListenerRules[env.ListenerARN] = []gateway.ListenerRule{
					{ARN: "default-rule", IsDefault: true, ForwardTargetGroup: registry.TargetGroupARN(env, registry.ColorBlue)},
				}

				fc := fakeclock.NewFakeClock(time.Now())
				ctl.SetClock(fc)
				cfg := config.Defaults()
				cfg.PollIntervalInitial = time.Millisecond
				cfg.PollIntervalMax = time.Millisecond

				done := make(chan error, 1)
				go func() {
					_, err := ctl.Deploy(ctx, env, "v2", cfg)
					done <- err
				}()
				// let the first healthy poll land, then step past the
				// consecutive-success spacing so a following poll completes
				// AWAIT_HEALTHY without a real 30s wait.
				time.Sleep(20 * time.Millisecond)
				fc.Step(time.Minute)

				Eventually(done, 2*time.Second).Should(Receive(BeNil()))

				active, _, getErr := fake.Get(ctx, env.ParameterKey("active-color"))
				Expect(getErr).NotTo(HaveOccurred())
				Expect(active).To(Equal(string(registry.ColorGreen)))

				version, _, getErr := fake.Get(ctx, env.ParameterKey("version/green"))
				Expect(getErr).NotTo(HaveOccurred())
				Expect(version).To(Equal("v2"))

				Expect(fake.ListenerRules[env.ListenerARN][0].ForwardTargetGroup).To(Equal(greenTG))
				Expect(fake.ASGs[greenASG].MinSize).To(Equal(int32(3)), "the new active side is protected from scale-in")
				Expect(fake.ASGs[registry.ASGName(env, registry.ColorBlue)].DesiredCapacity).To(Equal(int32(0)), "the old active side drains")
			})
		})

		When("the inactive color never becomes healthy", func() {
			It("rolls back: active color, green version key, and green capacity all restored", func() {
				greenASG := registry.ASGName(env, registry.ColorGreen)
				greenTG := registry.TargetGroupARN(env, registry.ColorGreen)
				fake.ASGs[greenASG] = &gateway.ASGInfo{}
				fake.Instances[greenASG] = []gateway.ASGInstance{
					{InstanceID: "i-g1", LifecycleState: "InService"},
				}
				fake.TargetHealth[greenTG] = []gateway.TargetHealth{
					{InstanceID: "i-g1", State: gateway.TargetUnhealthy},
				}
				fake.ListenerRules[env.ListenerARN] = []gateway.ListenerRule{
					{ARN: "default-rule", IsDefault: true, ForwardTargetGroup: registry.TargetGroupARN(env, registry.ColorBlue)},
				}

				cfg := config.Defaults()
				cfg.PollIntervalInitial = time.Millisecond
				cfg.PollIntervalMax = time.Millisecond

				_, err := ctl.Deploy(ctx, env, "v2", cfg)
				Expect(err).To(HaveOccurred())
				var stageErr *deploy.StageError
				Expect(errors.As(err, &stageErr)).To(BeTrue())
				Expect(stageErr.Stage).To(Equal(deploy.StateAwaitHealthy))

				active, _, getErr := fake.Get(ctx, env.ParameterKey("active-color"))
				Expect(getErr).NotTo(HaveOccurred())
				Expect(active).To(Equal(string(registry.ColorBlue)))

				version, _, getErr := fake.Get(ctx, env.ParameterKey("version/green"))
				Expect(getErr).NotTo(HaveOccurred())
				Expect(version).To(Equal("v0"), "the green version key returns to its pre-deploy value")

				Expect(fake.ASGs[greenASG].DesiredCapacity).To(Equal(int32(0)))
			})
		})
	})
})
