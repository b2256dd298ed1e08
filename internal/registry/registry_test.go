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

package registry_test

import (
	"context"
	"testing"

	. "github.com/onsi/gomega"

	"github.com/compiler-explorer/fleetctl/internal/environment"
	"github.com/compiler-explorer/fleetctl/internal/gateway"
	"github.com/compiler-explorer/fleetctl/internal/gateway/gatewaytest"
	"github.com/compiler-explorer/fleetctl/internal/lifecycle"
	"github.com/compiler-explorer/fleetctl/internal/registry"
)

func TestASGName_TargetGroupARN(t *testing.T) {
	g := NewWithT(t)

	env, err := environment.ByName("beta")
	g.Expect(err).NotTo(HaveOccurred())

	g.Expect(registry.ASGName(env, registry.ColorBlue)).To(Equal("beta-blue"))
	g.Expect(registry.TargetGroupARN(env, registry.ColorGreen)).To(Equal("beta-green-tg"))

	gpuEnv, err := environment.ByName("gpu")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(registry.ASGName(gpuEnv, registry.ColorNone)).To(Equal("gpu"))
	g.Expect(registry.TargetGroupARN(gpuEnv, registry.ColorNone)).To(Equal("gpu-tg"))
}

func TestRegistry_Snapshot(t *testing.T) {
	g := NewWithT(t)

	env, err := environment.ByName("beta")
	g.Expect(err).NotTo(HaveOccurred())

	fake := gatewaytest.New()
	fake.Instances[registry.ASGName(env, registry.ColorBlue)] = []gateway.ASGInstance{
		{InstanceID: "i-1", LifecycleState: "InService"},
		{InstanceID: "i-2", LifecycleState: "Pending"},
	}
	fake.Instances[registry.ASGName(env, registry.ColorGreen)] = []gateway.ASGInstance{
		{InstanceID: "i-3", LifecycleState: "InService"},
	}
	fake.TargetHealth[registry.TargetGroupARN(env, registry.ColorBlue)] = []gateway.TargetHealth{
		{InstanceID: "i-1", State: gateway.TargetHealthy},
	}
	fake.TargetHealth[registry.TargetGroupARN(env, registry.ColorGreen)] = []gateway.TargetHealth{
		{InstanceID: "i-3", State: gateway.TargetUnhealthy},
	}

	reg := registry.New(fake.Gateway())
	snap, err := reg.Snapshot(context.Background(), env)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(snap.Instances).To(HaveLen(3))
	g.Expect(snap.HealthyCount(registry.ColorBlue)).To(Equal(1))
	g.Expect(snap.HealthyCount(registry.ColorGreen)).To(Equal(0))

	i2, ok := snap.Find("i-2")
	g.Expect(ok).To(BeTrue())
	g.Expect(i2.Lifecycle).To(Equal(registry.StatePending))
	g.Expect(i2.IsHealthy()).To(BeFalse())

	i1, ok := snap.Find("i-1")
	g.Expect(ok).To(BeTrue())
	g.Expect(i1.Isolated).To(BeFalse())
	g.Expect(i1.Protection.TerminationProtected).To(BeFalse())
}

func TestRegistry_Snapshot_surfacesIsolatedInstances(t *testing.T) {
	g := NewWithT(t)

	env, err := environment.ByName("beta")
	g.Expect(err).NotTo(HaveOccurred())

	fake := gatewaytest.New()
	asgName := registry.ASGName(env, registry.ColorBlue)
	fake.Instances[asgName] = []gateway.ASGInstance{
		{InstanceID: "i-1", LifecycleState: "Standby"},
	}
	fake.ScaleInProtected["i-1"] = true
	fake.Params[registry.IsolatedMarkerKey(env, "i-1")] = "true"

	reg := registry.New(fake.Gateway())
	snap, err := reg.Snapshot(context.Background(), env)
	g.Expect(err).NotTo(HaveOccurred())

	isolated := snap.Isolated()
	g.Expect(isolated).To(HaveLen(1))
	g.Expect(isolated[0].InstanceID).To(Equal("i-1"))
	g.Expect(isolated[0].IsIsolated()).To(BeTrue())
	g.Expect(isolated[0].Protection.TerminationProtected).To(BeTrue())
}

func TestRegistry_Snapshot_isolateThenSnapshotRoundTrips(t *testing.T) {
	g := NewWithT(t)

	env, err := environment.ByName("beta")
	g.Expect(err).NotTo(HaveOccurred())

	fake := gatewaytest.New()
	asgName := registry.ASGName(env, registry.ColorBlue)
	fake.Instances[asgName] = []gateway.ASGInstance{
		{InstanceID: "i-1", LifecycleState: "InService"},
	}
	gw := fake.Gateway()
	reg := registry.New(gw)

	mgr := lifecycle.New(gw, reg)
	g.Expect(mgr.Isolate(context.Background(), env, "i-1")).NotTo(HaveOccurred())

	snap, err := reg.Snapshot(context.Background(), env)
	g.Expect(err).NotTo(HaveOccurred())

	isolated := snap.Isolated()
	g.Expect(isolated).To(HaveLen(1), "instances terminate-isolated must see what instances isolate just produced")
	g.Expect(isolated[0].InstanceID).To(Equal("i-1"))
}

func TestRegistry_ActiveInactiveColor(t *testing.T) {
	g := NewWithT(t)

	env, err := environment.ByName("beta")
	g.Expect(err).NotTo(HaveOccurred())

	fake := gatewaytest.New()
	reg := registry.New(fake.Gateway())

	active, err := reg.ActiveColor(context.Background(), env)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(active).To(Equal(registry.ColorNone))

	_, err = reg.InactiveColor(context.Background(), env)
	g.Expect(err).To(HaveOccurred(), "no active color recorded yet, Invert(ColorNone) must fail")

	fake.Params[env.ParameterKey("active-color")] = string(registry.ColorBlue)
	active, err = reg.ActiveColor(context.Background(), env)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(active).To(Equal(registry.ColorBlue))

	inactive, err := reg.InactiveColor(context.Background(), env)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(inactive).To(Equal(registry.ColorGreen))
}
