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
	"testing"

	. "github.com/onsi/gomega"

	"github.com/compiler-explorer/fleetctl/internal/registry"
)

func testSnapshot() registry.Snapshot {
	return registry.Snapshot{
		Environment: "beta",
		Instances: []registry.Instance{
			{InstanceID: "i-blue-healthy", Color: registry.ColorBlue, Lifecycle: registry.StateInService, Health: registry.HealthHealthy},
			{InstanceID: "i-blue-unhealthy", Color: registry.ColorBlue, Lifecycle: registry.StateInService, Health: registry.HealthUnhealthy},
			{InstanceID: "i-green-healthy", Color: registry.ColorGreen, Lifecycle: registry.StateInService, Health: registry.HealthHealthy},
			{
				InstanceID: "i-isolated", Color: registry.ColorBlue, Lifecycle: registry.StateStandby, Health: registry.HealthUnused,
				Isolated: true, Protection: registry.ProtectionFlags{TerminationProtected: true},
			},
		},
	}
}

func TestSnapshot_ByColor(t *testing.T) {
	g := NewWithT(t)
	snap := testSnapshot()

	g.Expect(snap.ByColor(registry.ColorBlue)).To(HaveLen(3))
	g.Expect(snap.ByColor(registry.ColorGreen)).To(HaveLen(1))
	g.Expect(snap.ByColor(registry.ColorNone)).To(BeEmpty())
}

func TestSnapshot_HealthyCount(t *testing.T) {
	g := NewWithT(t)
	snap := testSnapshot()

	g.Expect(snap.HealthyCount(registry.ColorBlue)).To(Equal(1))
	g.Expect(snap.HealthyCount(registry.ColorGreen)).To(Equal(1))
}

func TestSnapshot_Isolated(t *testing.T) {
	g := NewWithT(t)
	snap := testSnapshot()

	isolated := snap.Isolated()
	g.Expect(isolated).To(HaveLen(1))
	g.Expect(isolated[0].InstanceID).To(Equal("i-isolated"))
}

func TestSnapshot_Find(t *testing.T) {
	g := NewWithT(t)
	snap := testSnapshot()

	inst, ok := snap.Find("i-green-healthy")
	g.Expect(ok).To(BeTrue())
	g.Expect(inst.Color).To(Equal(registry.ColorGreen))

	_, ok = snap.Find("i-does-not-exist")
	g.Expect(ok).To(BeFalse())
}
