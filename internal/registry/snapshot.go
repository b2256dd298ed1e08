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

package registry

// Snapshot is a point-in-time view of instances for one environment,
// never cached between commands (§4.C).
type Snapshot struct {
	Environment string
	Instances   []Instance
}

// ByColor returns every instance tagged with color c.
func (s Snapshot) ByColor(c Color) []Instance {
	var out []Instance
	for _, i := range s.Instances {
		if i.Color == c {
			out = append(out, i)
		}
	}
	return out
}

// HealthyCount returns the number of instances of color c counted as
// healthy under the §3 invariant.
func (s Snapshot) HealthyCount(c Color) int {
	n := 0
	for _, i := range s.Instances {
		if i.Color == c && i.IsHealthy() {
			n++
		}
	}
	return n
}

// Isolated returns every instance currently isolated, regardless of color.
func (s Snapshot) Isolated() []Instance {
	var out []Instance
	for _, i := range s.Instances {
		if i.IsIsolated() {
			out = append(out, i)
		}
	}
	return out
}

// Find returns the instance with the given ID, if present in the snapshot.
func (s Snapshot) Find(instanceID string) (Instance, bool) {
	for _, i := range s.Instances {
		if i.InstanceID == instanceID {
			return i, true
		}
	}
	return Instance{}, false
}
