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

package routing

import (
	"fmt"
	"sort"

	"github.com/samber/lo"

	"github.com/compiler-explorer/fleetctl/internal/environment"
)

// desiredEntry returns what a compiler's routing entry should be for env's
// declared routing mode (§4.F step 3).
func desiredEntry(env environment.Environment, compilerID string) Entry {
	e := Entry{CompilerID: compilerID, Environment: string(env.Name)}
	switch env.RoutingModeOf() {
	case environment.RoutingQueue:
		e.RoutingType = RoutingTypeQueue
		e.QueueName = fmt.Sprintf("%s-compilation-queue", env.Name)
	case environment.RoutingURL:
		e.RoutingType = RoutingTypeURL
		e.TargetURL = fmt.Sprintf("https://%s/api/compiler/%s/compile", env.ExternalHostnameOf(), compilerID)
	}
	return e
}

// compute builds the minimal add/update/delete plan from the live
// inventory set and the table's current slice for env (§4.F step 3).
// table is keyed by bare compiler ID, one entry per routing row already
// read for this environment.
func compute(env environment.Environment, live map[string]bool, table map[string]Entry) Plan {
	plan := Plan{Environment: string(env.Name)}

	liveIDs := lo.Keys(live)
	sort.Strings(liveIDs)
	for _, compilerID := range liveIDs {
		desired := desiredEntry(env, compilerID)
		current, exists := table[compilerID]
		if !exists {
			plan.Adds = append(plan.Adds, desired)
			continue
		}
		if current.target() != desired.target() || current.legacy {
			// carry the legacy marker forward so Apply knows to drop the
			// old bare-keyed row once the composite one is written.
			desired.legacy = current.legacy
			plan.Updates = append(plan.Updates, desired)
		}
	}

	tableIDs := lo.Keys(table)
	sort.Strings(tableIDs)
	for _, compilerID := range tableIDs {
		if !live[compilerID] {
			plan.Deletes = append(plan.Deletes, table[compilerID])
		}
	}

	return plan
}
