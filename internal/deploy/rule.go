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

	"github.com/compiler-explorer/fleetctl/internal/gateway"
)

// findDefaultRule locates the listener's default forwarding rule — the
// one a blue/green SWITCH flips between color target groups, distinct
// from the kill-switch's path-pattern rule (§4.G operates on a separate,
// non-default rule on the same listener).
func findDefaultRule(ctx context.Context, lb gateway.LoadBalancer, listenerARN string) (gateway.ListenerRule, error) {
	rules, err := lb.DescribeListenerRules(ctx, listenerARN)
	if err != nil {
		return gateway.ListenerRule{}, err
	}
	for _, r := range rules {
		if r.IsDefault {
			return r, nil
		}
	}
	return gateway.ListenerRule{}, fmt.Errorf("listener %s has no default rule", listenerARN)
}
