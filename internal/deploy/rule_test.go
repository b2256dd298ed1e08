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
	"testing"

	. "github.com/onsi/gomega"

	"github.com/compiler-explorer/fleetctl/internal/gateway"
	"github.com/compiler-explorer/fleetctl/internal/gateway/gatewaytest"
)

func TestFindDefaultRule_findsTheDefaultAmongMany(t *testing.T) {
	g := NewWithT(t)
	env := betaEnv(t)
	fake := gatewaytest.New()
	fake.ListenerRules[env.ListenerARN] = []gateway.ListenerRule{
		{ARN: "kill-switch-rule", IsDefault: false},
		{ARN: "default-rule", IsDefault: true},
	}
	lb, err := fake.Gateway().LoadBalancer(context.Background())
	g.Expect(err).NotTo(HaveOccurred())

	rule, err := findDefaultRule(context.Background(), lb, env.ListenerARN)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(rule.ARN).To(Equal("default-rule"))
}

func TestFindDefaultRule_errorsWithoutOne(t *testing.T) {
	g := NewWithT(t)
	env := betaEnv(t)
	fake := gatewaytest.New()
	fake.ListenerRules[env.ListenerARN] = []gateway.ListenerRule{
		{ARN: "kill-switch-rule", IsDefault: false},
	}
	lb, err := fake.Gateway().LoadBalancer(context.Background())
	g.Expect(err).NotTo(HaveOccurred())

	_, err = findDefaultRule(context.Background(), lb, env.ListenerARN)
	g.Expect(err).To(HaveOccurred())
}
