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

package routing_test

import (
	"bytes"
	"context"
	"io"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/compiler-explorer/fleetctl/internal/environment"
	"github.com/compiler-explorer/fleetctl/internal/gateway/gatewaytest"
	"github.com/compiler-explorer/fleetctl/internal/result"
	"github.com/compiler-explorer/fleetctl/internal/routing"
)

// roundTripFunc adapts a function literal into an http.RoundTripper so
// each test can script the live inventory endpoint's response without a
// real listener.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func inventoryClient(body string, status int) *http.Client {
	return &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: status,
				Body:       io.NopCloser(bytes.NewBufferString(body)),
				Header:     make(http.Header),
			}, nil
		}),
	}
}

var _ = Describe("Syncer", func() {
	var env environment.Environment
	var fake *gatewaytest.Fake

	BeforeEach(func() {
		var err error
		env, err = environment.ByName("beta")
		Expect(err).NotTo(HaveOccurred())
		fake = gatewaytest.New()
	})

	It("computes an add for a live compiler with no table row", func() {
		client := inventoryClient(`[{"id":"gcc-13"}]`, http.StatusOK)
		syncer := routing.New(fake.Gateway(), client)

		plan, err := syncer.Compute(context.Background(), env)
		Expect(err).NotTo(HaveOccurred())
		Expect(plan.Adds).To(HaveLen(1))
		Expect(plan.Adds[0].CompilerID).To(Equal("gcc-13"))
		Expect(plan.Adds[0].QueueName).To(Equal("beta-compilation-queue"))
	})

	It("is idempotent: a second sync over unchanged inventory is empty", func() {
		client := inventoryClient(`[{"id":"gcc-13"}]`, http.StatusOK)
		syncer := routing.New(fake.Gateway(), client)

		res, err := syncer.Sync(context.Background(), env, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Kind).To(Equal(result.OK))

		second, err := syncer.Compute(context.Background(), env)
		Expect(err).NotTo(HaveOccurred())
		Expect(second.Empty()).To(BeTrue())
	})

	It("dry-run halts before applying any write", func() {
		client := inventoryClient(`[{"id":"gcc-13"}]`, http.StatusOK)
		syncer := routing.New(fake.Gateway(), client)

		res, err := syncer.Sync(context.Background(), env, true)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Kind).To(Equal(result.OK))
		Expect(fake.Tables[routing.TableName]).To(BeEmpty())
	})

	It("computes a delete for a table row no longer live", func() {
		Expect(fake.PutItem(context.Background(), routing.TableName, map[string]string{
			"compilerId":  "beta#gcc-12",
			"environment": "beta",
			"routingType": "queue",
			"queueName":   "beta-compilation-queue",
		})).NotTo(HaveOccurred())

		client := inventoryClient(`[]`, http.StatusOK)
		syncer := routing.New(fake.Gateway(), client)

		plan, err := syncer.Compute(context.Background(), env)
		Expect(err).NotTo(HaveOccurred())
		Expect(plan.Deletes).To(HaveLen(1))
		Expect(plan.Deletes[0].CompilerID).To(Equal("gcc-12"))
	})

	It("migrates a legacy bare-keyed row and converges on the second run", func() {
		Expect(fake.PutItem(context.Background(), routing.TableName, map[string]string{
			"compilerId":  "gcc-13",
			"environment": "beta",
			"routingType": "queue",
			"queueName":   "beta-compilation-queue",
		})).NotTo(HaveOccurred())

		client := inventoryClient(`[{"id":"gcc-13"}]`, http.StatusOK)
		syncer := routing.New(fake.Gateway(), client)

		res, err := syncer.Sync(context.Background(), env, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Kind).To(Equal(result.OK))

		rows := fake.Tables[routing.TableName]
		Expect(rows).To(HaveLen(1), "the bare-keyed row is swept once the composite one is written")
		for _, row := range rows {
			Expect(row["compilerId"]).To(Equal("beta#gcc-13"))
		}

		second, err := syncer.Compute(context.Background(), env)
		Expect(err).NotTo(HaveOccurred())
		Expect(second.Empty()).To(BeTrue())
	})

	It("fails fast on a non-200 inventory response", func() {
		client := inventoryClient(`oops`, http.StatusInternalServerError)
		syncer := routing.New(fake.Gateway(), client)

		_, err := syncer.Compute(context.Background(), env)
		Expect(err).To(HaveOccurred())
		var syncErr *routing.SyncError
		Expect(err).To(BeAssignableToTypeOf(syncErr))
	})
})
