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
	"time"

	. "github.com/onsi/gomega"

	"github.com/compiler-explorer/fleetctl/internal/gateway/gatewaytest"
)

func TestAcquireLock_blocksAnotherOwnerUntilExpiry(t *testing.T) {
	g := NewWithT(t)
	env := betaEnv(t)
	fake := gatewaytest.New()
	store := fake.Gateway()
	ctx := context.Background()

	paramStore, err := store.ParameterStore(ctx)
	g.Expect(err).NotTo(HaveOccurred())

	g.Expect(acquireLock(ctx, paramStore, env, time.Minute, "owner-a")).NotTo(HaveOccurred())

	err = acquireLock(ctx, paramStore, env, time.Minute, "owner-b")
	g.Expect(err).To(HaveOccurred())
	var precondition *PreconditionError
	g.Expect(err).To(BeAssignableToTypeOf(precondition))
}

func TestAcquireLock_sameOwnerReacquires(t *testing.T) {
	g := NewWithT(t)
	env := betaEnv(t)
	fake := gatewaytest.New()
	store := fake.Gateway()
	ctx := context.Background()

	paramStore, err := store.ParameterStore(ctx)
	g.Expect(err).NotTo(HaveOccurred())

	g.Expect(acquireLock(ctx, paramStore, env, time.Minute, "owner-a")).NotTo(HaveOccurred())
	g.Expect(acquireLock(ctx, paramStore, env, time.Minute, "owner-a")).NotTo(HaveOccurred())
}

func TestAcquireLock_succeedsAfterExpiry(t *testing.T) {
	g := NewWithT(t)
	env := betaEnv(t)
	fake := gatewaytest.New()
	store := fake.Gateway()
	ctx := context.Background()

	paramStore, err := store.ParameterStore(ctx)
	g.Expect(err).NotTo(HaveOccurred())

	g.Expect(acquireLock(ctx, paramStore, env, -time.Minute, "owner-a")).NotTo(HaveOccurred())
	g.Expect(acquireLock(ctx, paramStore, env, time.Minute, "owner-b")).NotTo(HaveOccurred())
}

func TestReleaseLock_freesTheLease(t *testing.T) {
	g := NewWithT(t)
	env := betaEnv(t)
	fake := gatewaytest.New()
	store := fake.Gateway()
	ctx := context.Background()

	paramStore, err := store.ParameterStore(ctx)
	g.Expect(err).NotTo(HaveOccurred())

	g.Expect(acquireLock(ctx, paramStore, env, time.Minute, "owner-a")).NotTo(HaveOccurred())
	g.Expect(releaseLock(ctx, paramStore, env)).NotTo(HaveOccurred())

	_, _, held, err := LockHeld(ctx, paramStore, env)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(held).To(BeFalse())

	// and a different owner can immediately reacquire
	g.Expect(acquireLock(ctx, paramStore, env, time.Minute, "owner-b")).NotTo(HaveOccurred())
}

func TestLockHeld_reportsValidHolder(t *testing.T) {
	g := NewWithT(t)
	env := betaEnv(t)
	fake := gatewaytest.New()
	store := fake.Gateway()
	ctx := context.Background()

	paramStore, err := store.ParameterStore(ctx)
	g.Expect(err).NotTo(HaveOccurred())

	_, _, held, err := LockHeld(ctx, paramStore, env)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(held).To(BeFalse(), "no lease written yet")

	g.Expect(acquireLock(ctx, paramStore, env, time.Minute, "owner-a")).NotTo(HaveOccurred())
	owner, until, held, err := LockHeld(ctx, paramStore, env)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(held).To(BeTrue())
	g.Expect(owner).To(Equal("owner-a"))
	g.Expect(until).To(BeTemporally(">", time.Now()))
}
