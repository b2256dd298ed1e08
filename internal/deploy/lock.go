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
	"encoding/json"
	"fmt"
	"time"

	"github.com/compiler-explorer/fleetctl/internal/environment"
	"github.com/compiler-explorer/fleetctl/internal/gateway"
)

// lease is the JSON shape stored at the environment's deploy-lock key
// (§6): `{owner, expires_at}`.
type lease struct {
	Owner     string    `json:"owner"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PreconditionError is returned when an invariant the operator must fix
// is violated; no cloud state is changed (§7).
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string { return e.Reason }

// LockHeld reports whether env's deploy-lock lease is currently valid,
// and by whom. The Kill-Switch Driver consults this before mutating
// listener rules, since the active-color key and the listener rule
// together form the traffic-switch commit and must never have two
// concurrent writers (§5).
func LockHeld(ctx context.Context, store gateway.ParameterStore, env environment.Environment) (owner string, until time.Time, held bool, err error) {
	raw, found, err := store.Get(ctx, env.ParameterKey("deploy-lock"))
	if err != nil || !found {
		return "", time.Time{}, false, err
	}
	var existing lease
	if err := json.Unmarshal([]byte(raw), &existing); err != nil {
		return "", time.Time{}, false, nil
	}
	if time.Now().Before(existing.ExpiresAt) {
		return existing.Owner, existing.ExpiresAt, true, nil
	}
	return "", time.Time{}, false, nil
}

// acquireLock implements the deploy-lock lease of §5: mutual exclusion
// between two deploys for the same environment, with a time-bounded
// lease a new owner may break once it expires.
//
// This is get-then-put, not compare-and-swap: gateway.ParameterStore's Put
// has no conditional-write variant, so two deploys racing to acquire an
// expired or absent lock can both observe no valid holder and both write a
// lease. Left as a known, unaddressed race rather than worked around.
func acquireLock(ctx context.Context, store gateway.ParameterStore, env environment.Environment, ttl time.Duration, owner string) error {
	key := env.ParameterKey("deploy-lock")
	raw, found, err := store.Get(ctx, key)
	if err != nil {
		return err
	}
	if found {
		var existing lease
		if err := json.Unmarshal([]byte(raw), &existing); err == nil {
			if time.Now().Before(existing.ExpiresAt) && existing.Owner != owner {
				return &PreconditionError{Reason: fmt.Sprintf("deploy-lock held by %s until %s", existing.Owner, existing.ExpiresAt.Format(time.RFC3339))}
			}
		}
	}
	newLease := lease{Owner: owner, ExpiresAt: time.Now().Add(ttl)}
	buf, err := json.Marshal(newLease)
	if err != nil {
		return err
	}
	return store.Put(ctx, key, string(buf), false)
}

// releaseLock overwrites the deploy-lock with an already-expired lease.
// The parameter store has no delete primitive (and rejects empty values),
// so an expired lease is the release representation; acquireLock and
// LockHeld both treat it as free. Best-effort: a release failure is
// logged by the caller but does not change the deploy's outcome, since
// the lease will expire on its own.
func releaseLock(ctx context.Context, store gateway.ParameterStore, env environment.Environment) error {
	buf, err := json.Marshal(lease{ExpiresAt: time.Now()})
	if err != nil {
		return err
	}
	return store.Put(ctx, env.ParameterKey("deploy-lock"), string(buf), false)
}
