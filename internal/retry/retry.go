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

// Package retry wraps github.com/avast/retry-go in a bounded exponential
// backoff helper. Its one caller is the blue/green controller's rollback;
// the AWAIT_HEALTHY poll loop and the notification dispatcher's single
// 5xx retry are implemented in their own packages. Grounded on the
// teacher's use of github.com/avast/retry-go in
// pkg/controllers/consolidation/controller.go.
package retry

import (
	"context"
	"time"

	"github.com/avast/retry-go"
)

// Do runs fn up to attempts times with exponential backoff starting at
// initialDelay and capped at maxDelay, stopping early on ctx cancellation.
// A nil error from fn stops the loop immediately.
func Do(ctx context.Context, attempts uint, initialDelay, maxDelay time.Duration, fn func() error) error {
	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(initialDelay),
		retry.MaxDelay(maxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
}

// Once runs fn a single time with no retry. No production call site uses
// it; the routing synchronizer's live inventory fetch makes its single,
// unretried request directly.
func Once(fn func() error) error {
	return fn()
}
