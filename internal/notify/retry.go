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

package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/go-github/v66/github"
)

// callTimeout bounds every individual GitHub API call (§4.H: "All HTTP
// calls have a 10 s timeout"). A var, not a const, so tests can shrink it
// rather than actually waiting out the real deadline.
var callTimeout = 10 * time.Second

// withRetry runs fn once, retrying exactly once more on a 5xx response;
// a 4xx surfaces directly on the first attempt (§4.H: "retried once on
// 5xx; 4xx surfaces directly"). fn receives the per-call deadline so the
// real GitHub request it makes is actually bound by it, not just the
// channel wait around it.
func (d *Dispatcher) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	call := func() error {
		callCtx, cancel := context.WithTimeout(ctx, callTimeout)
		defer cancel()
		done := make(chan error, 1)
		go func() { done <- fn(callCtx) }()
		select {
		case err := <-done:
			return err
		case <-callCtx.Done():
			return callCtx.Err()
		}
	}

	err := call()
	if err == nil || !isServerError(err) {
		return err
	}
	return call()
}

// isServerError reports whether err is a GitHub 5xx response or a
// transport-level failure, both of which are worth one retry; a 4xx
// response is never retried.
func isServerError(err error) bool {
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		return ghErr.Response.StatusCode >= 500
	}
	// Not a structured GitHub error response (e.g. dial/timeout failure):
	// treat as transient and worth the single retry.
	return true
}
