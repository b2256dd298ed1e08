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
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/compiler-explorer/fleetctl/internal/environment"
)

// fetchTimeout is the hard deadline on the live inventory fetch (§4.F
// step 1: "Timeout 30s; no retry (operator re-runs)").
const fetchTimeout = 30 * time.Second

// liveCompiler is one element of the live inventory API's JSON array
// (§6: "JSON array of objects each with at least {id: string}").
type liveCompiler struct {
	ID string `json:"id"`
}

// fetchLiveInventory performs the single, unretried GET against env's
// external hostname and returns the set of live compiler IDs.
func fetchLiveInventory(ctx context.Context, httpClient *http.Client, env environment.Environment) (map[string]bool, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	url := fmt.Sprintf("https://%s/api/compilers?fields=id", env.ExternalHostnameOf())
	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &SyncError{Kind: KindFetchFailed, Cause: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, &SyncError{Kind: KindFetchFailed, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &SyncError{Kind: KindFetchFailed, Cause: fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)}
	}

	var compilers []liveCompiler
	if err := json.NewDecoder(resp.Body).Decode(&compilers); err != nil {
		return nil, &SyncError{Kind: KindFetchFailed, Cause: err}
	}

	live := make(map[string]bool, len(compilers))
	for _, c := range compilers {
		if c.ID != "" {
			live[c.ID] = true
		}
	}
	return live, nil
}
