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
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/compiler-explorer/fleetctl/internal/environment"
	"github.com/compiler-explorer/fleetctl/internal/gateway"
	"github.com/compiler-explorer/fleetctl/internal/logging"
	"github.com/compiler-explorer/fleetctl/internal/result"
)

// applyBatchSize bounds how many items are written per batch (§4.F step
// 4: "three batches ... at-most-25 items per batch write").
const applyBatchSize = 25

// Syncer drives the routing synchronizer's fetch/diff/apply pipeline
// against a Gateway.
type Syncer struct {
	gw         *gateway.Gateway
	httpClient *http.Client
}

// New returns a Syncer. httpClient may be nil, in which case a client
// bound to fetchTimeout is constructed.
func New(gw *gateway.Gateway, httpClient *http.Client) *Syncer {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: fetchTimeout}
	}
	return &Syncer{gw: gw, httpClient: httpClient}
}

// loadTableSlice scans the routing table for rows belonging to env,
// keying the result by bare compiler ID and recording whether each row
// was read via a legacy bare-ID key (§4.F step 2, §9 Open Question
// resolution).
func (s *Syncer) loadTableSlice(ctx context.Context, env environment.Environment) (map[string]Entry, error) {
	table, err := s.gw.Table(ctx)
	if err != nil {
		return nil, err
	}
	scanner, err := table.Scan(ctx, TableName, map[string]string{"environment": string(env.Name)})
	if err != nil {
		return nil, &SyncError{Kind: KindScanFailed, Cause: err}
	}

	out := map[string]Entry{}
	for {
		row, ok, err := scanner.Next(ctx)
		if err != nil {
			return nil, &SyncError{Kind: KindScanFailed, Cause: err}
		}
		if !ok {
			break
		}
		entry, compilerID := entryFromRow(row)
		if existing, seen := out[compilerID]; seen {
			// both a composite and a bare-keyed row exist for this
			// compiler: keep the composite one but leave it marked legacy
			// so the apply pass still sweeps the bare row away.
			if entry.legacy {
				existing.legacy = true
				out[compilerID] = existing
				continue
			}
			entry.legacy = true
		}
		out[compilerID] = entry
	}
	return out, nil
}

// entryFromRow parses one scanned routing row, reporting both the
// populated Entry and the bare compiler ID it indexes under.
func entryFromRow(row map[string]string) (Entry, string) {
	rawKey := row["compilerId"]
	compilerID := rawKey
	legacy := !strings.Contains(rawKey, "#")
	if !legacy {
		parts := strings.SplitN(rawKey, "#", 2)
		compilerID = parts[1]
	}
	return Entry{
		CompilerID:  compilerID,
		Environment: row["environment"],
		RoutingType: RoutingType(row["routingType"]),
		QueueName:   row["queueName"],
		TargetURL:   row["targetUrl"],
		LastUpdated: row["lastUpdated"],
		legacy:      legacy,
	}, compilerID
}

func entryToRow(e Entry, now time.Time) map[string]string {
	row := map[string]string{
		"compilerId":  e.compositeKey(),
		"environment": e.Environment,
		"routingType": string(e.RoutingType),
		"lastUpdated": now.UTC().Format(time.RFC3339),
	}
	if e.QueueName != "" {
		row["queueName"] = e.QueueName
	}
	if e.TargetURL != "" {
		row["targetUrl"] = e.TargetURL
	}
	return row
}

// Compute runs the fetch and diff phases (§4.F steps 1-3) without
// applying anything, returning the plan a Sync would otherwise execute.
func (s *Syncer) Compute(ctx context.Context, env environment.Environment) (Plan, error) {
	ctx = logging.Named(ctx, "routing")
	live, err := fetchLiveInventory(ctx, s.httpClient, env)
	if err != nil {
		return Plan{}, err
	}
	table, err := s.loadTableSlice(ctx, env)
	if err != nil {
		return Plan{}, err
	}
	return compute(env, live, table), nil
}

// Sync runs the full fetch/diff/apply pipeline for env (§4.F). In
// dry-run mode it halts before step 4 and returns the computed plan.
func (s *Syncer) Sync(ctx context.Context, env environment.Environment, dryRun bool) (result.Result, error) {
	ctx = logging.Named(ctx, "routing")
	log := logging.FromContext(ctx)

	plan, err := s.Compute(ctx, env)
	if err != nil {
		return result.Result{}, err
	}
	log.Infof("routing plan for %s: %d adds, %d updates, %d deletes", env.Name, len(plan.Adds), len(plan.Updates), len(plan.Deletes))

	if dryRun || plan.Empty() {
		return result.Ok(plan), nil
	}

	items, err := s.apply(ctx, plan)
	if err != nil {
		return result.Result{}, err
	}
	for _, item := range items {
		if !item.OK {
			return result.PartialResult(items), nil
		}
	}
	return result.Ok(plan), nil
}

// apply writes the plan in three batches — adds, updates, deletes — at
// most applyBatchSize items per batch write, surfacing a per-item result
// on partial failure rather than retrying silently (§4.F step 4).
func (s *Syncer) apply(ctx context.Context, plan Plan) ([]result.Item, error) {
	table, err := s.gw.Table(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now()

	var items []result.Item
	for _, batch := range [][]Entry{plan.Adds, plan.Updates} {
		for _, chunk := range chunkEntries(batch, applyBatchSize) {
			for _, e := range chunk {
				err := table.PutItem(ctx, TableName, entryToRow(e, now))
				if err == nil && e.legacy {
					// the composite row is in place; drop the bare-keyed
					// original so the next scan sees exactly one row and
					// the plan converges (write-once migration).
					err = table.DeleteItem(ctx, TableName, map[string]string{"compilerId": e.CompilerID})
				}
				items = append(items, result.Item{Key: e.compositeKey(), OK: err == nil, Message: errMessage(err)})
			}
		}
	}
	for _, chunk := range chunkEntries(plan.Deletes, applyBatchSize) {
		for _, e := range chunk {
			key := e.compositeKey()
			if e.legacy {
				key = e.CompilerID
			}
			err := table.DeleteItem(ctx, TableName, map[string]string{"compilerId": key})
			items = append(items, result.Item{Key: e.compositeKey(), OK: err == nil, Message: errMessage(err)})
		}
	}
	return items, nil
}

func chunkEntries(entries []Entry, size int) [][]Entry {
	var chunks [][]Entry
	for len(entries) > 0 {
		n := size
		if n > len(entries) {
			n = len(entries)
		}
		chunks = append(chunks, entries[:n])
		entries = entries[n:]
	}
	return chunks
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("%v", err)
}
