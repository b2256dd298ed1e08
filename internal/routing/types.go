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

// Package routing implements the Compiler Routing Synchronizer (§4.F):
// reconciling the persisted routing table against each environment's live
// compiler inventory and applying a minimal add/update/delete plan.
package routing

import "fmt"

// TableName is the DynamoDB table this tool reads and writes routing rows
// in. A single table holds every environment's slice, isolated by the
// environment attribute (§7 property 4).
const TableName = "fleetctl-compiler-routing"

// RoutingType is the target an environment's live compiler is routed
// through (§3, §6).
type RoutingType string

const (
	RoutingTypeQueue RoutingType = "queue"
	RoutingTypeURL   RoutingType = "url"
)

// Entry is one routing table row for a single (environment, compiler)
// pair (§6 Routing Table item shape).
type Entry struct {
	CompilerID  string      // bare compiler ID, e.g. "gcc-13"
	Environment string      `json:"environment"`
	RoutingType RoutingType `json:"routingType"`
	QueueName   string      `json:"queueName,omitempty"`
	TargetURL   string      `json:"targetUrl,omitempty"`
	LastUpdated string      `json:"lastUpdated,omitempty"`

	// legacy is set when this row was read via a bare compiler-ID key
	// rather than the composite "env#id" form; Apply always writes the
	// composite key regardless, migrating the row in place (§9 Open
	// Question resolution).
	legacy bool
}

// target returns the comparable {routingType, target} pair the Open
// Question resolution in SPEC_FULL.md §9 restricts update comparison to.
func (e Entry) target() string {
	if e.RoutingType == RoutingTypeQueue {
		return string(e.RoutingType) + ":" + e.QueueName
	}
	return string(e.RoutingType) + ":" + e.TargetURL
}

// compositeKey returns the composite primary key this row must be stored
// under, regardless of how it was read.
func (e Entry) compositeKey() string {
	return fmt.Sprintf("%s#%s", e.Environment, e.CompilerID)
}

// Plan is the minimal set of writes computed by Compute (§4.F step 3).
type Plan struct {
	Environment string  `json:"environment"`
	Adds        []Entry `json:"adds"`
	Updates     []Entry `json:"updates"`
	Deletes     []Entry `json:"deletes"`
}

// Empty reports whether the plan has no work — the idempotence property
// (§4.F, §8 property 3) requires this on a second run with unchanged
// live inventory.
func (p Plan) Empty() bool {
	return len(p.Adds) == 0 && len(p.Updates) == 0 && len(p.Deletes) == 0
}

// ErrorKind is the closed set of ways a routing sync can fail.
type ErrorKind string

const (
	KindFetchFailed ErrorKind = "fetch_failed"
	KindScanFailed  ErrorKind = "scan_failed"
	KindApplyFailed ErrorKind = "apply_failed"
)

// SyncError reports which phase of a routing sync failed.
type SyncError struct {
	Kind  ErrorKind
	Cause error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("routing sync: %s: %v", e.Kind, e.Cause)
}

func (e *SyncError) Unwrap() error { return e.Cause }
