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

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/compiler-explorer/fleetctl/internal/deploy"
	"github.com/compiler-explorer/fleetctl/internal/gateway"
	"github.com/compiler-explorer/fleetctl/internal/lifecycle"
	"github.com/compiler-explorer/fleetctl/internal/result"
	"github.com/compiler-explorer/fleetctl/internal/routing"
)

// print writes res.Plan as indented JSON to stdout — the one rendering
// path for both normal output and --dry-run plans, matching the
// preference for plain stdlib encoding over a templating engine for
// machine-readable output.
func print(res result.Result) {
	if res.Plan == nil {
		return
	}
	enc, err := json.MarshalIndent(res.Plan, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "fleetctl: encoding result: %v\n", err)
		return
	}
	fmt.Println(string(enc))
}

// exitCode is the only place in the tool that type-switches a returned
// error into a process exit status (§7). The taxonomy is coarse by
// design: operators read the printed error text for detail.
func exitCode(res result.Result, err error) int {
	if err == nil {
		if res.Kind == result.Partial {
			return 3
		}
		return 0
	}

	var cloudErr *gateway.CloudError
	var lifeErr *lifecycle.LifecycleError
	var syncErr *routing.SyncError
	var preErr *deploy.PreconditionError
	var stageErr *deploy.StageError

	switch {
	case errors.As(err, &preErr):
		return 2
	case errors.As(err, &stageErr):
		return 4
	case errors.As(err, &lifeErr):
		switch lifeErr.Kind {
		case lifecycle.KindPrecondition:
			return 2
		case lifecycle.KindDrainTimeout, lifecycle.KindHealthTimeout:
			return 4
		default:
			return 5
		}
	case errors.As(err, &syncErr):
		return 5
	case errors.As(err, &cloudErr):
		return 5
	default:
		return 1
	}
}
