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
	"context"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/compiler-explorer/fleetctl/internal/config"
	"github.com/compiler-explorer/fleetctl/internal/result"
)

// Command is one leaf of the `fleetctl <group> <verb>` tree. It is
// intentionally thin: flag declaration, delegation into the internal
// packages, and nothing else — no business logic lives in cmd/fleetctl.
type Command struct {
	Usage       string
	Destructive bool
	Run         func(ctx context.Context, app *app, cfg config.Config, args []string) (result.Result, error)
}

// commands is the flat (group, verb) -> Command table, per the design
// note calling for "a flat map[[2]string]Command command table" rather
// than a nested subcommand tree.
var commands = map[[2]string]Command{
	{"blue-green", "deploy"}:            blueGreenDeployCommand,
	{"blue-green", "status"}:            blueGreenStatusCommand,
	{"instances", "status"}:             instancesStatusCommand,
	{"instances", "isolate"}:            instancesIsolateCommand,
	{"instances", "terminate-isolated"}: instancesTerminateIsolatedCommand,
	{"instances", "restart"}:            instancesRestartCommand,
	{"compiler-routing", "update"}:      compilerRoutingUpdateCommand,
	{"compiler-routing", "validate"}:    compilerRoutingValidateCommand,
	{"compiler-routing", "lookup"}:      compilerRoutingLookupCommand,
	{"ce-router", "disable"}:            ceRouterDisableCommand,
	{"ce-router", "enable"}:             ceRouterEnableCommand,
	{"ce-router", "status"}:             ceRouterStatusCommand,
}

// dispatch resolves group/verb against the command table, parses flags,
// runs the confirmation gate for destructive commands, and executes the
// handler.
func dispatch(ctx context.Context, application *app, group, verb string, rawArgs []string) (result.Result, error) {
	cmd, ok := commands[[2]string{group, verb}]
	if !ok {
		return result.Result{}, fmt.Errorf("unknown command %q %q; run with no arguments for usage", group, verb)
	}

	cfg := application.cfg
	fs := pflag.NewFlagSet(group+" "+verb, pflag.ContinueOnError)
	cfg.BindFlags(fs)
	fs.IntVar(&cfg.Capacity, "capacity", cfg.Capacity, "override desired capacity when the active side is drained")
	fs.IntVar(&cfg.MinHealthyPercent, "min-healthy-percent", cfg.MinHealthyPercent, "minimum healthy percentage to maintain during rolling operations")
	notifyPolicy := string(cfg.NotificationPolicy)
	fs.StringVar(&notifyPolicy, "notify", notifyPolicy, "notification dispatcher mode: off|preview|send")
	if err := fs.Parse(rawArgs); err != nil {
		return result.Result{}, err
	}
	policy, err := config.ParseNotificationPolicy(notifyPolicy)
	if err != nil {
		return result.Result{}, err
	}
	cfg.NotificationPolicy = policy
	application.notifier.SetPolicy(policy)

	if cmd.Destructive && !cfg.SkipConfirmation {
		if !confirm(os.Stdin, os.Stdout, fmt.Sprintf("%s %s", group, verb), fs.Args()) {
			return result.Result{}, fmt.Errorf("aborted: confirmation declined")
		}
	}

	return cmd.Run(ctx, application, cfg, fs.Args())
}
