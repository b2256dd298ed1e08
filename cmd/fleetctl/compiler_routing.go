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

	"github.com/compiler-explorer/fleetctl/internal/config"
	"github.com/compiler-explorer/fleetctl/internal/environment"
	"github.com/compiler-explorer/fleetctl/internal/result"
	"github.com/compiler-explorer/fleetctl/internal/routing"
)

var compilerRoutingUpdateCommand = Command{
	Usage:       "compiler-routing update --env <env>",
	Destructive: true,
	Run: func(ctx context.Context, app *app, cfg config.Config, args []string) (result.Result, error) {
		env, err := routingEnvFlag(cfg)
		if err != nil {
			return result.Result{}, err
		}
		return app.routingSyn.Sync(ctx, env, cfg.DryRun)
	},
}

var compilerRoutingValidateCommand = Command{
	Usage: "compiler-routing validate --env <env>",
	Run: func(ctx context.Context, app *app, cfg config.Config, args []string) (result.Result, error) {
		env, err := routingEnvFlag(cfg)
		if err != nil {
			return result.Result{}, err
		}
		plan, err := app.routingSyn.Compute(ctx, env)
		if err != nil {
			return result.Result{}, err
		}
		return result.Ok(plan), nil
	},
}

var compilerRoutingLookupCommand = Command{
	Usage: "compiler-routing lookup <compiler>",
	Run: func(ctx context.Context, app *app, cfg config.Config, args []string) (result.Result, error) {
		if len(args) < 1 {
			return result.Result{}, fmt.Errorf("usage: %s", "compiler-routing lookup <compiler>")
		}
		env, err := routingEnvFlag(cfg)
		if err != nil {
			return result.Result{}, err
		}
		table, err := app.gw.Table(ctx)
		if err != nil {
			return result.Result{}, err
		}
		key := fmt.Sprintf("%s#%s", env.Name, args[0])
		row, found, err := table.GetItem(ctx, routing.TableName, map[string]string{"compilerId": key})
		if err != nil {
			return result.Result{}, err
		}
		if !found {
			row, found, err = table.GetItem(ctx, routing.TableName, map[string]string{"compilerId": args[0]})
			if err != nil {
				return result.Result{}, err
			}
		}
		if !found {
			return result.Result{}, fmt.Errorf("compiler %q not found in routing table for %s", args[0], env.Name)
		}
		return result.Ok(row), nil
	},
}

// routingEnvFlag resolves the --env flag shared by every compiler-routing
// verb (§6: `compiler-routing update --env <env>`).
func routingEnvFlag(cfg config.Config) (environment.Environment, error) {
	if cfg.Environment == "" {
		return environment.Environment{}, fmt.Errorf("--env is required")
	}
	return environment.ByName(cfg.Environment)
}
