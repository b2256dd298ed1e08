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

	"github.com/compiler-explorer/fleetctl/internal/config"
	"github.com/compiler-explorer/fleetctl/internal/environment"
	"github.com/compiler-explorer/fleetctl/internal/result"
)

var ceRouterDisableCommand = Command{
	Usage:       "ce-router disable <env>",
	Destructive: true,
	Run: func(ctx context.Context, app *app, cfg config.Config, args []string) (result.Result, error) {
		env, err := envArg(args)
		if err != nil {
			return result.Result{}, err
		}
		if cfg.DryRun {
			return result.Ok(map[string]string{"wouldDisable": string(env.Name)}), nil
		}
		if err := app.killswitch.Disable(ctx, env); err != nil {
			return result.Result{}, err
		}
		return result.Ok(map[string]string{"environment": string(env.Name), "status": "killswitch_active"}), nil
	},
}

var ceRouterEnableCommand = Command{
	Usage:       "ce-router enable <env>",
	Destructive: true,
	Run: func(ctx context.Context, app *app, cfg config.Config, args []string) (result.Result, error) {
		env, err := envArg(args)
		if err != nil {
			return result.Result{}, err
		}
		if cfg.DryRun {
			return result.Ok(map[string]string{"wouldEnable": string(env.Name)}), nil
		}
		if err := app.killswitch.Enable(ctx, env); err != nil {
			return result.Result{}, err
		}
		return result.Ok(map[string]string{"environment": string(env.Name), "status": "enabled"}), nil
	},
}

var ceRouterStatusCommand = Command{
	Usage: "ce-router status [<env>]",
	Run: func(ctx context.Context, app *app, cfg config.Config, args []string) (result.Result, error) {
		if len(args) >= 1 {
			env, err := environment.ByName(args[0])
			if err != nil {
				return result.Result{}, err
			}
			status, err := app.killswitch.Status(ctx, env)
			if err != nil {
				return result.Result{}, err
			}
			return result.Ok(map[string]string{"environment": string(env.Name), "status": string(status)}), nil
		}

		out := map[string]string{}
		for _, env := range environment.All() {
			status, err := app.killswitch.Status(ctx, env)
			if err != nil {
				out[string(env.Name)] = "error: " + err.Error()
				continue
			}
			out[string(env.Name)] = string(status)
		}
		return result.Ok(out), nil
	},
}
