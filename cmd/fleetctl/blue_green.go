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
	"github.com/compiler-explorer/fleetctl/internal/registry"
	"github.com/compiler-explorer/fleetctl/internal/result"
)

var blueGreenDeployCommand = Command{
	Usage:       "blue-green deploy <env> <version>",
	Destructive: true,
	Run: func(ctx context.Context, app *app, cfg config.Config, args []string) (result.Result, error) {
		if len(args) < 2 {
			return result.Result{}, fmt.Errorf("usage: %s", "blue-green deploy <env> <version>")
		}
		env, err := environment.ByName(args[0])
		if err != nil {
			return result.Result{}, err
		}
		return app.deployCtl.Deploy(ctx, env, args[1], cfg)
	},
}

var blueGreenStatusCommand = Command{
	Usage: "blue-green status <env>",
	Run: func(ctx context.Context, app *app, cfg config.Config, args []string) (result.Result, error) {
		if len(args) < 1 {
			return result.Result{}, fmt.Errorf("usage: %s", "blue-green status <env>")
		}
		env, err := environment.ByName(args[0])
		if err != nil {
			return result.Result{}, err
		}
		active, err := app.reg.ActiveColor(ctx, env)
		if err != nil {
			return result.Result{}, err
		}
		snap, err := app.reg.Snapshot(ctx, env)
		if err != nil {
			return result.Result{}, err
		}

		status := blueGreenStatus{
			Environment:  string(env.Name),
			ActiveColor:  string(active),
			HealthyBlue:  snap.HealthyCount(registry.ColorBlue),
			HealthyGreen: snap.HealthyCount(registry.ColorGreen),
			TotalBlue:    len(snap.ByColor(registry.ColorBlue)),
			TotalGreen:   len(snap.ByColor(registry.ColorGreen)),
		}
		if store, storeErr := app.gw.ParameterStore(ctx); storeErr == nil {
			status.BlueVersion, _, _ = store.Get(ctx, env.ParameterKey("version/blue"))
			status.GreenVersion, _, _ = store.Get(ctx, env.ParameterKey("version/green"))
		}
		return result.Ok(status), nil
	},
}

type blueGreenStatus struct {
	Environment  string `json:"environment"`
	ActiveColor  string `json:"activeColor"`
	BlueVersion  string `json:"blueVersion,omitempty"`
	GreenVersion string `json:"greenVersion,omitempty"`
	HealthyBlue  int    `json:"healthyBlue"`
	HealthyGreen int    `json:"healthyGreen"`
	TotalBlue    int    `json:"totalBlue"`
	TotalGreen   int    `json:"totalGreen"`
}
