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
	"github.com/compiler-explorer/fleetctl/internal/lifecycle"
	"github.com/compiler-explorer/fleetctl/internal/registry"
	"github.com/compiler-explorer/fleetctl/internal/result"
)

var instancesStatusCommand = Command{
	Usage: "instances status <env>",
	Run: func(ctx context.Context, app *app, cfg config.Config, args []string) (result.Result, error) {
		env, err := envArg(args)
		if err != nil {
			return result.Result{}, err
		}
		snap, err := app.reg.Snapshot(ctx, env)
		if err != nil {
			return result.Result{}, err
		}
		return result.Ok(snap), nil
	},
}

var instancesIsolateCommand = Command{
	Usage:       "instances isolate <env>",
	Destructive: true,
	Run: func(ctx context.Context, app *app, cfg config.Config, args []string) (result.Result, error) {
		env, err := envArg(args)
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
		var target *registry.Instance
		for _, inst := range snap.ByColor(active) {
			if inst.Lifecycle == registry.StateInService && !inst.Isolated {
				target = &inst
				break
			}
		}
		if target == nil {
			return result.Result{}, &lifecycle.LifecycleError{Kind: lifecycle.KindPrecondition, Stage: "select", Cause: fmt.Errorf("no in-service instances to isolate in %s", env.Name)}
		}
		if cfg.DryRun {
			return result.Ok(map[string]string{"wouldIsolate": target.InstanceID}), nil
		}
		if err := app.lifecycle.Isolate(ctx, env, target.InstanceID); err != nil {
			return result.Result{}, err
		}
		return result.Ok(map[string]string{"isolated": target.InstanceID}), nil
	},
}

var instancesTerminateIsolatedCommand = Command{
	Usage:       "instances terminate-isolated <env>",
	Destructive: true,
	Run: func(ctx context.Context, app *app, cfg config.Config, args []string) (result.Result, error) {
		env, err := envArg(args)
		if err != nil {
			return result.Result{}, err
		}
		snap, err := app.reg.Snapshot(ctx, env)
		if err != nil {
			return result.Result{}, err
		}
		isolated := snap.Isolated()
		if len(isolated) == 0 {
			return result.Result{}, &lifecycle.LifecycleError{Kind: lifecycle.KindPrecondition, Stage: "select", Cause: fmt.Errorf("no isolated instances in %s", env.Name)}
		}
		target := isolated[0]
		if cfg.DryRun {
			return result.Ok(map[string]string{"wouldTerminate": target.InstanceID}), nil
		}
		if err := app.lifecycle.TerminateIsolated(ctx, env, target.InstanceID); err != nil {
			return result.Result{}, err
		}
		return result.Ok(map[string]string{"terminated": target.InstanceID}), nil
	},
}

var instancesRestartCommand = Command{
	Usage:       "instances restart <env>",
	Destructive: true,
	Run: func(ctx context.Context, app *app, cfg config.Config, args []string) (result.Result, error) {
		env, err := envArg(args)
		if err != nil {
			return result.Result{}, err
		}
		if cfg.DryRun {
			snap, err := app.reg.Snapshot(ctx, env)
			if err != nil {
				return result.Result{}, err
			}
			active, err := app.reg.ActiveColor(ctx, env)
			if err != nil {
				return result.Result{}, err
			}
			return result.Ok(map[string]int{"activeInstances": len(snap.ByColor(active))}), nil
		}
		if err := app.lifecycle.Restart(ctx, env, cfg); err != nil {
			return result.Result{}, err
		}
		return result.Ok(nil), nil
	},
}

// envArg resolves the environment positional argument shared by every
// instances verb.
func envArg(args []string) (environment.Environment, error) {
	if len(args) < 1 {
		return environment.Environment{}, fmt.Errorf("usage: instances <verb> <env>")
	}
	return environment.ByName(args[0])
}
