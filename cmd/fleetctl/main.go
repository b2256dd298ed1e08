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

// Command fleetctl is the operator CLI driving Compiler Explorer's AWS
// fleet: blue/green deploys, rolling instance lifecycle, compiler-routing
// synchronization, and the traffic kill-switch.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/compiler-explorer/fleetctl/internal/config"
	"github.com/compiler-explorer/fleetctl/internal/logging"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 2 {
		usage()
		return 1
	}
	group, verb, rest := args[0], args[1], args[2:]

	cfg := config.Defaults()
	// The global flags that shape process-wide wiring (--verbose for the
	// logger, --aws-region/--aws-profile for the gateway) are read before
	// the logger and app are built; dispatch parses the full flag set again.
	pre := pflag.NewFlagSet("fleetctl", pflag.ContinueOnError)
	pre.ParseErrorsWhitelist.UnknownFlags = true
	pre.SetOutput(io.Discard)
	cfg.BindFlags(pre)
	_ = pre.Parse(rest)

	logger, err := logging.New(cfg.Verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fleetctl: building logger: %v\n", err)
		return 1
	}
	defer logger.Sync() //nolint:errcheck

	ctx := logging.WithLogger(context.Background(), logger)
	application := newApp(cfg)

	res, err := dispatch(ctx, application, group, verb, rest)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fleetctl: %v\n", err)
		return exitCode(res, err)
	}
	print(res)
	return exitCode(res, err)
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: fleetctl <group> <verb> [args] [flags]

groups:
  blue-green        deploy <env> <version> | status <env>
  instances         status <env> | isolate <env> | terminate-isolated <env> | restart <env>
  compiler-routing  update --env <env> | validate --env <env> | lookup <compiler>
  ce-router         disable <env> | enable <env> | status [<env>]

global flags: --env, --dry-run, --skip-confirmation, --verbose`)
}
