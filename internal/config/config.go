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

// Package config defines the explicit, documented set of tunables for
// fleetctl. Every dynamic-configuration keyword the source tool carried as
// loosely-typed keywords becomes an explicit struct field here, per the
// "dynamic configuration keywords -> enumerated options" design note.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

// NotificationPolicy controls whether the Notification Dispatcher writes.
type NotificationPolicy string

const (
	NotificationOff     NotificationPolicy = "off"
	NotificationPreview NotificationPolicy = "preview"
	NotificationSend    NotificationPolicy = "send"
)

func ParseNotificationPolicy(s string) (NotificationPolicy, error) {
	switch NotificationPolicy(s) {
	case NotificationOff, NotificationPreview, NotificationSend:
		return NotificationPolicy(s), nil
	default:
		return "", fmt.Errorf("invalid notification policy %q, must be one of off|preview|send", s)
	}
}

// Config is the fully-resolved configuration threaded through every
// command handler. It is built from Defaults plus the parsed command-line
// flags, and handlers receive it by value.
type Config struct {
	// Environment is the --env target, empty for commands that operate on
	// all environments (e.g. `ce-router status`).
	Environment string
	// DryRun mirrors the global --dry-run flag: compute and print plans,
	// never write.
	DryRun bool
	// SkipConfirmation mirrors --skip-confirmation: bypass the interactive
	// "yes" prompt in front of destructive commands.
	SkipConfirmation bool
	// Verbose selects development-mode (human-readable, debug-level) logging.
	Verbose bool

	// MinHealthyPercent is the default plan.min_healthy_percent (§3) used
	// when the operator doesn't override it.
	MinHealthyPercent int
	// Capacity overrides plan.desired_capacity when the active side is
	// currently drained (desired_capacity == 0 at plan time).
	Capacity int
	// NotificationPolicy controls the Notification Dispatcher (§4.H).
	NotificationPolicy NotificationPolicy

	// PollIntervalInitial, PollIntervalMax: AWAIT_HEALTHY polling backoff
	// bounds (§4.D).
	PollIntervalInitial time.Duration
	PollIntervalMax     time.Duration
	// DeployTimeout is the hard AWAIT_HEALTHY ceiling (§4.D).
	DeployTimeout time.Duration
	// LeaseTTL is the deploy-lock lease duration (§5), kept slightly longer
	// than DeployTimeout so a healthy deploy never loses its own lock.
	LeaseTTL time.Duration

	// AWSRegion and AWSProfile optionally override the SDK's default
	// region/credential resolution; empty means defer entirely to the
	// default config chain.
	AWSRegion  string
	AWSProfile string
}

// Defaults returns the documented default tunables.
func Defaults() Config {
	return Config{
		MinHealthyPercent:   75,
		NotificationPolicy:  NotificationOff,
		PollIntervalInitial: 15 * time.Second,
		PollIntervalMax:     60 * time.Second,
		DeployTimeout:       30 * time.Minute,
		LeaseTTL:            35 * time.Minute,
	}
}

// BindFlags registers the global flags shared by every command onto fs,
// writing parsed values into cfg. The remaining tunables (--capacity,
// --min-healthy-percent, --notify) are not bound here; the command
// dispatcher binds them on every command's flag set.
func (cfg *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&cfg.Environment, "env", cfg.Environment, "target environment name")
	fs.BoolVar(&cfg.DryRun, "dry-run", cfg.DryRun, "compute and print the plan without writing")
	fs.BoolVar(&cfg.SkipConfirmation, "skip-confirmation", cfg.SkipConfirmation, "bypass the interactive confirmation prompt")
	fs.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "enable development-mode, debug-level logging")
	fs.StringVar(&cfg.AWSRegion, "aws-region", cfg.AWSRegion, "override AWS region resolution")
	fs.StringVar(&cfg.AWSProfile, "aws-profile", cfg.AWSProfile, "override AWS credential profile resolution")
}
