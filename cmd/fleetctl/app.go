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
	"os"
	"strconv"

	"github.com/compiler-explorer/fleetctl/internal/config"
	"github.com/compiler-explorer/fleetctl/internal/deploy"
	"github.com/compiler-explorer/fleetctl/internal/gateway"
	"github.com/compiler-explorer/fleetctl/internal/killswitch"
	"github.com/compiler-explorer/fleetctl/internal/lifecycle"
	"github.com/compiler-explorer/fleetctl/internal/notify"
	"github.com/compiler-explorer/fleetctl/internal/registry"
	"github.com/compiler-explorer/fleetctl/internal/routing"
)

// app bundles the process-scoped collaborators every command handler
// needs. It is built once in main and threaded explicitly through
// dispatch — no package-level state, per the "global mutable state ->
// process-scoped registry" design note.
type app struct {
	cfg        config.Config
	gw         *gateway.Gateway
	reg        *registry.Registry
	deployCtl  *deploy.Controller
	lifecycle  *lifecycle.Manager
	routingSyn *routing.Syncer
	killswitch *killswitch.Driver
	notifier   *notify.Dispatcher
}

// newApp wires every component against a single Gateway, matching how the
// teacher's cloud-provider options flow into one set of controllers.
func newApp(cfg config.Config) *app {
	gw := gateway.New(cfg.AWSRegion, cfg.AWSProfile)
	reg := registry.New(gw)
	routingSyn := routing.New(gw, nil)
	notifier := notifyDispatcherFromEnv(cfg)

	return &app{
		cfg:        cfg,
		gw:         gw,
		reg:        reg,
		deployCtl:  deploy.New(gw, reg, routingSyn, notifier),
		lifecycle:  lifecycle.New(gw, reg),
		routingSyn: routingSyn,
		killswitch: killswitch.New(gw),
		notifier:   notifier,
	}
}

// notifyDispatcherFromEnv builds the Notification Dispatcher from GitHub
// App credentials in the environment. Unattended CI deployments normally
// carry these; a local dry-run invocation typically won't, so a missing
// credential set is a silent, documented no-op rather than a startup
// failure (internal/notify.Dispatcher.NotifyLive treats a nil receiver as
// a no-op).
func notifyDispatcherFromEnv(cfg config.Config) *notify.Dispatcher {
	appID := os.Getenv("FLEETCTL_GITHUB_APP_ID")
	installID := os.Getenv("FLEETCTL_GITHUB_APP_INSTALLATION_ID")
	keyPath := os.Getenv("FLEETCTL_GITHUB_APP_PRIVATE_KEY_PATH")
	if appID == "" || installID == "" || keyPath == "" {
		return nil
	}
	creds, err := loadAppCredentials(appID, installID, keyPath)
	if err != nil {
		return nil
	}
	client, err := notify.NewInstallationClient(creds)
	if err != nil {
		return nil
	}
	return notify.New(client, cfg.NotificationPolicy)
}

func loadAppCredentials(appID, installID, keyPath string) (notify.AppCredentials, error) {
	aid, err := strconv.ParseInt(appID, 10, 64)
	if err != nil {
		return notify.AppCredentials{}, err
	}
	iid, err := strconv.ParseInt(installID, 10, 64)
	if err != nil {
		return notify.AppCredentials{}, err
	}
	pem, err := os.ReadFile(keyPath)
	if err != nil {
		return notify.AppCredentials{}, err
	}
	return notify.AppCredentials{AppID: aid, InstallationID: iid, PrivateKeyPEM: pem}, nil
}
