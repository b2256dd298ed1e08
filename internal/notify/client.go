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

package notify

import (
	"fmt"
	"net/http"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v66/github"
)

// AppCredentials identifies the GitHub App installation the dispatcher
// authenticates as. A personal access token is operationally unacceptable
// here since the dispatcher runs unattended from CI (§4.H).
type AppCredentials struct {
	AppID          int64
	InstallationID int64
	PrivateKeyPEM  []byte
}

// NewInstallationClient builds a *github.Client authenticated as one
// GitHub App installation, grounded on the same ghinstallation transport
// pattern the corpus uses for unattended repository writes.
func NewInstallationClient(creds AppCredentials) (*github.Client, error) {
	transport, err := ghinstallation.New(http.DefaultTransport, creds.AppID, creds.InstallationID, creds.PrivateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("notify: building installation transport: %w", err)
	}
	return github.NewClient(&http.Client{Transport: transport}), nil
}
