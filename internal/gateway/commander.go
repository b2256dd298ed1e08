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

package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// commandPollInterval is how often RestartService polls SSM for the
// invocation's terminal state.
const commandPollInterval = 2 * time.Second

// restartServiceDocument is the SSM document run by RestartService. A
// fixed shell command, not an operator-supplied one: the lifecycle
// manager never accepts arbitrary commands from a caller.
const restartServiceDocument = "AWS-RunShellScript"

type commanderAdapter struct {
	client *ssm.Client
}

func (c *commanderAdapter) RestartService(ctx context.Context, instanceID string) error {
	send, err := c.client.SendCommand(ctx, &ssm.SendCommandInput{
		InstanceIds:  []string{instanceID},
		DocumentName: aws.String(restartServiceDocument),
		Parameters: map[string][]string{
			"commands": {"systemctl restart compiler-explorer"},
		},
	})
	if err != nil {
		return classify("commander.RestartService", err)
	}
	commandID := aws.ToString(send.Command.CommandId)

	for {
		select {
		case <-ctx.Done():
			return &CloudError{Kind: KindTransient, Cause: ctx.Err(), Operation: "commander.RestartService"}
		case <-time.After(commandPollInterval):
		}

		inv, err := c.client.GetCommandInvocation(ctx, &ssm.GetCommandInvocationInput{
			CommandId:  aws.String(commandID),
			InstanceId: aws.String(instanceID),
		})
		if err != nil {
			return classify("commander.RestartService", err)
		}
		switch inv.Status {
		case types.CommandInvocationStatusSuccess:
			return nil
		case types.CommandInvocationStatusFailed, types.CommandInvocationStatusCancelled, types.CommandInvocationStatusTimedOut:
			return &CloudError{
				Kind:      KindUnknown,
				Cause:     fmt.Errorf("command %s ended in state %s: %s", commandID, inv.Status, aws.ToString(inv.StandardErrorContent)),
				Operation: "commander.RestartService",
			}
		}
	}
}
