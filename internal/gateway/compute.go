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

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

type computeAdapter struct {
	client *ec2.Client
}

func (c *computeAdapter) SetInstanceProtection(ctx context.Context, instanceID string, stopProtect, terminateProtect bool) error {
	_, err := c.client.ModifyInstanceAttribute(ctx, &ec2.ModifyInstanceAttributeInput{
		InstanceId:     aws.String(instanceID),
		DisableApiStop: &types.AttributeBooleanValue{Value: aws.Bool(stopProtect)},
	})
	if err != nil {
		return classify("compute.SetInstanceProtection(stop)", err)
	}
	_, err = c.client.ModifyInstanceAttribute(ctx, &ec2.ModifyInstanceAttributeInput{
		InstanceId:            aws.String(instanceID),
		DisableApiTermination: &types.AttributeBooleanValue{Value: aws.Bool(terminateProtect)},
	})
	return classify("compute.SetInstanceProtection(terminate)", err)
}

func (c *computeAdapter) Terminate(ctx context.Context, instanceID string) error {
	_, err := c.client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{
		InstanceIds: []string{instanceID},
	})
	return classify("compute.Terminate", err)
}
