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

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling/types"
)

type asgAdapter struct {
	client *autoscaling.Client
}

func (a *asgAdapter) Describe(ctx context.Context, name string) (ASGInfo, error) {
	out, err := a.client.DescribeAutoScalingGroups(ctx, &autoscaling.DescribeAutoScalingGroupsInput{
		AutoScalingGroupNames: []string{name},
	})
	if err != nil {
		return ASGInfo{}, classify("asg.Describe", err)
	}
	if len(out.AutoScalingGroups) == 0 {
		return ASGInfo{}, &CloudError{Kind: KindNotFound, Cause: fmt.Errorf("no such ASG %q", name), Operation: "asg.Describe"}
	}
	g := out.AutoScalingGroups[0]
	return ASGInfo{
		Name:            aws.ToString(g.AutoScalingGroupName),
		DesiredCapacity: aws.ToInt32(g.DesiredCapacity),
		MinSize:         aws.ToInt32(g.MinSize),
		MaxSize:         aws.ToInt32(g.MaxSize),
	}, nil
}

func (a *asgAdapter) SetDesired(ctx context.Context, name string, n int32) error {
	_, err := a.client.SetDesiredCapacity(ctx, &autoscaling.SetDesiredCapacityInput{
		AutoScalingGroupName: aws.String(name),
		DesiredCapacity:      aws.Int32(n),
		HonorCooldown:        aws.Bool(false),
	})
	return classify("asg.SetDesired", err)
}

func (a *asgAdapter) SetMinSize(ctx context.Context, name string, n int32) error {
	_, err := a.client.UpdateAutoScalingGroup(ctx, &autoscaling.UpdateAutoScalingGroupInput{
		AutoScalingGroupName: aws.String(name),
		MinSize:              aws.Int32(n),
	})
	return classify("asg.SetMinSize", err)
}

func (a *asgAdapter) EnterStandby(ctx context.Context, asgName, instanceID string) error {
	_, err := a.client.EnterStandby(ctx, &autoscaling.EnterStandbyInput{
		AutoScalingGroupName:           aws.String(asgName),
		InstanceIds:                    []string{instanceID},
		ShouldDecrementDesiredCapacity: aws.Bool(true),
	})
	return classify("asg.EnterStandby", err)
}

func (a *asgAdapter) ExitStandby(ctx context.Context, asgName, instanceID string) error {
	_, err := a.client.ExitStandby(ctx, &autoscaling.ExitStandbyInput{
		AutoScalingGroupName: aws.String(asgName),
		InstanceIds:          []string{instanceID},
	})
	return classify("asg.ExitStandby", err)
}

func (a *asgAdapter) Refresh(ctx context.Context, asgName string, minHealthyPercent int32) (string, error) {
	out, err := a.client.StartInstanceRefresh(ctx, &autoscaling.StartInstanceRefreshInput{
		AutoScalingGroupName: aws.String(asgName),
		Preferences: &types.RefreshPreferences{
			MinHealthyPercentage: aws.Int32(minHealthyPercent),
		},
	})
	if err != nil {
		return "", classify("asg.Refresh", err)
	}
	return aws.ToString(out.InstanceRefreshId), nil
}

func (a *asgAdapter) RefreshStatus(ctx context.Context, asgName, refreshID string) (RefreshStatus, error) {
	out, err := a.client.DescribeInstanceRefreshes(ctx, &autoscaling.DescribeInstanceRefreshesInput{
		AutoScalingGroupName: aws.String(asgName),
		InstanceRefreshIds:   []string{refreshID},
	})
	if err != nil {
		return RefreshStatus{}, classify("asg.RefreshStatus", err)
	}
	if len(out.InstanceRefreshes) == 0 {
		return RefreshStatus{}, &CloudError{Kind: KindNotFound, Cause: fmt.Errorf("no such refresh %q", refreshID), Operation: "asg.RefreshStatus"}
	}
	r := out.InstanceRefreshes[0]
	return RefreshStatus{
		Status:             string(r.Status),
		PercentageComplete: aws.ToInt32(r.PercentageComplete),
	}, nil
}

func (a *asgAdapter) SetScaleInProtection(ctx context.Context, asgName string, instanceIDs []string, protect bool) error {
	if len(instanceIDs) == 0 {
		return nil
	}
	_, err := a.client.SetInstanceProtection(ctx, &autoscaling.SetInstanceProtectionInput{
		AutoScalingGroupName: aws.String(asgName),
		InstanceIds:          instanceIDs,
		ProtectedFromScaleIn: aws.Bool(protect),
	})
	return classify("asg.SetScaleInProtection", err)
}

func (a *asgAdapter) ListInstances(ctx context.Context, asgName string) ([]ASGInstance, error) {
	info, err := a.client.DescribeAutoScalingGroups(ctx, &autoscaling.DescribeAutoScalingGroupsInput{
		AutoScalingGroupNames: []string{asgName},
	})
	if err != nil {
		return nil, classify("asg.ListInstances", err)
	}
	if len(info.AutoScalingGroups) == 0 {
		return nil, &CloudError{Kind: KindNotFound, Cause: fmt.Errorf("no such ASG %q", asgName), Operation: "asg.ListInstances"}
	}
	out := make([]ASGInstance, 0, len(info.AutoScalingGroups[0].Instances))
	for _, inst := range info.AutoScalingGroups[0].Instances {
		out = append(out, ASGInstance{
			InstanceID:       aws.ToString(inst.InstanceId),
			LifecycleState:   string(inst.LifecycleState),
			HealthStatus:     aws.ToString(inst.HealthStatus),
			AvailabilityZone: aws.ToString(inst.AvailabilityZone),
			ScaleInProtected: aws.ToBool(inst.ProtectedFromScaleIn),
		})
	}
	return out, nil
}
