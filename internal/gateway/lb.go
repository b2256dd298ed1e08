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
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"
)

type lbAdapter struct {
	client *elasticloadbalancingv2.Client
}

func (l *lbAdapter) DescribeTargetHealth(ctx context.Context, targetGroupARN string) ([]TargetHealth, error) {
	out, err := l.client.DescribeTargetHealth(ctx, &elasticloadbalancingv2.DescribeTargetHealthInput{
		TargetGroupArn: aws.String(targetGroupARN),
	})
	if err != nil {
		return nil, classify("lb.DescribeTargetHealth", err)
	}
	result := make([]TargetHealth, 0, len(out.TargetHealthDescriptions))
	for _, d := range out.TargetHealthDescriptions {
		state := TargetUnused
		if d.TargetHealth != nil {
			state = string(d.TargetHealth.State)
		}
		id := ""
		if d.Target != nil {
			id = aws.ToString(d.Target.Id)
		}
		result = append(result, TargetHealth{InstanceID: id, State: state})
	}
	return result, nil
}

func (l *lbAdapter) Register(ctx context.Context, targetGroupARN, instanceID string) error {
	_, err := l.client.RegisterTargets(ctx, &elasticloadbalancingv2.RegisterTargetsInput{
		TargetGroupArn: aws.String(targetGroupARN),
		Targets:        []types.TargetDescription{{Id: aws.String(instanceID)}},
	})
	return classify("lb.Register", err)
}

func (l *lbAdapter) Deregister(ctx context.Context, targetGroupARN, instanceID string) error {
	_, err := l.client.DeregisterTargets(ctx, &elasticloadbalancingv2.DeregisterTargetsInput{
		TargetGroupArn: aws.String(targetGroupARN),
		Targets:        []types.TargetDescription{{Id: aws.String(instanceID)}},
	})
	return classify("lb.Deregister", err)
}

func (l *lbAdapter) DescribeListenerRules(ctx context.Context, listenerARN string) ([]ListenerRule, error) {
	out, err := l.client.DescribeRules(ctx, &elasticloadbalancingv2.DescribeRulesInput{
		ListenerArn: aws.String(listenerARN),
	})
	if err != nil {
		return nil, classify("lb.DescribeListenerRules", err)
	}
	rules := make([]ListenerRule, 0, len(out.Rules))
	for _, r := range out.Rules {
		var patterns []string
		for _, cond := range r.Conditions {
			if cond.PathPatternConfig != nil {
				patterns = append(patterns, cond.PathPatternConfig.Values...)
			}
		}
		forwardTG := ""
		for _, action := range r.Actions {
			if action.Type == types.ActionTypeEnumForward && action.TargetGroupArn != nil {
				forwardTG = aws.ToString(action.TargetGroupArn)
			}
		}
		rules = append(rules, ListenerRule{
			ARN:                aws.ToString(r.RuleArn),
			Priority:           aws.ToString(r.Priority),
			IsDefault:          aws.ToBool(r.IsDefault),
			PathPatterns:       patterns,
			ForwardTargetGroup: forwardTG,
		})
	}
	return rules, nil
}

func (l *lbAdapter) ModifyRuleForwardTargetGroup(ctx context.Context, ruleARN, targetGroupARN string) error {
	_, err := l.client.ModifyRule(ctx, &elasticloadbalancingv2.ModifyRuleInput{
		RuleArn: aws.String(ruleARN),
		Actions: []types.Action{
			{
				Type:           types.ActionTypeEnumForward,
				TargetGroupArn: aws.String(targetGroupARN),
			},
		},
	})
	return classify("lb.ModifyRuleForwardTargetGroup", err)
}

func (l *lbAdapter) ModifyRulePathPattern(ctx context.Context, ruleARN string, pathPatterns []string) error {
	_, err := l.client.ModifyRule(ctx, &elasticloadbalancingv2.ModifyRuleInput{
		RuleArn: aws.String(ruleARN),
		Conditions: []types.RuleCondition{
			{
				Field:             aws.String("path-pattern"),
				PathPatternConfig: &types.PathPatternConditionConfig{Values: pathPatterns},
			},
		},
	})
	return classify("lb.ModifyRulePathPattern", err)
}
