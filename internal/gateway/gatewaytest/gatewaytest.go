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

// Package gatewaytest provides an in-memory stand-in for gateway.Gateway's
// adapters, used by every other component's test suite instead of live
// AWS. Grounded on the teacher's pkg/cloudprovider/fake/cloudprovider.go
// fake-provider-for-tests pattern: a struct recording calls under a mutex,
// pre-seeded with whatever state a test scenario needs.
package gatewaytest

import (
	"context"
	"fmt"
	"sync"

	"github.com/compiler-explorer/fleetctl/internal/gateway"
)

// Fake implements gateway.ASG, gateway.Compute, gateway.LoadBalancer,
// gateway.ParameterStore, gateway.Table, and gateway.CDN against
// in-memory state, guarded by a single mutex since these fakes are only
// ever used from tests and simplicity beats fine-grained locking there.
type Fake struct {
	mu sync.Mutex

	ASGs             map[string]*gateway.ASGInfo
	Instances        map[string][]gateway.ASGInstance // asgName -> instances
	Refreshes        map[string]gateway.RefreshStatus
	Protected        map[string]struct{ Stop, Terminate bool }
	ScaleInProtected map[string]bool
	Terminated       map[string]bool

	TargetHealth map[string][]gateway.TargetHealth // targetGroupARN -> health
	Registered   map[string]map[string]bool        // tg -> instanceID -> registered

	ListenerRules map[string][]gateway.ListenerRule // listenerARN -> rules, keyed by ARN in Rules too

	Params map[string]string

	Tables map[string]map[string]map[string]string // table -> compositeKey -> item

	Invalidations []struct {
		Distribution string
		Paths        []string
	}

	Restarted         map[string]int
	RestartServiceErr error

	// Caller is the ARN CallerARN reports.
	Caller string
}

// New returns an empty Fake with every map initialized.
func New() *Fake {
	return &Fake{
		ASGs:             map[string]*gateway.ASGInfo{},
		Instances:        map[string][]gateway.ASGInstance{},
		Refreshes:        map[string]gateway.RefreshStatus{},
		Protected:        map[string]struct{ Stop, Terminate bool }{},
		ScaleInProtected: map[string]bool{},
		Terminated:       map[string]bool{},
		TargetHealth:     map[string][]gateway.TargetHealth{},
		Registered:       map[string]map[string]bool{},
		ListenerRules:    map[string][]gateway.ListenerRule{},
		Params:           map[string]string{},
		Tables:           map[string]map[string]map[string]string{},
		Restarted:        map[string]int{},
		Caller:           "arn:aws:iam::123456789012:user/operator",
	}
}

// Gateway wraps f in a *gateway.Gateway whose every adapter accessor
// returns f, for passing into the registry/deploy/lifecycle/routing
// constructors under test.
func (f *Fake) Gateway() *gateway.Gateway {
	return gateway.NewWithAdapters(f, f, f, f, f, f, f, f)
}

var _ gateway.ASG = (*Fake)(nil)
var _ gateway.Compute = (*Fake)(nil)
var _ gateway.LoadBalancer = (*Fake)(nil)
var _ gateway.ParameterStore = (*Fake)(nil)
var _ gateway.Table = (*Fake)(nil)
var _ gateway.CDN = (*Fake)(nil)
var _ gateway.Commander = (*Fake)(nil)
var _ gateway.Identity = (*Fake)(nil)

func (f *Fake) Describe(ctx context.Context, name string) (gateway.ASGInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.ASGs[name]
	if !ok {
		return gateway.ASGInfo{}, &gateway.CloudError{Kind: gateway.KindNotFound, Cause: fmt.Errorf("no such asg %q", name), Operation: "asg.Describe"}
	}
	return *info, nil
}

func (f *Fake) SetDesired(ctx context.Context, name string, n int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.ASGs[name]
	if !ok {
		return &gateway.CloudError{Kind: gateway.KindNotFound, Operation: "asg.SetDesired"}
	}
	info.DesiredCapacity = n
	return nil
}

func (f *Fake) SetMinSize(ctx context.Context, name string, n int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.ASGs[name]
	if !ok {
		return &gateway.CloudError{Kind: gateway.KindNotFound, Operation: "asg.SetMinSize"}
	}
	info.MinSize = n
	return nil
}

func (f *Fake) EnterStandby(ctx context.Context, asgName, instanceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, inst := range f.Instances[asgName] {
		if inst.InstanceID == instanceID {
			f.Instances[asgName][i].LifecycleState = "Standby"
			return nil
		}
	}
	return &gateway.CloudError{Kind: gateway.KindNotFound, Operation: "asg.EnterStandby"}
}

func (f *Fake) ExitStandby(ctx context.Context, asgName, instanceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, inst := range f.Instances[asgName] {
		if inst.InstanceID == instanceID {
			f.Instances[asgName][i].LifecycleState = "InService"
			return nil
		}
	}
	return &gateway.CloudError{Kind: gateway.KindNotFound, Operation: "asg.ExitStandby"}
}

func (f *Fake) Refresh(ctx context.Context, asgName string, minHealthyPercent int32) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := asgName + "-refresh"
	f.Refreshes[id] = gateway.RefreshStatus{Status: gateway.RefreshStatusInProgress}
	return id, nil
}

func (f *Fake) RefreshStatus(ctx context.Context, asgName, refreshID string) (gateway.RefreshStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.Refreshes[refreshID]
	if !ok {
		return gateway.RefreshStatus{}, &gateway.CloudError{Kind: gateway.KindNotFound, Operation: "asg.RefreshStatus"}
	}
	return s, nil
}

func (f *Fake) SetScaleInProtection(ctx context.Context, asgName string, instanceIDs []string, protect bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range instanceIDs {
		f.ScaleInProtected[id] = protect
	}
	return nil
}

func (f *Fake) ListInstances(ctx context.Context, asgName string) ([]gateway.ASGInstance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]gateway.ASGInstance, len(f.Instances[asgName]))
	copy(out, f.Instances[asgName])
	for i, inst := range out {
		if protected, ok := f.ScaleInProtected[inst.InstanceID]; ok {
			out[i].ScaleInProtected = protected
		}
	}
	return out, nil
}

func (f *Fake) SetInstanceProtection(ctx context.Context, instanceID string, stopProtect, terminateProtect bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Protected[instanceID] = struct{ Stop, Terminate bool }{stopProtect, terminateProtect}
	return nil
}

func (f *Fake) Terminate(ctx context.Context, instanceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Terminated[instanceID] = true
	return nil
}

func (f *Fake) DescribeTargetHealth(ctx context.Context, targetGroupARN string) ([]gateway.TargetHealth, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]gateway.TargetHealth, len(f.TargetHealth[targetGroupARN]))
	copy(out, f.TargetHealth[targetGroupARN])
	return out, nil
}

func (f *Fake) Register(ctx context.Context, targetGroupARN, instanceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Registered[targetGroupARN] == nil {
		f.Registered[targetGroupARN] = map[string]bool{}
	}
	f.Registered[targetGroupARN][instanceID] = true
	return nil
}

func (f *Fake) Deregister(ctx context.Context, targetGroupARN, instanceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.Registered[targetGroupARN], instanceID)
	return nil
}

func (f *Fake) DescribeListenerRules(ctx context.Context, listenerARN string) ([]gateway.ListenerRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]gateway.ListenerRule, len(f.ListenerRules[listenerARN]))
	copy(out, f.ListenerRules[listenerARN])
	return out, nil
}

func (f *Fake) ModifyRulePathPattern(ctx context.Context, ruleARN string, pathPatterns []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for listenerARN, rules := range f.ListenerRules {
		for i, r := range rules {
			if r.ARN == ruleARN {
				f.ListenerRules[listenerARN][i].PathPatterns = pathPatterns
				return nil
			}
		}
	}
	return &gateway.CloudError{Kind: gateway.KindNotFound, Operation: "lb.ModifyRulePathPattern"}
}

func (f *Fake) ModifyRuleForwardTargetGroup(ctx context.Context, ruleARN, targetGroupARN string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for listenerARN, rules := range f.ListenerRules {
		for i, r := range rules {
			if r.ARN == ruleARN {
				f.ListenerRules[listenerARN][i].ForwardTargetGroup = targetGroupARN
				return nil
			}
		}
	}
	return &gateway.CloudError{Kind: gateway.KindNotFound, Operation: "lb.ModifyRuleForwardTargetGroup"}
}

func (f *Fake) Get(ctx context.Context, name string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.Params[name]
	return v, ok, nil
}

func (f *Fake) Put(ctx context.Context, name, value string, secure bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Params[name] = value
	return nil
}

func compositeKey(key map[string]string) string {
	return fmt.Sprintf("%v", key)
}

func (f *Fake) GetItem(ctx context.Context, table string, key map[string]string) (map[string]string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.Tables[table][compositeKey(key)]
	return item, ok, nil
}

func (f *Fake) PutItem(ctx context.Context, table string, item map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Tables[table] == nil {
		f.Tables[table] = map[string]map[string]string{}
	}
	key := map[string]string{"compilerId": item["compilerId"]}
	f.Tables[table][compositeKey(key)] = item
	return nil
}

func (f *Fake) DeleteItem(ctx context.Context, table string, key map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.Tables[table], compositeKey(key))
	return nil
}

type fakeScanner struct {
	rows []map[string]string
	pos  int
}

func (s *fakeScanner) Next(ctx context.Context) (map[string]string, bool, error) {
	if s.pos >= len(s.rows) {
		return nil, false, nil
	}
	row := s.rows[s.pos]
	s.pos++
	return row, true, nil
}

func (f *Fake) Scan(ctx context.Context, table string, filter map[string]string) (gateway.TableScanner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var rows []map[string]string
	for _, item := range f.Tables[table] {
		matches := true
		for k, v := range filter {
			if item[k] != v {
				matches = false
				break
			}
		}
		if matches {
			rows = append(rows, item)
		}
	}
	return &fakeScanner{rows: rows}, nil
}

func (f *Fake) CallerARN(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Caller, nil
}

func (f *Fake) RestartService(ctx context.Context, instanceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RestartServiceErr != nil {
		return f.RestartServiceErr
	}
	f.Restarted[instanceID]++
	return nil
}

func (f *Fake) Invalidate(ctx context.Context, distributionID string, paths []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Invalidations = append(f.Invalidations, struct {
		Distribution string
		Paths        []string
	}{distributionID, paths})
	return nil
}
