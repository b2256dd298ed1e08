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

// Package gateway provides typed, minimal adapters over the AWS APIs this
// tool actually drives (§4.A): auto-scaling groups, EC2 compute, ELBv2
// target groups and listener rules, SSM parameter store, DynamoDB, and
// CloudFront. Each adapter is constructed lazily on first use behind its
// own sync.Once, keeping the CLI's cold path cheap — no network calls
// happen until a command actually needs them. Grounded on the teacher's
// lazy per-resource provider pattern (pkg/providers/securitygroup,
// pkg/providers/instanceprofile).
package gateway

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// ASG is the subset of auto-scaling operations the controller and
// lifecycle manager use.
type ASG interface {
	Describe(ctx context.Context, name string) (ASGInfo, error)
	SetDesired(ctx context.Context, name string, n int32) error
	SetMinSize(ctx context.Context, name string, n int32) error
	EnterStandby(ctx context.Context, asgName, instanceID string) error
	ExitStandby(ctx context.Context, asgName, instanceID string) error
	Refresh(ctx context.Context, asgName string, minHealthyPercent int32) (string, error)
	RefreshStatus(ctx context.Context, asgName, refreshID string) (RefreshStatus, error)
	ListInstances(ctx context.Context, asgName string) ([]ASGInstance, error)
	// SetScaleInProtection toggles per-instance scale-in protection,
	// independent of the EC2-level stop/terminate protection Compute
	// manages (§4.D PROTECT_NEW, §4.E).
	SetScaleInProtection(ctx context.Context, asgName string, instanceIDs []string, protect bool) error
}

// Compute is the subset of EC2 operations used to protect and terminate
// individual instances.
type Compute interface {
	SetInstanceProtection(ctx context.Context, instanceID string, stopProtect, terminateProtect bool) error
	Terminate(ctx context.Context, instanceID string) error
}

// LoadBalancer is the subset of ELBv2 operations used for target-group
// health and listener-rule mutation.
type LoadBalancer interface {
	DescribeTargetHealth(ctx context.Context, targetGroupARN string) ([]TargetHealth, error)
	Register(ctx context.Context, targetGroupARN, instanceID string) error
	Deregister(ctx context.Context, targetGroupARN, instanceID string) error
	DescribeListenerRules(ctx context.Context, listenerARN string) ([]ListenerRule, error)
	ModifyRulePathPattern(ctx context.Context, ruleARN string, pathPatterns []string) error
	// ModifyRuleForwardTargetGroup switches which target group a rule
	// forwards to — the observable commit point of a blue/green SWITCH
	// (§4.D step 5).
	ModifyRuleForwardTargetGroup(ctx context.Context, ruleARN, targetGroupARN string) error
}

// ParameterStore is the key/value store used for version keys, the
// active-color key, and the deploy lock lease.
type ParameterStore interface {
	Get(ctx context.Context, name string) (value string, found bool, err error)
	Put(ctx context.Context, name, value string, secure bool) error
}

// Table is the NoSQL store backing the compiler routing table.
type Table interface {
	GetItem(ctx context.Context, table string, key map[string]string) (map[string]string, bool, error)
	PutItem(ctx context.Context, table string, item map[string]string) error
	DeleteItem(ctx context.Context, table string, key map[string]string) error
	Scan(ctx context.Context, table string, filter map[string]string) (TableScanner, error)
}

// TableScanner is a lazy sequence of scanned rows (§4.A: "scan(table,
// filter) -> lazy sequence").
type TableScanner interface {
	Next(ctx context.Context) (map[string]string, bool, error)
}

// CDN is the content-distribution invalidation surface.
type CDN interface {
	Invalidate(ctx context.Context, distributionID string, paths []string) error
}

// Commander runs out-of-band operational commands against a worker
// instance. It backs the Rolling Lifecycle Manager's restart_one
// operation (§4.E): "restart the worker service on the instance".
type Commander interface {
	RestartService(ctx context.Context, instanceID string) error
}

// Identity resolves who this process is acting as, used to stamp the
// deploy-lock lease with an operator-meaningful owner.
type Identity interface {
	CallerARN(ctx context.Context) (string, error)
}

// Gateway is the process-scoped registry of cloud adapters. It replaces
// the source tool's module-level lazily-initialized singletons with a
// value threaded explicitly through command handlers — no package-level
// state, per the "global mutable state -> process-scoped registry"
// design note.
type Gateway struct {
	region  string
	profile string

	awsCfgOnce sync.Once
	awsCfg     aws.Config
	awsCfgErr  error

	asgOnce sync.Once
	asg     ASG

	computeOnce sync.Once
	compute     Compute

	lbOnce sync.Once
	lb     LoadBalancer

	paramOnce sync.Once
	param     ParameterStore

	tableOnce sync.Once
	table     Table

	cdnOnce sync.Once
	cdn     CDN

	commanderOnce sync.Once
	commander     Commander

	identityOnce sync.Once
	identity     Identity
}

// New returns an uninitialized Gateway. No AWS calls happen until an
// adapter accessor (ASG(), Compute(), ...) is first called.
func New(region, profile string) *Gateway {
	return &Gateway{region: region, profile: profile}
}

// NewWithAdapters returns a Gateway pre-wired with the given adapters,
// short-circuiting every lazy-construction barrier so accessor calls
// return them directly without ever touching AWS. Used by tests to
// inject a single gatewaytest.Fake as the stand-in for every adapter,
// mirroring the teacher's fake-provider-for-tests pattern adapted to
// this package's per-adapter sync.Once design.
func NewWithAdapters(asg ASG, compute Compute, lb LoadBalancer, param ParameterStore, table Table, cdn CDN, commander Commander, identity Identity) *Gateway {
	g := &Gateway{asg: asg, compute: compute, lb: lb, param: param, table: table, cdn: cdn, commander: commander, identity: identity}
	g.asgOnce.Do(func() {})
	g.computeOnce.Do(func() {})
	g.lbOnce.Do(func() {})
	g.paramOnce.Do(func() {})
	g.tableOnce.Do(func() {})
	g.cdnOnce.Do(func() {})
	g.commanderOnce.Do(func() {})
	g.identityOnce.Do(func() {})
	return g
}

func (g *Gateway) loadConfig(ctx context.Context) (aws.Config, error) {
	g.awsCfgOnce.Do(func() {
		opts := []func(*awsconfig.LoadOptions) error{}
		if g.region != "" {
			opts = append(opts, awsconfig.WithRegion(g.region))
		}
		if g.profile != "" {
			opts = append(opts, awsconfig.WithSharedConfigProfile(g.profile))
		}
		g.awsCfg, g.awsCfgErr = awsconfig.LoadDefaultConfig(ctx, opts...)
	})
	return g.awsCfg, g.awsCfgErr
}

// ASG returns the lazily-constructed auto-scaling adapter.
func (g *Gateway) ASG(ctx context.Context) (ASG, error) {
	var err error
	g.asgOnce.Do(func() {
		cfg, cfgErr := g.loadConfig(ctx)
		if cfgErr != nil {
			err = cfgErr
			return
		}
		g.asg = &asgAdapter{client: autoscaling.NewFromConfig(cfg)}
	})
	if err != nil {
		return nil, err
	}
	return g.asg, g.awsCfgErr
}

// Compute returns the lazily-constructed EC2 adapter.
func (g *Gateway) Compute(ctx context.Context) (Compute, error) {
	var err error
	g.computeOnce.Do(func() {
		cfg, cfgErr := g.loadConfig(ctx)
		if cfgErr != nil {
			err = cfgErr
			return
		}
		g.compute = &computeAdapter{client: ec2.NewFromConfig(cfg)}
	})
	if err != nil {
		return nil, err
	}
	return g.compute, nil
}

// LoadBalancer returns the lazily-constructed ELBv2 adapter.
func (g *Gateway) LoadBalancer(ctx context.Context) (LoadBalancer, error) {
	var err error
	g.lbOnce.Do(func() {
		cfg, cfgErr := g.loadConfig(ctx)
		if cfgErr != nil {
			err = cfgErr
			return
		}
		g.lb = &lbAdapter{client: elasticloadbalancingv2.NewFromConfig(cfg)}
	})
	if err != nil {
		return nil, err
	}
	return g.lb, nil
}

// ParameterStore returns the lazily-constructed SSM adapter.
func (g *Gateway) ParameterStore(ctx context.Context) (ParameterStore, error) {
	var err error
	g.paramOnce.Do(func() {
		cfg, cfgErr := g.loadConfig(ctx)
		if cfgErr != nil {
			err = cfgErr
			return
		}
		g.param = &paramAdapter{client: ssm.NewFromConfig(cfg)}
	})
	if err != nil {
		return nil, err
	}
	return g.param, nil
}

// Table returns the lazily-constructed DynamoDB adapter.
func (g *Gateway) Table(ctx context.Context) (Table, error) {
	var err error
	g.tableOnce.Do(func() {
		cfg, cfgErr := g.loadConfig(ctx)
		if cfgErr != nil {
			err = cfgErr
			return
		}
		g.table = &tableAdapter{client: dynamodb.NewFromConfig(cfg)}
	})
	if err != nil {
		return nil, err
	}
	return g.table, nil
}

// CDN returns the lazily-constructed CloudFront adapter.
func (g *Gateway) CDN(ctx context.Context) (CDN, error) {
	var err error
	g.cdnOnce.Do(func() {
		cfg, cfgErr := g.loadConfig(ctx)
		if cfgErr != nil {
			err = cfgErr
			return
		}
		g.cdn = &cdnAdapter{client: cloudfront.NewFromConfig(cfg)}
	})
	if err != nil {
		return nil, err
	}
	return g.cdn, nil
}

// Commander returns the lazily-constructed SSM Run Command adapter.
func (g *Gateway) Commander(ctx context.Context) (Commander, error) {
	var err error
	g.commanderOnce.Do(func() {
		cfg, cfgErr := g.loadConfig(ctx)
		if cfgErr != nil {
			err = cfgErr
			return
		}
		g.commander = &commanderAdapter{client: ssm.NewFromConfig(cfg)}
	})
	if err != nil {
		return nil, err
	}
	return g.commander, nil
}

// Identity returns the lazily-constructed STS caller-identity adapter.
func (g *Gateway) Identity(ctx context.Context) (Identity, error) {
	var err error
	g.identityOnce.Do(func() {
		cfg, cfgErr := g.loadConfig(ctx)
		if cfgErr != nil {
			err = cfgErr
			return
		}
		g.identity = &identityAdapter{client: sts.NewFromConfig(cfg)}
	})
	if err != nil {
		return nil, err
	}
	return g.identity, nil
}
