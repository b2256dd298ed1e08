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

// ASGInfo is the subset of an auto-scaling group's description this tool
// reads (§4.A describe_asg).
type ASGInfo struct {
	Name            string
	DesiredCapacity int32
	MinSize         int32
	MaxSize         int32
}

// ASGInstance is one instance as reported by the ASG, independent of its
// target-group health (cross-referenced separately, §4.C).
type ASGInstance struct {
	InstanceID      string
	LifecycleState  string
	HealthStatus    string
	AvailabilityZone string
	ScaleInProtected bool
}

// RefreshStatus is the state of an in-flight instance refresh (§4.A refresh_status).
type RefreshStatus struct {
	Status             string
	PercentageComplete int32
}

const (
	RefreshStatusSuccessful = "Successful"
	RefreshStatusFailed     = "Failed"
	RefreshStatusCancelled  = "Cancelled"
	RefreshStatusInProgress = "InProgress"
)

// TargetHealth is one target's reported load-balancer health.
type TargetHealth struct {
	InstanceID string
	State      string // healthy | unhealthy | draining | unused | initial
}

const (
	TargetHealthy   = "healthy"
	TargetUnhealthy = "unhealthy"
	TargetDraining  = "draining"
	TargetUnused    = "unused"
)

// ListenerRule is one forwarding rule on a load-balancer listener (§4.G,
// §4.D SWITCH).
type ListenerRule struct {
	ARN                string
	Priority           string
	IsDefault          bool
	PathPatterns       []string
	ForwardTargetGroup string
}
