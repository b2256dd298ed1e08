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
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
)

// ErrorKind is the taxonomy every adapter translates native SDK errors
// into (§4.A, §7). It is a closed set; new cloud-specific error codes are
// mapped into one of these, never exposed as a raw SDK type to callers.
type ErrorKind string

const (
	KindTransient        ErrorKind = "transient"
	KindNotFound         ErrorKind = "not_found"
	KindPermissionDenied ErrorKind = "permission_denied"
	KindThrottled        ErrorKind = "throttled"
	KindInvalidArgument  ErrorKind = "invalid_argument"
	KindUnknown          ErrorKind = "unknown"
)

// CloudError is the single error type every gateway adapter returns.
type CloudError struct {
	Kind      ErrorKind
	Cause     error
	Operation string
}

func (e *CloudError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Operation, e.Kind, e.Cause)
}

func (e *CloudError) Unwrap() error { return e.Cause }

// IsTransient reports whether err is a CloudError worth retrying locally.
func IsTransient(err error) bool {
	var ce *CloudError
	if errors.As(err, &ce) {
		return ce.Kind == KindTransient || ce.Kind == KindThrottled
	}
	return false
}

// IsNotFound reports whether err is a CloudError signalling a missing
// resource.
func IsNotFound(err error) bool {
	var ce *CloudError
	if errors.As(err, &ce) {
		return ce.Kind == KindNotFound
	}
	return false
}

// notFoundCodes enumerates the API error codes across ASG, EC2, ELBv2,
// SSM, DynamoDB, and CloudFront that mean "the named resource does not
// exist", mirroring the teacher's isNotFound code-list pattern
// (pkg/cloudprovider/aws/errors.go) generalized across services.
var notFoundCodes = map[string]bool{
	"ResourceNotFoundException":    true,
	"TargetGroupNotFoundException": true,
	"ListenerNotFoundException":    true,
	"RuleNotFoundException":        true,
	"ParameterNotFound":            true,
	"InvalidInstanceID.NotFound":   true,
	"InvalidAutoScalingGroupName":  true,
	"NoSuchDistribution":           true,
}

var throttleCodes = map[string]bool{
	"Throttling":                             true,
	"ThrottlingException":                    true,
	"RequestLimitExceeded":                   true,
	"TooManyRequestsException":               true,
	"ProvisionedThroughputExceededException": true,
}

var permissionCodes = map[string]bool{
	"AccessDenied":          true,
	"AccessDeniedException": true,
	"UnauthorizedAccess":    true,
}

var invalidArgumentCodes = map[string]bool{
	"ValidationError":             true,
	"ValidationException":         true,
	"InvalidParameterValue":       true,
	"InvalidParameterCombination": true,
}

// classify maps a raw error from any AWS SDK v2 client into a CloudError.
// It inspects the smithy.APIError interface the way the teacher's
// pkg/cloudprovider/aws/errors.go inspects awserr.Error, adapted to the v2
// SDK's error surface.
func classify(operation string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		switch {
		case notFoundCodes[code]:
			return &CloudError{Kind: KindNotFound, Cause: err, Operation: operation}
		case throttleCodes[code]:
			return &CloudError{Kind: KindThrottled, Cause: err, Operation: operation}
		case permissionCodes[code]:
			return &CloudError{Kind: KindPermissionDenied, Cause: err, Operation: operation}
		case invalidArgumentCodes[code]:
			return &CloudError{Kind: KindInvalidArgument, Cause: err, Operation: operation}
		}
		var ore *smithy.GenericAPIError
		if errors.As(err, &ore) && ore.Fault == smithy.FaultServer {
			return &CloudError{Kind: KindTransient, Cause: err, Operation: operation}
		}
		return &CloudError{Kind: KindUnknown, Cause: err, Operation: operation}
	}
	return &CloudError{Kind: KindTransient, Cause: err, Operation: operation}
}
