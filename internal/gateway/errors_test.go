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
	"testing"

	"github.com/aws/smithy-go"
	. "github.com/onsi/gomega"
)

func TestClassify_knownCodes(t *testing.T) {
	g := NewWithT(t)

	cases := []struct {
		code string
		want ErrorKind
	}{
		{"ResourceNotFoundException", KindNotFound},
		{"InvalidAutoScalingGroupName", KindNotFound},
		{"ThrottlingException", KindThrottled},
		{"AccessDeniedException", KindPermissionDenied},
		{"ValidationException", KindInvalidArgument},
	}
	for _, c := range cases {
		err := classify("asg.Describe", &smithy.GenericAPIError{Code: c.code, Fault: smithy.FaultClient})
		var ce *CloudError
		g.Expect(errors.As(err, &ce)).To(BeTrue())
		g.Expect(ce.Kind).To(Equal(c.want), "code %s", c.code)
	}
}

func TestClassify_serverFaultIsTransient(t *testing.T) {
	g := NewWithT(t)

	err := classify("asg.Describe", &smithy.GenericAPIError{Code: "InternalFailure", Fault: smithy.FaultServer})
	var ce *CloudError
	g.Expect(errors.As(err, &ce)).To(BeTrue())
	g.Expect(ce.Kind).To(Equal(KindTransient))
}

func TestClassify_unknownAPIError(t *testing.T) {
	g := NewWithT(t)

	err := classify("asg.Describe", &smithy.GenericAPIError{Code: "SomeNewCode", Fault: smithy.FaultClient})
	var ce *CloudError
	g.Expect(errors.As(err, &ce)).To(BeTrue())
	g.Expect(ce.Kind).To(Equal(KindUnknown))
}

func TestClassify_nonAPIError(t *testing.T) {
	g := NewWithT(t)

	err := classify("asg.Describe", errors.New("dial tcp: connection refused"))
	var ce *CloudError
	g.Expect(errors.As(err, &ce)).To(BeTrue())
	g.Expect(ce.Kind).To(Equal(KindTransient))
}

func TestClassify_nilIsNil(t *testing.T) {
	g := NewWithT(t)
	g.Expect(classify("asg.Describe", nil)).To(BeNil())
}

func TestIsTransientIsNotFound(t *testing.T) {
	g := NewWithT(t)

	g.Expect(IsTransient(&CloudError{Kind: KindTransient})).To(BeTrue())
	g.Expect(IsTransient(&CloudError{Kind: KindThrottled})).To(BeTrue())
	g.Expect(IsTransient(&CloudError{Kind: KindNotFound})).To(BeFalse())
	g.Expect(IsNotFound(&CloudError{Kind: KindNotFound})).To(BeTrue())
	g.Expect(IsNotFound(errors.New("plain error"))).To(BeFalse())
}
