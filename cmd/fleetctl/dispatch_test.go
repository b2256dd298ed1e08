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

package main

import (
	"context"
	"testing"

	. "github.com/onsi/gomega"

	"github.com/compiler-explorer/fleetctl/internal/config"
)

func TestDispatch_unknownCommandErrors(t *testing.T) {
	g := NewWithT(t)
	application := &app{cfg: config.Defaults()}

	_, err := dispatch(context.Background(), application, "no-such-group", "no-such-verb", nil)
	g.Expect(err).To(HaveOccurred())
	g.Expect(err.Error()).To(ContainSubstring("unknown command"))
}

func TestDispatch_rejectsInvalidNotifyPolicy(t *testing.T) {
	g := NewWithT(t)
	application := &app{cfg: config.Defaults()}

	_, err := dispatch(context.Background(), application, "ce-router", "status", []string{"--notify", "bogus"})
	g.Expect(err).To(HaveOccurred())
}
