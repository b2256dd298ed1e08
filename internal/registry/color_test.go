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

package registry_test

import (
	"testing"

	. "github.com/onsi/gomega"

	"github.com/compiler-explorer/fleetctl/internal/registry"
)

func TestInvert(t *testing.T) {
	g := NewWithT(t)

	blue, err := registry.Invert(registry.ColorGreen)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(blue).To(Equal(registry.ColorBlue))

	green, err := registry.Invert(registry.ColorBlue)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(green).To(Equal(registry.ColorGreen))
}

func TestInvert_noneFails(t *testing.T) {
	g := NewWithT(t)

	_, err := registry.Invert(registry.ColorNone)
	g.Expect(err).To(HaveOccurred())
}
