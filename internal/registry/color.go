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

package registry

import "fmt"

// Color is one side of a blue/green pair, or ColorNone when an instance
// carries no color tag (§3).
type Color string

const (
	ColorBlue  Color = "blue"
	ColorGreen Color = "green"
	ColorNone  Color = "none"
)

// Invert returns the other color of a blue/green pair. Invert(ColorNone)
// fails: there is no "other side" of an environment with no active color.
func Invert(c Color) (Color, error) {
	switch c {
	case ColorBlue:
		return ColorGreen, nil
	case ColorGreen:
		return ColorBlue, nil
	default:
		return "", fmt.Errorf("cannot invert color %q: active color is not set", c)
	}
}
