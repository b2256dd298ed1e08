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
	"bufio"
	"fmt"
	"io"
	"strings"
)

// confirm prints a one-line summary of the command about to run and
// blocks for an explicit "y" or "yes" (case-insensitive; anything else,
// including an empty line, declines), guarding every destructive command unless
// --skip-confirmation was passed (§6 global flags).
func confirm(in io.Reader, out io.Writer, verb string, args []string) bool {
	fmt.Fprintf(out, "about to run: %s %s\nproceed? [y/N] ", verb, strings.Join(args, " "))
	reader := bufio.NewReader(in)
	line, _ := reader.ReadString('\n')
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
