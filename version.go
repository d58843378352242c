// Copyright 2015 trivago GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import "fmt"

const (
	gatewayMajorVer = 1
	gatewayMinorVer = 0
	gatewayPatchVer = 0
)

// GetVersionString returns a semantic version string.
func GetVersionString() string {
	return fmt.Sprintf("v%d.%d.%d", gatewayMajorVer, gatewayMinorVer, gatewayPatchVer)
}
