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

import (
	"fmt"
	"os"

	flag "github.com/docker/docker/pkg/mflag"
)

var (
	flagHelp        = flag.Bool([]string{"h", "-help"}, false, "Print this help message.")
	flagVersion     = flag.Bool([]string{"v", "-version"}, false, "Print version information and quit.")
	flagLoglevel    = flag.String([]string{"ll", "-loglevel"}, "info", "Set the log level (trace, debug, info, warn, error).")
	flagNumCPU      = flag.Int([]string{"n", "-numcpu"}, 0, "Number of CPUs to use. Set 0 for all CPUs.")
	flagMetricsAddr = flag.String([]string{"m", "-metrics"}, "", "Address to serve Prometheus metrics on. Empty disables the metrics server.")
	flagHealthAddr  = flag.String([]string{"-health"}, "", "Address to serve health check endpoints on. Empty disables the health server.")
	flagConfigFile  = flag.String([]string{"c", "-config"}, "", "Use a given configuration file.")
	flagTestConfig  = flag.Bool([]string{"tc", "-testconfig"}, false, "Parse and validate the configuration file, then exit.")
	flagPidFile     = flag.String([]string{"p", "-pidfile"}, "", "Write the process id into a given file.")
)

func init() {
	flag.Usage = func() {
		fmt.Println("Usage: n2k-gateway [OPTIONS]\n\nHTTP/TCP/UDP ingest gateway into Kafka.\n\nOptions:")
		flag.CommandLine.SetOutput(os.Stdout)
		flag.PrintDefaults()
		fmt.Print("\n")
	}
}
