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
	"runtime"
	"strconv"

	flag "github.com/docker/docker/pkg/mflag"
	"github.com/sirupsen/logrus"

	"github.com/trivago/n2k-gateway/config"
	"github.com/trivago/n2k-gateway/logging"
	"github.com/trivago/n2k-gateway/metrics"
)

func buildLogger(hookBuffer *logging.HookBuffer) logrus.FieldLogger {
	log := logrus.New()
	log.AddHook(hookBuffer)
	if f, err := logrus.ParseLevel(*flagLoglevel); err == nil {
		log.SetLevel(f)
	}
	if isTerminal() {
		log.SetFormatter(logging.NewConsoleFormatter())
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return log
}

func isTerminal() bool {
	fi, err := os.Stdout.Stat()
	return err == nil && (fi.Mode()&os.ModeCharDevice) != 0
}

func main() {
	flag.Parse()

	if *flagVersion {
		fmt.Println("n2k-gateway " + GetVersionString())
		return
	}
	if *flagHelp || *flagConfigFile == "" {
		flag.Usage()
		return
	}

	hookBuffer := logging.NewHookBuffer()
	log := buildLogger(hookBuffer)

	if *flagNumCPU != 0 {
		runtime.GOMAXPROCS(*flagNumCPU)
	}

	cfg, err := config.Load(*flagConfigFile)
	if err != nil {
		fmt.Println("config: " + err.Error())
		os.Exit(1)
	}
	if *flagTestConfig {
		fmt.Printf("config: %s parsed ok\n", *flagConfigFile)
		return
	}

	if *flagPidFile != "" {
		os.WriteFile(*flagPidFile, []byte(strconv.Itoa(os.Getpid())), 0644)
	}

	app, err := NewApp(cfg, log, *flagHealthAddr)
	if err != nil {
		log.WithError(err).Error("failed to initialize gateway")
		os.Exit(1)
	}

	var metricsServer *metrics.Server
	if *flagMetricsAddr != "" {
		metricsServer = metrics.NewServer(*flagMetricsAddr, app.Metrics, log)
		go metricsServer.Start()
	}

	if app.Health != nil {
		go func() {
			if err := app.Health.Start(); err != nil {
				log.WithError(err).Warn("health check server stopped")
			}
		}()
	}

	watcher, err := config.NewWatcher(*flagConfigFile, cfg, func() {
		newCfg, err := config.Load(*flagConfigFile)
		if err != nil {
			log.WithError(err).Warn("config reload failed, keeping previous configuration")
			return
		}
		if err := app.Reload(newCfg); err != nil {
			log.WithError(err).Error("listener reload failed")
		}
	}, log)
	if err != nil {
		log.WithError(err).Warn("config file watcher disabled")
	}

	if err := app.Start(); err != nil {
		log.WithError(err).Error("failed to start listeners")
		os.Exit(1)
	}
	log.Info("n2k-gateway " + GetVersionString() + " running")

	signals := newSignalHandler()
	for sig := range signals {
		switch translateSignal(sig) {
		case signalExit:
			log.Info("shutting down")
			if watcher != nil {
				watcher.Close()
			}
			if metricsServer != nil {
				metricsServer.Stop()
			}
			if app.Health != nil {
				app.Health.Stop()
			}
			app.Shutdown()
			return
		case signalReload:
			log.Info("reloading configuration")
			newCfg, err := config.Load(*flagConfigFile)
			if err != nil {
				log.WithError(err).Warn("config reload failed, keeping previous configuration")
				continue
			}
			if err := app.Reload(newCfg); err != nil {
				log.WithError(err).Error("listener reload failed")
			}
		}
	}
}
