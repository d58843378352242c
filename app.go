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
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/trivago/n2k-gateway/auth"
	"github.com/trivago/n2k-gateway/blacklist"
	"github.com/trivago/n2k-gateway/config"
	"github.com/trivago/n2k-gateway/healthcheck"
	"github.com/trivago/n2k-gateway/kafkasink"
	"github.com/trivago/n2k-gateway/listener"
	"github.com/trivago/n2k-gateway/metrics"
	"github.com/trivago/n2k-gateway/topic"
)

// App is the single root value wiring every package together, replacing
// gollum's package-level globals (Coordinator, the metric registry, the
// logrus hook buffer) per REDESIGN FLAGS §9 "process-wide mutable state".
// Constructed once in main(); reload rebuilds the listener set in place.
type App struct {
	Config  *config.Config
	Log     logrus.FieldLogger
	Metrics *metrics.Registry
	Sink    *kafkasink.Sink
	Topics  *topic.Registry
	Health  *healthcheck.Server

	mu        sync.Mutex
	listeners []runningListener
}

// runningListener pairs a listener's network resources with the means to
// tear it down cleanly on reload/shutdown.
type runningListener struct {
	cfg      config.ListenerConfig
	httpFE   *listener.HTTP
	httpLn   net.Listener
	socketFE *listener.Socket
	socketLn net.Listener
	udpConn  *net.UDPConn
}

// NewApp wires the gateway's root dependencies from cfg. healthAddr may be
// empty to disable the health check server.
func NewApp(cfg *config.Config, log logrus.FieldLogger, healthAddr string) (*App, error) {
	reg := metrics.New()

	sink, err := kafkasink.New(cfg, reg, log)
	if err != nil {
		return nil, fmt.Errorf("starting kafka sink: %w", err)
	}

	topics := topic.New(sink)

	a := &App{
		Config:  cfg,
		Log:     log,
		Metrics: reg,
		Sink:    sink,
		Topics:  topics,
	}

	if healthAddr != "" {
		a.Health = healthcheck.New(healthAddr)
		a.Health.AddEndpoint("/kafka", func() (int, string) {
			if n := sink.BrokerCount(); n == 0 {
				return 503, "no brokers reachable\n"
			}
			return 200, "ok\n"
		})
		a.Health.AddEndpoint("/topics", func() (int, string) {
			return 200, fmt.Sprintf("%d active\n", topics.Len())
		})
	}

	return a, nil
}

// Start binds and serves every configured listener. Returns once all
// listeners are accepting (bind errors stop the whole startup).
func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	bl, err := blacklist.New(a.Config.Blacklist)
	if err != nil {
		return fmt.Errorf("parsing blacklist: %w", err)
	}

	for _, lc := range a.Config.Listeners {
		lc.EnvOverrides(os.Getenv)
		rl, err := a.startListener(lc, bl)
		if err != nil {
			return fmt.Errorf("starting listener %s:%d: %w", lc.Proto, lc.Port, err)
		}
		a.listeners = append(a.listeners, rl)
	}
	return nil
}

func (a *App) startListener(lc config.ListenerConfig, bl *blacklist.List) (runningListener, error) {
	rl := runningListener{cfg: lc}
	addr := fmt.Sprintf(":%d", lc.Port)

	switch lc.Proto {
	case "http":
		var tlsConfig *tls.Config
		if lc.HTTPSCertFilename != "" {
			tlsConfig, _ = auth.TLSConfig(lc.HTTPSCertFilename, lc.HTTPSKeyFilename, lc.HTTPSClientsCAFilename)
		}
		var htpasswd *auth.Htpasswd
		if lc.HtpasswdFilename != "" {
			htpasswd = auth.NewHtpasswd("n2k-gateway", lc.HtpasswdFilename)
		}

		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return rl, err
		}

		fe := listener.NewHTTP(addr, a.Topics, a.Sink, htpasswd, tlsConfig, a.Log.WithField("listener", addr))
		rl.httpFE = fe
		rl.httpLn = ln
		go func() {
			if err := fe.Serve(ln); err != nil {
				a.Log.WithError(err).WithField("addr", addr).Debug("http listener stopped")
			}
		}()

	case "tcp":
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return rl, err
		}
		fe := listener.NewSocket(a.Topics, a.Sink, bl, lc.NumThreads, a.Log.WithField("listener", addr))
		fe.TCPKeepalive = lc.TCPKeepalive
		rl.socketFE = fe
		rl.socketLn = ln
		go fe.ServeTCP(ln)

	case "udp":
		udpAddr, err := net.ResolveUDPAddr("udp", addr)
		if err != nil {
			return rl, err
		}
		conn, err := net.ListenUDP("udp", udpAddr)
		if err != nil {
			return rl, err
		}
		fe := listener.NewSocket(a.Topics, a.Sink, bl, lc.NumThreads, a.Log.WithField("listener", addr))
		rl.socketFE = fe
		rl.udpConn = conn
		fe.ServeUDP(conn)

	default:
		return rl, fmt.Errorf("unknown proto %q", lc.Proto)
	}

	return rl, nil
}

// Shutdown tears down every listener and the Kafka sink. Safe to call once.
func (a *App) Shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, rl := range a.listeners {
		switch {
		case rl.httpFE != nil:
			rl.httpFE.Shutdown()
		case rl.socketFE != nil:
			if rl.socketLn != nil {
				rl.socketLn.Close()
			}
			if rl.udpConn != nil {
				rl.udpConn.Close()
			}
			rl.socketFE.Shutdown()
		}
	}
	a.listeners = nil

	a.Topics.Shutdown()
	if err := a.Sink.Close(); err != nil {
		a.Log.WithError(err).Warn("error closing kafka sink")
	}
}

// Reload tears down the current listener set and rebuilds it from a
// freshly loaded config, replacing cfg in place. The Kafka sink and topic
// registry are kept: only the listener set and blacklist are rebuilt,
// matching spec.md §5's "listener list mutated only by the reload/
// shutdown thread" invariant.
func (a *App) Reload(cfg *config.Config) error {
	a.mu.Lock()
	old := a.listeners
	a.listeners = nil
	a.Config = cfg
	a.mu.Unlock()

	for _, rl := range old {
		switch {
		case rl.httpFE != nil:
			rl.httpFE.Shutdown()
		case rl.socketFE != nil:
			if rl.socketLn != nil {
				rl.socketLn.Close()
			}
			if rl.udpConn != nil {
				rl.udpConn.Close()
			}
			rl.socketFE.Shutdown()
		}
	}

	return a.Start()
}
