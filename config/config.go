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

// Package config reads the gateway's single JSON configuration document
// (listeners, Kafka brokers, blacklist, rdkafka.* passthrough) the way
// core/config.go reads gollum's YAML document, adapted to the JSON wire
// format spec.md mandates.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Config is the top level configuration document.
type Config struct {
	Listeners []ListenerConfig       `json:"listeners"`
	Brokers   string                 `json:"brokers"`
	Topic     string                 `json:"topic"`
	Response  string                 `json:"response"`
	Blacklist []string               `json:"blacklist"`
	Debug     int                    `json:"debug"`
	Raw       map[string]interface{} `json:"-"`

	// RdKafka holds every "rdkafka.*" key verbatim, split into broker-level
	// and topic-level ("rdkafka.topic.*") settings.
	RdKafka      map[string]string
	RdKafkaTopic map[string]string
}

// ListenerConfig is one entry of the "listeners" array.
type ListenerConfig struct {
	Proto      string `json:"proto"`
	Port       int    `json:"port"`
	NumThreads int    `json:"num_threads"`
	Mode       string `json:"mode"`

	TCPKeepalive bool   `json:"tcp_keepalive"`
	DecodeAs     string `json:"decode_as"`

	// HTTP-only.
	HTTPSKeyFilename        string `json:"https_key_filename"`
	HTTPSCertFilename       string `json:"https_cert_filename"`
	HTTPSKeyPassword        string `json:"https_key_password"`
	HTTPSClientsCAFilename  string `json:"https_clients_ca_filename"`
	HtpasswdFilename        string `json:"htpasswd_filename"`
	ConnectionMemoryLimit   int64  `json:"connection_memory_limit"`
	ConnectionLimit         int    `json:"connection_limit"`
	ConnectionTimeoutSec    int    `json:"connection_timeout"`
	PerIPConnectionLimit    int    `json:"per_ip_connection_limit"`
}

const defaultConnectionTimeoutSec = 30

// Load reads and parses the config file at path.
func Load(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %q: %w", path, err)
	}
	return Parse(buf)
}

// Parse parses a config document already read into memory.
func Parse(buf []byte) (*Config, error) {
	raw := make(map[string]interface{})
	if err := json.Unmarshal(buf, &raw); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg := &Config{Raw: raw, RdKafka: map[string]string{}, RdKafkaTopic: map[string]string{}}
	if err := json.Unmarshal(buf, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	for key, val := range raw {
		if !strings.HasPrefix(key, "rdkafka.") {
			continue
		}
		str, ok := val.(string)
		if !ok {
			str = fmt.Sprintf("%v", val)
		}
		rest := strings.TrimPrefix(key, "rdkafka.")
		if strings.HasPrefix(rest, "topic.") {
			cfg.RdKafkaTopic[strings.TrimPrefix(rest, "topic.")] = str
		} else {
			cfg.RdKafka[rest] = str
		}
	}

	for i := range cfg.Listeners {
		if cfg.Listeners[i].ConnectionTimeoutSec == 0 {
			cfg.Listeners[i].ConnectionTimeoutSec = defaultConnectionTimeoutSec
		}
		if cfg.Listeners[i].NumThreads == 0 {
			cfg.Listeners[i].NumThreads = 1
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	seen := make(map[string]bool, len(c.Listeners))
	for _, l := range c.Listeners {
		switch l.Proto {
		case "http", "tcp", "udp":
		default:
			return fmt.Errorf("listener: unknown proto %q", l.Proto)
		}
		switch l.Mode {
		case "", "thread_per_connection", "select", "poll", "epoll":
		default:
			return fmt.Errorf("listener: unknown mode %q", l.Mode)
		}
		key := fmt.Sprintf("%s:%d", l.Proto, l.Port)
		if seen[key] {
			return fmt.Errorf("listener: duplicate %s", key)
		}
		seen[key] = true
	}
	return nil
}

// EnvOverrides applies environment variable overrides for the TLS/auth
// paths of a listener, per spec.md §6 ("Environment variables override
// file settings for every TLS/auth path").
func (l *ListenerConfig) EnvOverrides(getenv func(string) string) {
	prefix := fmt.Sprintf("N2K_LISTENER_%d_", l.Port)
	override := func(key string, dst *string) {
		if v := getenv(prefix + key); v != "" {
			*dst = v
		}
	}
	override("HTTPS_KEY_FILENAME", &l.HTTPSKeyFilename)
	override("HTTPS_CERT_FILENAME", &l.HTTPSCertFilename)
	override("HTTPS_KEY_PASSWORD", &l.HTTPSKeyPassword)
	override("HTTPS_CLIENTS_CA_FILENAME", &l.HTTPSClientsCAFilename)
	override("HTPASSWD_FILENAME", &l.HtpasswdFilename)
}
