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

// Package kafkasink owns the Kafka producer handle and turns batches of
// record descriptors into produced messages, propagating delivery
// completion back to the originating shared chunk. Grounded on
// producer/kafka.go's sarama wiring, reworked from gollum's per-message
// plugin Produce loop into a batch-oriented sink matching spec.md §4.7.
package kafkasink

import (
	"fmt"
	"strings"
	"time"

	"github.com/Shopify/sarama"
	"github.com/sirupsen/logrus"

	"github.com/trivago/n2k-gateway/config"
	"github.com/trivago/n2k-gateway/decodererr"
	"github.com/trivago/n2k-gateway/metrics"
	"github.com/trivago/n2k-gateway/ratelimit"
)

const sinkErrorLogPeriod = 5 * time.Minute

// Sink owns the sarama client/producer pair and the delivery-report
// goroutine that releases shared chunks as records are acknowledged.
type Sink struct {
	client   sarama.Client
	producer sarama.AsyncProducer
	config   *sarama.Config

	defaultTopic string

	log     logrus.FieldLogger
	limiter *ratelimit.Limiter
	metrics *metrics.Registry

	done chan struct{}
}

// New connects to cfg.Brokers and starts the delivery-report goroutine.
// The rdkafka.* passthrough keys that have a direct sarama equivalent are
// applied; the rest are recorded but have no effect, since sarama's config
// is a typed struct rather than librdkafka's flat string map.
func New(cfg *config.Config, reg *metrics.Registry, log logrus.FieldLogger) (*Sink, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.ClientID = valueOr(cfg.RdKafka["client.id"], "n2k-gateway")
	saramaCfg.Producer.Return.Errors = true
	saramaCfg.Producer.Return.Successes = true
	saramaCfg.Producer.RequiredAcks = sarama.WaitForLocal
	saramaCfg.Producer.Retry.Max = 3

	applyDurationMs(cfg.RdKafka["socket.timeout.ms"], &saramaCfg.Net.DialTimeout)
	applyDurationMs(cfg.RdKafka["message.timeout.ms"], &saramaCfg.Producer.Timeout)
	applyIntAsMaxBytes(cfg.RdKafka["message.max.bytes"], &saramaCfg.Producer.MaxMessageBytes)

	switch strings.ToLower(cfg.RdKafka["compression.codec"]) {
	case "gzip":
		saramaCfg.Producer.Compression = sarama.CompressionGZIP
	case "snappy":
		saramaCfg.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		saramaCfg.Producer.Compression = sarama.CompressionLZ4
	}

	brokers := strings.Split(cfg.Brokers, ",")
	client, err := sarama.NewClient(brokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}

	producer, err := sarama.NewAsyncProducerFromClient(client)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("kafka producer: %w", err)
	}

	s := &Sink{
		client:       client,
		producer:     producer,
		config:       saramaCfg,
		defaultTopic: cfg.Topic,
		log:          log,
		limiter:      ratelimit.New(sinkErrorLogPeriod),
		metrics:      reg,
		done:         make(chan struct{}),
	}
	go s.deliveryLoop()
	return s, nil
}

// DefaultTopic returns the configured fallback topic (config.Config's
// top-level "topic" field), used by the TCP/UDP socket listeners, whose
// records carry no URL to take a topic from.
func (s *Sink) DefaultTopic() string { return s.defaultTopic }

// BrokerCount reports how many brokers the client currently knows about,
// for the health check's Kafka connectivity probe.
func (s *Sink) BrokerCount() int {
	return len(s.client.Brokers())
}

// EnsureTopic implements topic.Producer: it validates that the broker
// knows about (or will auto-create) name by requesting its partitions.
func (s *Sink) EnsureTopic(name string) error {
	if _, err := s.client.Partitions(name); err != nil {
		return fmt.Errorf("topic %q: %w", name, err)
	}
	return nil
}

// Produce submits every record in b as an individual sarama message,
// sharing b's chunk as delivery metadata. It returns immediately; delivery
// completion (and shared-chunk release) happens asynchronously in
// deliveryLoop. A record whose send would block (sarama's input channel
// is at capacity) is counted as a local BufferFull failure rather than
// blocking the session goroutine, the non-blocking-enqueue behavior
// spec.md §5 calls out ("producer enqueue ... may fail with QueueFull").
// The return value is the count of records actually handed to sarama,
// matching the original's "returns the count accepted" contract.
func (s *Sink) Produce(b *Batch) int {
	accepted := 0
	for i := 0; i < b.Len(); i++ {
		msg := &sarama.ProducerMessage{
			Topic:    b.Topic,
			Value:    sarama.ByteEncoder(b.payload(i)),
			Metadata: b.chunk,
		}
		select {
		case s.producer.Input() <- msg:
			accepted++
		case <-s.done:
			b.chunk.release()
		default:
			s.metrics.SinkErrors.Inc(1)
			s.metrics.BufferFull.Inc(1)
			if s.limiter.Allow(decodererr.BufferFull.String(), time.Now()) {
				s.log.WithField("kind", decodererr.BufferFull.String()).
					WithField("topic", b.Topic).
					Warn("kafka produce failed")
			}
			b.chunk.release()
		}
	}
	return accepted
}

// deliveryLoop drains the producer's Successes/Errors channels, releasing
// each message's shared chunk exactly once and logging failures throttled
// per error kind, matching spec.md §4.7 ("log throttled to once per five
// minutes per error kind").
func (s *Sink) deliveryLoop() {
	for {
		select {
		case msg, ok := <-s.producer.Successes():
			if !ok {
				return
			}
			s.metrics.MessagesQueued.Inc(1)
			releaseMetadata(msg.Metadata)

		case perr, ok := <-s.producer.Errors():
			if !ok {
				return
			}
			s.metrics.SinkErrors.Inc(1)
			kind := mapSinkError(perr.Err)
			if kind == decodererr.BufferFull {
				s.metrics.BufferFull.Inc(1)
			}
			if s.limiter.Allow(kind.String(), time.Now()) {
				s.log.WithError(perr.Err).WithField("kind", kind.String()).
					WithField("topic", perr.Msg.Topic).
					Warn("kafka produce failed")
			}
			releaseMetadata(perr.Msg.Metadata)
		}
	}
}

func releaseMetadata(metadata interface{}) {
	if chunk, ok := metadata.(*sharedChunk); ok {
		chunk.release()
	}
}

// mapSinkError implements spec.md §4.7's exhaustive sink-error mapping,
// including the two "sic" transpositions pinned by §9 Open Question 1:
// a message-too-large failure is reported to callers as UnknownTopic, and
// an unknown-topic failure is reported as MsgTooLarge. This is almost
// certainly a historical bug in the system being modeled, but callers
// depend on the status codes it produces today, so it is reproduced
// exactly rather than "corrected" here.
func mapSinkError(err error) decodererr.Kind {
	switch {
	case err == sarama.ErrRequestTimedOut, err == nil:
		return decodererr.GenericError
	case err == sarama.ErrMessageSizeTooLarge || err == sarama.ErrInvalidMessageSize:
		return decodererr.UnknownTopic // sic
	case err == sarama.ErrUnknownTopicOrPartition:
		return decodererr.MsgTooLarge // sic
	case err == sarama.ErrLeaderNotAvailable || err == sarama.ErrReplicaNotAvailable:
		return decodererr.UnknownPartition
	case err == sarama.ErrOutOfBrokers:
		return decodererr.BufferFull
	default:
		return decodererr.GenericError
	}
}

// Close flushes and tears down the producer/client pair, matching
// producer/kafka.go's flush().
func (s *Sink) Close() error {
	close(s.done)
	if err := s.producer.Close(); err != nil {
		return err
	}
	return s.client.Close()
}

func valueOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func applyDurationMs(v string, dst *time.Duration) {
	if v == "" {
		return
	}
	var ms int64
	if _, err := fmt.Sscanf(v, "%d", &ms); err == nil && ms > 0 {
		*dst = time.Duration(ms) * time.Millisecond
	}
}

func applyIntAsMaxBytes(v string, dst *int) {
	if v == "" {
		return
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err == nil && n > 0 {
		*dst = n
	}
}
