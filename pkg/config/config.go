/*
Copyright 2022 The Numaproj Authors.

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

// Package config loads the runtime settings of a processor.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"k8s.io/apimachinery/pkg/util/wait"

	sharedutil "github.com/numaproj/numastream/pkg/shared/util"
)

const (
	// EnvConfigPath overrides the location of the configuration file.
	EnvConfigPath = "NUMASTREAM_CONFIG"
	// DefaultConfigPath is where the configuration file is looked up by default.
	DefaultConfigPath = "/etc/numastream/config.yaml"
)

// GlobalConfig is the configuration of a processor. It is reloaded when the file changes.
type GlobalConfig struct {
	conf *config
	lock *sync.RWMutex
}

type config struct {
	Endpoint   EndpointConfig          `json:"endpoint"`
	Serializer SerializerConfig        `json:"serializer"`
	Transport  TransportConfig         `json:"transport"`
	Metrics    MetricsConfig           `json:"metrics"`
	Checkpoint CheckpointConfig        `json:"checkpoint"`
	Vertices   map[string]VertexConfig `json:"vertices"`
}

type EndpointConfig struct {
	QueueSize     int           `json:"queueSize"`
	BufferSize    int           `json:"bufferSize"`
	FlushInterval time.Duration `json:"flushInterval"`
	MaxFrameSize  int           `json:"maxFrameSize"`
	// KeepaliveInterval is the idle time after which an output stream sends a keepalive.
	KeepaliveInterval time.Duration `json:"keepaliveInterval"`
	// StreamTimeout bounds a write to a stream, and the silence tolerated on an input stream.
	StreamTimeout time.Duration `json:"streamTimeout"`
}

type SerializerConfig struct {
	Concurrency int64 `json:"concurrency"`
}

// TransportConfig describes how processors reach each other.
type TransportConfig struct {
	// Port is where a processor serves its streams and its admin API.
	Port int `json:"port"`
	// TLS secures the port with a self-signed certificate.
	TLS       bool          `json:"tls"`
	DialRetry BackoffConfig `json:"dialRetry"`
	// Peers maps instance names to addresses. Instances not listed are reached at <instance>:<port>.
	Peers map[string]string `json:"peers"`
}

// PeerAddress returns the address of instance.
func (tc TransportConfig) PeerAddress(instance string) string {
	if addr, ok := tc.Peers[strings.ToLower(instance)]; ok {
		return addr
	}
	return fmt.Sprintf("%s:%d", instance, tc.Port)
}

type BackoffConfig struct {
	Steps    int           `json:"steps"`
	Duration time.Duration `json:"duration"`
	Factor   float64       `json:"factor"`
	Jitter   float64       `json:"jitter"`
}

// Backoff returns the wait.Backoff described by the config.
func (bc BackoffConfig) Backoff() wait.Backoff {
	return wait.Backoff{
		Steps:    bc.Steps,
		Duration: bc.Duration,
		Factor:   bc.Factor,
		Jitter:   bc.Jitter,
	}
}

type MetricsConfig struct {
	Port int `json:"port"`
}

type CheckpointConfig struct {
	// Schedule is a cron expression, barriers are not injected when it is empty.
	Schedule string `json:"schedule"`
	// History is the number of checkpoints kept in memory.
	History int `json:"history"`
}

// VertexConfig holds what a vertex runs, keyed by vertex name in the configuration file.
type VertexConfig struct {
	Source    *SourceConfig    `json:"source"`
	Sink      *SinkConfig      `json:"sink"`
	Operators []OperatorConfig `json:"operators"`
}

// Source and sink types.
const (
	SourceTypeGenerator = "generator"
	SourceTypeKafka     = "kafka"
	SinkTypeLog         = "log"
	SinkTypeBlackhole   = "blackhole"
	SinkTypeKafka       = "kafka"
	SinkTypeRedis       = "redis"
	SinkTypeNats        = "nats"
	SinkTypeFile        = "file"
)

// SourceConfig selects the source of a source vertex by Type. The settings of the selected
// type are read from the field of the same name.
type SourceConfig struct {
	Type      string           `json:"type"`
	Generator *GeneratorSource `json:"generator"`
	Kafka     *KafkaSource     `json:"kafka"`
}

type GeneratorSource struct {
	ReadsPerUnit int           `json:"readsPerUnit"`
	TimeUnit     time.Duration `json:"timeUnit"`
	KeyCount     int           `json:"keyCount"`
	Limit        int           `json:"limit"`
}

type KafkaSource struct {
	Brokers       []string `json:"brokers"`
	Topic         string   `json:"topic"`
	ConsumerGroup string   `json:"consumerGroup"`
	// Config is sarama configuration in YAML.
	Config string `json:"config"`
}

// SinkConfig selects the sink of a sink vertex by Type, like SourceConfig.
type SinkConfig struct {
	Type  string     `json:"type"`
	Kafka *KafkaSink `json:"kafka"`
	Redis *RedisSink `json:"redis"`
	Nats  *NatsSink  `json:"nats"`
	File  *FileSink  `json:"file"`
}

type KafkaSink struct {
	Brokers []string `json:"brokers"`
	Topic   string   `json:"topic"`
	Config  string   `json:"config"`
}

type RedisSink struct {
	// Addrs is overridden by NUMASTREAM_REDIS_URL when it is set.
	Addrs     []string `json:"addrs"`
	Stream    string   `json:"stream"`
	MaxLength int64    `json:"maxLength"`
}

type NatsSink struct {
	URL     string `json:"url"`
	Subject string `json:"subject"`
}

type FileSink struct {
	Path string `json:"path"`
}

// OperatorConfig names a builtin operator and its arguments.
type OperatorConfig struct {
	Name   string            `json:"name"`
	KWArgs map[string]string `json:"kwargs"`
}

func (g *GlobalConfig) GetEndpointConfig() EndpointConfig {
	g.lock.RLock()
	defer g.lock.RUnlock()
	return g.conf.Endpoint
}

func (g *GlobalConfig) GetSerializerConfig() SerializerConfig {
	g.lock.RLock()
	defer g.lock.RUnlock()
	return g.conf.Serializer
}

func (g *GlobalConfig) GetTransportConfig() TransportConfig {
	g.lock.RLock()
	defer g.lock.RUnlock()
	return g.conf.Transport
}

func (g *GlobalConfig) GetMetricsConfig() MetricsConfig {
	g.lock.RLock()
	defer g.lock.RUnlock()
	return g.conf.Metrics
}

func (g *GlobalConfig) GetCheckpointConfig() CheckpointConfig {
	g.lock.RLock()
	defer g.lock.RUnlock()
	return g.conf.Checkpoint
}

// GetVertexConfig returns the config of a vertex. Vertex names are matched case-insensitively,
// since configuration keys are not case sensitive.
func (g *GlobalConfig) GetVertexConfig(name string) (VertexConfig, bool) {
	g.lock.RLock()
	defer g.lock.RUnlock()
	vc, ok := g.conf.Vertices[strings.ToLower(name)]
	return vc, ok
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("endpoint.queueSize", 1000)
	v.SetDefault("endpoint.bufferSize", 64*1024)
	v.SetDefault("endpoint.flushInterval", time.Second)
	v.SetDefault("endpoint.maxFrameSize", 64*1024*1024)
	v.SetDefault("endpoint.keepaliveInterval", 5*time.Second)
	v.SetDefault("endpoint.streamTimeout", 20*time.Second)
	v.SetDefault("serializer.concurrency", 8)
	v.SetDefault("transport.port", 2470)
	v.SetDefault("transport.tls", false)
	v.SetDefault("transport.dialRetry.steps", sharedutil.DefaultDialBackoff.Steps)
	v.SetDefault("transport.dialRetry.duration", sharedutil.DefaultDialBackoff.Duration)
	v.SetDefault("transport.dialRetry.factor", sharedutil.DefaultDialBackoff.Factor)
	v.SetDefault("transport.dialRetry.jitter", sharedutil.DefaultDialBackoff.Jitter)
	v.SetDefault("metrics.port", 2469)
	v.SetDefault("checkpoint.schedule", "")
	v.SetDefault("checkpoint.history", 16)
}

// LoadConfig reads the configuration file named by NUMASTREAM_CONFIG. A missing file yields the
// defaults. Changes to an existing file are picked up; a change that cannot be decoded is
// reported to onErrorReloading and the previous configuration stays in place.
func LoadConfig(onErrorReloading func(error)) (*GlobalConfig, error) {
	return loadConfig(sharedutil.LookupEnvStringOr(EnvConfigPath, DefaultConfigPath), onErrorReloading)
}

func loadConfig(path string, onErrorReloading func(error)) (*GlobalConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	setDefaults(v)
	watch := true
	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load configuration file. %w", err)
		}
		watch = false
	}
	r := &GlobalConfig{
		lock: new(sync.RWMutex),
	}
	conf := &config{}
	if err := v.Unmarshal(conf); err != nil {
		return nil, fmt.Errorf("failed unmarshal configuration file. %w", err)
	}
	r.conf = conf
	if !watch {
		return r, nil
	}
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		cf := &config{}
		if err := v.Unmarshal(cf); err != nil {
			onErrorReloading(err)
			return
		}
		r.lock.Lock()
		defer r.lock.Unlock()
		r.conf = cf
	})
	return r, nil
}
