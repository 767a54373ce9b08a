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

package util

import (
	"bytes"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/spf13/viper"
)

// clientIDPrefix prefixes the kafka client id of an instance.
const clientIDPrefix = "numastream-"

// NewSaramaConfig builds a sarama config from user settings in YAML, on top of the sarama defaults.
// The client id is derived from instance unless the settings name one. Producers report both
// successes and errors, the kafka sink drains both channels.
func NewSaramaConfig(yamlConfig string, instance string) (*sarama.Config, error) {
	cfg := sarama.NewConfig()
	if instance != "" {
		cfg.ClientID = clientIDPrefix + instance
	}
	if yamlConfig != "" {
		v := viper.New()
		v.SetConfigType("yaml")
		if err := v.ReadConfig(bytes.NewBufferString(yamlConfig)); err != nil {
			return nil, fmt.Errorf("failed to read kafka config, %w", err)
		}
		if err := v.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("failed to decode kafka config, %w", err)
		}
	}
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid kafka config, %w", err)
	}
	return cfg, nil
}
