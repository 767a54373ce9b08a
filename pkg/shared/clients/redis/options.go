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

package redis

// Options for writing to a redis stream
type Options struct {
	// MaxLength trims the stream to about this many entries on every append, 0 disables trimming
	MaxLength int64
	// ExactTrim trims to exactly MaxLength instead of the cheaper approximate trim
	ExactTrim bool
	// Field is the name of the stream entry field holding the value
	Field string
}

// DefaultOptions returns the options used when none is given.
func DefaultOptions() *Options {
	return &Options{Field: "value"}
}

// Option to apply different options
type Option interface {
	Apply(*Options)
}

// maxLength option
type maxLength int64

func (m maxLength) Apply(o *Options) {
	o.MaxLength = int64(m)
}

// WithMaxLength sets the maxLength
func WithMaxLength(m int64) Option {
	return maxLength(m)
}

// exactTrim option
type exactTrim bool

func (e exactTrim) Apply(o *Options) {
	o.ExactTrim = bool(e)
}

// WithExactTrim turns on exact trimming
func WithExactTrim() Option {
	return exactTrim(true)
}

// field option
type field string

func (f field) Apply(o *Options) {
	if f != "" {
		o.Field = string(f)
	}
}

// WithField sets the entry field name
func WithField(f string) Option {
	return field(f)
}
