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

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"

	sharedutil "github.com/numaproj/numastream/pkg/shared/util"
)

const (
	EnvRedisURL              = "NUMASTREAM_REDIS_URL"
	EnvRedisUser             = "NUMASTREAM_REDIS_USER"
	EnvRedisPassword         = "NUMASTREAM_REDIS_PASSWORD"
	EnvRedisSentinelMaster   = "NUMASTREAM_REDIS_SENTINEL_MASTER"
	EnvRedisSentinelPassword = "NUMASTREAM_REDIS_SENTINEL_PASSWORD"
)

// RedisClient datatype to hold redis client attributes.
type RedisClient struct {
	Client redis.UniversalClient
}

// NewRedisClient returns a new Redis Client.
func NewRedisClient(options *redis.UniversalOptions) *RedisClient {
	client := new(RedisClient)
	client.Client = redis.NewUniversalClient(options)
	return client
}

// NewRedisClientFromEnv returns a new Redis Client configured from the environment. addrs is
// used when the environment names no address.
func NewRedisClientFromEnv(addrs ...string) *RedisClient {
	opts := &redis.UniversalOptions{
		Addrs:      addrs,
		Username:   sharedutil.LookupEnvStringOr(EnvRedisUser, ""),
		Password:   sharedutil.LookupEnvStringOr(EnvRedisPassword, ""),
		MasterName: sharedutil.LookupEnvStringOr(EnvRedisSentinelMaster, ""),
	}
	if urls := sharedutil.LookupEnvStringOr(EnvRedisURL, ""); urls != "" {
		opts.Addrs = strings.Split(urls, ",")
	}
	if opts.MasterName != "" {
		opts.SentinelPassword = sharedutil.LookupEnvStringOr(EnvRedisSentinelPassword, "")
	}
	return NewRedisClient(opts)
}

// Append adds an entry to a stream, creating the stream if it does not exist, and returns the
// id of the entry.
func (cl *RedisClient) Append(ctx context.Context, stream string, value []byte, opts *Options) (string, error) {
	args := &redis.XAddArgs{
		Stream: stream,
		Values: []interface{}{opts.Field, value},
	}
	if opts.MaxLength > 0 {
		args.MaxLen = opts.MaxLength
		args.Approx = !opts.ExactTrim
	}
	return cl.Client.XAdd(ctx, args).Result()
}

// StreamLength returns the number of entries of a stream.
func (cl *RedisClient) StreamLength(ctx context.Context, stream string) (int64, error) {
	return cl.Client.XLen(ctx, stream).Result()
}

// DeleteKeys deletes a redis keys
func (cl *RedisClient) DeleteKeys(ctx context.Context, keys ...string) error {
	return cl.Client.Del(ctx, keys...).Err()
}

// Close closes the client.
func (cl *RedisClient) Close() error {
	return cl.Client.Close()
}
