// Copyright (c) 2025, the AILinux project.
//
// The AILinux project licenses this file to you under the Apache License,
// Version 2.0 (the "License"); you may not use this file except
// in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied. See the License for the
// specific language governing permissions and limitations
// under the License.

package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ailinux/analysis-gateway/pkg/config"
	"github.com/ailinux/analysis-gateway/pkg/core"
)

// RedisStore keeps job records in Redis so late status queries survive
// a gateway restart. The TTL is a backstop only; the reaper remains the
// authoritative retention path.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

func NewRedisStore(cfg config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	keyPrefix := cfg.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "gateway:job:"
	}

	ttl := cfg.TTL.Std()
	if ttl == 0 {
		ttl = 24 * time.Hour
	}

	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
	}, nil
}

func (r *RedisStore) key(jobID string) string {
	return r.keyPrefix + jobID
}

func (r *RedisStore) Save(ctx context.Context, job *core.AnalysisJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	return r.client.Set(ctx, r.key(job.ID), data, r.ttl).Err()
}

func (r *RedisStore) Get(ctx context.Context, jobID string) (*core.AnalysisJob, error) {
	data, err := r.client.Get(ctx, r.key(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, core.ErrJobNotFound
		}
		return nil, err
	}
	var job core.AnalysisJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *RedisStore) Delete(ctx context.Context, jobID string) error {
	return r.client.Del(ctx, r.key(jobID)).Err()
}

func (r *RedisStore) List(ctx context.Context) ([]*core.AnalysisJob, error) {
	var jobs []*core.AnalysisJob
	var cursor uint64
	pattern := r.keyPrefix + "*"

	for {
		keys, nextCursor, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scan keys: %w", err)
		}

		for _, key := range keys {
			data, err := r.client.Get(ctx, key).Bytes()
			if err != nil {
				continue // key may have expired between SCAN and GET
			}
			var job core.AnalysisJob
			if err := json.Unmarshal(data, &job); err != nil {
				continue
			}
			jobs = append(jobs, &job)
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return jobs, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
