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

package admission

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireUpToCapacity(t *testing.T) {
	c := New(2)
	ctx := context.Background()

	require.NoError(t, c.Acquire(ctx))
	require.NoError(t, c.Acquire(ctx))
	assert.Equal(t, 2, c.InFlight())
	assert.False(t, c.TryAcquire())

	c.Release()
	assert.Equal(t, 1, c.InFlight())
	assert.True(t, c.TryAcquire())
}

func TestAcquireBlocksUntilRelease(t *testing.T) {
	c := New(1)
	ctx := context.Background()
	require.NoError(t, c.Acquire(ctx))

	acquired := make(chan struct{})
	go func() {
		if err := c.Acquire(ctx); err == nil {
			close(acquired)
		}
	}()

	select {
	case <-acquired:
		t.Fatal("acquire must block while the pool is exhausted")
	case <-time.After(50 * time.Millisecond):
	}

	c.Release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("acquire must proceed after a release")
	}
}

func TestAcquireHonorsContext(t *testing.T) {
	c := New(1)
	require.NoError(t, c.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDefaultCapacity(t *testing.T) {
	c := New(0)
	assert.Equal(t, 4, c.Capacity())
}
