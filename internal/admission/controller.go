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

import "context"

// Controller bounds how many jobs may call the inference engine at
// once. It is the single point of backpressure: an exhausted pool makes
// jobs wait, never rejects them.
type Controller struct {
	sem chan struct{}
}

func New(maxConcurrent int) *Controller {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &Controller{sem: make(chan struct{}, maxConcurrent)}
}

// Acquire blocks until a ticket is free or ctx is done. It blocks the
// calling job only, never a connection loop.
func (c *Controller) Acquire(ctx context.Context) error {
	select {
	case c.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire takes a ticket only if one is free.
func (c *Controller) TryAcquire() bool {
	select {
	case c.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release returns a ticket to the pool. Callers pair it with Acquire
// via defer so no exit path leaks a ticket.
func (c *Controller) Release() {
	<-c.sem
}

// InFlight reports how many tickets are currently held.
func (c *Controller) InFlight() int {
	return len(c.sem)
}

// Capacity reports the fixed pool size.
func (c *Controller) Capacity() int {
	return cap(c.sem)
}
