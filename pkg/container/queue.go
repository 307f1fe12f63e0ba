/*
 * Copyright 2025 SREDiag Authors
 * Copyright 2023 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package container

import (
	"errors"
	"fmt"
	"time"

	queuepkg "github.com/Workiva/go-datastructures/queue"
)

// minPollWait stands in for a zero timeout; the underlying queue treats a
// zero timeout as "wait forever".
const minPollWait = time.Microsecond

// handoffQueue is the unbounded FIFO polled by synchronous consumers. The
// hint only sizes the initial backing slice.
type handoffQueue struct {
	q *queuepkg.Queue
}

func newHandoffQueue(hint int64) *handoffQueue {
	return &handoffQueue{q: queuepkg.New(hint)}
}

func (q *handoffQueue) put(payload string) error {
	return q.q.Put(payload)
}

// poll waits up to timeout for the head element. ok is false on timeout.
func (q *handoffQueue) poll(timeout time.Duration) (payload string, ok bool, err error) {
	if timeout <= 0 {
		timeout = minPollWait
	}
	items, err := q.q.Poll(1, timeout)
	if err != nil {
		if errors.Is(err, queuepkg.ErrTimeout) {
			return "", false, nil
		}
		return "", false, err
	}
	if len(items) == 0 {
		return "", false, nil
	}
	s, isString := items[0].(string)
	if !isString {
		return "", false, fmt.Errorf("invalid queue element type %T", items[0])
	}
	return s, true, nil
}

func (q *handoffQueue) len() int64 {
	return q.q.Len()
}
