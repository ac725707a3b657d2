// Copyright 2023 UMH Systems GmbH
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

package internal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func Test_GetBackoffTime(t *testing.T) {
	for i := 0; i < 70; i++ {
		backOff := GetBackoffTime(int64(i), 1*time.Microsecond, 1*time.Second)
		assert.True(t, backOff >= 0 && backOff <= time.Second, "iteration %d: %s", i, backOff)
	}
	assert.Equal(t, time.Duration(0), GetBackoffTime(0, time.Second, time.Minute))
	assert.Equal(t, time.Duration(0), GetBackoffTime(5, 0, time.Minute))
}

func Test_CyclesUntilConverge(t *testing.T) {
	var testTimes = []time.Duration{
		time.Millisecond,
		time.Microsecond,
		time.Nanosecond,
	}
	for _, testTime := range testTimes {
		var i = int64(0)
		t.Logf("Testing %s", testTime)
		for {
			backOff := GetBackoffTime(i, testTime, 1*time.Second)
			i += 1
			if backOff >= 1*time.Second {
				t.Logf("Converged after %d iterations", i)
				break
			}
		}
	}
}

func Test_RetryBackedOff(t *testing.T) {
	calls := 0
	err := RetryBackedOff(context.Background(), 5, time.Microsecond, time.Millisecond, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = RetryBackedOff(context.Background(), 2, time.Microsecond, time.Millisecond, func(ctx context.Context) error {
		calls++
		return errors.New("never")
	})
	assert.EqualError(t, err, "never")
	assert.Equal(t, 2, calls)
}

func Test_RetryBackedOffStopsOnContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := RetryBackedOff(ctx, 0, 10*time.Millisecond, 50*time.Millisecond, func(ctx context.Context) error {
		return errors.New("down")
	})
	assert.EqualError(t, err, "down")
}
