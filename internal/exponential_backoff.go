package internal

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

const Int64Max = 1<<63 - 1

// GetBackoffTime returns a random duration in [0, (2^retries)*slotTime), capped at maximum
func GetBackoffTime(retries int64, slotTime time.Duration, maximum time.Duration) (backoff time.Duration) {

	defer func() {
		if r := recover(); r != nil {
			backoff = maximum
		}
	}()

	if slotTime <= 0 || retries <= 0 {
		return time.Duration(0)
	}
	if retries >= 63 {
		return maximum
	}
	//2^retries - 1
	// -1 is ommitted here, because the random function is [min, max)
	umax := uint64(1) << retries
	if umax > Int64Max {
		return maximum
	}
	n := rand.Int63n(int64(umax))

	//Prevents overflow
	u64Time := uint64(slotTime.Nanoseconds()) * uint64(n)
	if n != 0 && u64Time/uint64(n) != uint64(slotTime.Nanoseconds()) || u64Time > Int64Max {
		return maximum
	}

	backoff = time.Duration(n) * slotTime
	if backoff > maximum {
		backoff = maximum
	}
	return backoff
}

// SleepBackedOff waits for the backoff time or until ctx is done
func SleepBackedOff(ctx context.Context, retries int64, slotTime time.Duration, maximum time.Duration) error {
	timer := time.NewTimer(GetBackoffTime(retries, slotTime, maximum))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryBackedOff calls fn until it succeeds, attempts are used up or ctx is done.
// attempts <= 0 retries until ctx is done. The last error is returned.
func RetryBackedOff(ctx context.Context, attempts int64, slotTime time.Duration, maximum time.Duration, fn func(ctx context.Context) error) error {
	var err error
	for retries := int64(0); attempts <= 0 || retries < attempts; retries++ {
		if retries > 0 {
			if sleepErr := SleepBackedOff(ctx, retries, slotTime, maximum); sleepErr != nil {
				if err != nil {
					return err
				}
				return sleepErr
			}
		}
		err = fn(ctx)
		if err == nil {
			return nil
		}
		zap.S().Warnw("Attempt failed, backing off", "attempt", retries+1, "error", err)
	}
	return err
}
