package sampling

import "time"

// retryStrategy holds the delay to wait after each failed attempt.
type retryStrategy struct {
	backoffIntervals []time.Duration
}

// newRetryStrategy waits fixedDelay after each of the first fixedAttempts
// attempts and then doubles from 2*fixedDelay, never beyond maxDelay. There
// is no delay after the last of maxAttempts attempts.
func newRetryStrategy(fixedAttempts int, fixedDelay, maxDelay time.Duration, maxAttempts int) retryStrategy {
	intervals := make([]time.Duration, 0, max(maxAttempts-1, 0))
	next := fixedDelay
	for i := 1; i < maxAttempts; i++ {
		if i > fixedAttempts {
			next *= 2
		}
		intervals = append(intervals, min(next, maxDelay))
	}
	return retryStrategy{backoffIntervals: intervals}
}

// nextRetry returns the delay after attempt tryCount, counting from one, or
// false once no attempts are left.
func (s retryStrategy) nextRetry(tryCount int) (time.Duration, bool) {
	if tryCount < 1 || tryCount > len(s.backoffIntervals) {
		return 0, false
	}
	return s.backoffIntervals[tryCount-1], true
}

func (s retryStrategy) maxAttempts() int {
	return len(s.backoffIntervals) + 1
}
