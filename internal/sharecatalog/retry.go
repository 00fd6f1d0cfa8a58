package sharecatalog

import (
	"context"

	"github.com/sirupsen/logrus"
)

// DefaultMaxRetryTimes is TXN_MAX_RETRY_TIMES from SPEC_FULL.md §4.5/§9.
const DefaultMaxRetryTimes = 10

// attemptFunc runs one full read/validate/commit cycle. It returns
// (true, nil) on a committed transaction, (false, nil) if the commit's
// conditions failed and the whole cycle should be retried from scratch,
// or a non-nil err to abort immediately (domain errors are never retried).
type attemptFunc func(ctx context.Context) (succeeded bool, err error)

// retryLoop is a plain bounded loop — not continuation-passing, per the
// "coroutine control flow" design note — that re-runs attempt up to
// maxAttempts times.
func (c *Catalog) retryLoop(ctx context.Context, op string, attempt attemptFunc) error {
	max := c.opts.MaxRetryTimes
	if max <= 0 {
		max = DefaultMaxRetryTimes
	}

	for i := 0; i < max; i++ {
		succeeded, err := attempt(ctx)
		if err != nil {
			c.metrics.observeAttempt(op, false)
			return err
		}
		if succeeded {
			c.metrics.observeAttempt(op, true)
			c.metrics.observeRetries(i)
			return nil
		}
		c.metrics.observeAttempt(op, false)
		c.logger.WithFields(logrus.Fields{"op": op, "attempt": i + 1}).
			Debug("sharecatalog: txn conflict, retrying")
	}

	c.metrics.observeRetries(max)
	return &TxnRetryMaxTimesError{Op: op, Attempts: max}
}
