// Package wait provides the retry/timeout loop shared by every bounded
// search in the engine, and the stillness detector built on top of it.
package wait

import (
	"errors"
	"time"
)

// ErrExhausted is returned by Until when the deadline passes without the
// condition being satisfied. Callers convert it into the domain error
// appropriate to what they were waiting for.
var ErrExhausted = errors.New("wait: deadline exhausted")

// Until runs fn immediately, then once per interval until it reports done,
// returns a hard error, or the timeout elapses. The final attempt may start
// exactly at the deadline; no attempt starts after it. A zero or negative
// timeout allows exactly one attempt.
//
// fn returning (false, nil) means "not yet satisfied" and is the only
// condition that is retried. Any error from fn aborts the loop at once.
func Until(interval, timeout time.Duration, fn func() (bool, error)) error {
	deadline := time.Now().Add(timeout)
	for {
		done, err := fn()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if time.Now().Add(interval).After(deadline) {
			// One last attempt is allowed if it can still start on the
			// deadline itself.
			if remaining := time.Until(deadline); remaining > 0 {
				time.Sleep(remaining)
				done, err := fn()
				if err != nil {
					return err
				}
				if done {
					return nil
				}
			}
			return ErrExhausted
		}
		time.Sleep(interval)
	}
}
