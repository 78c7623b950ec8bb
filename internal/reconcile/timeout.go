package reconcile

import (
	"context"
	"time"
)

// WithTimeout bounds each Verify call to d. A verifier that overruns
// reports context.DeadlineExceeded, which Reconcile maps to NetworkError.
func WithTimeout(v Verifier, d time.Duration) Verifier {
	if d <= 0 {
		return v
	}
	return VerifierFunc(func(ctx context.Context, params Params) (Verdict, error) {
		tctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		type result struct {
			verdict Verdict
			err     error
		}
		ch := make(chan result, 1)
		go func() {
			verdict, err := v.Verify(tctx, params)
			ch <- result{verdict, err}
		}()

		select {
		case r := <-ch:
			return r.verdict, r.err
		case <-tctx.Done():
			return Verdict{}, tctx.Err()
		}
	})
}
