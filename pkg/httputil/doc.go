// Package httputil provides retry helpers for the upload clients.
//
// A [Policy] runs an operation up to a fixed number of attempts with
// exponential backoff, optionally capped and observed through OnRetry.
// [Retry] is the uncapped shorthand. Only errors wrapped in
// [RetryableError] are retried; anything else is returned immediately:
//
//	err := httputil.Retry(ctx, 3, time.Second, func() error {
//	    resp, err := client.Do(req)
//	    if err != nil {
//	        return &httputil.RetryableError{Err: err}
//	    }
//	    defer resp.Body.Close()
//	    if resp.StatusCode >= 500 {
//	        return &httputil.RetryableError{Err: fmt.Errorf("status %d", resp.StatusCode)}
//	    }
//	    return nil
//	})
//
// Clients classify failures themselves: network errors and 5xx responses
// are transient, 4xx responses are not.
package httputil
