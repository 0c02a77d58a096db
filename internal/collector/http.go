package collector

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/pricing-cli/internal/resilience"
)

// newHTTPClient builds the http.Client shared by live collectors. Every
// upstream call carries this request-level timeout so a hung source
// surfaces as SourceUnavailable instead of stalling the run.
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

func retryableStatusCode(code int) bool {
	return code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable
}

type httpReply struct {
	body   []byte
	status int
}

// retryDo executes a request under the default retry policy. A 429
// response maps to ErrSourceRateLimited and transient 5xx failures and
// transport errors map to ErrSourceUnavailable; both are retried with
// backoff. Any other status is returned to the caller with its body.
// The optional limiter gates each attempt.
func retryDo(ctx context.Context, client *http.Client, limiter *rate.Limiter, req *http.Request) ([]byte, int, error) {
	policy := resilience.DefaultPolicy()
	policy.Retryable = func(err error) bool {
		return eris.Is(err, ErrSourceUnavailable) || eris.Is(err, ErrSourceRateLimited)
	}
	policy.OnRetry = resilience.RetryLogger(req.URL.Host)

	reply, err := resilience.Do(ctx, policy, func(ctx context.Context) (httpReply, error) {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return httpReply{}, eris.Wrap(err, "rate limit wait")
			}
		}

		resp, err := client.Do(req.Clone(ctx))
		if err != nil {
			return httpReply{}, eris.Wrap(ErrSourceUnavailable, err.Error())
		}
		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return httpReply{}, eris.Wrap(ErrSourceUnavailable, readErr.Error())
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return httpReply{}, eris.Wrapf(ErrSourceRateLimited, "status %d", resp.StatusCode)
		case retryableStatusCode(resp.StatusCode):
			return httpReply{}, eris.Wrapf(ErrSourceUnavailable, "status %d: %s", resp.StatusCode, string(body))
		default:
			return httpReply{body: body, status: resp.StatusCode}, nil
		}
	})
	if err != nil {
		return nil, 0, err
	}
	return reply.body, reply.status, nil
}
