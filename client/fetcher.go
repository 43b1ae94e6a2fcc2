package client

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-offline-cache/types"
)

type State int32

const (
	StateRunning State = iota
	StateStopping
	StateStopped
)

// HTTPFetcher performs live network attempts on behalf of the
// strategies. It issues exactly one attempt per call; falling back or
// re-issuing is the caller's business.
type HTTPFetcher struct {
	ctx     context.Context
	cancel  context.CancelFunc
	logger  types.Logger
	client  *fasthttp.Client
	breaker *CircuitBreaker
	timeout time.Duration
	state   atomic.Value
}

func NewHTTPFetcher(ctx context.Context, logger types.Logger, config *types.UpstreamConfig) *HTTPFetcher {
	fetcherCtx, cancel := context.WithCancel(ctx)

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	httpClient := &fasthttp.Client{
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}

	fetcher := &HTTPFetcher{
		ctx:     fetcherCtx,
		cancel:  cancel,
		logger:  logger,
		client:  httpClient,
		breaker: NewCircuitBreaker(config.CircuitBreaker, logger),
		timeout: timeout,
	}

	fetcher.state.Store(StateStopped)
	return fetcher
}

func (f *HTTPFetcher) Start() error {
	if !f.state.CompareAndSwap(StateStopped, StateRunning) {
		return types.ErrServerAlreadyRunning
	}
	return nil
}

func (f *HTTPFetcher) Stop() error {
	if !f.state.CompareAndSwap(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	defer func() {
		f.state.Store(StateStopped)
		f.cancel()
	}()

	f.logger.Debug("HTTP fetcher stopped gracefully")
	return nil
}

func (f *HTTPFetcher) IsRunning() bool {
	return f.state.Load().(State) == StateRunning
}

func (f *HTTPFetcher) Fetch(ctx context.Context, request *types.Request) (*types.Snapshot, error) {
	if !f.IsRunning() {
		return nil, types.ErrFetcherNotRunning
	}

	if !f.breaker.CanExecute() {
		return nil, types.ErrCircuitBreakerOpen
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(request.URL)
	req.Header.SetMethod(request.Method)

	type result struct {
		snapshot *types.Snapshot
		err      error
	}

	done := make(chan result, 1)
	go func() {
		err := f.client.DoTimeout(req, resp, f.timeout)
		if err != nil {
			done <- result{nil, err}
			return
		}
		done <- result{captureSnapshot(resp), nil}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			f.breaker.RecordFailure()
			f.logger.Debug("Fetch failed",
				zap.String("url", request.URL),
				zap.Error(res.err))
			return nil, types.Errorf(types.ErrFetchFailed, "%s %s: %v", request.Method, request.URL, res.err)
		}

		if res.snapshot.Status >= 500 {
			f.breaker.RecordFailure()
		} else {
			f.breaker.RecordSuccess()
		}

		return res.snapshot, nil
	case <-ctx.Done():
		return nil, types.Errorf(types.ErrFetchFailed, "%s %s: %v", request.Method, request.URL, ctx.Err())
	case <-f.ctx.Done():
		return nil, types.Errorf(types.ErrFetchFailed, "fetcher shutting down: %s", request.URL)
	}
}

func captureSnapshot(resp *fasthttp.Response) *types.Snapshot {
	headers := make(map[string]string)
	resp.Header.VisitAll(func(key, value []byte) {
		headers[string(key)] = string(value)
	})

	body := make([]byte, len(resp.Body()))
	copy(body, resp.Body())

	return &types.Snapshot{
		Status:     resp.StatusCode(),
		Headers:    headers,
		Body:       body,
		CapturedAt: time.Now(),
	}
}
