package transport

import (
	"context"
	"errors"
	"time"

	"github.com/valyala/fasthttp"

	"relayq/pkg/faults"
	"relayq/pkg/logger"
	"relayq/pkg/models"
)

const defaultTimeout = 15 * time.Second

// HTTPClient is a fasthttp-backed Transport implementation. It rebuilds
// the request from the persisted descriptor and maps every failure onto
// the normalized error surface.
type HTTPClient struct {
	client  *fasthttp.Client
	timeout time.Duration
}

// NewHTTPClient returns an HTTPClient with the given per-request timeout.
// A zero timeout selects the default.
func NewHTTPClient(timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPClient{
		client: &fasthttp.Client{
			Name:                "relayq",
			MaxIdleConnDuration: 30 * time.Second,
		},
		timeout: timeout,
	}
}

// Transport adapts the client to the Transport function type.
func (h *HTTPClient) Transport() Transport { return h.Do }

// Do submits the descriptor. Context cancellation is honored up to the
// granularity of the request timeout.
func (h *HTTPClient) Do(ctx context.Context, rd *models.RequestDescriptor) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Error{Class: faults.ClassNetwork, Err: err}
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.Header.SetMethod(rd.Method)
	req.SetRequestURI(rd.URL)
	for k, v := range rd.Query {
		req.URI().QueryArgs().Set(k, v)
	}
	for k, v := range rd.Headers {
		req.Header.Set(k, v)
	}
	if len(rd.Body) > 0 {
		req.SetBody(rd.Body)
	}

	timeout := h.timeout
	if dl, ok := ctx.Deadline(); ok {
		if until := time.Until(dl); until < timeout {
			timeout = until
		}
	}

	if err := h.client.DoTimeout(req, resp, timeout); err != nil {
		class := faults.ClassNetwork
		if errors.Is(err, fasthttp.ErrTimeout) || errors.Is(err, fasthttp.ErrDialTimeout) {
			class = faults.ClassTimeout
		}
		logger.Debug("transport_no_response", "url", rd.URL, "class", string(class), "error", err)
		return nil, &Error{Received: false, Class: class, Err: err}
	}

	status := resp.StatusCode()
	if status >= 400 {
		return nil, &Error{Received: true, Status: status, Class: faults.ClassifyStatus(status)}
	}

	out := &Response{
		Status:  status,
		Headers: map[string]string{},
		Body:    append([]byte(nil), resp.Body()...),
	}
	resp.Header.VisitAll(func(k, v []byte) {
		out.Headers[string(k)] = string(v)
	})
	return out, nil
}
