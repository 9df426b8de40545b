// internal/pkg/httpclient/client.go
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Client 是一个可追踪的服务间 HTTP 客户端。
// 不设置全局 Timeout，超时完全受每次请求传入的 context 控制。
type Client struct {
	tracer trace.Tracer
	http   *http.Client
	// serviceToken 随每次请求发出，是服务间调用的能力凭证
	serviceToken string
}

// HeaderServiceToken 是服务间能力凭证使用的请求头。
const HeaderServiceToken = "X-Service-Token"

func NewClient(tracer trace.Tracer, serviceToken string) *Client {
	return &Client{
		tracer: tracer,
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
			},
		},
		serviceToken: serviceToken,
	}
}

// PostJSON 发送 JSON 请求体并把 2xx 响应解码到 out（out 可为 nil）。
func (c *Client) PostJSON(ctx context.Context, url string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	return c.do(ctx, http.MethodPost, url, body, out)
}

// GetJSON 发送 GET 请求并把 2xx 响应解码到 out。
func (c *Client) GetJSON(ctx context.Context, url string, out interface{}) error {
	return c.do(ctx, http.MethodGet, url, nil, out)
}

// StatusError 保留下游返回的状态码和响应体，调用方据此区分业务拒绝和传输故障。
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("downstream returned status %d: %s", e.StatusCode, string(e.Body))
}

// Retryable 5xx 视为瞬时故障，4xx 是确定性的业务/客户端错误。
func (e *StatusError) Retryable() bool {
	return e.StatusCode >= 500
}

func (c *Client) do(ctx context.Context, method, url string, body io.Reader, out interface{}) error {
	ctx, span := c.tracer.Start(ctx, fmt.Sprintf("http.%s", method), trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		span.RecordError(err)
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.serviceToken != "" {
		req.Header.Set(HeaderServiceToken, c.serviceToken)
	}

	span.SetAttributes(
		attribute.String("http.url", url),
		attribute.String("http.method", method),
	)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: data}
		span.RecordError(statusErr)
		span.SetStatus(codes.Error, statusErr.Error())
		return statusErr
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
