package assistant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/codes"
)

var ErrModelUnavailable = errors.New("language model unavailable")

// Generator produces a model reply for a prompt. The production
// implementation talks to Gemini; tests substitute a canned one.
type Generator interface {
	Generate(ctx context.Context, contents []Content) (string, error)
}

type Content struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

type Part struct {
	Text string `json:"text"`
}

type generateRequest struct {
	Contents []Content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []Part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

type GeminiOptions struct {
	BaseUrl string
	Model   string
	ApiKey  string
}

type GeminiClient struct {
	http  *resty.Client
	model string
}

// NewGeminiClient builds the Gemini REST client. The resty client is
// deliberately not span-instrumented: request bodies carry student chat
// and academic data, which must not land in trace storage.
func NewGeminiClient(opts GeminiOptions) *GeminiClient {
	if opts.BaseUrl == "" {
		opts.BaseUrl = "https://generativelanguage.googleapis.com"
	}
	if opts.Model == "" {
		opts.Model = "gemini-1.5-flash"
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseUrl)
	client.SetQueryParam("key", opts.ApiKey)
	client.SetTimeout(time.Second * 45)

	return &GeminiClient{
		http:  client,
		model: opts.Model,
	}
}

func (c *GeminiClient) Generate(ctx context.Context, contents []Content) (string, error) {
	ctx, span := tracer.Start(ctx, "Generate")
	defer span.End()

	var out generateResponse
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(generateRequest{Contents: contents}).
		SetResult(&out).
		Post(fmt.Sprintf("/v1beta/models/%s:generateContent", c.model))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate request failed")
		return "", fmt.Errorf("%w: %s", ErrModelUnavailable, err)
	}
	if res.IsError() {
		span.SetStatus(codes.Error, res.Status())
		return "", fmt.Errorf("%w: %s", ErrModelUnavailable, res.Status())
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		span.SetStatus(codes.Error, "empty candidate list")
		return "", fmt.Errorf("%w: empty response", ErrModelUnavailable)
	}
	return out.Candidates[0].Content.Parts[0].Text, nil
}
