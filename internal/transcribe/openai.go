package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Ensure OpenAI implements the Backend interface.
var _ Backend = (*OpenAI)(nil)

// OpenAI talks to an OpenAI-compatible transcription server.
type OpenAI struct {
	client openai.Client
	model  string
	prompt string
}

type options struct {
	prompt     string
	timeout    time.Duration
	httpClient *http.Client
}

// Option is a functional option for OpenAI.
type Option func(*options)

// WithPrompt sets the optional decoding prompt sent with every request.
func WithPrompt(p string) Option {
	return func(o *options) {
		o.prompt = p
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithHTTPClient replaces the HTTP client. It takes precedence over
// WithTimeout.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// NewOpenAI builds a client for baseURL (for example
// "http://127.0.0.1:52625/v1"). SDK-level retries are disabled; the
// delivery worker owns retry policy.
func NewOpenAI(baseURL, apiKey, model string, opts ...Option) (*OpenAI, error) {
	if model == "" {
		return nil, fmt.Errorf("transcribe: model must not be empty")
	}
	cfg := &options{}
	for _, o := range opts {
		o(cfg)
	}

	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	reqOpts := []option.RequestOption{
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	switch {
	case cfg.httpClient != nil:
		reqOpts = append(reqOpts, option.WithHTTPClient(cfg.httpClient))
	case cfg.timeout > 0:
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &OpenAI{
		client: openai.NewClient(reqOpts...),
		model:  model,
		prompt: cfg.prompt,
	}, nil
}

// Transcribe implements Backend.
func (o *OpenAI) Transcribe(ctx context.Context, wav []byte) (string, error) {
	if len(wav) == 0 {
		return "", ErrEmptyAudio
	}
	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(wav), "speech.wav", "audio/wav"),
		Model: openai.AudioModel(o.model),
	}
	if o.prompt != "" {
		params.Prompt = openai.String(o.prompt)
	}

	resp, err := o.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", Classify(err)
	}
	return resp.Text, nil
}

// Probe lists models, which requires a reachable server and a valid key.
func (o *OpenAI) Probe(ctx context.Context) error {
	if _, err := o.client.Models.List(ctx); err != nil {
		return Classify(err)
	}
	return nil
}
