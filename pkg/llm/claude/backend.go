// Package claude implements llm.Backend with the Anthropic Messages API.
package claude

import (
	"context"
	"fmt"
	"iter"
	"net/http"
	"net/url"

	"github.com/jmuk/pagecrew/pkg/llm"
	"github.com/jmuk/pagecrew/pkg/session"
	"github.com/jmuk/pagecrew/pkg/stream"
)

type Backend struct {
	config *Config
	url    *url.URL
	apiKey string
	client *http.Client
}

var _ llm.Backend = (*Backend)(nil)

func (b *Backend) Name() string {
	return b.config.ConfigName
}

func (b *Backend) Stream(ctx context.Context, req *llm.Request) iter.Seq2[stream.Chunk, error] {
	return func(yield func(stream.Chunk, error) bool) {
		logger, err := session.LoggerFromContext(ctx, "claude")
		if err != nil {
			yield(stream.Chunk{}, err)
			return
		}
		logger.Debug("Sending", "model", b.config.ModelName, "messages", len(req.Messages), "tools", len(req.Tools))
		respBody, err := b.request(ctx, req)
		if err != nil {
			logger.Error("Request failed", "error", err)
			yield(stream.Chunk{}, fmt.Errorf("claude: %w", err))
			return
		}
		defer respBody.Close()
		ep := &eventProcessor{logger: logger}
		for c, err := range ep.processEvents(respBody) {
			if err != nil {
				logger.Error("Stream failed", "error", err)
				yield(stream.Chunk{}, fmt.Errorf("claude: %w", err))
				return
			}
			if !yield(c, nil) {
				return
			}
		}
	}
}
