// Package llm tags listing titles with an OpenAI-compatible chat completion API
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/umputun/lotwatch/pkg/config"
)

// content kinds never notified
var excludedKinds = map[string]bool{"logo": true, "ui": true, "background": true}

var errBadResponse = errors.New("bad llm response")

// Tagger asks an LLM which listing titles describe excluded art kinds
type Tagger struct {
	client    *openai.Client
	config    config.LLMConfig
	systemMsg string
}

// NewTagger creates a new LLM tagger
func NewTagger(cfg config.LLMConfig) *Tagger {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientConfig.BaseURL = cfg.Endpoint
	}

	// use custom system prompt if provided, otherwise use default
	systemMsg := cfg.SystemPrompt
	if systemMsg == "" {
		systemMsg = defaultSystemPrompt
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &Tagger{
		client:    openai.NewClientWithConfig(clientConfig),
		config:    cfg,
		systemMsg: systemMsg,
	}
}

// default system prompt for listing tagging
const defaultSystemPrompt = `You are an assistant that sorts illustration marketplace listings by the kind of artwork sold.
For each numbered listing title pick exactly one kind:
- character: character art, standing portraits (立ち絵), full body illustrations
- icon: avatar or profile icons
- sd: super deformed or chibi art
- logo: logos and title logos
- ui: streaming overlays, frames, HUDs, widgets and other interface parts
- background: backgrounds, scenery, landscapes
- other: anything else

Respond with a JSON array of objects with "index" (the listing number) and "kind" fields only.`

// tag is a single kind assignment returned by the model
type tag struct {
	Index int    `json:"index"`
	Kind  string `json:"kind"`
}

// ExcludedTitles reports for each title whether it sells an excluded kind of art
func (t *Tagger) ExcludedTitles(ctx context.Context, titles []string) ([]bool, error) {
	if len(titles) == 0 {
		return []bool{}, nil
	}

	prompt := buildPrompt(titles)

	// retry up to 3 times if we get invalid JSON
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		ctxReq, cancel := context.WithTimeout(ctx, t.config.Timeout)
		resp, err := t.client.CreateChatCompletion(ctxReq, openai.ChatCompletionRequest{
			Model:       t.config.Model,
			Temperature: float32(t.config.Temperature),
			MaxTokens:   t.config.MaxTokens,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: t.systemMsg},
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
		})
		cancel()
		if err != nil {
			return nil, fmt.Errorf("llm request failed: %w", err)
		}

		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("no response from llm")
		}

		res, err := parseResponse(resp.Choices[0].Message.Content, len(titles))
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !errors.Is(err, errBadResponse) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("failed after 3 attempts: %w", lastErr)
}

// buildPrompt creates the user prompt with numbered titles
func buildPrompt(titles []string) string {
	var sb strings.Builder
	sb.WriteString("Tag these listings:\n\n")
	for i, title := range titles {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, title))
	}
	sb.WriteString("\nRespond with a JSON array.")
	return sb.String()
}

// parseResponse extracts the JSON array from the model output, untagged titles are not excluded
func parseResponse(content string, n int) ([]bool, error) {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start == -1 || end == -1 || start >= end {
		return nil, fmt.Errorf("no json array found in response: %w", errBadResponse)
	}

	var tags []tag
	if err := json.Unmarshal([]byte(content[start:end+1]), &tags); err != nil {
		return nil, fmt.Errorf("failed to parse json array response: %v: %w", err, errBadResponse)
	}

	res := make([]bool, n)
	for _, tg := range tags {
		if tg.Index < 1 || tg.Index > n {
			continue
		}
		res[tg.Index-1] = excludedKinds[strings.ToLower(strings.TrimSpace(tg.Kind))]
	}
	return res, nil
}
