package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"gopherai-interview/internal/app"
	"gopherai-interview/internal/model"
)

const EmbeddingContextVersion = "v1"

var ErrLLMConfig = errors.New("llm config is invalid")

type GeneratorConfig struct {
	BaseURL      string
	APIKey       string
	Model        string
	ChunkSize    int
	ChunkOverlap int
	HTTPClient   *http.Client
}

// Generator calls an OpenAI-compatible chat endpoint in JSON mode and maps
// the reply onto GeneratedContent.
type Generator struct {
	client       *openai.Client
	model        string
	chunkSize    int
	chunkOverlap int
}

var _ app.Generator = (*Generator)(nil)

func NewGenerator(cfg GeneratorConfig) (*Generator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" || strings.TrimSpace(cfg.Model) == "" {
		return nil, ErrLLMConfig
	}
	clientCfg := openai.DefaultConfig(strings.TrimSpace(cfg.APIKey))
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		clientCfg.BaseURL = strings.TrimRight(base, "/")
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	} else {
		clientCfg.HTTPClient = &http.Client{Timeout: 90 * time.Second}
	}
	return &Generator{
		client:       openai.NewClientWithConfig(clientCfg),
		model:        strings.TrimSpace(cfg.Model),
		chunkSize:    cfg.ChunkSize,
		chunkOverlap: cfg.ChunkOverlap,
	}, nil
}

func (g *Generator) Generate(ctx context.Context, req app.GenerationRequest) (*model.GeneratedContent, error) {
	transcript := RenderTranscript(req.Answers)
	if transcript == "" {
		return nil, errors.New("no answers to generate from")
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt(req.ContentType)},
			{Role: openai.ChatMessageRoleUser, Content: transcript},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.2,
	})
	if err != nil {
		return nil, fmt.Errorf("llm request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("empty llm choices")
	}

	content, err := parseGeneratedContent(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	content.EmbeddingContext = model.EmbeddingContext{
		Version: EmbeddingContextVersion,
		RawText: transcript,
		Chunks:  chunkText(transcript, g.chunkSize, g.chunkOverlap),
	}
	return content, nil
}

type generatedPayload struct {
	Category               string   `json:"category"`
	Summary                string   `json:"summary"`
	UniqueValueProposition string   `json:"unique_value_proposition"`
	TargetCustomers        []string `json:"target_customers"`
	PainPoints             []string `json:"pain_points"`
	Features               []string `json:"features"`
	RepresentativeCase     string   `json:"representative_case"`
	PricingOverview        string   `json:"pricing_overview"`
}

func parseGeneratedContent(raw string) (*model.GeneratedContent, error) {
	raw = stripCodeFence(raw)
	var payload generatedPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("parse llm json failed: %w", err)
	}
	if strings.TrimSpace(payload.Category) == "" && strings.TrimSpace(payload.Summary) == "" {
		return nil, errors.New("llm returned neither category nor summary")
	}
	return &model.GeneratedContent{
		Category:               strings.TrimSpace(payload.Category),
		Summary:                oneLine(payload.Summary),
		UniqueValueProposition: strings.TrimSpace(payload.UniqueValueProposition),
		TargetCustomers:        nonEmpty(payload.TargetCustomers),
		PainPoints:             nonEmpty(payload.PainPoints),
		Features:               nonEmpty(payload.Features),
		RepresentativeCase:     strings.TrimSpace(payload.RepresentativeCase),
		PricingOverview:        strings.TrimSpace(payload.PricingOverview),
	}, nil
}

func stripCodeFence(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "```") {
		return raw
	}
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")
	return strings.TrimSpace(raw)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func nonEmpty(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
