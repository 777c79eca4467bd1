package main

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"
)

const (
	defaultRegion = "europe-west1"
	defaultModel  = "gemini-2.5-flash"
)

// GeminiClient wraps the Google GenAI client.
type GeminiClient struct {
	client    *genai.Client
	modelName string
	attempts  uint
	timeout   time.Duration
}

// NewGeminiClient creates a client for Vertex AI using Application Default
// Credentials when a project is set, or for the Gemini API when only an API
// key is set. Set GOOGLE_APPLICATION_CREDENTIALS to the service account key
// file path for Vertex AI.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	cc := &genai.ClientConfig{}
	if cfg.ProjectID != "" {
		region := cfg.Region
		if region == "" {
			region = defaultRegion
		}
		cc.Project = cfg.ProjectID
		cc.Location = region
		cc.Backend = genai.BackendVertexAI
	} else {
		cc.APIKey = cfg.APIKey
		cc.Backend = genai.BackendGeminiAPI
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	return &GeminiClient{
		client:    client,
		modelName: model,
		attempts:  max(cfg.Attempts, 1),
		timeout:   cfg.Timeout,
	}, nil
}

// Close releases resources held by the client.
func (g *GeminiClient) Close() error {
	return nil
}
