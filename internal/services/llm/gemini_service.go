package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/ternarybob/storyagent/internal/common"
	"github.com/ternarybob/storyagent/internal/interfaces"
)

// APIKeyName is the KV / env lookup name for the Gemini credential
const APIKeyName = "gemini_api_key"

// contentGenerator is the slice of *genai.Models used here
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// generatorFactory builds a generator for an API key
type generatorFactory func(ctx context.Context, apiKey string) (contentGenerator, error)

// GeminiService implements GroundedSearchService using the Gemini API with
// Google Search grounding.
type GeminiService struct {
	config  *common.GeminiConfig
	kv      interfaces.KeyValueStorage
	logger  arbor.ILogger
	limiter *rate.Limiter

	newGenerator generatorFactory

	mu        sync.Mutex
	generator contentGenerator
	clientKey string
}

// NewGeminiService creates the service. The genai client is created lazily on
// first use so a missing key is reported per request rather than at startup.
func NewGeminiService(config *common.GeminiConfig, kv interfaces.KeyValueStorage, logger arbor.ILogger) *GeminiService {
	limit := rate.Inf
	if interval := common.ParseDurationOr(config.RateLimit, 0); interval > 0 {
		limit = rate.Every(interval)
	}

	return &GeminiService{
		config:       config,
		kv:           kv,
		logger:       logger,
		limiter:      rate.NewLimiter(limit, 1),
		newGenerator: newGenaiGenerator,
	}
}

func newGenaiGenerator(ctx context.Context, apiKey string) (contentGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}
	return client.Models, nil
}

// IsConfigured reports whether an API key resolves from env, KV or config
func (s *GeminiService) IsConfigured(ctx context.Context) bool {
	_, err := common.ResolveAPIKey(ctx, s.kv, APIKeyName, s.config.APIKey)
	return err == nil
}

// GenerateGroundedAnswer issues exactly one GenerateContent call. Errors are
// returned as-is; nothing is retried.
func (s *GeminiService) GenerateGroundedAnswer(ctx context.Context, prompt string, opts interfaces.GroundingOptions) (*interfaces.GroundedAnswer, error) {
	generator, err := s.getGenerator(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("gemini rate limiter: %w", err)
	}

	model := s.config.Model
	config := buildGenerateConfig(opts)

	s.logger.Debug().
		Str("model", model).
		Bool("web_search", opts.EnableWebSearch).
		Str("thinking", opts.ThinkingLevel).
		Int("prompt_length", len(prompt)).
		Msg("Calling Gemini")

	start := time.Now()
	resp, err := generator.GenerateContent(ctx, model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)},
		config,
	)
	if err != nil {
		return nil, fmt.Errorf("gemini generate content failed: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("empty response from Gemini API")
	}

	answer := answerFromResponse(resp)
	answer.Model = model

	s.logger.Info().
		Str("model", model).
		Dur("duration", time.Since(start)).
		Int("text_length", len(answer.Text)).
		Int("citations", len(answer.Citations)).
		Int("search_queries", len(answer.SearchQueries)).
		Int("grounding_supports", answer.SupportCount).
		Msg("Gemini response received")

	return answer, nil
}

// getGenerator returns the cached generator, rebuilding it when the resolved key changes
func (s *GeminiService) getGenerator(ctx context.Context) (contentGenerator, error) {
	apiKey, err := common.ResolveAPIKey(ctx, s.kv, APIKeyName, s.config.APIKey)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generator != nil && s.clientKey == apiKey {
		return s.generator, nil
	}

	generator, err := s.newGenerator(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	s.generator = generator
	s.clientKey = apiKey
	return generator, nil
}

func buildGenerateConfig(opts interfaces.GroundingOptions) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}

	if opts.EnableWebSearch {
		config.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}

	if level := parseGeminiThinkingLevel(opts.ThinkingLevel); level != "" {
		config.ThinkingConfig = &genai.ThinkingConfig{
			ThinkingLevel: level,
		}
	}

	return config
}

// answerFromResponse maps text and grounding metadata. Missing metadata yields
// no citations. Chunks are kept in order, including ones without a web URI.
func answerFromResponse(resp *genai.GenerateContentResponse) *interfaces.GroundedAnswer {
	answer := &interfaces.GroundedAnswer{
		Text:      resp.Text(),
		Citations: []interfaces.GroundingCitation{},
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return answer
	}
	gm := resp.Candidates[0].GroundingMetadata
	if gm == nil {
		return answer
	}

	answer.SearchQueries = gm.WebSearchQueries
	answer.SupportCount = len(gm.GroundingSupports)

	for _, chunk := range gm.GroundingChunks {
		if chunk == nil || chunk.Web == nil {
			answer.Citations = append(answer.Citations, interfaces.GroundingCitation{})
			continue
		}
		answer.Citations = append(answer.Citations, interfaces.GroundingCitation{
			Title: chunk.Web.Title,
			URI:   chunk.Web.URI,
		})
	}

	return answer
}

// parseGeminiThinkingLevel converts a string thinking level to genai.ThinkingLevel
func parseGeminiThinkingLevel(level string) genai.ThinkingLevel {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "MINIMAL":
		return genai.ThinkingLevelMinimal
	case "LOW":
		return genai.ThinkingLevelLow
	case "MEDIUM":
		return genai.ThinkingLevelMedium
	case "HIGH":
		return genai.ThinkingLevelHigh
	default:
		return ""
	}
}
