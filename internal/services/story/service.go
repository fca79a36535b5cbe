package story

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/storyagent/internal/common"
	"github.com/ternarybob/storyagent/internal/interfaces"
	"github.com/ternarybob/storyagent/internal/models"
	"github.com/ternarybob/storyagent/internal/templates"
)

// Response messages returned to the caller
const (
	MsgMissingParams    = "Missing emiten or id"
	MsgAPIKeyMissing    = "API key not configured"
	MsgParseFailed      = "Failed to parse AI response"
	MsgParseError       = "Parse error"
	defaultPreviewLimit = 500
)

// Request is one analyze-story trigger. RecordID is the raw id query value.
type Request struct {
	Emiten   string
	RecordID string
	Body     []byte
}

// ResponseBody is the JSON body written back to the trigger
type ResponseBody struct {
	Success bool   `json:"success,omitempty"`
	Emiten  string `json:"emiten,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Response is the HTTP-style outcome of a run
type Response struct {
	StatusCode int
	Body       ResponseBody
}

type analyzeParams struct {
	Emiten   string `validate:"required"`
	RecordID int64  `validate:"gt=0"`
}

// Service runs the story analysis job for one pre-created record
type Service struct {
	stories  interfaces.AgentStoryStorage
	jobLogs  interfaces.JobLogStorage
	llm      interfaces.GroundedSearchService
	prompt   *promptBuilder
	validate *validator.Validate
	logger   arbor.ILogger

	model         string
	thinkingLevel string
	previewLimit  int

	now func() time.Time
}

// NewService creates the story analysis service
func NewService(
	stories interfaces.AgentStoryStorage,
	jobLogs interfaces.JobLogStorage,
	llm interfaces.GroundedSearchService,
	config *common.Config,
	logger arbor.ILogger,
) (*Service, error) {
	tmpl, err := templates.GetTemplate(templates.AnalyzeStory, config.Story.TemplatesDir)
	if err != nil {
		return nil, err
	}
	prompt, err := newPromptBuilder(tmpl, config.Story.Timezone)
	if err != nil {
		return nil, err
	}

	previewLimit := config.Story.RawPreviewLimit
	if previewLimit <= 0 {
		previewLimit = defaultPreviewLimit
	}

	thinking := strings.ToUpper(strings.TrimSpace(config.Gemini.Thinking))
	if thinking == "" {
		thinking = "HIGH"
	}

	return &Service{
		stories:       stories,
		jobLogs:       jobLogs,
		llm:           llm,
		prompt:        prompt,
		validate:      validator.New(),
		logger:        logger,
		model:         config.Gemini.Model,
		thinkingLevel: thinking,
		previewLimit:  previewLimit,
		now:           time.Now,
	}, nil
}

// Analyze runs the job to a terminal state and never panics or returns an error;
// every outcome is encoded in the Response. Caller cancellation is not observed.
func (s *Service) Analyze(ctx context.Context, req Request) (resp Response) {
	ctx = context.WithoutCancel(ctx)
	start := s.now()

	emiten := common.ParseEmiten(req.Emiten).Code
	recordID, _ := strconv.ParseInt(strings.TrimSpace(req.RecordID), 10, 64)
	if err := s.validate.Struct(analyzeParams{Emiten: emiten, RecordID: recordID}); err != nil {
		s.logger.Warn().
			Str("emiten", req.Emiten).
			Str("id", req.RecordID).
			Msg("Rejected analyze-story request")
		return errorResponse(http.StatusBadRequest, MsgMissingParams)
	}

	logger := s.logger.WithCorrelationId(common.NewRunID())
	logger.Info().Str("emiten", emiten).Int64("id", recordID).Msg("Starting story analysis")

	var tracker *jobLogTracker
	defer func() {
		if r := recover(); r != nil {
			resp = s.fail(ctx, logger, tracker, emiten, recordID, fmt.Errorf("%v", r))
		}
	}()

	tracker = startJobLog(ctx, s.jobLogs, logger, emiten)

	keyStats := parseKeyStats(req.Body)

	if !s.llm.IsConfigured(ctx) {
		logger.Error().Str("emiten", emiten).Msg("Gemini API key is not configured")
		if err := s.stories.UpdateAgentStory(ctx, recordID, models.ErrorUpdate(MsgAPIKeyMissing)); err != nil {
			return s.fail(ctx, logger, tracker, emiten, recordID, err)
		}
		tracker.fail(ctx, MsgAPIKeyMissing)
		return errorResponse(http.StatusInternalServerError, MsgAPIKeyMissing)
	}

	if err := s.stories.UpdateAgentStory(ctx, recordID, models.StatusUpdate(models.StoryStatusProcessing)); err != nil {
		return s.fail(ctx, logger, tracker, emiten, recordID, err)
	}
	tracker.info(ctx, fmt.Sprintf("Analyzing using %s (Thinking %s)...", s.model, s.thinkingLevel), nil)

	prompt, err := s.prompt.Build(emiten, keyStats, s.now())
	if err != nil {
		return s.fail(ctx, logger, tracker, emiten, recordID, err)
	}

	answer, err := s.llm.GenerateGroundedAnswer(ctx, prompt, interfaces.GroundingOptions{
		EnableWebSearch: true,
		ThinkingLevel:   s.thinkingLevel,
	})
	if err != nil {
		return s.fail(ctx, logger, tracker, emiten, recordID, err)
	}

	sources := BuildSources(answer.Citations)
	logger.Info().
		Str("emiten", emiten).
		Int("grounding_supports", answer.SupportCount).
		Int("search_queries", len(answer.SearchQueries)).
		Int("citations", len(answer.Citations)).
		Int("sources", len(sources)).
		Msg("Grounded answer received")
	tracker.info(ctx, fmt.Sprintf("Gemini response received, parsing results... (%d sources found)", len(sources)), nil)

	payload, err := ExtractJSONObject(answer.Text)
	if err != nil {
		logger.Error().Err(err).Str("emiten", emiten).Msg("Failed to parse model output")
		if werr := s.stories.UpdateAgentStory(ctx, recordID, models.ErrorUpdate(MsgParseFailed)); werr != nil {
			return s.fail(ctx, logger, tracker, emiten, recordID, werr)
		}
		tracker.errorEntry(ctx, MsgParseFailed, map[string]interface{}{
			"raw": truncateRunes(answer.Text, s.previewLimit),
		})
		tracker.fail(ctx, MsgParseFailed)
		return errorResponse(http.StatusInternalServerError, MsgParseError)
	}

	result := AssembleResult(payload, sources)
	if err := s.stories.UpdateAgentStory(ctx, recordID, models.CompletedUpdate(result)); err != nil {
		return s.fail(ctx, logger, tracker, emiten, recordID, err)
	}

	duration := s.now().Sub(start).Seconds()
	metadata := map[string]interface{}{
		"duration_seconds": duration,
		"sources_count":    len(sources),
	}
	tracker.info(ctx, "Analysis completed successfully", metadata)
	tracker.complete(ctx, metadata)

	logger.Info().
		Str("emiten", emiten).
		Int64("id", recordID).
		Str("duration", fmt.Sprintf("%.2fs", duration)).
		Int("sources", len(sources)).
		Msg("Story analysis completed")

	return Response{
		StatusCode: http.StatusOK,
		Body:       ResponseBody{Success: true, Emiten: emiten},
	}
}

// fail is the single outer failure path: job log first, then the record
func (s *Service) fail(ctx context.Context, logger arbor.ILogger, tracker *jobLogTracker, emiten string, recordID int64, cause error) Response {
	errMsg := cause.Error()
	logger.Error().Err(cause).Str("emiten", emiten).Int64("id", recordID).Msg("Story analysis failed")

	if tracker != nil {
		tracker.errorEntry(ctx, "Analysis failed: "+errMsg, nil)
		tracker.fail(ctx, errMsg)
	}

	if recordID > 0 {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error().Str("panic", fmt.Sprintf("%v", r)).Int64("id", recordID).Msg("Panic while marking record as error")
				}
			}()
			if err := s.stories.UpdateAgentStory(ctx, recordID, models.ErrorUpdate(errMsg)); err != nil {
				logger.Error().Err(err).Int64("id", recordID).Msg("Failed to mark record as error")
			}
		}()
	}

	return errorResponse(http.StatusInternalServerError, errMsg)
}

func errorResponse(status int, message string) Response {
	return Response{StatusCode: status, Body: ResponseBody{Error: message}}
}
