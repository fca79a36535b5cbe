package story

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/storyagent/internal/common"
	"github.com/ternarybob/storyagent/internal/interfaces"
	"github.com/ternarybob/storyagent/internal/models"
)

// fakeStories is an in-memory AgentStoryStorage that records every write
type fakeStories struct {
	mu      sync.Mutex
	records map[int64]*models.AgentStory
	updates []models.AgentStoryUpdate
	failOn  map[models.StoryStatus]error
}

func newFakeStories(ids ...int64) *fakeStories {
	s := &fakeStories{records: map[int64]*models.AgentStory{}, failOn: map[models.StoryStatus]error{}}
	for _, id := range ids {
		s.records[id] = &models.AgentStory{ID: id, Status: models.StoryStatusPending}
	}
	return s
}

func (s *fakeStories) CreateAgentStory(ctx context.Context, emiten string) (*models.AgentStory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := int64(len(s.records) + 1)
	s.records[id] = &models.AgentStory{ID: id, Emiten: emiten, Status: models.StoryStatusPending}
	return s.records[id], nil
}

func (s *fakeStories) UpdateAgentStory(ctx context.Context, id int64, update models.AgentStoryUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, update)
	if err := s.failOn[update.Status]; err != nil {
		return err
	}
	record, ok := s.records[id]
	if !ok {
		return interfaces.ErrNotFound
	}
	update.Apply(record, time.Now())
	return nil
}

func (s *fakeStories) GetAgentStory(ctx context.Context, id int64) (*models.AgentStory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	copied := *record
	return &copied, nil
}

func (s *fakeStories) ListAgentStories(ctx context.Context, emiten string, limit int) ([]*models.AgentStory, error) {
	return nil, nil
}

func (s *fakeStories) statuses() []models.StoryStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	statuses := make([]models.StoryStatus, 0, len(s.updates))
	for _, u := range s.updates {
		statuses = append(statuses, u.Status)
	}
	return statuses
}

// fakeJobLogs is an in-memory JobLogStorage with injectable failures
type fakeJobLogs struct {
	mu          sync.Mutex
	logs        map[int64]*models.BackgroundJobLog
	createErr   error
	appendErr   error
	updateErr   error
	panicAppend bool
}

func newFakeJobLogs() *fakeJobLogs {
	return &fakeJobLogs{logs: map[int64]*models.BackgroundJobLog{}}
}

func (j *fakeJobLogs) CreateJobLog(ctx context.Context, jobName string, totalItems int) (*models.BackgroundJobLog, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.createErr != nil {
		return nil, j.createErr
	}
	log := &models.BackgroundJobLog{
		ID:         int64(len(j.logs) + 1),
		JobName:    jobName,
		Status:     models.JobLogStatusRunning,
		TotalItems: totalItems,
		StartedAt:  time.Now(),
	}
	j.logs[log.ID] = log
	return log, nil
}

func (j *fakeJobLogs) AppendJobLogEntry(ctx context.Context, jobID int64, entry models.JobLogEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.panicAppend {
		panic("job log append exploded")
	}
	if j.appendErr != nil {
		return j.appendErr
	}
	j.logs[jobID].LogEntries = append(j.logs[jobID].LogEntries, entry)
	return nil
}

func (j *fakeJobLogs) UpdateJobLog(ctx context.Context, jobID int64, update models.JobLogUpdate) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.updateErr != nil {
		return j.updateErr
	}
	update.Apply(j.logs[jobID], time.Now())
	return nil
}

func (j *fakeJobLogs) GetJobLog(ctx context.Context, jobID int64) (*models.BackgroundJobLog, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	log, ok := j.logs[jobID]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return log, nil
}

func (j *fakeJobLogs) ListJobLogs(ctx context.Context, limit int) ([]*models.BackgroundJobLog, error) {
	return nil, nil
}

func (j *fakeJobLogs) only(t *testing.T) *models.BackgroundJobLog {
	t.Helper()
	j.mu.Lock()
	defer j.mu.Unlock()
	require.Len(t, j.logs, 1)
	return j.logs[1]
}

func entryMessages(log *models.BackgroundJobLog) []string {
	messages := make([]string, 0, len(log.LogEntries))
	for _, e := range log.LogEntries {
		messages = append(messages, e.Message)
	}
	return messages
}

// fakeLLM counts calls and returns a canned answer
type fakeLLM struct {
	configured bool
	answer     *interfaces.GroundedAnswer
	err        error
	panicWith  string

	calls      int
	lastPrompt string
	lastOpts   interfaces.GroundingOptions
	lastCtxErr error
}

func (f *fakeLLM) IsConfigured(ctx context.Context) bool {
	return f.configured
}

func (f *fakeLLM) GenerateGroundedAnswer(ctx context.Context, prompt string, opts interfaces.GroundingOptions) (*interfaces.GroundedAnswer, error) {
	f.calls++
	f.lastPrompt = prompt
	f.lastOpts = opts
	f.lastCtxErr = ctx.Err()
	if f.panicWith != "" {
		panic(f.panicWith)
	}
	return f.answer, f.err
}

const sampleAnswer = `Berikut hasil analisa BBCA:
{
  "matriks_story": [{"kategori_story": "Sentimen Pasar", "deskripsi_katalis": "Laba naik", "logika_ekonomi_pasar": "EPS naik", "potensi_dampak_harga": "positif"}],
  "swot_analysis": {"strengths": ["CASA tinggi"], "weaknesses": [], "opportunities": [], "threats": []},
  "checklist_katalis": [{"item": "Rilis LK Q3", "dampak_instan": "positif"}],
  "strategi_trading": {"tipe_saham": "Blue chip", "target_entry": "Akumulasi", "exit_strategy": {"take_profit": "TP", "stop_loss": "SL"}},
  "keystat_signal": "Positif/Sehat",
  "kesimpulan": "Menarik"
}`

func successLLM() *fakeLLM {
	return &fakeLLM{
		configured: true,
		answer: &interfaces.GroundedAnswer{
			Text: sampleAnswer,
			Citations: []interfaces.GroundingCitation{
				{Title: "A", URI: ""},
				{Title: "B", URI: "http://x"},
			},
			SearchQueries: []string{"BBCA berita terbaru"},
			SupportCount:  3,
		},
	}
}

func newTestService(t *testing.T, stories *fakeStories, jobLogs interfaces.JobLogStorage, llm *fakeLLM) *Service {
	t.Helper()
	svc, err := NewService(stories, jobLogs, llm, common.NewDefaultConfig(), arbor.NewNoOpLogger())
	require.NoError(t, err)
	svc.now = func() time.Time { return time.Date(2026, time.October, 18, 3, 0, 0, 0, time.UTC) }
	return svc
}

func TestAnalyze_Success(t *testing.T) {
	stories := newFakeStories(1)
	jobLogs := newFakeJobLogs()
	llm := successLLM()
	svc := newTestService(t, stories, jobLogs, llm)

	resp := svc.Analyze(context.Background(), Request{Emiten: "bbca", RecordID: "1"})

	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, ResponseBody{Success: true, Emiten: "BBCA"}, resp.Body)

	assert.Equal(t, 1, llm.calls)
	assert.True(t, llm.lastOpts.EnableWebSearch)
	assert.Equal(t, "HIGH", llm.lastOpts.ThinkingLevel)
	assert.Contains(t, llm.lastPrompt, "dengan kode BBCA")
	assert.Contains(t, llm.lastPrompt, "18 Oktober 2026")

	assert.Equal(t, []models.StoryStatus{models.StoryStatusProcessing, models.StoryStatusCompleted}, stories.statuses())

	record, err := stories.GetAgentStory(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.StoryStatusCompleted, record.Status)
	assert.Equal(t, []models.SourceCitation{{Title: "B", URI: "http://x"}}, record.Sources)
	assert.Equal(t, "Menarik", record.Kesimpulan)
	assert.Equal(t, []string{"CASA tinggi"}, record.SWOTAnalysis.Strengths)
	assert.Equal(t, []string{}, record.SWOTAnalysis.Threats)
	assert.Empty(t, record.ErrorMessage)

	log := jobLogs.only(t)
	assert.Equal(t, models.JobNameAnalyzeStory, log.JobName)
	assert.Equal(t, 1, log.TotalItems)
	assert.Equal(t, models.JobLogStatusCompleted, log.Status)
	assert.Equal(t, 1, log.SuccessCount)
	assert.NotNil(t, log.CompletedAt)
	assert.Equal(t, 1, log.Metadata["sources_count"])
	assert.Contains(t, log.Metadata, "duration_seconds")
	assert.Equal(t, []string{
		"Starting AI Story Analysis",
		"Analyzing using gemini-3-flash-preview (Thinking HIGH)...",
		"Gemini response received, parsing results... (1 sources found)",
		"Analysis completed successfully",
	}, entryMessages(log))
	for _, e := range log.LogEntries {
		assert.Equal(t, "BBCA", e.Emiten)
		assert.Equal(t, models.LogLevelInfo, e.Level)
	}
}

func TestAnalyze_KeyStatsInPrompt(t *testing.T) {
	stories := newFakeStories(3)
	llm := successLLM()
	svc := newTestService(t, stories, newFakeJobLogs(), llm)

	resp := svc.Analyze(context.Background(), Request{
		Emiten:   "BBCA",
		RecordID: "3",
		Body:     []byte(`{"keyStats":{"per":14.2}}`),
	})

	assert.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, llm.lastPrompt, "DATA KEY STATISTICS UNTUK BBCA:")
	assert.Contains(t, llm.lastPrompt, `"per": 14.2`)
}

func TestAnalyze_MissingParams(t *testing.T) {
	tests := []struct {
		name   string
		emiten string
		id     string
	}{
		{"missing emiten", "", "7"},
		{"blank emiten", "   ", "7"},
		{"missing id", "BBCA", ""},
		{"non numeric id", "BBCA", "abc"},
		{"zero id", "BBCA", "0"},
		{"negative id", "BBCA", "-3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stories := newFakeStories(7)
			jobLogs := newFakeJobLogs()
			llm := successLLM()
			svc := newTestService(t, stories, jobLogs, llm)

			resp := svc.Analyze(context.Background(), Request{Emiten: tt.emiten, RecordID: tt.id})

			assert.Equal(t, 400, resp.StatusCode)
			assert.Equal(t, ResponseBody{Error: MsgMissingParams}, resp.Body)
			assert.Empty(t, stories.updates)
			assert.Empty(t, jobLogs.logs)
			assert.Equal(t, 0, llm.calls)
		})
	}
}

func TestAnalyze_MissingCredential(t *testing.T) {
	stories := newFakeStories(7)
	jobLogs := newFakeJobLogs()
	llm := successLLM()
	llm.configured = false
	svc := newTestService(t, stories, jobLogs, llm)

	resp := svc.Analyze(context.Background(), Request{Emiten: "BBCA", RecordID: "7"})

	assert.Equal(t, 500, resp.StatusCode)
	assert.Equal(t, MsgAPIKeyMissing, resp.Body.Error)
	assert.Equal(t, 0, llm.calls)
	assert.Equal(t, []models.StoryStatus{models.StoryStatusError}, stories.statuses())

	record, _ := stories.GetAgentStory(context.Background(), 7)
	assert.Equal(t, models.StoryStatusError, record.Status)
	assert.Equal(t, "API key not configured", record.ErrorMessage)

	log := jobLogs.only(t)
	assert.Equal(t, models.JobLogStatusFailed, log.Status)
	assert.Equal(t, MsgAPIKeyMissing, log.ErrorMessage)
}

func TestAnalyze_NetworkError(t *testing.T) {
	stories := newFakeStories(42)
	jobLogs := newFakeJobLogs()
	llm := successLLM()
	llm.err = errors.New("dial tcp 142.250.4.95:443: connect: connection refused")
	svc := newTestService(t, stories, jobLogs, llm)

	resp := svc.Analyze(context.Background(), Request{Emiten: "BBRI", RecordID: "42"})

	assert.Equal(t, 500, resp.StatusCode)
	assert.Equal(t, llm.err.Error(), resp.Body.Error)
	assert.Equal(t, 1, llm.calls)
	assert.Equal(t, []models.StoryStatus{models.StoryStatusProcessing, models.StoryStatusError}, stories.statuses())

	record, _ := stories.GetAgentStory(context.Background(), 42)
	assert.Equal(t, models.StoryStatusError, record.Status)
	assert.Equal(t, llm.err.Error(), record.ErrorMessage)

	log := jobLogs.only(t)
	assert.Equal(t, models.JobLogStatusFailed, log.Status)
	assert.Equal(t, llm.err.Error(), log.ErrorMessage)
	last := log.LogEntries[len(log.LogEntries)-1]
	assert.Equal(t, models.LogLevelError, last.Level)
	assert.Equal(t, "Analysis failed: "+llm.err.Error(), last.Message)
}

func TestAnalyze_ParseError(t *testing.T) {
	stories := newFakeStories(5)
	jobLogs := newFakeJobLogs()
	llm := successLLM()
	llm.answer.Text = "Maaf, " + strings.Repeat("x", 800)
	svc := newTestService(t, stories, jobLogs, llm)

	resp := svc.Analyze(context.Background(), Request{Emiten: "GOTO", RecordID: "5"})

	assert.Equal(t, 500, resp.StatusCode)
	assert.Equal(t, MsgParseError, resp.Body.Error)
	assert.Equal(t, []models.StoryStatus{models.StoryStatusProcessing, models.StoryStatusError}, stories.statuses())

	record, _ := stories.GetAgentStory(context.Background(), 5)
	assert.Equal(t, MsgParseFailed, record.ErrorMessage)
	assert.Empty(t, record.Sources)

	log := jobLogs.only(t)
	assert.Equal(t, models.JobLogStatusFailed, log.Status)
	assert.Equal(t, MsgParseFailed, log.ErrorMessage)

	last := log.LogEntries[len(log.LogEntries)-1]
	assert.Equal(t, MsgParseFailed, last.Message)
	assert.Equal(t, models.LogLevelError, last.Level)
	raw, ok := last.Details["raw"].(string)
	require.True(t, ok)
	assert.Len(t, []rune(raw), 500)
	assert.True(t, strings.HasPrefix(raw, "Maaf, "))
}

func TestAnalyze_JobLogFailuresAreSwallowed(t *testing.T) {
	tests := []struct {
		name  string
		setup func(j *fakeJobLogs)
	}{
		{"create fails", func(j *fakeJobLogs) { j.createErr = errors.New("job log table missing") }},
		{"append fails", func(j *fakeJobLogs) { j.appendErr = errors.New("append failed") }},
		{"update fails", func(j *fakeJobLogs) { j.updateErr = errors.New("update failed") }},
		{"append panics", func(j *fakeJobLogs) { j.panicAppend = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stories := newFakeStories(9)
			jobLogs := newFakeJobLogs()
			tt.setup(jobLogs)
			svc := newTestService(t, stories, jobLogs, successLLM())

			resp := svc.Analyze(context.Background(), Request{Emiten: "BBCA", RecordID: "9"})

			assert.Equal(t, 200, resp.StatusCode)
			record, _ := stories.GetAgentStory(context.Background(), 9)
			assert.Equal(t, models.StoryStatusCompleted, record.Status)
		})
	}
}

func TestAnalyze_NilJobLogStorage(t *testing.T) {
	stories := newFakeStories(9)
	svc := newTestService(t, stories, nil, successLLM())

	resp := svc.Analyze(context.Background(), Request{Emiten: "BBCA", RecordID: "9"})
	assert.Equal(t, 200, resp.StatusCode)
}

func TestAnalyze_ProcessingWriteFails(t *testing.T) {
	stories := newFakeStories(11)
	stories.failOn[models.StoryStatusProcessing] = errors.New("connection reset")
	jobLogs := newFakeJobLogs()
	llm := successLLM()
	svc := newTestService(t, stories, jobLogs, llm)

	resp := svc.Analyze(context.Background(), Request{Emiten: "BBCA", RecordID: "11"})

	assert.Equal(t, 500, resp.StatusCode)
	assert.Equal(t, "connection reset", resp.Body.Error)
	assert.Equal(t, 0, llm.calls)

	record, _ := stories.GetAgentStory(context.Background(), 11)
	assert.Equal(t, models.StoryStatusError, record.Status)
	assert.Equal(t, "connection reset", record.ErrorMessage)
	assert.Equal(t, models.JobLogStatusFailed, jobLogs.only(t).Status)
}

func TestAnalyze_CompletedWriteFails(t *testing.T) {
	stories := newFakeStories(12)
	stories.failOn[models.StoryStatusCompleted] = errors.New("payload too large")
	jobLogs := newFakeJobLogs()
	svc := newTestService(t, stories, jobLogs, successLLM())

	resp := svc.Analyze(context.Background(), Request{Emiten: "BBCA", RecordID: "12"})

	assert.Equal(t, 500, resp.StatusCode)
	assert.Equal(t, "payload too large", resp.Body.Error)
	assert.Equal(t, []models.StoryStatus{
		models.StoryStatusProcessing,
		models.StoryStatusCompleted,
		models.StoryStatusError,
	}, stories.statuses())

	record, _ := stories.GetAgentStory(context.Background(), 12)
	assert.Equal(t, models.StoryStatusError, record.Status)
	assert.Equal(t, models.JobLogStatusFailed, jobLogs.only(t).Status)
}

func TestAnalyze_UnknownRecord(t *testing.T) {
	stories := newFakeStories()
	svc := newTestService(t, stories, newFakeJobLogs(), successLLM())

	resp := svc.Analyze(context.Background(), Request{Emiten: "BBCA", RecordID: "99"})

	assert.Equal(t, 500, resp.StatusCode)
	assert.Equal(t, interfaces.ErrNotFound.Error(), resp.Body.Error)
}

func TestAnalyze_PanicIsRecovered(t *testing.T) {
	stories := newFakeStories(13)
	jobLogs := newFakeJobLogs()
	llm := successLLM()
	llm.panicWith = "unexpected nil candidate"
	svc := newTestService(t, stories, jobLogs, llm)

	var resp Response
	require.NotPanics(t, func() {
		resp = svc.Analyze(context.Background(), Request{Emiten: "BBCA", RecordID: "13"})
	})

	assert.Equal(t, 500, resp.StatusCode)
	assert.Equal(t, "unexpected nil candidate", resp.Body.Error)

	record, _ := stories.GetAgentStory(context.Background(), 13)
	assert.Equal(t, models.StoryStatusError, record.Status)
	assert.Equal(t, "unexpected nil candidate", record.ErrorMessage)
	assert.Equal(t, models.JobLogStatusFailed, jobLogs.only(t).Status)
}

func TestAnalyze_IgnoresCallerCancellation(t *testing.T) {
	stories := newFakeStories(14)
	llm := successLLM()
	svc := newTestService(t, stories, newFakeJobLogs(), llm)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp := svc.Analyze(ctx, Request{Emiten: "BBCA", RecordID: "14"})

	assert.Equal(t, 200, resp.StatusCode)
	assert.NoError(t, llm.lastCtxErr)
}

// A second run on the same record is not guarded: it re-enters processing
// and overwrites the earlier result.
func TestAnalyze_RerunOverwritesResult(t *testing.T) {
	stories := newFakeStories(15)
	llm := successLLM()
	svc := newTestService(t, stories, newFakeJobLogs(), llm)

	first := svc.Analyze(context.Background(), Request{Emiten: "BBCA", RecordID: "15"})
	require.Equal(t, 200, first.StatusCode)

	llm.answer.Text = `{"kesimpulan":"Berubah"}`
	second := svc.Analyze(context.Background(), Request{Emiten: "BBCA", RecordID: "15"})
	require.Equal(t, 200, second.StatusCode)

	assert.Equal(t, 2, llm.calls)
	assert.Equal(t, []models.StoryStatus{
		models.StoryStatusProcessing,
		models.StoryStatusCompleted,
		models.StoryStatusProcessing,
		models.StoryStatusCompleted,
	}, stories.statuses())

	record, _ := stories.GetAgentStory(context.Background(), 15)
	assert.Equal(t, "Berubah", record.Kesimpulan)
	assert.Empty(t, record.MatriksStory)
}
