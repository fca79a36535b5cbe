package models

import "time"

// StoryStatus is the lifecycle state of an agent story record.
// A record moves pending -> processing -> {completed|error} and is never
// moved back out of a terminal state by the worker.
type StoryStatus string

const (
	StoryStatusPending    StoryStatus = "pending"
	StoryStatusProcessing StoryStatus = "processing"
	StoryStatusCompleted  StoryStatus = "completed"
	StoryStatusError      StoryStatus = "error"
)

// IsTerminal reports whether the status is completed or error
func (s StoryStatus) IsTerminal() bool {
	return s == StoryStatusCompleted || s == StoryStatusError
}

// AgentStory is one story analysis attempt for an emiten.
// The row is created by the caller (status pending) before the worker runs.
type AgentStory struct {
	ID               int64              `json:"id"`
	Emiten           string             `json:"emiten" badgerhold:"index"`
	Status           StoryStatus        `json:"status"`
	MatriksStory     []MatriksStoryItem `json:"matriks_story"`
	SWOTAnalysis     SWOTAnalysis       `json:"swot_analysis"`
	ChecklistKatalis []ChecklistKatalis `json:"checklist_katalis"`
	StrategiTrading  StrategiTrading    `json:"strategi_trading"`
	KeystatSignal    string             `json:"keystat_signal"`
	Kesimpulan       string             `json:"kesimpulan"`
	Sources          []SourceCitation   `json:"sources"`
	ErrorMessage     string             `json:"error_message,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// MatriksStoryItem is one catalyst row of the story matrix
type MatriksStoryItem struct {
	KategoriStory      string `json:"kategori_story"`
	DeskripsiKatalis   string `json:"deskripsi_katalis"`
	LogikaEkonomiPasar string `json:"logika_ekonomi_pasar"`
	PotensiDampakHarga string `json:"potensi_dampak_harga"`
}

// SWOTAnalysis holds the four SWOT lists. Missing lists are empty, never nil,
// once the record has been through result assembly.
type SWOTAnalysis struct {
	Strengths     []string `json:"strengths"`
	Weaknesses    []string `json:"weaknesses"`
	Opportunities []string `json:"opportunities"`
	Threats       []string `json:"threats"`
}

// ChecklistKatalis is a catalyst to monitor and its immediate impact
type ChecklistKatalis struct {
	Item         string `json:"item"`
	DampakInstan string `json:"dampak_instan"`
}

// StrategiTrading is the suggested trading approach
type StrategiTrading struct {
	TipeSaham    string       `json:"tipe_saham"`
	TargetEntry  string       `json:"target_entry"`
	ExitStrategy ExitStrategy `json:"exit_strategy"`
}

// ExitStrategy holds take-profit and stop-loss guidance
type ExitStrategy struct {
	TakeProfit string `json:"take_profit"`
	StopLoss   string `json:"stop_loss"`
}

// SourceCitation is a grounding citation. URI is always non-empty once stored.
type SourceCitation struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// StoryResult is the full set of analysis fields written on completion
type StoryResult struct {
	MatriksStory     []MatriksStoryItem `json:"matriks_story"`
	SWOTAnalysis     SWOTAnalysis       `json:"swot_analysis"`
	ChecklistKatalis []ChecklistKatalis `json:"checklist_katalis"`
	StrategiTrading  StrategiTrading    `json:"strategi_trading"`
	KeystatSignal    string             `json:"keystat_signal"`
	Kesimpulan       string             `json:"kesimpulan"`
	Sources          []SourceCitation   `json:"sources"`
}

// AgentStoryUpdate is a single write against an agent story record.
// Status is always set; Result and ErrorMessage are applied only when non-nil,
// so a status-only write leaves the analysis fields untouched.
type AgentStoryUpdate struct {
	Status       StoryStatus
	Result       *StoryResult
	ErrorMessage *string
}

// Apply writes the update onto a record in place
func (u AgentStoryUpdate) Apply(story *AgentStory, now time.Time) {
	story.Status = u.Status
	if u.Result != nil {
		story.MatriksStory = u.Result.MatriksStory
		story.SWOTAnalysis = u.Result.SWOTAnalysis
		story.ChecklistKatalis = u.Result.ChecklistKatalis
		story.StrategiTrading = u.Result.StrategiTrading
		story.KeystatSignal = u.Result.KeystatSignal
		story.Kesimpulan = u.Result.Kesimpulan
		story.Sources = u.Result.Sources
	}
	if u.ErrorMessage != nil {
		story.ErrorMessage = *u.ErrorMessage
	}
	story.UpdatedAt = now
}

// Fields returns the update as a column map, used by the REST and SQL backends
func (u AgentStoryUpdate) Fields() map[string]interface{} {
	fields := map[string]interface{}{
		"status": string(u.Status),
	}
	if u.Result != nil {
		fields["matriks_story"] = u.Result.MatriksStory
		fields["swot_analysis"] = u.Result.SWOTAnalysis
		fields["checklist_katalis"] = u.Result.ChecklistKatalis
		fields["strategi_trading"] = u.Result.StrategiTrading
		fields["keystat_signal"] = u.Result.KeystatSignal
		fields["kesimpulan"] = u.Result.Kesimpulan
		fields["sources"] = u.Result.Sources
	}
	if u.ErrorMessage != nil {
		fields["error_message"] = *u.ErrorMessage
	}
	return fields
}

// StatusUpdate builds a status-only update
func StatusUpdate(status StoryStatus) AgentStoryUpdate {
	return AgentStoryUpdate{Status: status}
}

// ErrorUpdate builds an update that marks the record as failed
func ErrorUpdate(message string) AgentStoryUpdate {
	return AgentStoryUpdate{Status: StoryStatusError, ErrorMessage: &message}
}

// CompletedUpdate builds the terminal success update
func CompletedUpdate(result *StoryResult) AgentStoryUpdate {
	return AgentStoryUpdate{Status: StoryStatusCompleted, Result: result}
}
