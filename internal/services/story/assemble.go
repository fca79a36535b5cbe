package story

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/ternarybob/storyagent/internal/interfaces"
	"github.com/ternarybob/storyagent/internal/models"
)

// DefaultSourceTitle is used for citations that arrive without a title
const DefaultSourceTitle = "Sumber Berita"

// BuildSources keeps citations with a non-empty URI, in the order given
func BuildSources(citations []interfaces.GroundingCitation) []models.SourceCitation {
	sources := make([]models.SourceCitation, 0, len(citations))
	for _, c := range citations {
		uri := strings.TrimSpace(c.URI)
		if uri == "" {
			continue
		}
		title := strings.TrimSpace(c.Title)
		if title == "" {
			title = DefaultSourceTitle
		}
		sources = append(sources, models.SourceCitation{Title: title, URI: uri})
	}
	return sources
}

// AssembleResult maps the model payload onto the stored result.
// Missing or mistyped fields become empty values; no field is left nil.
func AssembleResult(payload map[string]interface{}, sources []models.SourceCitation) *models.StoryResult {
	if sources == nil {
		sources = []models.SourceCitation{}
	}

	swot := asObject(payload["swot_analysis"])
	if swot == nil {
		// Older prompt revisions spelled the key "swat_analysis"
		swot = asObject(payload["swat_analysis"])
	}

	strategi := asObject(payload["strategi_trading"])
	exit := asObject(strategi["exit_strategy"])

	result := &models.StoryResult{
		MatriksStory: []models.MatriksStoryItem{},
		SWOTAnalysis: models.SWOTAnalysis{
			Strengths:     asStringList(swot["strengths"]),
			Weaknesses:    asStringList(swot["weaknesses"]),
			Opportunities: asStringList(swot["opportunities"]),
			Threats:       asStringList(swot["threats"]),
		},
		ChecklistKatalis: []models.ChecklistKatalis{},
		StrategiTrading: models.StrategiTrading{
			TipeSaham:   asString(strategi["tipe_saham"]),
			TargetEntry: asString(strategi["target_entry"]),
			ExitStrategy: models.ExitStrategy{
				TakeProfit: asString(exit["take_profit"]),
				StopLoss:   asString(exit["stop_loss"]),
			},
		},
		KeystatSignal: asString(payload["keystat_signal"]),
		Kesimpulan:    asString(payload["kesimpulan"]),
		Sources:       sources,
	}

	for _, item := range asObjectList(payload["matriks_story"]) {
		result.MatriksStory = append(result.MatriksStory, models.MatriksStoryItem{
			KategoriStory:      asString(item["kategori_story"]),
			DeskripsiKatalis:   asString(item["deskripsi_katalis"]),
			LogikaEkonomiPasar: asString(item["logika_ekonomi_pasar"]),
			PotensiDampakHarga: asString(item["potensi_dampak_harga"]),
		})
	}

	for _, item := range asObjectList(payload["checklist_katalis"]) {
		result.ChecklistKatalis = append(result.ChecklistKatalis, models.ChecklistKatalis{
			Item:         asString(item["item"]),
			DampakInstan: asString(item["dampak_instan"]),
		})
	}

	return result
}

func asObject(v interface{}) map[string]interface{} {
	if m, ok := v.(map[string]interface{}); ok {
		return m
	}
	return nil
}

// asObjectList accepts an array of objects or a single object
func asObjectList(v interface{}) []map[string]interface{} {
	switch t := v.(type) {
	case []interface{}:
		items := make([]map[string]interface{}, 0, len(t))
		for _, el := range t {
			if m, ok := el.(map[string]interface{}); ok {
				items = append(items, m)
			}
		}
		return items
	case map[string]interface{}:
		return []map[string]interface{}{t}
	default:
		return nil
	}
}

// asStringList accepts an array or a single scalar; null elements are dropped
func asStringList(v interface{}) []string {
	list := []string{}
	switch t := v.(type) {
	case nil:
	case []interface{}:
		for _, el := range t {
			if el == nil {
				continue
			}
			list = append(list, asString(el))
		}
	default:
		if s := asString(t); s != "" {
			list = append(list, s)
		}
	}
	return list
}

func asString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(data)
	}
}
