package common

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner and logs the resolved settings
func PrintBanner(config *Config, logger arbor.ILogger) {
	banner.Print("StoryAgent", GetVersion())

	logger.Info().
		Str("version", GetFullVersion()).
		Str("environment", config.Environment).
		Str("storage", config.Storage.Type).
		Str("model", config.Gemini.Model).
		Str("thinking", config.Gemini.Thinking).
		Msg("StoryAgent starting")
}
