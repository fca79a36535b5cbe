package schemas

import (
	"embed"
)

//go:embed *.sql
var fs embed.FS

// StorySchema is the DDL for agent_stories, background_job_logs and profile_settings.
// The same file is applied to a Supabase project by hand.
const StorySchema = "storyagent.sql"

// GetSchema returns the content of a schema file by name
func GetSchema(name string) ([]byte, error) {
	return fs.ReadFile(name)
}
