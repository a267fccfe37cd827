package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Vision model prompts. The assessment prompt demands a bare JSON
// object so ParseAssessment has a fighting chance; models still wrap it
// in prose or fences often enough that the parser tolerates both.
const (
	VLMSystemPrompt = "You are a road surface inspection assistant. " +
		"You look at dashcam frames of a road segment and judge the pavement, " +
		"not the scenery. Respond with JSON only."

	vlmPromptTemplate = "Assess the road surface in these %d frames. " +
		"Reply with a single JSON object with keys: " +
		`"condition" (one of "good", "fair", "poor", "very_poor"), ` +
		`"condition_score" (0.0 worst to 1.0 best), ` +
		`"distresses" (array of strings such as "pothole", "rutting", "cracking", "patching"), ` +
		`"confidence" (0.0 to 1.0), "reasoning" (one short sentence).`
)

// VLMClient sends frames and a prompt to a vision model and returns the
// verbatim response text.
type VLMClient interface {
	Assess(ctx context.Context, frames [][]byte, prompt, systemPrompt string) (string, error)
}

// BuildPrompt returns the assessment prompt for a frame count.
func BuildPrompt(frameCount int) string {
	return fmt.Sprintf(vlmPromptTemplate, frameCount)
}

// ParseAssessment extracts the JSON object from a raw model response.
// On failure it returns the parse_failed sentinel assessment and false;
// it never returns an error, because an unparseable response must still
// be captured and must not fail the segment.
func ParseAssessment(raw string) (Assessment, bool) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end <= start {
		return Assessment{Error: ParseFailed}, false
	}

	var a Assessment
	if err := json.Unmarshal([]byte(raw[start:end+1]), &a); err != nil {
		return Assessment{Error: ParseFailed}, false
	}
	return a, true
}
