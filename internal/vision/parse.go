package vision

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// FlagUnparsedOutput is recorded when the backend payload could not be
// parsed as structured data and the raw text was used as the caption.
const FlagUnparsedOutput = "unparsed_output"

// defaultQualityScore is assumed when the model did not report one.
const defaultQualityScore = 0.5

type captionPayload struct {
	Caption string             `json:"caption"`
	Quality map[string]float64 `json:"quality"`
	Flags   []string           `json:"flags"`
}

// Prefixes models sometimes add in front of a plain-text caption.
var captionPrefixes = []string{
	"Caption:", "Description:", "Here is", "The image shows",
	"This image shows", "In this image,", "Here's",
}

// parseCaptionResponse turns a raw model response into caption text, a
// quality score and flags. Unparseable payloads degrade gracefully: the raw
// text becomes the caption, the score defaults and an unparsed flag is
// recorded. Never fails.
func parseCaptionResponse(raw string) (caption string, score float64, flags []string) {
	text := strings.TrimSpace(raw)

	if payload, ok := decodePayload(extractJSON(text)); ok {
		score = defaultQualityScore
		if overall, ok := payload.Quality["overall"]; ok {
			score = overall
		}
		flags = payload.Flags
		if len(flags) == 0 {
			flags = qualityDetailFlags(payload.Quality)
		}
		return payload.Caption, score, flags
	}

	caption = text
	for _, prefix := range captionPrefixes {
		if len(caption) >= len(prefix) && strings.EqualFold(caption[:len(prefix)], prefix) {
			caption = strings.TrimSpace(caption[len(prefix):])
		}
	}
	if len(caption) >= 2 && strings.HasPrefix(caption, `"`) && strings.HasSuffix(caption, `"`) {
		caption = caption[1 : len(caption)-1]
	}
	return caption, defaultQualityScore, []string{FlagUnparsedOutput}
}

// extractJSON strips the markdown code fences some models wrap JSON in.
func extractJSON(text string) string {
	if i := strings.Index(text, "```json"); i >= 0 {
		rest := text[i+7:]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
	}
	if i := strings.Index(text, "```"); i >= 0 {
		rest := text[i+3:]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
	}
	return text
}

func decodePayload(text string) (captionPayload, bool) {
	var payload captionPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return captionPayload{}, false
	}
	if payload.Caption == "" {
		return captionPayload{}, false
	}
	return payload, true
}

// qualityDetailFlags surfaces the per-axis breakdown as "axis:score" flags
// when the model reported no explicit issue flags.
func qualityDetailFlags(quality map[string]float64) []string {
	if len(quality) == 0 {
		return nil
	}
	axes := make([]string, 0, len(quality))
	for axis := range quality {
		if axis != "overall" {
			axes = append(axes, axis)
		}
	}
	sort.Strings(axes)
	flags := make([]string, 0, len(axes))
	for _, axis := range axes {
		flags = append(flags, fmt.Sprintf("%s:%v", axis, quality[axis]))
	}
	return flags
}

// applyTriggerPhrase prepends the trigger phrase when the model left it out.
func applyTriggerPhrase(caption, trigger string) string {
	if trigger == "" || caption == "" {
		return caption
	}
	if strings.HasPrefix(strings.ToLower(caption), strings.ToLower(trigger)) {
		return caption
	}
	if strings.HasPrefix(caption, ",") {
		return trigger + caption
	}
	return trigger + ", " + caption
}
