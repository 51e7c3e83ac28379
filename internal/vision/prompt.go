package vision

import (
	"fmt"
	"strings"

	"curator/internal/domain"
)

var stylePrompts = map[domain.CaptionStyle]string{
	domain.StyleNatural: "Describe this image in one clear, concise sentence suitable for AI image generation training.\n" +
		"Focus on: main subject, action/pose, setting/background.\n" +
		"Be objective and descriptive. Avoid subjective interpretations.",
	domain.StyleDetailed: "Provide a detailed 2-3 sentence description of this image suitable for AI training.\n" +
		"Include: subjects, actions, environment, mood, lighting, notable details, composition.\n" +
		"Be specific and objective.",
	domain.StyleTags: "Generate 15-25 comma-separated lowercase tags describing this image. NOT a sentence - just tags separated by commas.\n" +
		"Include: subject, gender, pose/action, clothing details, hair color/style, eye color, background/setting, lighting, colors, mood.",
}

// outputDirective is appended to every prompt. It is enforced by the system
// and not user-editable.
const outputDirective = "\n\nAlso assess the image quality for training suitability.\n\n" +
	"Output format (JSON only, no other text):\n" +
	"{\n" +
	"  \"caption\": \"Your caption here\",\n" +
	"  \"quality\": {\n" +
	"    \"sharpness\": 0.0-1.0,\n" +
	"    \"clarity\": 0.0-1.0,\n" +
	"    \"composition\": 0.0-1.0,\n" +
	"    \"exposure\": 0.0-1.0,\n" +
	"    \"overall\": 0.0-1.0\n" +
	"  },\n" +
	"  \"flags\": [\"list\", \"of\", \"any\", \"quality\", \"issues\"]\n" +
	"}"

// BuildPrompt maps a caption style and its constraints to a model prompt.
// A custom prompt is used verbatim; only the trigger-phrase instruction and
// the output directive are appended. Deterministic, no I/O.
func BuildPrompt(style domain.CaptionStyle, maxLength int, customPrompt, triggerPhrase string) string {
	var b strings.Builder

	if customPrompt != "" {
		b.WriteString(customPrompt)
	} else {
		// "custom" without an actual custom prompt falls back to natural.
		if style == domain.StyleCustom {
			style = domain.StyleNatural
		}
		tpl, ok := stylePrompts[style]
		if !ok {
			tpl = stylePrompts[domain.StyleNatural]
		}
		b.WriteString(tpl)
	}

	if triggerPhrase != "" {
		if style == domain.StyleTags || strings.Contains(strings.ToLower(customPrompt), "tag") {
			fmt.Fprintf(&b, "\n\nIMPORTANT: The caption MUST start with %q as the first tag.\n"+
				"Example: \"%s, woman, brown hair, white dress, studio, soft lighting\"",
				triggerPhrase, triggerPhrase)
		} else {
			fmt.Fprintf(&b, "\n\nIMPORTANT: The caption MUST begin with %q followed by a description of the image.", triggerPhrase)
		}
	}

	if maxLength > 0 {
		fmt.Fprintf(&b, "\n\nMaximum length: %d characters.", maxLength)
	}

	b.WriteString(outputDirective)
	return b.String()
}
