package vision

import (
	"strings"
	"testing"

	"curator/internal/domain"
)

func TestBuildPromptStyles(t *testing.T) {
	cases := []struct {
		name     string
		style    domain.CaptionStyle
		contains string
	}{
		{"natural", domain.StyleNatural, "one clear, concise sentence"},
		{"detailed", domain.StyleDetailed, "detailed 2-3 sentence description"},
		{"tags", domain.StyleTags, "comma-separated lowercase tags"},
		{"custom without prompt falls back to natural", domain.StyleCustom, "one clear, concise sentence"},
		{"unknown style falls back to natural", domain.CaptionStyle("poetic"), "one clear, concise sentence"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := BuildPrompt(tc.style, 0, "", "")
			if !strings.Contains(got, tc.contains) {
				t.Fatalf("prompt for %s missing %q:\n%s", tc.style, tc.contains, got)
			}
			if !strings.Contains(got, "Output format (JSON only") {
				t.Fatalf("prompt missing output directive")
			}
		})
	}
}

func TestBuildPromptCustomVerbatim(t *testing.T) {
	custom := "List every visible animal in the picture."
	got := BuildPrompt(domain.StyleCustom, 0, custom, "")
	if !strings.HasPrefix(got, custom) {
		t.Fatalf("custom prompt not used verbatim:\n%s", got)
	}
	for _, tpl := range stylePrompts {
		if strings.Contains(got, tpl) {
			t.Fatalf("style template leaked into custom prompt")
		}
	}
}

func TestBuildPromptTriggerPhrase(t *testing.T) {
	got := BuildPrompt(domain.StyleNatural, 0, "", "sks woman")
	if !strings.Contains(got, `MUST begin with "sks woman"`) {
		t.Fatalf("sentence trigger instruction missing:\n%s", got)
	}

	got = BuildPrompt(domain.StyleTags, 0, "", "sks woman")
	if !strings.Contains(got, `MUST start with "sks woman" as the first tag`) {
		t.Fatalf("tag trigger instruction missing:\n%s", got)
	}

	// A custom prompt that mentions tags gets the tag-form instruction too.
	got = BuildPrompt(domain.StyleCustom, 0, "Write booru tags for the image.", "sks woman")
	if !strings.Contains(got, "as the first tag") {
		t.Fatalf("custom tag prompt should use tag-form trigger instruction:\n%s", got)
	}
}

func TestBuildPromptMaxLength(t *testing.T) {
	got := BuildPrompt(domain.StyleNatural, 200, "", "")
	if !strings.Contains(got, "Maximum length: 200 characters.") {
		t.Fatalf("length constraint missing:\n%s", got)
	}
	if strings.Contains(BuildPrompt(domain.StyleNatural, 0, "", ""), "Maximum length") {
		t.Fatalf("length constraint should be absent when zero")
	}
}

func TestBuildPromptDeterministic(t *testing.T) {
	a := BuildPrompt(domain.StyleDetailed, 300, "", "trig")
	b := BuildPrompt(domain.StyleDetailed, 300, "", "trig")
	if a != b {
		t.Fatalf("BuildPrompt is not deterministic")
	}
}
