package vision

import (
	"reflect"
	"testing"
)

func TestParseCaptionResponseStructured(t *testing.T) {
	raw := `{"caption": "a woman in a white dress", "quality": {"sharpness": 0.9, "clarity": 0.8, "overall": 0.85}, "flags": ["slight blur"]}`
	caption, score, flags := parseCaptionResponse(raw)
	if caption != "a woman in a white dress" {
		t.Fatalf("caption = %q", caption)
	}
	if score != 0.85 {
		t.Fatalf("score = %v, want 0.85", score)
	}
	if !reflect.DeepEqual(flags, []string{"slight blur"}) {
		t.Fatalf("flags = %v", flags)
	}
}

func TestParseCaptionResponseCodeFence(t *testing.T) {
	raw := "Sure, here you go:\n```json\n{\"caption\": \"a red car\", \"quality\": {\"overall\": 0.7}}\n```"
	caption, score, _ := parseCaptionResponse(raw)
	if caption != "a red car" {
		t.Fatalf("caption = %q", caption)
	}
	if score != 0.7 {
		t.Fatalf("score = %v, want 0.7", score)
	}
}

func TestParseCaptionResponseQualityDetailFlags(t *testing.T) {
	raw := `{"caption": "a dog", "quality": {"sharpness": 0.9, "exposure": 0.6, "overall": 0.8}}`
	_, _, flags := parseCaptionResponse(raw)
	want := []string{"exposure:0.6", "sharpness:0.9"}
	if !reflect.DeepEqual(flags, want) {
		t.Fatalf("flags = %v, want %v", flags, want)
	}
}

func TestParseCaptionResponseFallback(t *testing.T) {
	caption, score, flags := parseCaptionResponse(`The image shows "a cat sleeping on a sofa"`)
	if caption != "a cat sleeping on a sofa" {
		t.Fatalf("caption = %q", caption)
	}
	if score != 0.5 {
		t.Fatalf("score = %v, want the 0.5 default", score)
	}
	if !reflect.DeepEqual(flags, []string{FlagUnparsedOutput}) {
		t.Fatalf("flags = %v, want unparsed flag", flags)
	}
}

func TestParseCaptionResponseMissingOverall(t *testing.T) {
	_, score, _ := parseCaptionResponse(`{"caption": "a tree"}`)
	if score != 0.5 {
		t.Fatalf("score = %v, want the 0.5 default", score)
	}
}

func TestApplyTriggerPhrase(t *testing.T) {
	cases := []struct {
		caption, trigger, want string
	}{
		{"a woman outside", "sks woman", "sks woman, a woman outside"},
		{"Sks Woman standing", "sks woman", "Sks Woman standing"},
		{", brown hair, dress", "sks woman", "sks woman, brown hair, dress"},
		{"a woman outside", "", "a woman outside"},
		{"", "sks woman", ""},
	}
	for _, tc := range cases {
		if got := applyTriggerPhrase(tc.caption, tc.trigger); got != tc.want {
			t.Errorf("applyTriggerPhrase(%q, %q) = %q, want %q", tc.caption, tc.trigger, got, tc.want)
		}
	}
}
