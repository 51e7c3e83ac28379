package vision

import (
	"context"
	"strings"
)

// ModelInfo describes one curated vision model with its per-backend names.
type ModelInfo struct {
	ModelID      string  `json:"model_id"`
	Name         string  `json:"name"`
	OllamaName   string  `json:"-"`
	LMStudioName string  `json:"-"`
	VRAMGB       float64 `json:"vram_gb"`
	Description  string  `json:"description"`
}

// BackendName returns the model identifier the given backend expects.
func (m ModelInfo) BackendName(backend Backend) string {
	if backend == BackendLMStudio {
		return m.LMStudioName
	}
	return m.OllamaName
}

// CuratedModels lists vision models with known good captioning performance.
var CuratedModels = []ModelInfo{
	{
		ModelID:      "qwen2.5-vl-7b",
		Name:         "Qwen2.5-VL 7B",
		OllamaName:   "qwen2.5-vl:7b",
		LMStudioName: "qwen/qwen2.5-vl-7b-instruct",
		VRAMGB:       8.0,
		Description:  "Excellent quality, good speed. Recommended for most users.",
	},
	{
		ModelID:      "qwen2.5-vl-3b",
		Name:         "Qwen2.5-VL 3B",
		OllamaName:   "qwen2.5-vl:3b",
		LMStudioName: "qwen/qwen2.5-vl-3b-instruct",
		VRAMGB:       4.0,
		Description:  "Fast and lightweight. Good for quick iterations.",
	},
	{
		ModelID:      "llava-1.6-34b",
		Name:         "LLaVA 1.6 34B",
		OllamaName:   "llava:34b",
		LMStudioName: "liuhaotian/llava-v1.6-34b",
		VRAMGB:       24.0,
		Description:  "Highest quality, requires significant VRAM.",
	},
	{
		ModelID:      "llava-1.6-13b",
		Name:         "LLaVA 1.6 13B",
		OllamaName:   "llava:13b",
		LMStudioName: "liuhaotian/llava-v1.6-13b",
		VRAMGB:       12.0,
		Description:  "Good balance of quality and speed.",
	},
	{
		ModelID:      "llava-1.6-7b",
		Name:         "LLaVA 1.6 7B",
		OllamaName:   "llava:7b",
		LMStudioName: "liuhaotian/llava-v1.6-7b",
		VRAMGB:       6.0,
		Description:  "Efficient option for lower VRAM systems.",
	},
}

// AvailableModels checks each curated model against the backend's installed
// model list. A discovery failure marks everything unavailable rather than
// failing the call.
func AvailableModels(ctx context.Context, backend Backend, client Client) []ModelAvailability {
	installed, err := client.ListModels(ctx)
	out := make([]ModelAvailability, 0, len(CuratedModels))
	for _, m := range CuratedModels {
		available := false
		if err == nil {
			available = modelInstalled(backend, m.BackendName(backend), installed)
		}
		out = append(out, ModelAvailability{
			ModelInfo:        m,
			Backend:          backend,
			BackendModelName: m.BackendName(backend),
			Available:        available,
		})
	}
	return out
}

// ModelAvailability pairs a curated model with its status on one backend.
type ModelAvailability struct {
	ModelInfo
	Backend          Backend `json:"backend"`
	BackendModelName string  `json:"backend_model_name"`
	Available        bool    `json:"is_available"`
}

func modelInstalled(backend Backend, name string, installed []string) bool {
	for _, have := range installed {
		// LM Studio ids embed the publisher path, so substring-match there.
		if backend == BackendLMStudio {
			if strings.Contains(have, name) {
				return true
			}
			continue
		}
		if have == name {
			return true
		}
	}
	return false
}
