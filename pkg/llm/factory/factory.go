package factory

import (
	"ai-docquery-be/pkg/agent/agenterr"
	"ai-docquery-be/pkg/llm"
	"ai-docquery-be/pkg/llm/huggingface"
	"ai-docquery-be/pkg/llm/ollama"
)

// NewLLMProvider builds the configured LLM backend. An unknown
// provider type is a startup-time configuration error.
func NewLLMProvider(providerType, modelName, baseURL, hfAPIKey string) (llm.LLMProvider, error) {
	switch providerType {
	case "ollama":
		if baseURL == "" {
			baseURL = "http://localhost:11434" // Default
		}
		return ollama.NewOllamaProvider(baseURL, modelName), nil
	case "huggingface":
		return huggingface.NewHuggingFaceProvider(hfAPIKey, "", modelName), nil
	default:
		return nil, agenterr.Configuration("unsupported LLM provider: "+providerType, nil)
	}
}
