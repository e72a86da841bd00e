package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"google.golang.org/genai"
)

// LangChain adapts any langchaingo model. The response schema, if any, is
// rendered into the system prompt.
type LangChain struct {
	model llms.Model
}

func NewLangChain(model llms.Model) *LangChain {
	return &LangChain{model: model}
}

func (l *LangChain) Generate(ctx context.Context, req Request) (string, error) {
	system := req.System
	if req.Schema != nil {
		system += "\n\n# Response Format: \n\n" + SchemaInstructions(req.Schema)
	}

	var messages []llms.MessageContent
	if strings.TrimSpace(system) != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, system))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt))

	opts := []llms.CallOption{}
	if req.Model != "" {
		opts = append(opts, llms.WithModel(req.Model))
	}
	if req.JSON || req.Schema != nil {
		opts = append(opts, llms.WithJSONMode())
	}
	if req.Temperature != nil {
		opts = append(opts, llms.WithTemperature(float64(*req.Temperature)))
	}

	resp, err := l.model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return "", fmt.Errorf("llm generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm returned no choices")
	}
	content := strings.TrimSpace(resp.Choices[0].Content)
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}

// SchemaInstructions renders a schema as the plain-text format instruction
// used with models that lack native structured output.
func SchemaInstructions(schema *genai.Schema) string {
	data, err := json.MarshalIndent(schemaDoc(schema), "", "  ")
	if err != nil {
		return ""
	}
	return "Return the JSON object directly without any formatting or additional text. " +
		"The JSON object should have the following structure as defined in the schema. " +
		"Make sure to answer in valid json and include all necessary properties:" + string(data)
}

// schemaDoc converts to JSON-schema style lowercase type names.
func schemaDoc(s *genai.Schema) map[string]any {
	if s == nil {
		return nil
	}
	doc := map[string]any{}
	if s.Type != "" {
		doc["type"] = strings.ToLower(string(s.Type))
	}
	if s.Description != "" {
		doc["description"] = s.Description
	}
	if len(s.Properties) > 0 {
		props := make(map[string]any, len(s.Properties))
		for name, p := range s.Properties {
			props[name] = schemaDoc(p)
		}
		doc["properties"] = props
	}
	if s.Items != nil {
		doc["items"] = schemaDoc(s.Items)
	}
	if len(s.Required) > 0 {
		doc["required"] = s.Required
	}
	return doc
}
