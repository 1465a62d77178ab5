// Package llm provides the extraction backend and embedding provider on top
// of langchaingo. Callers treat both as opaque capabilities behind interfaces.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/pkolbe/ontograph-go/internal/config"
	"github.com/pkolbe/ontograph-go/internal/models"
	"github.com/pkolbe/ontograph-go/internal/resilience"
	"github.com/pkolbe/ontograph-go/internal/schema"
)

// ErrFatalAPI indicates an unrecoverable provider error (auth, billing).
// Callers must not retry these.
var ErrFatalAPI = errors.New("fatal LLM API error")

// extractToolName is the function the model is asked to call with the
// structured extraction result.
const extractToolName = "record_knowledge_graph"

const extractSystemPrompt = `You are a knowledge graph extraction engine.
Extract typed entities and relations from the given text and record them by
calling the ` + extractToolName + ` function. Only use entity classes,
properties, and relation predicates permitted by the function's schema.
Entity names must be unique within the result. Do not invent information
that is not supported by the text.`

// Model wraps a langchaingo LLM for schema-guided extraction.
type Model struct {
	llm       llms.Model
	modelName string
}

// NewModel creates an extraction model based on configuration.
func NewModel(cfg config.Config) (*Model, error) {
	var model llms.Model
	var err error

	switch cfg.LLMProvider {
	case config.ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(cfg.LLMModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		model, err = openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}

	return &Model{
		llm:       model,
		modelName: cfg.LLMModel,
	}, nil
}

// Model returns the LLM model name.
func (m *Model) Model() string {
	return m.modelName
}

// ExtractWithSchema runs one extraction call, constraining the output with
// the tool-calling JSON-Schema projection. The returned graph is parsed but
// not yet validated against the compiled schema; that is the workflow's job.
func (m *Model) ExtractWithSchema(ctx context.Context, text string, toolSchema []byte) (models.KnowledgeGraph, error) {
	tool := llms.Tool{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        extractToolName,
			Description: "Record the entities and relations extracted from the text.",
			Parameters:  json.RawMessage(toolSchema),
		},
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, extractSystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, text),
	}

	response, err := m.llm.GenerateContent(ctx, messages, llms.WithTools([]llms.Tool{tool}))
	if err != nil {
		return models.KnowledgeGraph{}, classifyAPIError(err)
	}

	if len(response.Choices) == 0 {
		return models.KnowledgeGraph{}, fmt.Errorf("no response choices")
	}

	payload, err := extractPayload(response.Choices[0])
	if err != nil {
		return models.KnowledgeGraph{}, err
	}

	var graph models.KnowledgeGraph
	if err := json.Unmarshal(payload, &graph); err != nil {
		return models.KnowledgeGraph{}, schema.NewValidationError(
			fmt.Sprintf("malformed extraction response: %v", err))
	}

	return graph, nil
}

// extractPayload pulls the structured result out of a choice: the tool call
// arguments when the model called the function, otherwise the raw content
// (some providers answer inline JSON instead of a tool call).
func extractPayload(choice *llms.ContentChoice) ([]byte, error) {
	for _, call := range choice.ToolCalls {
		if call.FunctionCall != nil && call.FunctionCall.Name == extractToolName {
			return []byte(call.FunctionCall.Arguments), nil
		}
	}

	content := strings.TrimSpace(choice.Content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, schema.NewValidationError("extraction response contained no tool call and no content")
	}
	return []byte(content), nil
}

// classifyAPIError separates fatal provider errors (auth, billing, bad
// request) from transient ones. Fatal ones are marked permanent so the retry
// layer propagates them immediately instead of burning the budget.
func classifyAPIError(err error) error {
	msg := strings.ToLower(err.Error())
	fatal := []string{
		"api key", "unauthorized", "authentication", "billing",
		"credit balance", "quota exceeded", "invalid request",
	}
	for _, marker := range fatal {
		if strings.Contains(msg, marker) {
			return resilience.Permanent(fmt.Errorf("%w: %v", ErrFatalAPI, err))
		}
	}
	return fmt.Errorf("generate content: %w", err)
}
