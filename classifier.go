package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-sonnet-4-5-20250929"
const defaultOpenAIModel = "gpt-4o-mini"

// bodyExcerptLimit bounds how much of an item body goes into the prompt.
const bodyExcerptLimit = 2000

// ErrClassificationUnavailable marks an AI classifier failure (transport,
// non-2xx, malformed response). The orchestrator recovers by falling back to
// the rule-based variant; the error is surfaced only as metadata.
var ErrClassificationUnavailable = errors.New("classification unavailable")

// Classifier is the capability both variants implement.
type Classifier interface {
	Classify(ctx context.Context, item WorkItem, candidates []Candidate) (ClassificationResult, error)
}

// LLMUsage tracks token spend across classifier calls.
type LLMUsage struct {
	InputTokens              int64
	OutputTokens             int64
	CacheCreationInputTokens int64
	CacheReadInputTokens     int64
}

func (u LLMUsage) TotalTokens() int64 {
	return u.InputTokens + u.OutputTokens
}

func (u *LLMUsage) Add(other LLMUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheCreationInputTokens += other.CacheCreationInputTokens
	u.CacheReadInputTokens += other.CacheReadInputTokens
}

// AIClassifier sends a structured prompt to a chat-completion endpoint and
// parses the JSON response. It never guesses: anything non-conforming comes
// back as ErrClassificationUnavailable.
type AIClassifier struct {
	Provider        string // "anthropic" or "openai"
	Model           string
	AnthropicAPIKey string
	OpenAIAPIKey    string
	Hints           *ClassifierHints // optional curated routing steers
}

type classifierResponse struct {
	Summary     string          `json:"summary"`
	KeyTopics   []string        `json:"key_topics"`
	Workflows   []WorkflowScore `json:"suggested_workflows"`
	Urgency     string          `json:"urgency"`
	ContentType string          `json:"content_type"`
	Indicators  []string        `json:"indicators"`
	Rationale   []string        `json:"rationale"`
}

func (c *AIClassifier) Classify(ctx context.Context, item WorkItem, candidates []Candidate) (ClassificationResult, error) {
	systemPrompt, userPrompt := buildClassifierPrompts(item, candidates, c.Hints.For(item))

	var responseText string
	var usage LLMUsage
	var callErr error

	switch c.Provider {
	case "openai":
		model := c.Model
		if model == "" {
			model = defaultOpenAIModel
		}
		log.Printf("llm classify provider=openai model=%s item=%d candidates=%d", model, item.ID, len(candidates))
		responseText, usage, callErr = callOpenAI(ctx, c.OpenAIAPIKey, model, systemPrompt, userPrompt)
	default:
		model := c.Model
		if model == "" {
			model = defaultAnthropicModel
		}
		log.Printf("llm classify provider=anthropic model=%s item=%d candidates=%d", model, item.ID, len(candidates))
		responseText, usage, callErr = callAnthropic(ctx, c.AnthropicAPIKey, model, systemPrompt, userPrompt)
	}
	if callErr != nil {
		return ClassificationResult{}, fmt.Errorf("%w: %v", ErrClassificationUnavailable, callErr)
	}

	result, parseErr := parseClassifierResponse(responseText)
	if parseErr != nil {
		return ClassificationResult{}, fmt.Errorf("%w: %v", ErrClassificationUnavailable, parseErr)
	}
	result.Variant = "ai"
	result.Usage = usage
	return result, nil
}

func buildClassifierPrompts(item WorkItem, candidates []Candidate, hints []WorkflowHint) (string, string) {
	var candidateLines strings.Builder
	for _, c := range candidates {
		w := c.Workflow
		candidateLines.WriteString(fmt.Sprintf("- %s (slug: %s): triggers %s, specialist %s\n",
			w.Name, w.Slug, strings.Join(w.TriggerLabels, ", "), w.Specialist))
	}
	candidateBlock := candidateLines.String()
	if candidateBlock == "" {
		candidateBlock = "none\n"
	}

	systemPrompt := fmt.Sprintf(`You classify discovered work items for a security content pipeline.
Candidate workflows:
%s
Also:
- suggest workflows from the candidate list only, each with confidence between 0 and 1
- choose urgency from: low, medium, high, critical
- choose a short content_type (e.g. "phishing report", "vulnerability disclosure", "malware analysis")
- extract key topics and concrete indicators (domains, hashes, CVE ids) if present
- give 2-4 short rationale bullets.

Respond with JSON only (no markdown):
{"summary": "...", "key_topics": ["..."], "suggested_workflows": [{"name": "slug", "confidence": 0.9}], "urgency": "high", "content_type": "...", "indicators": ["..."], "rationale": ["..."]}`, candidateBlock)

	excerpt := strings.TrimSpace(item.Body)
	if len(excerpt) > bodyExcerptLimit {
		cut := bodyExcerptLimit
		// Back off to a rune boundary so the excerpt stays valid UTF-8.
		for cut > 0 && !utf8.RuneStart(excerpt[cut]) {
			cut--
		}
		excerpt = excerpt[:cut] + "..."
	}
	userPrompt := fmt.Sprintf("Title: %s\nLabels: %s\n\nBody:\n%s\n",
		strings.TrimSpace(item.Title), strings.Join(NormalizeLabels(item.Labels), ", "), excerpt)
	if len(hints) > 0 {
		var hintLines strings.Builder
		hintLines.WriteString("\nCurated routing hints (items mentioning the phrase usually belong to the workflow):\n")
		for _, h := range hints {
			fmt.Fprintf(&hintLines, "- %q -> %s\n", h.Phrase, h.Workflow)
		}
		userPrompt += hintLines.String()
	}
	return systemPrompt, userPrompt
}

func parseClassifierResponse(responseText string) (ClassificationResult, error) {
	responseText = strings.TrimSpace(responseText)
	responseText = strings.TrimPrefix(responseText, "```json")
	responseText = strings.TrimPrefix(responseText, "```")
	responseText = strings.TrimSuffix(responseText, "```")
	responseText = strings.TrimSpace(responseText)

	var parsed classifierResponse
	if err := json.Unmarshal([]byte(responseText), &parsed); err != nil {
		truncated := responseText
		if len(truncated) > 512 {
			truncated = truncated[:512] + fmt.Sprintf("... [truncated, total_length=%d]", len(responseText))
		}
		return ClassificationResult{}, fmt.Errorf("parsing classifier response: %w (truncated response: %s)", err, truncated)
	}

	urgency, err := parseUrgency(parsed.Urgency)
	if err != nil {
		return ClassificationResult{}, err
	}
	for _, w := range parsed.Workflows {
		if w.Confidence < 0 || w.Confidence > 1 {
			return ClassificationResult{}, fmt.Errorf("confidence %.3f for %q out of range", w.Confidence, w.Workflow)
		}
	}

	return ClassificationResult{
		Summary:     strings.TrimSpace(parsed.Summary),
		Workflows:   parsed.Workflows,
		Urgency:     urgency,
		ContentType: strings.TrimSpace(parsed.ContentType),
		KeyTopics:   parsed.KeyTopics,
		Indicators:  parsed.Indicators,
		Rationale:   parsed.Rationale,
	}, nil
}

func parseUrgency(s string) (Urgency, error) {
	switch Urgency(normalizeLabel(s)) {
	case UrgencyLow:
		return UrgencyLow, nil
	case UrgencyMedium, "":
		return UrgencyMedium, nil
	case UrgencyHigh:
		return UrgencyHigh, nil
	case UrgencyCritical:
		return UrgencyCritical, nil
	default:
		return "", fmt.Errorf("unknown urgency %q", s)
	}
}

// --- Anthropic ---

func callAnthropic(ctx context.Context, apiKey, model, systemPrompt, userPrompt string) (string, LLMUsage, error) {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	message, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: 2048,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt, CacheControl: anthropic.NewCacheControlEphemeralParam()},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		log.Printf("llm anthropic error: %v", err)
		return "", LLMUsage{}, fmt.Errorf("Anthropic API error: %w", err)
	}
	usage := LLMUsage{
		InputTokens:              message.Usage.InputTokens,
		OutputTokens:             message.Usage.OutputTokens,
		CacheCreationInputTokens: message.Usage.CacheCreationInputTokens,
		CacheReadInputTokens:     message.Usage.CacheReadInputTokens,
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			log.Printf("llm anthropic response size=%d tokens_in=%d tokens_out=%d cache_create=%d cache_read=%d", len(block.Text), usage.InputTokens, usage.OutputTokens, usage.CacheCreationInputTokens, usage.CacheReadInputTokens)
			return block.Text, usage, nil
		}
	}
	return "", usage, fmt.Errorf("no text content in Anthropic response")
}

// --- OpenAI ---

type openAIRequest struct {
	Model    string          `json:"model"`
	Messages []openAIMessage `json:"messages"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func callOpenAI(ctx context.Context, apiKey, model, systemPrompt, userPrompt string) (string, LLMUsage, error) {
	reqBody := openAIRequest{
		Model: model,
		Messages: []openAIMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", LLMUsage{}, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", "https://api.openai.com/v1/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", LLMUsage{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := externalHTTPClient.Do(req)
	if err != nil {
		log.Printf("llm openai error: %v", err)
		return "", LLMUsage{}, fmt.Errorf("OpenAI API error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", LLMUsage{}, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != 200 {
		return "", LLMUsage{}, fmt.Errorf("OpenAI API returned %d: %s", resp.StatusCode, string(respBody))
	}

	var openAIResp openAIResponse
	if err := json.Unmarshal(respBody, &openAIResp); err != nil {
		return "", LLMUsage{}, fmt.Errorf("parsing OpenAI response: %w", err)
	}

	if openAIResp.Error != nil {
		log.Printf("llm openai api error: %s", openAIResp.Error.Message)
		return "", LLMUsage{}, fmt.Errorf("OpenAI API error: %s", openAIResp.Error.Message)
	}

	if len(openAIResp.Choices) == 0 {
		return "", LLMUsage{}, fmt.Errorf("no choices in OpenAI response")
	}
	usage := LLMUsage{}
	if openAIResp.Usage != nil {
		usage.InputTokens = openAIResp.Usage.PromptTokens
		usage.OutputTokens = openAIResp.Usage.CompletionTokens
	}

	log.Printf("llm openai response size=%d tokens_in=%d tokens_out=%d", len(openAIResp.Choices[0].Message.Content), usage.InputTokens, usage.OutputTokens)
	return openAIResp.Choices[0].Message.Content, usage, nil
}
