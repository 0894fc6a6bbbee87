package eval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/eholly1/music-tutor/internal/phrase"
)

// Client talks to a local Ollama API for LLM-graded feedback.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewClient creates an Ollama client for the given base URL and model.
func NewClient(baseURL, model string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		httpClient: &http.Client{
			Timeout: 60 * time.Second, // first call loads the model into VRAM
		},
	}
}

// generateRequest is the Ollama /api/generate request body.
type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

// generateResponse is the Ollama /api/generate response.
type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Available checks if Ollama is reachable.
func (c *Client) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == 200
}

// Generate sends a prompt with a system message and returns the raw LLM
// response.
func (c *Client) Generate(ctx context.Context, system, prompt string) (string, error) {
	body := generateRequest{
		Model:  c.model,
		Prompt: prompt,
		System: system,
		Stream: false,
		Options: map[string]any{
			"temperature": 0.3, // grading should be stable, not creative
			"num_predict": 200,
		},
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/generate", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}

	return strings.TrimSpace(result.Response), nil
}

const gradingSystemPrompt = `You are a patient music teacher grading a call-and-response exercise.
The student heard a target phrase and played it back on a MIDI keyboard.
You receive both phrases as note lists: NoteName@startBeat x durationBeats.

Respond with ONLY a JSON object, no prose, no markdown fences:
{"grade": "A" to "F" with optional +/-,
 "positive": "one specific thing the student did well",
 "improvement": "the one thing to fix next, encouraging",
 "recommendation": one of "REPEAT", "SIMPLIFY", "COMPLEXIFY", "SAME_DIFFICULTY_NEW_PHRASE",
 "confidence": 0.0 to 1.0}

Grade on pitch accuracy first, timing second, dynamics last.
Recommend COMPLEXIFY only for an A-range take, SIMPLIFY below C-range.`

// Ollama grades responses with a local LLM, falling back to note-count
// grading whenever the model is unreachable or returns something unusable.
type Ollama struct {
	client   *Client
	fallback Fallback
}

func NewOllama(client *Client) *Ollama {
	return &Ollama{client: client}
}

// llmEvaluation mirrors the JSON the grading prompt asks for.
type llmEvaluation struct {
	Grade          string  `json:"grade"`
	Positive       string  `json:"positive"`
	Improvement    string  `json:"improvement"`
	Recommendation string  `json:"recommendation"`
	Confidence     float64 `json:"confidence"`
}

func (o *Ollama) Evaluate(ctx context.Context, target, response *phrase.Phrase) (Evaluation, error) {
	prompt := fmt.Sprintf("Target phrase: %s\nStudent response: %s", Summary(target), Summary(response))

	raw, err := o.client.Generate(ctx, gradingSystemPrompt, prompt)
	if err != nil {
		log.Printf("eval: ollama grading failed, using fallback: %v", err)
		return o.fallback.Evaluate(ctx, target, response)
	}

	ev, err := parseEvaluation(raw)
	if err != nil {
		log.Printf("eval: unusable ollama reply %q, using fallback: %v", raw, err)
		return o.fallback.Evaluate(ctx, target, response)
	}
	return ev, nil
}

// parseEvaluation extracts the JSON object from a model reply, tolerating
// markdown fences and leading chatter.
func parseEvaluation(raw string) (Evaluation, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return Evaluation{}, fmt.Errorf("no JSON object in reply")
	}

	var parsed llmEvaluation
	if err := json.Unmarshal([]byte(raw[start:end+1]), &parsed); err != nil {
		return Evaluation{}, fmt.Errorf("decode: %w", err)
	}

	rec := Recommendation(strings.ToUpper(strings.TrimSpace(parsed.Recommendation)))
	if !rec.Valid() {
		return Evaluation{}, fmt.Errorf("bad recommendation %q", parsed.Recommendation)
	}
	if parsed.Grade == "" {
		return Evaluation{}, fmt.Errorf("missing grade")
	}
	conf := parsed.Confidence
	if conf <= 0 || conf > 1 {
		conf = 0.5
	}
	return Evaluation{
		Grade:          parsed.Grade,
		Positive:       strings.TrimSpace(parsed.Positive),
		Improvement:    strings.TrimSpace(parsed.Improvement),
		Recommendation: rec,
		Confidence:     conf,
	}, nil
}
