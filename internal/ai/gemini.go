package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const systemInstruction = `Act as a senior technical recruiter. Compare job descriptions against LinkedIn profiles. Be strict and realistic. Prioritize real experience over keywords. Detect seniority level and calculate total years of experience from role durations. Ignore fluff. Return STRICT JSON only.`

const promptTemplate = `Compare the following job description against this LinkedIn profile.

--- JOB DESCRIPTION ---
%s

--- LINKEDIN PROFILE ---
%s

The profile text includes a "COMPUTED TOTAL EXPERIENCE" section with a pre-calculated total.
Use that number exactly for total_experience_years. Do NOT recalculate it yourself.
Identify their seniority level based on experience and roles (Junior/Mid/Senior/Lead/Principal/Executive).

Return STRICT JSON only with this schema:
{
  "match_score": <number 0-100>,
  "total_experience_years": <number from COMPUTED TOTAL EXPERIENCE>,
  "seniority_level": "<Junior|Mid|Senior|Lead|Principal|Executive>",
  "strengths": [<string>, ...],
  "missing_skills": [<string>, ...],
  "summary": "<short recruiter summary including experience level>",
  "outreach_message": "<personalized outreach message>"
}

Scoring guide:
90-100 = excellent match
70-89  = strong match
50-69  = partial match
30-49  = weak match
0-29   = poor match`

// GeminiScorer scores profiles with the Gemini API.
type GeminiScorer struct {
	client *genai.Client
	model  string
}

func NewGeminiScorer(ctx context.Context, apiKey, model string) (*GeminiScorer, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiScorer{client: client, model: model}, nil
}

var _ Scorer = (*GeminiScorer)(nil)

func (g *GeminiScorer) Score(ctx context.Context, jobDescription, profileText string) (*ScanResult, error) {
	prompt := fmt.Sprintf(promptTemplate, jobDescription, profileText)
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		Temperature:       genai.Ptr[float32](0.3),
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("%w: empty response", ErrUnavailable)
	}
	return ParseResult(text)
}

// ParseResult decodes the model's JSON verdict. Markdown code fences are
// stripped first since models wrap JSON in them even when told not to.
func ParseResult(text string) (*ScanResult, error) {
	var result ScanResult
	if err := json.Unmarshal([]byte(extractJSON(text)), &result); err != nil {
		return nil, fmt.Errorf("%w: parse response: %v", ErrUnavailable, err)
	}
	if result.MatchScore < 0 || result.MatchScore > 100 {
		return nil, fmt.Errorf("%w: match_score %d out of range", ErrUnavailable, result.MatchScore)
	}
	return &result, nil
}

func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	return s
}
