package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"timetally/internal/classify"
	"timetally/internal/model"
	"timetally/internal/query"
)

// Suggester is the external classification oracle. It contributes at most
// one weighted vote per dimension; any failure degrades to no votes.
type Suggester interface {
	Suggest(ctx context.Context, ev *query.EventView, projects []model.Project) (attendance, project *classify.Vote, err error)
}

// LLMSuggester asks an OpenAI-style chat completions endpoint to pick a
// project for an event. The model's self-reported confidence becomes the
// vote weight.
type LLMSuggester struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func NewLLMSuggester(baseURL, apiKey, model string) *LLMSuggester {
	return &LLMSuggester{baseURL: baseURL, apiKey: apiKey, model: model, client: &http.Client{}}
}

const suggestSystemPrompt = `You classify calendar events for time tracking.
Given an event and a list of projects, pick the best matching project and say
whether the user likely attended. Return only JSON:
{"project_id":"<id or empty>","project_confidence":0.0,"attended":true,"attendance_confidence":0.0}
Confidence values are in [0,1]. Use an empty project_id when unsure.`

func (s *LLMSuggester) Suggest(ctx context.Context, ev *query.EventView, projects []model.Project) (*classify.Vote, *classify.Vote, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Event: %s\n", ev.Title)
	if ev.Description != "" {
		fmt.Fprintf(&sb, "Description: %s\n", ev.Description)
	}
	if len(ev.Attendees) > 0 {
		fmt.Fprintf(&sb, "Attendees: %s\n", strings.Join(ev.Attendees, ", "))
	}
	if ev.Response != "" {
		fmt.Fprintf(&sb, "Response: %s\n", ev.Response)
	}
	sb.WriteString("Projects:\n")
	for _, p := range projects {
		fmt.Fprintf(&sb, "- %s: %s (%s)\n", p.ID, p.Name, p.Client)
	}

	content, err := s.chat(ctx, suggestSystemPrompt, sb.String())
	if err != nil {
		return nil, nil, err
	}

	var parsed struct {
		ProjectID            string  `json:"project_id"`
		ProjectConfidence    float64 `json:"project_confidence"`
		Attended             *bool   `json:"attended"`
		AttendanceConfidence float64 `json:"attendance_confidence"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, nil, fmt.Errorf("decode suggestion: %w", err)
	}

	var attVote, projVote *classify.Vote
	if parsed.Attended != nil && parsed.AttendanceConfidence > 0 {
		target := classify.TargetDNA
		if *parsed.Attended {
			target = classify.TargetAttended
		}
		attVote = &classify.Vote{
			Origin:    classify.OriginLLM,
			Dimension: classify.DimensionAttendance,
			Target:    target,
			Weight:    clampUnit(parsed.AttendanceConfidence),
		}
	}
	if parsed.ProjectID != "" && parsed.ProjectConfidence > 0 {
		projVote = &classify.Vote{
			Origin:    classify.OriginLLM,
			Dimension: classify.DimensionProject,
			Target:    parsed.ProjectID,
			Weight:    clampUnit(parsed.ProjectConfidence),
		}
	}
	return attVote, projVote, nil
}

func (s *LLMSuggester) chat(ctx context.Context, system, user string) (string, error) {
	body := map[string]interface{}{
		"model":  s.model,
		"stream": false,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
	}
	payload, _ := json.Marshal(body)

	req, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		data, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("llm status %d: %s", resp.StatusCode, data)
	}

	data, _ := io.ReadAll(resp.Body)
	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("empty choices")
	}
	return result.Choices[0].Message.Content, nil
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
