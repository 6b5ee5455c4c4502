package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"timetally/internal/classify"
	"timetally/internal/model"
	"timetally/internal/query"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func suggestServer(t *testing.T, reply string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "test-model", body["model"])

		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": reply}},
			},
		})
	}))
}

func TestLLMSuggester_Suggest(t *testing.T) {
	reply := `{"project_id":"proj-a","project_confidence":0.9,"attended":true,"attendance_confidence":0.7}`
	srv := suggestServer(t, reply, 200)
	defer srv.Close()

	s := NewLLMSuggester(srv.URL, "test-key", "test-model")
	ev := &query.EventView{Title: "Acme sync", Attendees: []string{"pm@acme.com"}}
	projects := []model.Project{{Name: "Acme Website", Client: "Acme Corp"}}

	attVote, projVote, err := s.Suggest(context.Background(), ev, projects)
	require.NoError(t, err)

	require.NotNil(t, attVote)
	assert.Equal(t, classify.OriginLLM, attVote.Origin)
	assert.Equal(t, classify.DimensionAttendance, attVote.Dimension)
	assert.Equal(t, classify.TargetAttended, attVote.Target)
	assert.Equal(t, 0.7, attVote.Weight)

	require.NotNil(t, projVote)
	assert.Equal(t, classify.DimensionProject, projVote.Dimension)
	assert.Equal(t, "proj-a", projVote.Target)
	assert.Equal(t, 0.9, projVote.Weight)
}

func TestLLMSuggester_UnsureYieldsNoVotes(t *testing.T) {
	reply := `{"project_id":"","project_confidence":0,"attendance_confidence":0}`
	srv := suggestServer(t, reply, 200)
	defer srv.Close()

	s := NewLLMSuggester(srv.URL, "test-key", "test-model")
	attVote, projVote, err := s.Suggest(context.Background(), &query.EventView{Title: "x"}, nil)
	require.NoError(t, err)
	assert.Nil(t, attVote)
	assert.Nil(t, projVote)
}

func TestLLMSuggester_ConfidenceClamped(t *testing.T) {
	reply := `{"project_id":"proj-a","project_confidence":3.5,"attended":false,"attendance_confidence":0.4}`
	srv := suggestServer(t, reply, 200)
	defer srv.Close()

	s := NewLLMSuggester(srv.URL, "test-key", "test-model")
	attVote, projVote, err := s.Suggest(context.Background(), &query.EventView{Title: "x"}, nil)
	require.NoError(t, err)

	require.NotNil(t, projVote)
	assert.Equal(t, 1.0, projVote.Weight)
	require.NotNil(t, attVote)
	assert.Equal(t, classify.TargetDNA, attVote.Target)
}

func TestLLMSuggester_BadJSONIsError(t *testing.T) {
	srv := suggestServer(t, "sorry, I cannot help with that", 200)
	defer srv.Close()

	s := NewLLMSuggester(srv.URL, "test-key", "test-model")
	_, _, err := s.Suggest(context.Background(), &query.EventView{Title: "x"}, nil)
	require.Error(t, err)
}

func TestLLMSuggester_HTTPErrorIsError(t *testing.T) {
	srv := suggestServer(t, "{}", 500)
	defer srv.Close()

	s := NewLLMSuggester(srv.URL, "test-key", "test-model")
	_, _, err := s.Suggest(context.Background(), &query.EventView{Title: "x"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}
