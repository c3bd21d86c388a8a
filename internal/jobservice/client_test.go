package jobservice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticCreds string

func (s staticCreds) Authorization(_ context.Context) (string, error) {
	return string(s), nil
}

func TestSubmit(t *testing.T) {
	var gotBody submitPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, analyzeEndpointSuffix, r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]string{"statusQueryGetUri": "https://jobs.example/runtime/abc123"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "acme", "out", staticCreds("Bearer tok"), srv.Client(), nil)
	handle, err := c.Submit(context.Background(), SubmitRequest{Documents: []string{"jan.pdf", "feb.pdf"}, Overwrite: true})
	require.NoError(t, err)
	assert.Equal(t, "https://jobs.example/runtime/abc123", handle.StatusURL)
	assert.Equal(t, "acme", gotBody.ClientName)
	assert.Equal(t, []string{"jan.pdf", "feb.pdf"}, gotBody.Documents)
	assert.True(t, gotBody.Overwrite)
}

func TestSubmit_MissingStatusURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "acme", "out", nil, srv.Client(), nil)
	_, err := c.Submit(context.Background(), SubmitRequest{Documents: []string{"jan.pdf"}})
	assert.ErrorContains(t, err, "no status URL")
}

func TestSubmit_Non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad batch", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "acme", "out", nil, srv.Client(), nil)
	_, err := c.Submit(context.Background(), SubmitRequest{Documents: []string{"jan.pdf"}})
	assert.ErrorContains(t, err, "non-2xx status: 400")
}

func TestPoll_UsesHandleURLVerbatim(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/runtime/abc123", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"instanceId": "abc123", "runtimeStatus": "Running"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(srv.URL, "acme", "out", nil, srv.Client(), nil)
	st, err := c.Poll(context.Background(), Handle{StatusURL: srv.URL + "/runtime/abc123"})
	require.NoError(t, err)
	assert.Equal(t, "abc123", st.InstanceID)
	assert.False(t, st.Terminal())
}

func TestSummarize(t *testing.T) {
	var gotBody summaryPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, summaryEndpointSuffix, r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(summaryResponse{
			Status:               "Success",
			CheckSummaryFile:     "checks.csv",
			AccountSummaryFile:   "accounts.csv",
			StatementSummaryFile: "statements.csv",
			RecordsFile:          "records.csv",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "acme", "reports", nil, srv.Client(), nil)
	files, err := c.Summarize(context.Background(), []string{"s1", "s2", "s3"})
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2", "s3"}, gotBody.StatementKeys)
	assert.Equal(t, "reports", gotBody.OutputDirectory)
	require.Len(t, files, 4)
	assert.Equal(t, SummaryFile{Sheet: "Check Summary", Key: "checks.csv"}, files[0])
	assert.Equal(t, SummaryFile{Sheet: "Records", Key: "records.csv"}, files[3])
}

func TestSummarize_RemoteFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(summaryResponse{Status: "Failed", ErrorMessage: "no statements found"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "acme", "out", nil, srv.Client(), nil)
	_, err := c.Summarize(context.Background(), []string{"s1"})
	assert.ErrorContains(t, err, "no statements found")
}
