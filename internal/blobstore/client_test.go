package blobstore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokens string

func (s staticTokens) Token(_ context.Context, _ Container) (string, error) {
	return string(s), nil
}

func TestParseMetadata(t *testing.T) {
	tests := []struct {
		name  string
		pairs map[string]string
		want  Metadata
	}{
		{
			name:  "analyzed with pages and statements",
			pairs: map[string]string{"analyzed": "true", "totalpages": "12", "statements": "s1, s2"},
			want:  Metadata{Analyzed: true, TotalPages: 12, Statements: []string{"s1", "s2"}},
		},
		{
			name:  "uploaded but never analyzed",
			pairs: map[string]string{},
			want:  Metadata{},
		},
		{
			name:  "malformed page count degrades to zero",
			pairs: map[string]string{"analyzed": "TRUE", "totalpages": "many"},
			want:  Metadata{Analyzed: true},
		},
		{
			name:  "empty statement entries dropped",
			pairs: map[string]string{"statements": "s1,, ,s2"},
			want:  Metadata{Statements: []string{"s1", "s2"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseMetadata(tt.pairs)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestHeadMetadata_NotFoundIsNilNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "acme", staticTokens("tok"), srv.Client(), nil)
	md, err := c.HeadMetadata(context.Background(), ContainerInput, "jan.pdf")
	require.NoError(t, err)
	assert.Nil(t, md)
}

func TestHeadMetadata_ParsesMetaHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		assert.Contains(t, r.URL.Path, "acme-input/")
		w.Header().Set("X-Meta-Analyzed", "true")
		w.Header().Set("X-Meta-Totalpages", "7")
		w.Header().Set("X-Meta-Statements", "9652:CITI CC:9_7_2023.json")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "acme", staticTokens("tok"), srv.Client(), nil)
	md, err := c.HeadMetadata(context.Background(), ContainerInput, "jan.pdf")
	require.NoError(t, err)
	require.NotNil(t, md)
	assert.True(t, md.Analyzed)
	assert.Equal(t, 7, md.TotalPages)
	assert.Equal(t, []string{"9652:CITI CC:9_7_2023.json"}, md.Statements)
}

func TestPut_RejectedStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "acme", staticTokens("tok"), srv.Client(), nil)
	err := c.Put(context.Background(), ContainerInput, "jan.pdf", []byte("%PDF-1.4"))
	assert.ErrorContains(t, err, "non-2xx status: 403")
}

func TestGet_RoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "acme-output/")
		_, _ = w.Write([]byte("a,b\n1,2\n"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "acme", staticTokens("tok"), srv.Client(), nil)
	raw, err := c.Get(context.Background(), ContainerOutput, "records.csv")
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(raw))
}
