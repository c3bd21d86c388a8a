package blobstore

import (
	"context"
	"strconv"
	"strings"
)

// Container names a logical bucket within the client's storage namespace.
type Container string

const (
	// ContainerInput holds the uploaded statement PDFs.
	ContainerInput Container = "input"
	// ContainerStatements holds per-statement extraction artifacts.
	ContainerStatements Container = "statements"
	// ContainerOutput holds generated summary CSVs.
	ContainerOutput Container = "output"
)

// ObjectStore is the narrow object-storage contract the pipeline consumes.
// A key is (container, name); metadata is the durable record of a prior
// successful analysis and must be consulted before any re-upload decision.
type ObjectStore interface {
	Put(ctx context.Context, container Container, name string, data []byte) error
	// HeadMetadata returns (nil, nil) when the object does not exist.
	HeadMetadata(ctx context.Context, container Container, name string) (*Metadata, error)
	Get(ctx context.Context, container Container, name string) ([]byte, error)
}

// TokenSource provides a scoped access token for one container. Credential
// acquisition is an opaque collaborator; tokens may be cached by the
// implementation.
type TokenSource interface {
	Token(ctx context.Context, container Container) (string, error)
}

// StaticToken is a TokenSource backed by one pre-issued query token shared
// across containers.
type StaticToken string

func (t StaticToken) Token(context.Context, Container) (string, error) { return string(t), nil }

// Metadata is the analysis record attached to an uploaded statement.
type Metadata struct {
	Analyzed   bool
	TotalPages int
	Statements []string
}

// Metadata header keys. The store persists metadata as lowercase string
// pairs; statements are comma-joined.
const (
	metaKeyAnalyzed   = "analyzed"
	metaKeyTotalPages = "totalpages"
	metaKeyStatements = "statements"
)

// ParseMetadata decodes the string-pair metadata of an object. Missing or
// malformed values degrade to zero values rather than erroring; absent
// metadata on an existing blob means "uploaded but never analyzed".
func ParseMetadata(pairs map[string]string) *Metadata {
	md := &Metadata{}
	if v, ok := pairs[metaKeyAnalyzed]; ok {
		md.Analyzed = strings.EqualFold(v, "true")
	}
	if v, ok := pairs[metaKeyTotalPages]; ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			md.TotalPages = n
		}
	}
	if v, ok := pairs[metaKeyStatements]; ok && v != "" {
		parts := strings.Split(v, ",")
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				md.Statements = append(md.Statements, p)
			}
		}
	}
	return md
}
