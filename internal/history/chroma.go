package history

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ChromaStore talks to the embedding sidecar over HTTP. The sidecar owns
// the vector database and the embedding model; this client only moves
// documents and metadata across.
type ChromaStore struct {
	baseURL string
	client  *http.Client
}

// NewChromaStore creates a client for the sidecar at baseURL.
func NewChromaStore(baseURL string) *ChromaStore {
	return &ChromaStore{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type addRequest struct {
	ID       string   `json:"id"`
	Document string   `json:"document"`
	Metadata CaseMeta `json:"metadata"`
}

type queryRequest struct {
	QueryText string `json:"query_text"`
	K         int    `json:"k"`
}

type queryResponse struct {
	Items []struct {
		ID       string   `json:"id"`
		Document string   `json:"document"`
		Score    float64  `json:"score"`
		Metadata CaseMeta `json:"metadata"`
	} `json:"items"`
}

func (s *ChromaStore) Add(ctx context.Context, c Case) error {
	return s.post(ctx, "/add", addRequest{ID: c.ID, Document: c.Text, Metadata: c.Meta}, nil)
}

func (s *ChromaStore) Query(ctx context.Context, query string, k int) ([]Case, error) {
	var resp queryResponse
	if err := s.post(ctx, "/query", queryRequest{QueryText: query, K: k}, &resp); err != nil {
		return nil, err
	}
	return itemsToCases(resp), nil
}

func (s *ChromaStore) All(ctx context.Context) ([]Case, error) {
	var resp queryResponse
	if err := s.get(ctx, "/all", &resp); err != nil {
		return nil, err
	}
	return itemsToCases(resp), nil
}

func (s *ChromaStore) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	if err := s.get(ctx, "/stats", &stats); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

func itemsToCases(resp queryResponse) []Case {
	cases := make([]Case, 0, len(resp.Items))
	for _, it := range resp.Items {
		cases = append(cases, Case{ID: it.ID, Text: it.Document, Score: it.Score, Meta: it.Metadata})
	}
	return cases
}

func (s *ChromaStore) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling %s request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return s.do(req, path, out)
}

func (s *ChromaStore) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return err
	}
	return s.do(req, path, out)
}

func (s *ChromaStore) do(req *http.Request, path string, out interface{}) error {
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling history sidecar %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("history sidecar %s returned status %d: %s", path, resp.StatusCode, string(raw))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
