package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"qvrag/internal/domain"
	"qvrag/internal/vectorstore"
)

// Storage is a minimal REST client to Qdrant.
// It assumes cosine distance and creates the collection on first write.
type Storage struct {
	url        string
	apiKey     string
	collection string
	embedder   domain.Embedder
	client     *http.Client

	mu    sync.Mutex
	ready bool
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

var _ domain.VectorStore = (*Storage)(nil)

// idNamespace derives point ids for record ids that are not UUIDs.
var idNamespace = uuid.MustParse("6f1e7c1e-2f0a-4c53-9a55-8d1f0b6f6a41")

func NewStorage(cfg Config, embedder domain.Embedder) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Storage{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		embedder:   embedder,
		client:     &http.Client{Timeout: timeout},
	}
}

type statusError struct {
	method, url string
	code        int
	status      string
	body        string
}

func (e *statusError) Error() string {
	msg := fmt.Sprintf("qdrant %s %s failed: %s", e.method, e.url, e.status)
	if e.body != "" {
		msg += ": " + e.body
	}
	return msg
}

func isNotFound(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.code == http.StatusNotFound
}

func (s *Storage) collectionURL(suffix string) string {
	return s.url + "/collections/" + url.PathEscape(s.collection) + suffix
}

// ensureCollection creates the collection with the given vector size unless it exists.
func (s *Storage) ensureCollection(ctx context.Context, dimension int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}
	err := s.doJSON(ctx, http.MethodGet, s.collectionURL(""), nil, nil)
	if isNotFound(err) {
		body := map[string]any{
			"vectors": map[string]any{
				"size":     dimension,
				"distance": "Cosine",
			},
		}
		err = s.doJSON(ctx, http.MethodPut, s.collectionURL(""), body, nil)
	}
	if err != nil {
		return err
	}
	s.ready = true
	return nil
}

func (s *Storage) Add(ctx context.Context, records ...domain.Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := vectorstore.CheckIDs(records); err != nil {
		return err
	}
	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = r.Text
	}
	vectors, err := vectorstore.EmbedTexts(ctx, s.embedder, texts)
	if err != nil {
		return err
	}
	if err := s.ensureCollection(ctx, len(vectors[0])); err != nil {
		return err
	}

	points := make([]map[string]any, len(records))
	for i, r := range records {
		points[i] = map[string]any{
			"id":     pointID(r.ID),
			"vector": vectors[i],
			"payload": map[string]any{
				"record_id": r.ID,
				"text":      r.Text,
				"metadata":  domain.NormalizeMetadata(r.Metadata.Clone()),
			},
		}
	}
	body := map[string]any{"points": points}
	return s.doJSON(ctx, http.MethodPut, s.collectionURL("/points?wait=true"), body, nil)
}

func (s *Storage) Query(ctx context.Context, req domain.QueryRequest) ([]domain.QueryResult, error) {
	vectors, err := vectorstore.EmbedTexts(ctx, s.embedder, []string{req.Text})
	if err != nil {
		return nil, err
	}
	k := vectorstore.Limit(req.TopK)
	body := map[string]any{
		"vector":       vectors[0],
		"limit":        k,
		"with_payload": true,
	}
	if f := buildFilter(req.Where, req.Contains); f != nil {
		body["filter"] = f
	}
	var resp struct {
		Result []struct {
			Score   float64         `json:"score"`
			Payload json.RawMessage `json:"payload"`
		} `json:"result"`
	}
	err = s.doJSON(ctx, http.MethodPost, s.collectionURL("/points/search"), body, &resp)
	if isNotFound(err) {
		return []domain.QueryResult{}, nil
	}
	if err != nil {
		return nil, err
	}

	results := make([]domain.QueryResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		p, err := decodePayload(r.Payload)
		if err != nil {
			return nil, err
		}
		if !vectorstore.Match(req, p.Text, p.Metadata) {
			continue
		}
		results = append(results, domain.QueryResult{
			ID:       p.RecordID,
			Text:     p.Text,
			Metadata: p.Metadata,
			Distance: 1 - r.Score,
		})
	}
	return results, nil
}

// Delete removes matching points and reports how many there were.
// Filters on list or record values are rejected since Qdrant cannot match them exactly.
func (s *Storage) Delete(ctx context.Context, where domain.Where) (int, error) {
	for k, v := range where {
		if !isScalar(v) {
			return 0, domain.Errorf(domain.ErrInvalidConfiguration, "qdrant delete", "", "filter %q: only scalar values are supported", k)
		}
	}
	n, err := s.count(ctx, where)
	if err != nil || n == 0 {
		return 0, err
	}
	filter := buildFilter(where, "")
	if filter == nil {
		filter = map[string]any{"must": []any{}}
	}
	body := map[string]any{"filter": filter}
	if err := s.doJSON(ctx, http.MethodPost, s.collectionURL("/points/delete?wait=true"), body, nil); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Storage) Info(ctx context.Context) (domain.CollectionInfo, error) {
	n, err := s.count(ctx, nil)
	if err != nil {
		return domain.CollectionInfo{}, err
	}
	return domain.CollectionInfo{Name: s.collection, Count: n}, nil
}

func (s *Storage) count(ctx context.Context, where domain.Where) (int, error) {
	body := map[string]any{"exact": true}
	if f := buildFilter(where, ""); f != nil {
		body["filter"] = f
	}
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	err := s.doJSON(ctx, http.MethodPost, s.collectionURL("/points/count"), body, &resp)
	if isNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

func (s *Storage) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// pointID maps a record id onto a Qdrant point id, which must be a UUID or an integer.
func pointID(id string) string {
	if u, err := uuid.Parse(id); err == nil {
		return u.String()
	}
	return uuid.NewSHA1(idNamespace, []byte(id)).String()
}

func isScalar(v any) bool {
	switch domain.NormalizeValue(v).(type) {
	case string, int64, float64, bool:
		return true
	}
	return false
}

// buildFilter translates an equality filter into Qdrant "must" conditions.
// Non-integral numbers use a closed range since match only takes keywords, integers and bools.
func buildFilter(where domain.Where, contains string) map[string]any {
	var must []any
	for k, v := range where {
		key := "metadata." + k
		switch x := domain.NormalizeValue(v).(type) {
		case float64:
			must = append(must, map[string]any{"key": key, "range": map[string]any{"gte": x, "lte": x}})
		case string, int64, bool:
			must = append(must, map[string]any{"key": key, "match": map[string]any{"value": x}})
		default:
			// lists and records have no exact-equality condition; Match rechecks them
		}
	}
	if contains != "" {
		must = append(must, map[string]any{"key": "text", "match": map[string]any{"text": contains}})
	}
	if len(must) == 0 {
		return nil
	}
	return map[string]any{"must": must}
}

type payload struct {
	RecordID string          `json:"record_id"`
	Text     string          `json:"text"`
	Metadata domain.Metadata `json:"metadata"`
}

func decodePayload(raw json.RawMessage) (payload, error) {
	var p payload
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&p); err != nil {
		return p, fmt.Errorf("qdrant: malformed payload: %w", err)
	}
	if p.Metadata == nil {
		p.Metadata = domain.Metadata{}
	}
	domain.NormalizeMetadata(p.Metadata)
	return p, nil
}

func (s *Storage) doJSON(ctx context.Context, method, endpoint string, body any, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("qdrant %s %s: encode body: %w", method, endpoint, err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{method: method, url: endpoint, code: resp.StatusCode, status: resp.Status, body: strings.TrimSpace(string(msg))}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("qdrant %s %s: malformed response: %w", method, endpoint, err)
		}
	}
	return nil
}
