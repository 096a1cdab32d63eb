package tracelog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/ChamsBouzaiene/dodo/internal/engine"
	"github.com/ChamsBouzaiene/dodo/internal/mcp"
)

// FlattenMessages joins a turn's messages into one searchable blob, role
// first so a query for "assistant" or "tool" narrows usefully.
func FlattenMessages(messages []engine.ChatMessage) string {
	var sb strings.Builder
	for _, m := range messages {
		sb.WriteString(string(m.Role))
		sb.WriteString(": ")
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}

// SearchResult is one hit from Index.Search.
type SearchResult struct {
	DocType string  `json:"doc_type"` // "trace" | "spill"
	ID      string  `json:"id"`
	Score   float64 `json:"score"`
	Preview string  `json:"preview"`
}

// Index provides full-text search over trace turns and spilled payload
// previews, generalizing the BM25 indexing pattern from source-code
// chunks to orchestration history.
type Index struct {
	index bleve.Index
	store *Store
}

// OpenIndex opens (or creates) the bleve index alongside the SQLite
// database at dbPath, backed by store for content lookups.
func OpenIndex(dbPath string, store *Store) (*Index, error) {
	indexPath := dbPath + ".bleve"

	idx, err := bleve.Open(indexPath)
	if err == bleve.ErrorIndexPathDoesNotExist {
		idx, err = bleve.New(indexPath, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create trace index: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("open trace index: %w", err)
	}

	return &Index{index: idx, store: store}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()

	doc := bleve.NewDocumentMapping()

	docTypeField := bleve.NewTextFieldMapping()
	docTypeField.Analyzer = keyword.Name
	docTypeField.Store = true
	doc.AddFieldMappingsAt("doc_type", docTypeField)

	sessionField := bleve.NewTextFieldMapping()
	sessionField.Analyzer = keyword.Name
	sessionField.Store = true
	doc.AddFieldMappingsAt("session_id", sessionField)

	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = standard.Name
	textField.Store = true
	doc.AddFieldMappingsAt("text", textField)

	im.DefaultMapping = doc
	return im
}

// IndexTrace flattens a trace's messages into one searchable document.
func (x *Index) IndexTrace(traceID int64, sessionID string, flattened string) error {
	doc := map[string]any{
		"doc_type":   "trace",
		"session_id": sessionID,
		"text":       flattened,
	}
	return x.index.Index(traceDocID(traceID), doc)
}

// IndexSpillFile indexes a spilled payload's preview text, keyed by the
// content hash computed from the preview.
func (x *Index) IndexSpillFile(path, preview string) (string, error) {
	hash := hashContent(preview)
	doc := map[string]any{
		"doc_type": "spill",
		"text":     preview,
	}
	if err := x.index.Index(spillDocID(hash), doc); err != nil {
		return "", err
	}
	return hash, nil
}

// Search runs a full-text query across both trace turns and spill
// previews and returns up to k results ordered by score.
func (x *Index) Search(query string, k int) ([]SearchResult, error) {
	q := bleve.NewMatchQuery(query)
	req := bleve.NewSearchRequest(q)
	req.Size = k
	req.Fields = []string{"doc_type", "session_id", "text"}

	result, err := x.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("trace search: %w", err)
	}

	out := make([]SearchResult, 0, len(result.Hits))
	for _, hit := range result.Hits {
		r := SearchResult{ID: hit.ID, Score: hit.Score}
		if dt, ok := hit.Fields["doc_type"].(string); ok {
			r.DocType = dt
		}
		if text, ok := hit.Fields["text"].(string); ok {
			r.Preview = preview(text, 240)
		}
		out = append(out, r)
	}
	return out, nil
}

func (x *Index) Close() error {
	return x.index.Close()
}

func traceDocID(traceID int64) string {
	return "trace:" + strconv.FormatInt(traceID, 10)
}

func spillDocID(hash string) string {
	return "spill:" + hash
}

func hashContent(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

// searchToolSchema is the catalogue entry advertised for the built-in
// search tool, in the same shape a real MCP server's tools/list would
// return.
var searchToolSchema = mcp.ToolDescriptor{
	Name:        "search",
	Description: "Search the interaction history recorded in the trace mirror, across all sessions, for a keyword or phrase.",
	InputSchema: []byte(`{"type":"object","properties":{"query":{"type":"string"},"limit":{"type":"integer"}},"required":["query"]}`),
}

// BuiltinServerName is the namespace this package registers itself under;
// "tracelog_search" resolves to server="tracelog", tool="search" under the
// router's usual split-on-first-underscore convention.
const BuiltinServerName = "tracelog"

// Tool describes the builtin tool for catalogue/schema purposes.
func Tool() mcp.NamespacedTool {
	return mcp.NamespacedTool{Server: BuiltinServerName, Tool: searchToolSchema}
}

// Dispatch implements the router's builtin-tool signature: parse the
// {"query","limit"} arguments, search, and return a JSON array of results
// as the tool message content.
func (x *Index) Dispatch(ctx context.Context, tool string, rawArgs json.RawMessage) string {
	if tool != searchToolSchema.Name {
		return errResult(fmt.Sprintf("unknown tracelog tool: %s", tool))
	}

	var args struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return errResult("invalid arguments")
		}
	}
	if strings.TrimSpace(args.Query) == "" {
		return errResult("Missing required parameter: query")
	}
	limit := args.Limit
	if limit <= 0 {
		limit = 10
	}

	results, err := x.Search(args.Query, limit)
	if err != nil {
		return errResult(err.Error())
	}
	encoded, err := json.Marshal(results)
	if err != nil {
		return errResult(err.Error())
	}
	return string(encoded)
}

func errResult(msg string) string {
	encoded, _ := json.Marshal(map[string]string{"error": msg})
	return string(encoded)
}
