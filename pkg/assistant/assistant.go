package assistant

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/allionai/allion/internal/models"
	"github.com/allionai/allion/internal/types"
	"github.com/allionai/allion/pkg/llm"
)

var dtcPattern = regexp.MustCompile(`\b[BPCU]\d{4}\b`)

var automotiveKeywords = []string{
	"dtc", "code", "p0", "p1", "b0", "u0", "c0",
	"engine", "brake", "transmission", "abs", "airbag",
	"check engine light", "cel", "mil", "obd", "diagnostic",
	"repair", "fix", "problem", "issue", "symptom",
	"car", "vehicle", "truck", "suv", "automotive",
}

// Phrases that mark a retrieved answer as a non-answer.
var insufficiencyMarkers = []string{
	"could not find any relevant information",
	"no relevant documents found",
	"no matching content",
	"unable to locate",
	"not found in knowledge base",
	"context doesn't contain enough information",
	"i don't know",
}

const offTopicReply = "I specialize in automotive diagnostics and repair. " +
	"Could you please ask me about a specific vehicle problem, " +
	"diagnostic trouble code (DTC), or repair procedure?"

const noResultsReply = "I searched both my internal knowledge base and the internet, " +
	"but couldn't find specific information about this issue. " +
	"Could you provide more details about the symptoms?"

const errorReply = "I encountered an issue while searching for information about your question. " +
	"Could you try rephrasing your question or provide more specific details?"

// ChatEngine is the slice of llm.ChatEngine the assistant needs.
type ChatEngine interface {
	Chat(ctx context.Context, query string, docs []models.Document) (string, error)
	Summarize(ctx context.Context, query string, results []models.WebResult) (string, error)
}

// WebSearcher runs the fallback search when document retrieval fails.
type WebSearcher interface {
	Search(ctx context.Context, query string) ([]models.WebResult, error)
}

type Config struct {
	SearchK          int
	MinAnswerLength  int
	WebSearchEnabled bool
	MaxWebResults    int
}

// Assistant answers automotive repair questions: documents first, web search
// as a fallback, with the path through the state machine reported on every
// answer.
type Assistant struct {
	config   Config
	embedder types.Embedder
	store    types.VectorStore
	chat     ChatEngine
	searcher WebSearcher

	mu    sync.Mutex
	state State
}

func New(config Config, embedder types.Embedder, store types.VectorStore, chat ChatEngine, searcher WebSearcher) *Assistant {
	if config.SearchK == 0 {
		config.SearchK = 3
	}
	if config.MinAnswerLength == 0 {
		config.MinAnswerLength = 50
	}
	if config.MaxWebResults == 0 {
		config.MaxWebResults = 5
	}

	return &Assistant{
		config:   config,
		embedder: embedder,
		store:    store,
		chat:     chat,
		searcher: searcher,
		state:    StateIdle,
	}
}

// queryContext carries state for a single query through the machine.
type queryContext struct {
	original   string
	processed  string
	docs       []models.Document
	webResults []models.WebResult
	answer     string
	confidence float64
	sourceType string
	sources    []string
	attempts   int
	path       []string
	err        error
}

func (a *Assistant) transition(qc *queryContext, next State) {
	a.mu.Lock()
	a.state = next
	a.mu.Unlock()
	qc.path = append(qc.path, next.String())
}

// State returns the current machine state.
func (a *Assistant) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Health reports a readiness snapshot for the /health endpoint.
func (a *Assistant) Health(ctx context.Context) map[string]interface{} {
	count, err := a.store.Count(ctx)
	ready := err == nil && count > 0

	status := "ok"
	if !ready {
		status = "not_ready"
	}

	return map[string]interface{}{
		"status":            status,
		"initialized":       ready,
		"current_state":     a.State().String(),
		"document_count":    count,
		"websearch_enabled": a.config.WebSearchEnabled,
		"store_ready":       err == nil,
	}
}

// Process runs a query through the state machine until it settles back in Idle.
func (a *Assistant) Process(ctx context.Context, query string) (*models.Answer, error) {
	qc := &queryContext{
		original:  query,
		processed: CleanQuery(query),
	}

	a.transition(qc, StateProcessing)

	if !IsAutomotiveQuery(qc.processed) {
		qc.answer = offTopicReply
		qc.sourceType = SourceAssistant
		a.transition(qc, StateAnswerFound)
		return a.finish(qc), nil
	}

	a.transition(qc, StateDocSearch)
	a.searchDocs(ctx, qc)

	if qc.sourceType == "" && qc.err == nil {
		a.transition(qc, StateWebSearch)
		a.searchWeb(ctx, qc)
	}

	if qc.err != nil {
		a.transition(qc, StateError)
		log.Printf("assistant: query failed: %v", qc.err)
		qc.answer = errorReply
		qc.sourceType = SourceError
	}

	a.transition(qc, StateAnswerFound)
	return a.finish(qc), nil
}

func (a *Assistant) searchDocs(ctx context.Context, qc *queryContext) {
	qc.attempts++

	embedding, err := a.embedder.CreateEmbedding(ctx, []string{qc.processed})
	if err != nil || len(embedding) == 0 {
		log.Printf("assistant: query embedding failed: %v", err)
		return
	}

	docs, err := a.store.Query(ctx, embedding[0], a.config.SearchK)
	if err != nil {
		log.Printf("assistant: document search failed: %v", err)
		return
	}
	if len(docs) == 0 {
		return
	}
	qc.docs = docs

	answer, err := a.chat.Chat(ctx, qc.original, docs)
	if err != nil {
		log.Printf("assistant: chat failed: %v", err)
		return
	}

	if !a.isSufficient(answer) {
		return
	}

	qc.answer = "Based on my technical service bulletins and diagnostic procedures:\n\n" + answer
	qc.sourceType = SourceDocs
	qc.confidence = docConfidence(answer)
	qc.sources = llm.FormatSources(docs)
}

func (a *Assistant) searchWeb(ctx context.Context, qc *queryContext) {
	qc.attempts++

	if !a.config.WebSearchEnabled || a.searcher == nil {
		qc.answer = noResultsReply
		qc.sourceType = SourceAssistant
		return
	}

	results, err := a.searcher.Search(ctx, qc.processed)
	if err != nil {
		qc.err = fmt.Errorf("web search: %w", err)
		return
	}
	if len(results) > a.config.MaxWebResults {
		results = results[:a.config.MaxWebResults]
	}
	qc.webResults = results

	if len(results) == 0 {
		qc.answer = noResultsReply
		qc.sourceType = SourceAssistant
		return
	}

	a.transition(qc, StateWebSummarizing)

	summary, err := a.chat.Summarize(ctx, qc.original, results)
	if err != nil {
		qc.err = fmt.Errorf("web summarization: %w", err)
		return
	}

	qc.answer = formatWebAnswer(summary, results)
	qc.sourceType = SourceWeb
	qc.confidence = webConfidence(results)
	for _, r := range results {
		qc.sources = append(qc.sources, r.URL)
	}
}

func (a *Assistant) finish(qc *queryContext) *models.Answer {
	if qc.sourceType == SourceWeb {
		qc.answer += "\n\nI found this information from current online repair resources."
	}

	a.transition(qc, StateIdle)

	answer := &models.Answer{
		Text:       qc.answer,
		SourceType: qc.sourceType,
		Confidence: qc.confidence,
		Sources:    qc.sources,
		SearchPath: qc.path,
		Query:      qc.original,
		Attempts:   qc.attempts,
		Timestamp:  time.Now(),
	}
	if qc.err != nil {
		answer.Err = qc.err.Error()
	}
	return answer
}

func (a *Assistant) isSufficient(answer string) bool {
	if len(strings.TrimSpace(answer)) < a.config.MinAnswerLength {
		return false
	}

	lower := strings.ToLower(answer)
	for _, marker := range insufficiencyMarkers {
		if strings.Contains(lower, marker) {
			return false
		}
	}
	return true
}

// CleanQuery collapses whitespace and uppercases diagnostic trouble codes.
func CleanQuery(query string) string {
	cleaned := strings.Join(strings.Fields(query), " ")

	for _, dtc := range dtcPattern.FindAllString(strings.ToUpper(cleaned), -1) {
		cleaned = strings.ReplaceAll(cleaned, strings.ToLower(dtc), dtc)
	}

	return cleaned
}

// IsAutomotiveQuery reports whether the query is in scope. Very short queries
// pass; they are often bare part names or codes.
func IsAutomotiveQuery(query string) bool {
	if dtcPattern.MatchString(strings.ToUpper(query)) {
		return true
	}

	lower := strings.ToLower(query)
	for _, keyword := range automotiveKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}

	return len(strings.Fields(query)) <= 3
}

// docConfidence scores a document-grounded answer by its length: longer
// answers drew on more retrieved context.
func docConfidence(answer string) float64 {
	switch n := len(answer); {
	case n > 500:
		return 0.9
	case n > 200:
		return 0.7
	case n > 100:
		return 0.5
	default:
		return 0.3
	}
}

// webConfidence scores web answers by result count with a bonus for trusted
// domains, capped below document-grounded confidence.
func webConfidence(results []models.WebResult) float64 {
	if len(results) == 0 {
		return 0
	}

	trusted := 0
	for _, r := range results {
		if r.Trusted {
			trusted++
		}
	}

	base := float64(len(results)) * 0.15
	if base > 0.6 {
		base = 0.6
	}
	confidence := base + float64(trusted)*0.1
	if confidence > 0.8 {
		confidence = 0.8
	}
	return confidence
}

func formatWebAnswer(summary string, results []models.WebResult) string {
	var b strings.Builder
	b.WriteString(summary)
	b.WriteString("\n\nSources:\n")

	limit := len(results)
	if limit > 3 {
		limit = 3
	}
	for i := 0; i < limit; i++ {
		title := results[i].Title
		if title == "" {
			title = "Repair Resource"
		}
		fmt.Fprintf(&b, "%d. [%s](%s)\n", i+1, title, results[i].URL)
	}

	return b.String()
}
