package assistant

// State identifies a stage of query processing. A query always starts in
// Processing and ends back in Idle; the path taken in between is recorded on
// the answer.
type State int

const (
	StateIdle State = iota
	StateProcessing
	StateDocSearch
	StateWebSearch
	StateWebSummarizing
	StateAnswerFound
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProcessing:
		return "processing"
	case StateDocSearch:
		return "doc_search"
	case StateWebSearch:
		return "web_search"
	case StateWebSummarizing:
		return "web_summarizing"
	case StateAnswerFound:
		return "answer_found"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Source types reported on answers.
const (
	SourceDocs      = "docs"
	SourceWeb       = "web"
	SourceAssistant = "assistant"
	SourceError     = "error"
)
