package research

import "iter"

// EventType identifies a stream event kind.
type EventType string

const (
	EventProgress      EventType = "progress"
	EventPlan          EventType = "plan"
	EventSearchQuery   EventType = "search_query"
	EventSource        EventType = "source"
	EventClarification EventType = "clarification"
	EventReflection    EventType = "reflection"
	EventContent       EventType = "content"
	EventDone          EventType = "done"
	EventError         EventType = "error"
)

// Event is a single element of a run's progress stream. Within one run,
// events of a stage are emitted before any event of a later stage, except
// that source events interleave with search_query events as results arrive.
type Event struct {
	Type    EventType   `json:"type"`
	Payload interface{} `json:"payload"`
}

// Stream is the unidirectional event stream a run produces. The consumer
// stops the producer by breaking out of the range loop.
type Stream = iter.Seq2[Event, error]

type ProgressPayload struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

type SearchQueryPayload struct {
	Query      string `json:"query"`
	TaskIndex  int    `json:"taskIndex"`
	TotalTasks int    `json:"totalTasks"`
}

type SourcePayload struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

type ReflectionPayload struct {
	ConfidenceScore float64 `json:"confidenceScore"`
	Reasoning       string  `json:"reasoning"`
	IterationCount  int     `json:"iterationCount"`
}

func progressEvent(stage, message string) Event {
	return Event{Type: EventProgress, Payload: ProgressPayload{Stage: stage, Message: message}}
}
