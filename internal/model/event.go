package model

// Status is the tag discriminating Event variants on the wire.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusStreaming  Status = "streaming"
	StatusComplete   Status = "complete"
	StatusFailure    Status = "failure"
)

// ProcessingMessage carries a human-readable progress title.
type ProcessingMessage struct {
	Title string `json:"title"`
}

// StreamingDelta carries one chunk of streamed answer content.
type StreamingDelta struct {
	Content string `json:"content"`
}

// CompleteMetadata carries the queries used and the generated outline.
type CompleteMetadata struct {
	Queries   []string `json:"queries"`
	SubTitles []string `json:"sub_titles"`
}

// CompleteMessage is the payload of the terminal success event.
type CompleteMessage struct {
	Content  string           `json:"content"`
	Metadata CompleteMetadata `json:"metadata"`
}

// FailureMessage carries the human-readable failure title.
type FailureMessage struct {
	Title string `json:"title"`
}

// Event is the tagged union streamed to the client, one per line of
// newline-delimited JSON. At most one field among Message/Delta is
// populated for a given Status.
type Event struct {
	Status   Status            `json:"status"`
	Message  *ProcessingEvent  `json:"message,omitempty"`
	Delta    *StreamingDelta   `json:"delta,omitempty"`
}

// ProcessingEvent is a union wrapper so a single `message` JSON key carries
// either a processing title, a complete payload, or a failure title,
// matching spec.md §6's wire shapes.
type ProcessingEvent struct {
	Title     string            `json:"title,omitempty"`
	Content   string            `json:"content,omitempty"`
	Metadata  *CompleteMetadata `json:"metadata,omitempty"`
	Models    []ModelUsage      `json:"models,omitempty"`
}

// NewProcessing builds a `processing` event with the given title.
func NewProcessing(title string) Event {
	return Event{Status: StatusProcessing, Message: &ProcessingEvent{Title: title}}
}

// NewStreaming builds a `streaming` event carrying one content delta.
func NewStreaming(content string) Event {
	return Event{Status: StatusStreaming, Delta: &StreamingDelta{Content: content}}
}

// NewComplete builds the terminal success event.
func NewComplete(content string, queries, subTitles []string, models []ModelUsage) Event {
	if queries == nil {
		queries = []string{}
	}
	if subTitles == nil {
		subTitles = []string{}
	}
	return Event{
		Status: StatusComplete,
		Message: &ProcessingEvent{
			Content:  content,
			Metadata: &CompleteMetadata{Queries: queries, SubTitles: subTitles},
			Models:   models,
		},
	}
}

// NewFailure builds the terminal failure event.
func NewFailure(title string) Event {
	return Event{Status: StatusFailure, Message: &ProcessingEvent{Title: title}}
}
