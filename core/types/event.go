package types

// Event represents a typed event flattened into string attributes for
// indexers and log sinks.
type Event struct {
	Type       string            `json:"type"`
	Timestamp  int64             `json:"timestamp,omitempty"`
	Attributes map[string]string `json:"attributes"`
}
