package types

// Event represents a typed event emitted during state transitions. Height is
// stamped by the ledger at emission time.
type Event struct {
	Type       string            `json:"type"`
	Height     uint64            `json:"height"`
	Attributes map[string]string `json:"attributes"`
}

// Attribute returns the named attribute or the empty string.
func (e *Event) Attribute(key string) string {
	if e == nil || e.Attributes == nil {
		return ""
	}
	return e.Attributes[key]
}
