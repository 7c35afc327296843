package genai

import "sync"

// Role identifies who spoke a Turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one exchange line fed back to the model as context.
type Turn struct {
	Role    Role
	Content string
}

// DefaultHistorySize is the number of turns kept per conversation.
const DefaultHistorySize = 8

// History keeps a short rolling window of turns per conversation key. It lives in
// memory only and is safe for concurrent use.
type History struct {
	mu    sync.Mutex
	size  int
	turns map[string][]Turn
}

// NewHistory creates a History keeping size turns per key (DefaultHistorySize if size <= 0).
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{size: size, turns: make(map[string][]Turn)}
}

// Turns returns a copy of the turns recorded for key, oldest first.
func (h *History) Turns(key string) []Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Turn(nil), h.turns[key]...)
}

// Append records turns for key, dropping the oldest beyond the window.
func (h *History) Append(key string, turns ...Turn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	all := append(h.turns[key], turns...)
	if len(all) > h.size {
		all = append([]Turn(nil), all[len(all)-h.size:]...)
	}
	h.turns[key] = all
}
