package models

import "time"

// Session is the unit of persistence: an ordered, append-only (until
// compaction) list of Messages plus the metadata the orchestrator needs
// to resume a conversation.
type Session struct {
	ID        string `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// WorkingDirectory anchors relative paths used by filesystem tools.
	WorkingDirectory string `json:"working_directory"`

	Messages []Message `json:"messages"`

	// ApprovalRules are the session-scoped rules recorded by
	// "remember-for-session" responses. Global rules live in configuration,
	// not here.
	ApprovalRules []ApprovalRule `json:"approval_rules,omitempty"`

	// TotalTokens caches the sum of Messages' TokenCount so components
	// don't need to re-walk the transcript on every check.
	TotalTokens int `json:"total_tokens"`

	Playbook Playbook `json:"playbook"`

	// Archived is true once the session has been moved to the archive
	// directory by retention policy or explicit user command.
	Archived bool `json:"archived,omitempty"`
}

// LastCompactionIndex returns the index in Messages immediately after the
// most recent compaction-summary System message, or 0 if the session has
// never been compacted. The context assembler uses this to find the
// reflection window without re-scanning the whole transcript.
func (s *Session) LastCompactionIndex() int {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if isCompactionSummary(s.Messages[i]) {
			return i + 1
		}
	}
	return 0
}

func isCompactionSummary(m Message) bool {
	return m.Kind == KindSystem && m.CompactionSummary
}
