// internal/api/types.go
package api

// Status is the backend-reported lifecycle state of a discussion session.
type Status string

const (
	StatusRunning         Status = "running"
	StatusWaitingForHuman Status = "waiting_for_human"
	StatusEnded           Status = "ended"
)

// Live reports whether the session can still make progress.
func (s Status) Live() bool {
	return s == StatusRunning || s == StatusWaitingForHuman
}

// HumanRole describes a role in a discussion group that is driven by a
// person instead of a model. HostRole is the AI role it possesses, if any.
type HumanRole struct {
	Name     string `json:"name"`
	HostRole string `json:"host_role,omitempty"`
}

// SessionStatus is the out-of-band view of a discussion session.
type SessionStatus struct {
	SessionID    string         `json:"session_id"`
	Status       Status         `json:"status"`
	WaitingAgent string         `json:"waiting_agent_name,omitempty"`
	Messages     []AgentMessage `json:"messages,omitempty"`
}

// AgentMessage is one utterance as the backend stores it.
type AgentMessage struct {
	AgentName string `json:"agent_name"`
	Content   string `json:"content"`
}

// Group is a multi-role discussion group.
type Group struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Mode        string   `json:"mode,omitempty"` // discussion strategy, e.g. "round_robin"
	Description string   `json:"description,omitempty"`
	Roles       []string `json:"roles,omitempty"`
}

// Role is a single configured agent role.
type Role struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ModelID     string `json:"model_id,omitempty"`
	IsHuman     bool   `json:"is_human,omitempty"`
	Description string `json:"description,omitempty"`
}

// Model is a backend model registration.
type Model struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Provider string `json:"provider,omitempty"`
	Type     string `json:"type,omitempty"` // reasoning or execution
}

// RelayConfig is a configured relay chain: an ordered pipeline of
// reasoning/execution model steps.
type RelayConfig struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Steps []string `json:"steps,omitempty"` // model IDs in pipeline order
}
