package types

type CommandVerb string

const (
	CommandOpen  CommandVerb = "OPEN"
	CommandClose CommandVerb = "CLOSE"
)

type CommandStatus string

const (
	CommandPending  CommandStatus = "PENDING"
	CommandExecuted CommandStatus = "EXECUTED"
	CommandExpired  CommandStatus = "EXPIRED"
)

// PollResponse is what the controller receives from a poll. Command is nil
// when nothing is pending (or the newest pending command had expired).
type PollResponse struct {
	Command *CommandVerb `json:"command"`
}

type ManualCommandResponse struct {
	OK        bool   `json:"ok"`
	Message   string `json:"message"`
	User      string `json:"user"`
	CommandID int64  `json:"command_id"`
}

type CommandView struct {
	ID           int64         `json:"id"`
	Command      CommandVerb   `json:"command"`
	Status       CommandStatus `json:"status"`
	DepartmentID int64         `json:"department_id"`
	UserID       int64         `json:"user_id"`
	CreatedAt    string        `json:"created_at"`
	ExecutedAt   string        `json:"executed_at,omitempty"`
	TTLSeconds   int           `json:"ttl_seconds"`
}
