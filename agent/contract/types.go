package contract

import "strings"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ToolRecord documents a tool invocation attached to an assistant message.
type ToolRecord struct {
	Name   string         `json:"name"`
	Args   map[string]any `json:"args,omitempty"`
	Result string         `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

type Message struct {
	Role    Role         `json:"role"`
	Content string       `json:"content"`
	Tools   []ToolRecord `json:"tools,omitempty"`
}

// CallerContext identifies the user behind a turn. It is immutable for
// the duration of the turn and threaded explicitly through every stage
// that filters or authorizes by identity.
type CallerContext struct {
	CallerID int64  `json:"caller_id"`
	Token    string `json:"token"`
}

// RoutingDecision classifies the Action Specialist's last reply. Computed
// exactly once per turn, before any query-pipeline stage runs.
type RoutingDecision struct {
	CanHandle bool   `json:"can_handle"`
	Rationale string `json:"rationale"`
}

type Partition string

const (
	PartitionCatalogue Partition = "catalogue"
	PartitionAuction   Partition = "auction"
	PartitionPayment   Partition = "payment"
	PartitionUnknown   Partition = "unknown"
)

// ParsePartition maps free text onto the closed partition set. Anything
// that is not an exact (case-folded, trimmed) match is unknown; callers
// supply their own default.
func ParsePartition(s string) Partition {
	switch Partition(strings.ToLower(strings.TrimSpace(s))) {
	case PartitionCatalogue:
		return PartitionCatalogue
	case PartitionAuction:
		return PartitionAuction
	case PartitionPayment:
		return PartitionPayment
	default:
		return PartitionUnknown
	}
}

// QueryPlan is a synthesized, not-yet-trusted query. It is never executed
// directly; only the validator's corrected query runs, and only on a
// valid verdict.
type QueryPlan struct {
	RawQuery        string    `json:"raw_query"`
	TargetPartition Partition `json:"target_partition"`
}

type ValidationVerdict struct {
	Valid          bool   `json:"valid"`
	Reason         string `json:"reason"`
	CorrectedQuery string `json:"corrected_query"`
}

type ExecutionResult struct {
	Text string
	Err  error
}

type SpecialistRequest struct {
	Conversation []Message
	Caller       CallerContext
}

// SpecialistResponse carries the updated conversation. The last assistant
// message is either an executed/offered action, a clarifying question, or
// an admission of incapability; telling those apart is the supervisor's
// job, not the specialist's.
type SpecialistResponse struct {
	Conversation []Message
}

type QueryRequest struct {
	Question string
	Caller   CallerContext
}

type QueryResult struct {
	Text      string
	Partition Partition
}

type TurnResult struct {
	Conversation  []Message
	LastAgentUsed string
}
