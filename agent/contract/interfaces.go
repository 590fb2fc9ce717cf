package contract

import "context"

// Specialist is the action-executing agent the supervisor always tries
// first.
type Specialist interface {
	Handle(ctx context.Context, req SpecialistRequest) (SpecialistResponse, error)
}

// QueryPipeline answers analytical questions against the data partitions.
type QueryPipeline interface {
	Answer(ctx context.Context, req QueryRequest) (QueryResult, error)
}

// Router produces the per-turn routing decision from the specialist's
// last reply. It is a separate structured oracle call, never the
// specialist's own reasoning.
type Router interface {
	Decide(ctx context.Context, question string, specialistReply string) (RoutingDecision, error)
}

type PartitionSelector interface {
	Select(ctx context.Context, question string) (Partition, error)
}

type QuerySynthesizer interface {
	Synthesize(ctx context.Context, question string, hint Partition, caller *CallerContext) (QueryPlan, error)
}

type QueryValidator interface {
	Validate(ctx context.Context, plan QueryPlan, caller *CallerContext) (ValidationVerdict, error)
}

type QueryExecutor interface {
	Execute(ctx context.Context, verdict ValidationVerdict, partition Partition, question string) ExecutionResult
}
