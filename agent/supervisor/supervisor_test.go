package supervisor

import (
	"context"
	"errors"
	"testing"

	contractx "github.com/cashsys/auction-chat/agent/contract"
)

type fakeSpecialist struct {
	reply string
	err   error
	calls int
	order *[]string
}

func (f *fakeSpecialist) Handle(ctx context.Context, req contractx.SpecialistRequest) (contractx.SpecialistResponse, error) {
	f.calls++
	if f.order != nil {
		*f.order = append(*f.order, "specialist")
	}
	if f.err != nil {
		return contractx.SpecialistResponse{}, f.err
	}
	conv := append(append([]contractx.Message{}, req.Conversation...), contractx.Message{
		Role:    contractx.RoleAssistant,
		Content: f.reply,
	})
	return contractx.SpecialistResponse{Conversation: conv}, nil
}

type fakeRouter struct {
	decision contractx.RoutingDecision
	err      error
	calls    int
	gotReply string
	order    *[]string
}

func (f *fakeRouter) Decide(ctx context.Context, question, specialistReply string) (contractx.RoutingDecision, error) {
	f.calls++
	f.gotReply = specialistReply
	if f.order != nil {
		*f.order = append(*f.order, "router")
	}
	return f.decision, f.err
}

type fakePipeline struct {
	result      contractx.QueryResult
	err         error
	calls       int
	gotQuestion string
	order       *[]string
}

func (f *fakePipeline) Answer(ctx context.Context, req contractx.QueryRequest) (contractx.QueryResult, error) {
	f.calls++
	f.gotQuestion = req.Question
	if f.order != nil {
		*f.order = append(*f.order, "pipeline")
	}
	return f.result, f.err
}

func conversation(texts ...string) []contractx.Message {
	var conv []contractx.Message
	for i, text := range texts {
		role := contractx.RoleUser
		if i%2 == 1 {
			role = contractx.RoleAssistant
		}
		conv = append(conv, contractx.Message{Role: role, Content: text})
	}
	return conv
}

func TestTurnHandledBySpecialist(t *testing.T) {
	t.Parallel()

	specialist := &fakeSpecialist{reply: "Your bid of 450 has been placed."}
	router := &fakeRouter{decision: contractx.RoutingDecision{CanHandle: true, Rationale: "bid placed"}}
	pipeline := &fakePipeline{}

	sup, err := New(specialist, router, pipeline)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	res, err := sup.Turn(context.Background(), TurnInput{
		Conversation: conversation("bid 450 on auction 7"),
		Caller:       contractx.CallerContext{CallerID: 4, Token: "tok"},
	})
	if err != nil {
		t.Fatalf("Turn() error = %v", err)
	}

	if res.LastAgentUsed != LastAgentActionSpecialist {
		t.Fatalf("last agent = %s, want %s", res.LastAgentUsed, LastAgentActionSpecialist)
	}
	last := res.Conversation[len(res.Conversation)-1]
	if last.Content != "Your bid of 450 has been placed." {
		t.Fatalf("reply = %q", last.Content)
	}
	if pipeline.calls != 0 {
		t.Fatalf("pipeline called %d time(s), want 0", pipeline.calls)
	}
	if router.gotReply != "Your bid of 450 has been placed." {
		t.Fatalf("router judged reply %q", router.gotReply)
	}
}

func TestTurnFallsBackToQueryPipeline(t *testing.T) {
	t.Parallel()

	var order []string
	specialist := &fakeSpecialist{reply: "I don't have a tool for counting items.", order: &order}
	router := &fakeRouter{
		decision: contractx.RoutingDecision{CanHandle: false, Rationale: "analytics question"},
		order:    &order,
	}
	pipeline := &fakePipeline{
		result: contractx.QueryResult{Text: "count: 12", Partition: contractx.PartitionCatalogue},
		order:  &order,
	}

	sup, err := New(specialist, router, pipeline)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	input := conversation("how many items are listed?")
	res, err := sup.Turn(context.Background(), TurnInput{Conversation: input})
	if err != nil {
		t.Fatalf("Turn() error = %v", err)
	}

	if res.LastAgentUsed != LastAgentQueryPipeline {
		t.Fatalf("last agent = %s, want %s", res.LastAgentUsed, LastAgentQueryPipeline)
	}
	if len(res.Conversation) != len(input)+1 {
		t.Fatalf("conversation length = %d, want exactly one appended message", len(res.Conversation))
	}
	last := res.Conversation[len(res.Conversation)-1]
	if last.Role != contractx.RoleAssistant || last.Content != "count: 12" {
		t.Fatalf("appended message = %#v", last)
	}
	if pipeline.gotQuestion != "how many items are listed?" {
		t.Fatalf("pipeline question = %q", pipeline.gotQuestion)
	}

	want := []string{"specialist", "router", "pipeline"}
	if len(order) != len(want) {
		t.Fatalf("call order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("call order = %v, want %v", order, want)
		}
	}
}

func TestTurnSpecialistFailureSkipsRouter(t *testing.T) {
	t.Parallel()

	specialist := &fakeSpecialist{err: errors.New("tool loop exceeded 6 rounds")}
	router := &fakeRouter{}
	pipeline := &fakePipeline{result: contractx.QueryResult{Text: "Found 2 result(s):\n- title=Clock\n- title=Press"}}

	sup, err := New(specialist, router, pipeline)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	res, err := sup.Turn(context.Background(), TurnInput{
		Conversation: conversation("list everything"),
	})
	if err != nil {
		t.Fatalf("Turn() error = %v", err)
	}

	if router.calls != 0 {
		t.Fatalf("router called %d time(s), want 0", router.calls)
	}
	if pipeline.calls != 1 {
		t.Fatalf("pipeline called %d time(s), want 1", pipeline.calls)
	}
	if res.LastAgentUsed != LastAgentQueryPipeline {
		t.Fatalf("last agent = %s", res.LastAgentUsed)
	}
}

func TestTurnPipelineFailureBecomesApology(t *testing.T) {
	t.Parallel()

	specialist := &fakeSpecialist{reply: "I can't answer that."}
	router := &fakeRouter{decision: contractx.RoutingDecision{CanHandle: false}}
	pipeline := &fakePipeline{err: contractx.ErrModelInvoke}

	sup, err := New(specialist, router, pipeline)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	res, err := sup.Turn(context.Background(), TurnInput{
		Conversation: conversation("how many bids today?"),
	})
	if err != nil {
		t.Fatalf("Turn() error = %v", err)
	}

	last := res.Conversation[len(res.Conversation)-1]
	if last.Content != "I couldn't process that right now. Please try again." {
		t.Fatalf("apology = %q", last.Content)
	}
}

func TestTurnRouterFailureKeepsSpecialistReply(t *testing.T) {
	t.Parallel()

	specialist := &fakeSpecialist{reply: "Auction 7 is open."}
	router := &fakeRouter{err: contractx.ErrModelInvoke}
	pipeline := &fakePipeline{}

	sup, err := New(specialist, router, pipeline)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	res, err := sup.Turn(context.Background(), TurnInput{
		Conversation: conversation("is auction 7 open?"),
	})
	if err != nil {
		t.Fatalf("Turn() error = %v", err)
	}
	if res.LastAgentUsed != LastAgentActionSpecialist {
		t.Fatalf("last agent = %s", res.LastAgentUsed)
	}
	if pipeline.calls != 0 {
		t.Fatalf("pipeline called %d time(s), want 0", pipeline.calls)
	}
}

func TestTurnRequiresUserMessage(t *testing.T) {
	t.Parallel()

	sup, err := New(&fakeSpecialist{}, &fakeRouter{}, &fakePipeline{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = sup.Turn(context.Background(), TurnInput{
		Conversation: []contractx.Message{{Role: contractx.RoleAssistant, Content: "hello"}},
	})
	if err == nil {
		t.Fatal("expected error but got nil")
	}
	if !errors.Is(err, ErrNoUserMessage) {
		t.Fatalf("expected ErrNoUserMessage, got %v", err)
	}
}
