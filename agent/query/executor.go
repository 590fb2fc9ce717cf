package query

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	contractx "github.com/cashsys/auction-chat/agent/contract"
)

// ResultSet keeps column order alongside the scanned rows so answers
// render deterministically.
type ResultSet struct {
	Columns []string
	Rows    []map[string]any
}

// PartitionRunner runs a read-only query against one partition. The bun
// implementation lives in conn.go; tests supply fakes.
type PartitionRunner interface {
	Query(ctx context.Context, partition contractx.Partition, query string) (ResultSet, error)
}

// Executor runs validated queries and performs the two-step identifier
// correlation between partitions that cannot be joined directly.
type Executor struct {
	runner PartitionRunner
}

func NewExecutor(runner PartitionRunner) *Executor {
	return &Executor{runner: runner}
}

func (e *Executor) Execute(
	ctx context.Context,
	verdict contractx.ValidationVerdict,
	partition contractx.Partition,
	question string,
) contractx.ExecutionResult {
	if !verdict.Valid {
		// Defensive floor: the pipeline already refuses to call us on an
		// invalid verdict. No store is touched on this path.
		return contractx.ExecutionResult{
			Text: "Query validation failed: " + verdict.Reason,
			Err:  fmt.Errorf("%w: %s", contractx.ErrValidationRejected, verdict.Reason),
		}
	}

	primary, err := e.runner.Query(ctx, partition, verdict.CorrectedQuery)
	if err != nil {
		return contractx.ExecutionResult{
			Err: fmt.Errorf("%w: partition=%s: %v", contractx.ErrExecution, partition, err),
		}
	}

	enriched, err := e.correlate(ctx, partition, question, primary)
	if err != nil {
		return contractx.ExecutionResult{
			Err: fmt.Errorf("%w: correlate partition=%s: %v", contractx.ErrExecution, partition, err),
		}
	}

	return contractx.ExecutionResult{Text: formatResult(partition, enriched)}
}

// correlate resolves foreign identifiers in a second partition. Rows
// whose identifier has no counterpart there describe state that does not
// exist yet (an auction not started, an item since removed) and are
// dropped from the answer entirely rather than reported as empty.
func (e *Executor) correlate(
	ctx context.Context,
	partition contractx.Partition,
	question string,
	primary ResultSet,
) (ResultSet, error) {
	switch partition {
	case contractx.PartitionPayment:
		return e.correlatePayments(ctx, primary)
	case contractx.PartitionCatalogue:
		if questionImpliesAuction(question) {
			return e.correlateAuctions(ctx, primary)
		}
	}
	return primary, nil
}

func (e *Executor) correlatePayments(ctx context.Context, primary ResultSet) (ResultSet, error) {
	ids := collectIDs(primary, "item_id")
	if len(ids) == 0 {
		return primary, nil
	}

	lookup := fmt.Sprintf(
		"SELECT items.id, items.title FROM items WHERE items.id IN (%s)",
		joinIDs(ids),
	)
	if kw := mutationKeyword(lookup); kw != "" {
		return ResultSet{}, fmt.Errorf("enrichment query rejected: %s", kw)
	}

	titles, err := e.runner.Query(ctx, contractx.PartitionCatalogue, lookup)
	if err != nil {
		return ResultSet{}, err
	}

	byID := make(map[int64]string, len(titles.Rows))
	for _, row := range titles.Rows {
		id, ok := asID(row["id"])
		if !ok {
			continue
		}
		byID[id] = fmt.Sprint(row["title"])
	}

	merged := ResultSet{Columns: append(append([]string{}, primary.Columns...), "title")}
	for _, row := range primary.Rows {
		id, ok := asID(row["item_id"])
		if !ok {
			merged.Rows = append(merged.Rows, row)
			continue
		}
		title, found := byID[id]
		if !found {
			continue
		}
		out := make(map[string]any, len(row)+1)
		for k, v := range row {
			out[k] = v
		}
		out["title"] = title
		merged.Rows = append(merged.Rows, out)
	}
	return merged, nil
}

func (e *Executor) correlateAuctions(ctx context.Context, primary ResultSet) (ResultSet, error) {
	ids := collectIDs(primary, "id")
	if len(ids) == 0 {
		return primary, nil
	}

	lookup := fmt.Sprintf(
		"SELECT auctions.id, auctions.status, "+
			"(SELECT COUNT(*) FROM bids WHERE bids.auction_id = auctions.id) AS bid_count "+
			"FROM auctions WHERE auctions.id IN (%s)",
		joinIDs(ids),
	)
	if kw := mutationKeyword(lookup); kw != "" {
		return ResultSet{}, fmt.Errorf("enrichment query rejected: %s", kw)
	}

	auctions, err := e.runner.Query(ctx, contractx.PartitionAuction, lookup)
	if err != nil {
		return ResultSet{}, err
	}

	type auctionInfo struct {
		status   any
		bidCount any
	}
	byID := make(map[int64]auctionInfo, len(auctions.Rows))
	for _, row := range auctions.Rows {
		id, ok := asID(row["id"])
		if !ok {
			continue
		}
		byID[id] = auctionInfo{status: row["status"], bidCount: row["bid_count"]}
	}

	merged := ResultSet{Columns: append(append([]string{}, primary.Columns...), "status", "bid_count")}
	for _, row := range primary.Rows {
		id, ok := asID(row["id"])
		if !ok {
			merged.Rows = append(merged.Rows, row)
			continue
		}
		info, found := byID[id]
		if !found {
			// Auction not started: omit, never report "no bids".
			continue
		}
		out := make(map[string]any, len(row)+2)
		for k, v := range row {
			out[k] = v
		}
		out["status"] = info.status
		out["bid_count"] = info.bidCount
		merged.Rows = append(merged.Rows, out)
	}
	return merged, nil
}

var auctionTerms = []string{"auction", "bid", "winner", "highest", "end time", "ending"}

func questionImpliesAuction(question string) bool {
	q := strings.ToLower(question)
	for _, term := range auctionTerms {
		if strings.Contains(q, term) {
			return true
		}
	}
	return false
}

func collectIDs(rs ResultSet, column string) []int64 {
	seen := make(map[int64]struct{})
	var ids []int64
	for _, row := range rs.Rows {
		id, ok := asID(row[column])
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func asID(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		return int64(n), true
	case []byte:
		return parseID(string(n))
	case string:
		return parseID(n)
	default:
		return 0, false
	}
}

func parseID(s string) (int64, bool) {
	var id int64
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &id); err != nil {
		return 0, false
	}
	return id, true
}

func joinIDs(ids []int64) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%d", id))
	}
	return strings.Join(parts, ", ")
}

func formatResult(partition contractx.Partition, rs ResultSet) string {
	if len(rs.Rows) == 0 {
		return "No matching records found."
	}

	// A single scalar reads better as a sentence fragment than a table.
	if len(rs.Rows) == 1 && len(rs.Columns) == 1 {
		return fmt.Sprintf("%s: %v", rs.Columns[0], rs.Rows[0][rs.Columns[0]])
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d result(s):\n", len(rs.Rows))
	for _, row := range rs.Rows {
		parts := make([]string, 0, len(rs.Columns))
		for _, col := range rs.Columns {
			val, ok := row[col]
			if !ok {
				continue
			}
			parts = append(parts, fmt.Sprintf("%s=%v", col, val))
		}
		b.WriteString("- " + strings.Join(parts, ", ") + "\n")
	}

	text := strings.TrimRight(b.String(), "\n")
	log.Debug().Str("partition", string(partition)).Int("rows", len(rs.Rows)).Msg("query executed")
	return text
}
