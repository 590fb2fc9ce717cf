package query

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	contractx "github.com/cashsys/auction-chat/agent/contract"
)

type DBConfig struct {
	Host        string `envconfig:"HOST" split_words:"true" default:"localhost"`
	Port        int    `envconfig:"PORT" split_words:"true" default:"5555"`
	User        string `envconfig:"USER" split_words:"true" default:"dev"`
	Password    string `envconfig:"PASSWORD" split_words:"true" default:"dev"`
	CatalogueDB string `envconfig:"CATALOGUE_DB" split_words:"true" default:"catalogue_db"`
	AuctionDB   string `envconfig:"AUCTION_DB" split_words:"true" default:"auction_db"`
	PaymentDB   string `envconfig:"PAYMENT_DB" split_words:"true" default:"payment_db"`
	Insecure    bool   `envconfig:"INSECURE" split_words:"true" default:"true"`
}

func (c DBConfig) dsn(database string) string {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s", c.User, c.Password, c.Host, c.Port, database)
	if c.Insecure {
		dsn += "?sslmode=disable"
	}
	return dsn
}

// BunRunner holds one read-mostly connection per partition. The core
// never issues DDL/DML through these, only SELECT.
type BunRunner struct {
	dbs map[contractx.Partition]*bun.DB
}

func NewBunRunner(cfg DBConfig) *BunRunner {
	open := func(database string) *bun.DB {
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.dsn(database))))
		return bun.NewDB(sqldb, pgdialect.New())
	}
	return &BunRunner{
		dbs: map[contractx.Partition]*bun.DB{
			contractx.PartitionCatalogue: open(cfg.CatalogueDB),
			contractx.PartitionAuction:   open(cfg.AuctionDB),
			contractx.PartitionPayment:   open(cfg.PaymentDB),
		},
	}
}

func (r *BunRunner) Close() error {
	var firstErr error
	for _, db := range r.dbs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *BunRunner) Query(
	ctx context.Context,
	partition contractx.Partition,
	query string,
) (ResultSet, error) {
	db, ok := r.dbs[partition]
	if !ok {
		return ResultSet{}, fmt.Errorf("no connection for partition=%s", partition)
	}
	if kw := mutationKeyword(query); kw != "" {
		return ResultSet{}, fmt.Errorf("refusing non-read statement: %s", kw)
	}

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return ResultSet{}, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return ResultSet{}, err
	}

	rs := ResultSet{Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return ResultSet{}, err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = normalizeValue(values[i])
		}
		rs.Rows = append(rs.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return ResultSet{}, err
	}
	return rs, nil
}

// normalizeValue makes driver byte slices printable.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return strings.ToValidUTF8(string(b), "")
	}
	return v
}
