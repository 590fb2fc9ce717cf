// Package dbschema carries the static description of the three data
// partitions. The text is embedded at compile time and read-only for the
// process lifetime.
package dbschema

import (
	_ "embed"
	"strings"

	contractx "github.com/cashsys/auction-chat/agent/contract"
)

var (
	//go:embed sql/catalogue.txt
	catalogueRaw string

	//go:embed sql/auction.txt
	auctionRaw string

	//go:embed sql/payment.txt
	paymentRaw string
)

// SchemaSet holds the per-partition schema text fed to the synthesizer
// and validator prompts.
type SchemaSet struct {
	Catalogue string
	Auction   string
	Payment   string
}

func Load() SchemaSet {
	return SchemaSet{
		Catalogue: strings.TrimSpace(catalogueRaw),
		Auction:   strings.TrimSpace(auctionRaw),
		Payment:   strings.TrimSpace(paymentRaw),
	}
}

// For returns the schema text for a partition, empty for unknown.
func (s SchemaSet) For(p contractx.Partition) string {
	switch p {
	case contractx.PartitionCatalogue:
		return s.Catalogue
	case contractx.PartitionAuction:
		return s.Auction
	case contractx.PartitionPayment:
		return s.Payment
	default:
		return ""
	}
}

// All returns every partition schema joined, for prompts that need the
// full picture (e.g. partition selection).
func (s SchemaSet) All() string {
	return s.Catalogue + "\n\n" + s.Auction + "\n\n" + s.Payment
}
