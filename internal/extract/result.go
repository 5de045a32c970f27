package extract

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"ricevute/internal/core"
)

// Defaults stored when extraction yields nothing usable.
const (
	DefaultText = "no text found on receipt"
	// ProcessingErrorText is stored by the orchestrator when the source
	// image could not be downloaded at all.
	ProcessingErrorText = "error while processing receipt"
	DefaultMerchant     = "unknown"
	DefaultCategory     = "uncategorized"

	// MaxDescriptionRunes bounds the stored description. Truncation counts
	// unicode scalars, not bytes, so multi-byte text is never cut mid-rune.
	MaxDescriptionRunes = 500
)

// Extractor is the receipt-extraction surface the orchestrator depends on.
type Extractor interface {
	Extract(ctx context.Context, content []byte, mimeType string) Result
}

// Result is the normalized extraction outcome. Amount is nil when no amount
// could be recognized; Date is zero when no date could be parsed. FullText is
// already truncated to MaxDescriptionRunes. FailureReason is empty when the
// backend call itself succeeded.
type Result struct {
	FullText      string
	Amount        *float64
	Date          time.Time
	Merchant      string
	Category      string
	FailureReason string
}

func defaultResult() Result {
	return Result{
		FullText: DefaultText,
		Merchant: DefaultMerchant,
		Category: DefaultCategory,
	}
}

func failedResult(reason string) Result {
	r := defaultResult()
	r.FailureReason = reason
	return r
}

// entity type names used by the extraction backend
const (
	entityTotalAmount  = "total_amount"
	entityPurchaseDate = "purchase_date"
	entityReceiptDate  = "receipt_date"
	entityMerchantName = "merchant_name"
	entityCategory     = "category"
)

func mapDocument(doc processResponse) Result {
	res := defaultResult()
	if doc.Text == "" {
		res.FailureReason = "backend returned no text"
		return res
	}
	res.FullText = TruncateRunes(doc.Text, MaxDescriptionRunes)

	for _, entity := range doc.Entities {
		switch entity.Type {
		case entityTotalAmount:
			res.Amount = ParseAmountText(entity.MentionText)
		case entityPurchaseDate, entityReceiptDate:
			if d, err := core.ParseDate(entity.MentionText); err == nil {
				res.Date = d
			}
			// unparseable dates leave Date unset, never fail the pipeline
		case entityMerchantName:
			if entity.MentionText != "" {
				res.Merchant = entity.MentionText
			}
		case entityCategory:
			if entity.MentionText != "" {
				res.Category = entity.MentionText
			}
		}
	}

	return res
}

// ParseAmountText recognizes a monetary amount in free text by stripping
// everything that is not a digit or a decimal point before parsing. Returns
// nil when nothing numeric remains ("₩12,345" → 12345; "no digits" → nil).
func ParseAmountText(text string) *float64 {
	var b strings.Builder
	for _, r := range text {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return nil
	}

	amount, err := core.ParseAmount(cleaned)
	if err != nil {
		return nil
	}
	return &amount
}

// TruncateRunes returns the first n runes of s.
func TruncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
