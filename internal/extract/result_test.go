package extract

import (
	"strings"
	"testing"
	"time"
)

func TestParseAmountText(t *testing.T) {
	tests := []struct {
		input string
		want  *float64
	}{
		{"₩12,345", f(12345)},
		{"$42.50", f(42.5)},
		{"총액: 9,900원", f(9900)},
		{"no digits here", nil},
		{"", nil},
		{"...", nil},
	}

	for _, tt := range tests {
		got := ParseAmountText(tt.input)
		if (got == nil) != (tt.want == nil) {
			t.Errorf("ParseAmountText(%q) = %v, want %v", tt.input, got, tt.want)
			continue
		}
		if got != nil && *got != *tt.want {
			t.Errorf("ParseAmountText(%q) = %v, want %v", tt.input, *got, *tt.want)
		}
	}
}

func f(v float64) *float64 { return &v }

func TestTruncateRunes(t *testing.T) {
	long := strings.Repeat("a", 600)
	if got := TruncateRunes(long, MaxDescriptionRunes); len(got) != 500 {
		t.Errorf("expected 500 characters, got %d", len(got))
	}

	// multi-byte text must be cut between runes, not inside one
	korean := strings.Repeat("영", 600)
	got := TruncateRunes(korean, MaxDescriptionRunes)
	if want := strings.Repeat("영", 500); got != want {
		t.Errorf("unicode truncation produced %d bytes, want %d", len(got), len(want))
	}

	short := "short"
	if got := TruncateRunes(short, MaxDescriptionRunes); got != short {
		t.Errorf("short text must pass through unchanged, got %q", got)
	}
}

func TestMapDocument(t *testing.T) {
	doc := processResponse{
		Text: "CAFE RECEIPT\nTOTAL ₩12,345",
		Entities: []Entity{
			{Type: "total_amount", MentionText: "₩12,345"},
			{Type: "purchase_date", MentionText: "2024-01-05"},
			{Type: "merchant_name", MentionText: "Cafe"},
			{Type: "category", MentionText: "Meals"},
		},
	}

	res := mapDocument(doc)
	if res.FailureReason != "" {
		t.Fatalf("unexpected failure reason: %q", res.FailureReason)
	}
	if res.Amount == nil || *res.Amount != 12345 {
		t.Errorf("amount = %v, want 12345", res.Amount)
	}
	if want := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC); !res.Date.Equal(want) {
		t.Errorf("date = %v, want %v", res.Date, want)
	}
	if res.Merchant != "Cafe" {
		t.Errorf("merchant = %q, want Cafe", res.Merchant)
	}
	if res.Category != "Meals" {
		t.Errorf("category = %q, want Meals", res.Category)
	}
	if res.FullText != doc.Text {
		t.Errorf("full text = %q", res.FullText)
	}
}

func TestMapDocumentDegradesToDefaults(t *testing.T) {
	res := mapDocument(processResponse{
		Text: "some text",
		Entities: []Entity{
			{Type: "total_amount", MentionText: "no digits"},
			{Type: "receipt_date", MentionText: "not-a-date"},
			{Type: "merchant_name", MentionText: ""},
		},
	})

	if res.Amount != nil {
		t.Errorf("amount should be nil, got %v", *res.Amount)
	}
	if !res.Date.IsZero() {
		t.Errorf("date should stay unset, got %v", res.Date)
	}
	if res.Merchant != DefaultMerchant {
		t.Errorf("merchant = %q, want %q", res.Merchant, DefaultMerchant)
	}
	if res.Category != DefaultCategory {
		t.Errorf("category = %q, want %q", res.Category, DefaultCategory)
	}
}

func TestMapDocumentEmptyText(t *testing.T) {
	res := mapDocument(processResponse{})
	if res.FullText != DefaultText {
		t.Errorf("full text = %q, want %q", res.FullText, DefaultText)
	}
	if res.FailureReason == "" {
		t.Error("expected a failure reason for empty document")
	}
}
