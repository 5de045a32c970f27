package core

import (
	"testing"
	"time"
)

func TestStatusValid(t *testing.T) {
	for _, s := range []Status{StatusSubmitted, StatusHeld, StatusTransferred, StatusConfirmed} {
		if !s.Valid() {
			t.Errorf("expected %q to be valid", s)
		}
	}
	for _, s := range []Status{"", "pending", "SUBMITTED"} {
		if s.Valid() {
			t.Errorf("expected %q to be invalid", s)
		}
	}
}

func TestNormalizeStatus(t *testing.T) {
	truth := true
	falsity := false

	tests := []struct {
		name      string
		status    string
		processed *bool
		want      Status
	}{
		{"canonical passes through", "held", nil, StatusHeld},
		{"legacy submitted label", "정산신청", nil, StatusSubmitted},
		{"legacy held label", "보류", nil, StatusHeld},
		{"legacy transferred label", "이체완료", nil, StatusTransferred},
		{"legacy confirmed label", "확인완료", nil, StatusConfirmed},
		{"boolean processed true", "", &truth, StatusConfirmed},
		{"boolean processed false", "", &falsity, StatusSubmitted},
		{"unknown defaults to submitted", "whatever", nil, StatusSubmitted},
		{"status wins over boolean", "held", &truth, StatusHeld},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeStatus(tt.status, tt.processed); got != tt.want {
				t.Errorf("NormalizeStatus(%q) = %q, want %q", tt.status, got, tt.want)
			}
		})
	}
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		input   string
		want    Status
		wantErr bool
	}{
		{"held", StatusHeld, false},
		{" confirmed ", StatusConfirmed, false},
		{"이체완료", StatusTransferred, false},
		{"pending", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseStatus(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseStatus(%q) expected error, got %q", tt.input, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseStatus(%q) unexpected error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseStatus(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input   string
		want    float64
		wantErr bool
	}{
		{"42.5", 42.5, false},
		{"0", 0, false},
		{" 12000 ", 12000, false},
		{"-5", 0, true},
		{"abc", 0, true},
		{"", 0, true},
		// ParseFloat accepts these literals; they must not reach the store
		{"NaN", 0, true},
		{"nan", 0, true},
		{"Inf", 0, true},
		{"+Inf", 0, true},
		{"-Inf", 0, true},
		{"Infinity", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseAmount(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseAmount(%q) expected error, got %v", tt.input, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseAmount(%q) unexpected error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseAmount(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("2024-01-05")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("ParseDate = %v, want %v", got, want)
	}

	for _, bad := range []string{"not-a-date", "", "2024-13-40"} {
		if _, err := ParseDate(bad); err == nil {
			t.Errorf("ParseDate(%q) expected error", bad)
		}
	}
}

func TestExpenseValidate(t *testing.T) {
	valid := Expense{
		UserID:           "u1",
		Amount:           10,
		Date:             time.Now(),
		Status:           StatusSubmitted,
		OriginalImageURL: "https://storage.googleapis.com/b/receipts/u1/r.jpg",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	noURL := valid
	noURL.OriginalImageURL = "  "
	if err := noURL.Validate(); err != ErrMissingImageURL {
		t.Errorf("expected ErrMissingImageURL, got %v", err)
	}

	negative := valid
	negative.Amount = -1
	if err := negative.Validate(); err != ErrInvalidAmount {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}

	badStatus := valid
	badStatus.Status = "pending"
	if err := badStatus.Validate(); err != ErrInvalidStatus {
		t.Errorf("expected ErrInvalidStatus, got %v", err)
	}
}
