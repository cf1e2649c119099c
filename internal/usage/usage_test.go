package usage

import (
	"testing"

	"github.com/agusx1211/amux/internal/wire"
)

func TestExtractReportFromTrailingText(t *testing.T) {
	content := "Done editing.\n\nTokens: 2.0k sent, 500 received. Cost: $0.012 message, $0.05 session."
	rep := ExtractReport(content)
	if rep == nil {
		t.Fatal("ExtractReport returned nil")
	}
	if rep.SentTokens != 2000 {
		t.Errorf("SentTokens = %d, want 2000", rep.SentTokens)
	}
	if rep.ReceivedTokens != 500 {
		t.Errorf("ReceivedTokens = %d, want 500", rep.ReceivedTokens)
	}
	if rep.MessageCost != 0.012 {
		t.Errorf("MessageCost = %v, want 0.012", rep.MessageCost)
	}
	if rep.WorkerTotalCost != 0.05 {
		t.Errorf("WorkerTotalCost = %v, want 0.05", rep.WorkerTotalCost)
	}
}

func TestExtractReportCommaSeparatedCounts(t *testing.T) {
	rep := ExtractReport("Tokens: 12,345 sent, 1,000 received.")
	if rep == nil {
		t.Fatal("ExtractReport returned nil")
	}
	if rep.SentTokens != 12345 {
		t.Errorf("SentTokens = %d, want 12345", rep.SentTokens)
	}
	if rep.ReceivedTokens != 1000 {
		t.Errorf("ReceivedTokens = %d, want 1000", rep.ReceivedTokens)
	}
}

func TestExtractReportNoUsage(t *testing.T) {
	if rep := ExtractReport("just a normal answer"); rep != nil {
		t.Fatalf("expected nil, got %+v", rep)
	}
	if rep := ExtractReport(""); rep != nil {
		t.Fatalf("expected nil for empty content, got %+v", rep)
	}
}

func TestExtractReportUsesLastUsageLine(t *testing.T) {
	content := "Tokens: 1.0k sent, 100 received.\nmore text\nTokens: 3.0k sent, 200 received."
	rep := ExtractReport(content)
	if rep == nil {
		t.Fatal("ExtractReport returned nil")
	}
	if rep.SentTokens != 3000 {
		t.Errorf("SentTokens = %d, want 3000 (last line wins)", rep.SentTokens)
	}
}

func TestCostSuffix(t *testing.T) {
	rep := &wire.UsageReport{SentTokens: 2000, ReceivedTokens: 500, MessageCost: 0.012}
	got := CostSuffix(rep)
	want := "i2.0k o0.5k $0.012"
	if got != want {
		t.Fatalf("CostSuffix = %q, want %q", got, want)
	}
}

func TestCostSuffixZeroReport(t *testing.T) {
	got := CostSuffix(&wire.UsageReport{})
	want := "i0.0k o0.0k $0.000"
	if got != want {
		t.Fatalf("CostSuffix = %q, want %q", got, want)
	}
}

func TestParseTokenCount(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"2.0k", 2000},
		{"500", 500},
		{"1,234", 1234},
		{"1.5k", 1500},
		{"bogus", 0},
	}
	for _, c := range cases {
		if got := parseTokenCount(c.in); got != c.want {
			t.Errorf("parseTokenCount(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}
