// Package usage extracts token/cost accounting from worker responses.
//
// Finished responses usually carry a structured report, but older workers
// append it as trailing free text ("Tokens: 2.0k sent, 500 received.
// Cost: $0.012 message, $0.05 session."); ExtractReport recovers the
// structured form from either.
package usage

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/agusx1211/amux/internal/wire"
)

var (
	sentRe     = regexp.MustCompile(`([\d][\d,]*(?:\.\d+)?k?)\s+sent`)
	receivedRe = regexp.MustCompile(`([\d][\d,]*(?:\.\d+)?k?)\s+received`)
	msgCostRe  = regexp.MustCompile(`\$([\d][\d,]*(?:\.\d+)?)\s+message`)
	sessCostRe = regexp.MustCompile(`\$([\d][\d,]*(?:\.\d+)?)\s+session`)
)

// ExtractReport parses a worker's trailing free-text usage summary into a
// structured report. Returns nil when the text carries no usage information.
func ExtractReport(content string) *wire.UsageReport {
	line := usageLine(content)
	if line == "" {
		return nil
	}

	rep := &wire.UsageReport{}
	found := false
	if m := sentRe.FindStringSubmatch(line); m != nil {
		rep.SentTokens = parseTokenCount(m[1])
		found = true
	}
	if m := receivedRe.FindStringSubmatch(line); m != nil {
		rep.ReceivedTokens = parseTokenCount(m[1])
		found = true
	}
	if m := msgCostRe.FindStringSubmatch(line); m != nil {
		rep.MessageCost = parseCost(m[1])
		found = true
	}
	if m := sessCostRe.FindStringSubmatch(line); m != nil {
		rep.WorkerTotalCost = parseCost(m[1])
		found = true
	}
	if !found {
		return nil
	}
	return rep
}

// usageLine finds the last line mentioning token accounting.
func usageLine(content string) string {
	lines := strings.Split(content, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if strings.HasPrefix(line, "Tokens:") || (strings.Contains(line, "sent") && strings.Contains(line, "received")) {
			return line
		}
	}
	return ""
}

// parseTokenCount converts "2.0k" or "1,234" into a token count.
func parseTokenCount(s string) int {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	k := false
	if strings.HasSuffix(s, "k") {
		k = true
		s = strings.TrimSuffix(s, "k")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	if k {
		f *= 1000
	}
	return int(f)
}

func parseCost(s string) float64 {
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0
	}
	return f
}

// CostSuffix formats the accounting suffix appended to commit messages:
// token counts in thousands with one decimal, cost with three decimals.
func CostSuffix(rep *wire.UsageReport) string {
	return fmt.Sprintf("i%.1fk o%.1fk $%.3f",
		float64(rep.SentTokens)/1000,
		float64(rep.ReceivedTokens)/1000,
		rep.MessageCost,
	)
}
