package buffer

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/obinexus/obibuf/internal/store"
)

// Report renders a plain-text summary of stored send results: aggregate
// counts plus the most recent messages, newest first.
func Report(s *store.Store, recent int) (string, error) {
	sum, err := s.Summarize()
	if err != nil {
		return "", err
	}
	msgs, err := s.Recent(recent)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("OBIBUF transmission report\n")
	b.WriteString("==========================\n")
	fmt.Fprintf(&b, "messages:   %s\n", humanize.Comma(int64(sum.Messages)))
	fmt.Fprintf(&b, "allowed:    %s\n", humanize.Comma(int64(sum.Allowed)))
	fmt.Fprintf(&b, "denied:     %s\n", humanize.Comma(int64(sum.Denied)))
	fmt.Fprintf(&b, "ir nodes:   %s\n", humanize.Comma(int64(sum.IRNodes)))
	fmt.Fprintf(&b, "total cost: %.3f\n", sum.TotalCost)

	if len(msgs) > 0 {
		b.WriteString("\nrecent:\n")
		for _, m := range msgs {
			fmt.Fprintf(&b, "  %s  %-5s  zone=%-10s  cost=%.3f  %s  (%s)\n",
				m.ID, m.Decision, m.Zone, m.Cost,
				humanize.IBytes(uint64(m.CanonicalLen)),
				humanize.Time(m.CreatedAt))
		}
	}
	return b.String(), nil
}
