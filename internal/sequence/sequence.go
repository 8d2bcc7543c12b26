// Package sequence numbers tickets within a (site, reason, local day) scope.
package sequence

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Width is the minimum number of digits in a ticket code suffix. Larger
// numbers keep all their digits.
const Width = 3

// Source reports the highest suffix already issued for a scope, or 0.
// from is inclusive, until exclusive.
type Source interface {
	MaxSequence(ctx context.Context, siteID, reasonID string, from, until time.Time) (int, error)
}

type SourceFunc func(ctx context.Context, siteID, reasonID string, from, until time.Time) (int, error)

func (f SourceFunc) MaxSequence(ctx context.Context, siteID, reasonID string, from, until time.Time) (int, error) {
	return f(ctx, siteID, reasonID, from, until)
}

type Allocator struct {
	source Source
}

func NewAllocator(source Source) *Allocator {
	return &Allocator{source: source}
}

// Next returns the number the next ticket of the scope must carry. Callers
// are expected to hold whatever serializes the scope until the ticket is
// stored.
func (a *Allocator) Next(ctx context.Context, siteID, reasonID string, ref time.Time) (int, error) {
	from, until := Window(ref)
	max, err := a.source.MaxSequence(ctx, siteID, reasonID, from, until)
	if err != nil {
		return 0, fmt.Errorf("max sequence: %w", err)
	}
	if max < 0 {
		max = 0
	}
	return max + 1, nil
}

// Window returns ref's calendar day, in ref's location, as the half-open range
// [start, next). It holds the same instants as 00:00:00.000 through 23:59:59.999
// without losing sub-millisecond creation times at the end of the day.
func Window(ref time.Time) (time.Time, time.Time) {
	y, m, d := ref.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, ref.Location())
	return start, start.AddDate(0, 0, 1)
}

// Day formats ref's calendar day, the bucket stored next to each ticket.
func Day(ref time.Time) string {
	return ref.Format("2006-01-02")
}

func Format(prefix string, n int) string {
	return fmt.Sprintf("%s%0*d", prefix, Width, n)
}

func Parse(code, prefix string) (int, bool) {
	if !strings.HasPrefix(code, prefix) {
		return 0, false
	}
	digits := code[len(prefix):]
	if digits == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(digits, 10, 31)
	if err != nil {
		return 0, false
	}
	return int(n), true
}

// MaxSuffix returns the highest suffix among codes that carry prefix.
func MaxSuffix(prefix string, codes []string) int {
	max := 0
	for _, code := range codes {
		if n, ok := Parse(code, prefix); ok && n > max {
			max = n
		}
	}
	return max
}
