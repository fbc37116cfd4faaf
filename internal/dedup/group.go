package dedup

import (
	"sort"
	"strings"
	"time"

	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/shopspring/decimal"
)

// Defaults used when Criteria fields are zero.
const (
	DefaultThresholdDays = 3
	DefaultSimilarity    = 0.8
)

var amountTolerance = decimal.New(1, -2)

// Criteria decides when two transactions are duplicates.
type Criteria struct {
	ThresholdDays int
	Similarity    float64
}

func (c Criteria) withDefaults() Criteria {
	if c.ThresholdDays < 0 {
		c.ThresholdDays = DefaultThresholdDays
	}
	if c.Similarity <= 0 {
		c.Similarity = DefaultSimilarity
	}
	return c
}

// Group is a set of transactions judged to be the same one.
type Group struct {
	Amount       decimal.Decimal
	Description  string
	Transactions []model.PendingTransaction
}

// Match reports whether a and b are duplicates under c.
func (c Criteria) Match(a, b *model.PendingTransaction) bool {
	if a.Amount.Sub(b.Amount).Abs().GreaterThanOrEqual(amountTolerance) {
		return false
	}
	if dayDiff(a.Date, b.Date) > c.ThresholdDays {
		return false
	}
	if strings.TrimSpace(a.Description) == "" || strings.TrimSpace(b.Description) == "" {
		return false
	}
	return Similarity(a.Description, b.Description) >= c.Similarity-1e-9
}

func dayDiff(a, b time.Time) int {
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	days := int(da.Sub(db).Hours() / 24)
	if days < 0 {
		return -days
	}
	return days
}

// GroupDuplicates clusters txns so that any two transactions linked by a
// chain of matches share a group. Transactions are bucketed by amount in
// cents first; only the same and the next bucket are compared. Groups come
// back ordered by their earliest member.
func GroupDuplicates(txns []model.PendingTransaction, c Criteria) []Group {
	c = c.withDefaults()
	if len(txns) < 2 {
		return nil
	}

	sorted := make([]model.PendingTransaction, len(txns))
	copy(sorted, txns)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Date.Equal(sorted[j].Date) {
			return sorted[i].Date.Before(sorted[j].Date)
		}
		return sorted[i].ID < sorted[j].ID
	})

	buckets := make(map[int64][]int)
	for i := range sorted {
		key := centsKey(sorted[i].Amount)
		buckets[key] = append(buckets[key], i)
	}

	uf := newUnionFind(len(sorted))
	for key, members := range buckets {
		for x, i := range members {
			for _, j := range members[x+1:] {
				if c.Match(&sorted[i], &sorted[j]) {
					uf.union(i, j)
				}
			}
			for _, j := range buckets[key+1] {
				if c.Match(&sorted[i], &sorted[j]) {
					uf.union(i, j)
				}
			}
		}
	}

	byRoot := make(map[int][]int)
	var roots []int
	for i := range sorted {
		root := uf.find(i)
		if _, ok := byRoot[root]; !ok {
			roots = append(roots, root)
		}
		byRoot[root] = append(byRoot[root], i)
	}

	var groups []Group
	for _, root := range roots {
		members := byRoot[root]
		if len(members) < 2 {
			continue
		}
		group := Group{
			Amount:       sorted[members[0]].Amount,
			Description:  sorted[members[0]].Description,
			Transactions: make([]model.PendingTransaction, 0, len(members)),
		}
		for _, i := range members {
			group.Transactions = append(group.Transactions, sorted[i])
		}
		groups = append(groups, group)
	}
	return groups
}

func centsKey(amount decimal.Decimal) int64 {
	return amount.Shift(2).Floor().IntPart()
}

type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), rank: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	switch {
	case u.rank[ra] < u.rank[rb]:
		u.parent[ra] = rb
	case u.rank[ra] > u.rank[rb]:
		u.parent[rb] = ra
	default:
		u.parent[rb] = ra
		u.rank[ra]++
	}
}
