package dialect

import (
	"slices"
	"strings"

	"github.com/satishbabariya/relq/query/builder"
)

// BasicOptimizerType is the registered name of the built-in optimizer.
const BasicOptimizerType = "basic"

// Optimizer provides join optimizations shared by all providers.
type Optimizer struct {
	flags ProviderFlags
}

// NewBasicOptimizer creates the built-in optimizer.
func NewBasicOptimizer(flags ProviderFlags) SqlOptimizer {
	return &Optimizer{flags: flags}
}

// Flags implements SqlOptimizer.
func (o *Optimizer) Flags() ProviderFlags {
	return o.flags
}

// Optimize returns a copy of q with duplicate joins merged and unused
// outer joins removed. q itself is not modified.
func (o *Optimizer) Optimize(q *builder.SelectQuery) *builder.SelectQuery {
	out := &builder.SelectQuery{
		From:    q.From,
		Columns: slices.Clone(q.Columns),
	}
	for _, j := range q.Joins {
		c := *j
		c.Conditions = slices.Clone(j.Conditions)
		out.Joins = append(out.Joins, &c)
	}

	out.Joins = o.OptimizeJoins(out)
	return out
}

// OptimizeJoins merges joins that join the same table the same way and,
// when an explicit select list exists, drops LEFT joins nothing refers to.
// Column references to merged aliases are rewritten in place.
func (o *Optimizer) OptimizeJoins(q *builder.SelectQuery) []*builder.Join {
	if len(q.Joins) == 0 {
		return q.Joins
	}

	// Merge duplicates. A later join is a duplicate of an earlier one when
	// its signature matches after earlier renames are applied.
	renames := make(map[string]string)
	seen := make(map[string]string)
	var joins []*builder.Join
	for _, j := range q.Joins {
		for i := range j.Conditions {
			j.Conditions[i].Right.Alias = resolve(renames, j.Conditions[i].Right.Alias)
		}
		sig := joinSignature(j)
		if alias, ok := seen[sig]; ok {
			renames[strings.ToLower(j.Source.Alias)] = alias
			continue
		}
		seen[sig] = j.Source.Alias
		joins = append(joins, j)
	}
	for i := range q.Columns {
		q.Columns[i].Alias = resolve(renames, q.Columns[i].Alias)
	}

	if len(q.Columns) == 0 {
		return joins
	}

	// Drop unreferenced outer joins until nothing changes; removing one can
	// orphan the join it hung off.
	for {
		used := make(map[string]bool)
		for _, c := range q.Columns {
			used[strings.ToLower(c.Alias)] = true
		}
		for _, j := range joins {
			for _, c := range j.Conditions {
				used[strings.ToLower(c.Right.Alias)] = true
			}
		}

		kept := joins[:0:0]
		for _, j := range joins {
			if j.Type == builder.LeftJoin && j.Predicate == "" && !used[strings.ToLower(j.Source.Alias)] {
				continue
			}
			kept = append(kept, j)
		}
		if len(kept) == len(joins) {
			return kept
		}
		joins = kept
	}
}

func resolve(renames map[string]string, alias string) string {
	if to, ok := renames[strings.ToLower(alias)]; ok {
		return to
	}
	return alias
}

func joinSignature(j *builder.Join) string {
	var sb strings.Builder
	sb.WriteString(string(j.Type))
	sb.WriteByte('|')
	sb.WriteString(j.Source.Table)
	sb.WriteByte('|')
	sb.WriteString(j.Predicate)
	for _, c := range j.Conditions {
		sb.WriteByte('|')
		sb.WriteString(c.Left.Column)
		sb.WriteByte('=')
		sb.WriteString(strings.ToLower(c.Right.Alias))
		sb.WriteByte('.')
		sb.WriteString(c.Right.Column)
	}
	return sb.String()
}
