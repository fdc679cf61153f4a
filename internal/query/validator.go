// Package query applies the plan-level rules to parsed query and
// aggregation trees: which fields a free plan may touch, how deep and how
// wide an aggregation may grow, and which expensive operations are capped.
// Parsing itself happens upstream; this package only judges the parsed
// shape.
package query

import "strings"

// AggregationType names one aggregation operation in a parsed tree.
type AggregationType string

const (
	AggMin           AggregationType = "min"
	AggMax           AggregationType = "max"
	AggAvg           AggregationType = "avg"
	AggSum           AggregationType = "sum"
	AggStats         AggregationType = "stats"
	AggCardinality   AggregationType = "cardinality"
	AggMissing       AggregationType = "missing"
	AggDateHistogram AggregationType = "date"
	AggPercentiles   AggregationType = "percentiles"
	AggTerms         AggregationType = "terms"
)

// TreeInfo is the summary the parser produces for a query or aggregation
// tree: overall syntactic validity, every referenced field, the deepest
// nesting level, and the target fields per operation.
type TreeInfo struct {
	Valid      bool
	Fields     []string
	MaxDepth   int
	Operations map[AggregationType][]string
}

// Result is the validation verdict. Message is set only on rejection.
type Result struct {
	Valid               bool
	Message             string
	UsesPremiumFeatures bool
}

const (
	maxAggregationDepth = 3
	maxAggregationCount = 10
)

// Fields a free plan may reference in queries.
var freeQueryFields = fieldSet(
	"date",
	"is_hidden",
	"is_fixed",
	"type",
	"reference_id",
	"organization_id",
	"project_id",
	"stack_id",
)

// Fields a free plan may aggregate on.
var freeAggregationFields = fieldSet(
	"date",
	"value",
	"is_first_occurrence",
	"stack_id",
	"user_identity",
)

// Fields any plan may aggregate on: numeric or high-commonality only, so a
// single aggregation cannot fan out over unbounded custom data.
var allowedAggregationFields = fieldSet(
	"date",
	"type",
	"value",
	"is_fixed",
	"is_hidden",
	"is_first_occurrence",
	"organization_id",
	"project_id",
	"stack_id",
	"version",
	"user_identity",
)

func fieldSet(fields ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[strings.ToLower(f)] = struct{}{}
	}
	return set
}

func allIn(fields []string, set map[string]struct{}) bool {
	for _, f := range fields {
		if _, ok := set[strings.ToLower(f)]; !ok {
			return false
		}
	}
	return true
}

// ValidateQuery judges a parsed query tree. Any referenced field outside the
// free set flags premium usage; it never rejects a syntactically valid tree.
func ValidateQuery(info TreeInfo) Result {
	return Result{
		Valid:               info.Valid,
		UsesPremiumFeatures: !allIn(info.Fields, freeQueryFields),
	}
}

// ValidateAggregations judges a parsed aggregation tree against the depth,
// count and field rules, in that order, and reports premium usage for
// accepted trees.
func ValidateAggregations(info TreeInfo) Result {
	if !info.Valid {
		return Result{Message: "invalid aggregation"}
	}
	if info.MaxDepth > maxAggregationDepth {
		return Result{Message: "aggregation max depth exceeded"}
	}

	total := 0
	for _, targets := range info.Operations {
		total += len(targets)
	}
	if total > maxAggregationCount {
		return Result{Message: "aggregation count exceeded"}
	}

	if !allIn(info.Fields, allowedAggregationFields) {
		return Result{Message: "one or more aggregation fields are not allowed"}
	}

	// Distinct counts are expensive: one per tree.
	if len(info.Operations[AggCardinality]) > 1 {
		return Result{Message: "cardinality aggregation count exceeded"}
	}

	// Terms fan out hardest: one per tree, and only over allowed fields.
	if terms := info.Operations[AggTerms]; len(terms) > 1 || !allIn(terms, allowedAggregationFields) {
		return Result{Message: "terms aggregation count exceeded"}
	}

	return Result{
		Valid:               true,
		UsesPremiumFeatures: !allIn(info.Fields, freeAggregationFields),
	}
}
