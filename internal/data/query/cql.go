package query

import (
	"regexp"
	"strconv"
	"strings"

	"snapgraph/internal/core/errors"
)

var (
	cqlSelectRE       = regexp.MustCompile(`(?is)^\s*SELECT\s+(vertices|edges)(?:\s+WHERE\s+(.+?))?(?:\s+LIMIT\s+([0-9]+))?\s*$`)
	cqlAndSplitRE     = regexp.MustCompile(`(?i)\s+AND\s+`)
	cqlNumericCondRE  = regexp.MustCompile(`(?i)^\s*([a-z_][a-z0-9_.]*)\s*(>=|<=|!=|=|>|<)\s*(-?[0-9]+(?:\.[0-9]+)?)\s*$`)
	cqlContainsCondRE = regexp.MustCompile(`(?i)^\s*([a-z_][a-z0-9_.]*)\s+CONTAINS\s+['"]([^'"]*)['"]\s*$`)
	cqlStringCondRE   = regexp.MustCompile(`(?i)^\s*([a-z_][a-z0-9_.]*)\s*(>=|<=|!=|=|>|<)\s*['"]([^'"]*)['"]\s*$`)
	cqlBoolCondRE     = regexp.MustCompile(`(?i)^\s*([a-z_][a-z0-9_.]*)\s*(=|!=)\s*(true|false)\s*$`)
)

// Target is the element kind a query selects.
type Target string

const (
	TargetVertices Target = "vertices"
	TargetEdges    Target = "edges"
)

// CQLQuery is a parsed "SELECT vertices|edges [WHERE ...] [LIMIT n]".
// Conditions are joined with AND.
type CQLQuery struct {
	Target     Target
	Conditions []CQLCondition
	Limit      int
}

type CQLCondition struct {
	Field   string
	Op      string
	NumVal  float64
	StrVal  string
	BoolVal bool
	IsNum   bool
	IsStr   bool
	IsBool  bool
}

func ParseCQL(raw string) (CQLQuery, error) {
	matches := cqlSelectRE.FindStringSubmatch(strings.TrimSpace(raw))
	if len(matches) == 0 {
		return CQLQuery{}, errors.New(errors.CodeValidationError, "invalid query: expected SELECT vertices|edges [WHERE ...] [LIMIT n]")
	}

	query := CQLQuery{Target: Target(strings.ToLower(matches[1]))}
	if matches[3] != "" {
		limit, err := strconv.Atoi(matches[3])
		if err != nil {
			return CQLQuery{}, errors.Wrap(err, errors.CodeValidationError, "invalid LIMIT")
		}
		query.Limit = limit
	}

	where := strings.TrimSpace(matches[2])
	if where == "" {
		return query, nil
	}

	parts := cqlAndSplitRE.Split(where, -1)
	query.Conditions = make([]CQLCondition, 0, len(parts))
	for _, part := range parts {
		condition, err := parseCQLCondition(part)
		if err != nil {
			return CQLQuery{}, err
		}
		query.Conditions = append(query.Conditions, condition)
	}
	return query, nil
}

func parseCQLCondition(raw string) (CQLCondition, error) {
	if match := cqlBoolCondRE.FindStringSubmatch(raw); len(match) == 4 {
		return CQLCondition{
			Field:   match[1],
			Op:      match[2],
			BoolVal: strings.EqualFold(match[3], "true"),
			IsBool:  true,
		}, nil
	}

	if match := cqlNumericCondRE.FindStringSubmatch(raw); len(match) == 4 {
		value, err := strconv.ParseFloat(match[3], 64)
		if err != nil {
			return CQLCondition{}, errors.Newf(errors.CodeValidationError, "invalid numeric value %q", match[3])
		}
		return CQLCondition{
			Field:  match[1],
			Op:     match[2],
			NumVal: value,
			StrVal: match[3],
			IsNum:  true,
		}, nil
	}

	if match := cqlContainsCondRE.FindStringSubmatch(raw); len(match) == 3 {
		return CQLCondition{
			Field:  match[1],
			Op:     "contains",
			StrVal: match[2],
			IsStr:  true,
		}, nil
	}

	if match := cqlStringCondRE.FindStringSubmatch(raw); len(match) == 4 {
		return CQLCondition{
			Field:  match[1],
			Op:     match[2],
			StrVal: match[3],
			IsStr:  true,
		}, nil
	}

	return CQLCondition{}, errors.Newf(errors.CodeValidationError, "invalid condition %q", strings.TrimSpace(raw))
}
