package sqlcheck

import (
	"fmt"
	"regexp"
	"strings"
)

// StatementType classifies a SQL statement by its leading keyword.
type StatementType string

const (
	TypeSelect  StatementType = "SELECT"
	TypeInsert  StatementType = "INSERT"
	TypeUpdate  StatementType = "UPDATE"
	TypeDelete  StatementType = "DELETE"
	TypeDDL     StatementType = "DDL" // CREATE, ALTER, DROP, TRUNCATE
	TypeUnknown StatementType = "UNKNOWN"
)

// modifyingCTEPattern matches CTEs that contain data-modifying operations,
// e.g. WITH deleted AS (DELETE FROM ...) SELECT * FROM deleted.
var modifyingCTEPattern = regexp.MustCompile(`(?i)\bAS\s*\(\s*(INSERT|UPDATE|DELETE)\b`)

// DetectType determines the statement type from the first keyword.
// Data-modifying CTEs classify as TypeUnknown so they are blocked.
func DetectType(sql string) StatementType {
	normalized := strings.ToUpper(strings.TrimSpace(sql))

	switch {
	case strings.HasPrefix(normalized, "SELECT"):
		return TypeSelect

	case strings.HasPrefix(normalized, "WITH"):
		if modifyingCTEPattern.MatchString(sql) {
			return TypeUnknown
		}
		return TypeSelect

	case strings.HasPrefix(normalized, "INSERT"):
		return TypeInsert

	case strings.HasPrefix(normalized, "UPDATE"):
		return TypeUpdate

	case strings.HasPrefix(normalized, "DELETE"):
		return TypeDelete

	case strings.HasPrefix(normalized, "CREATE"),
		strings.HasPrefix(normalized, "ALTER"),
		strings.HasPrefix(normalized, "DROP"),
		strings.HasPrefix(normalized, "TRUNCATE"):
		return TypeDDL

	default:
		return TypeUnknown
	}
}

// IsModifyingCTE reports whether the statement hides a data-modifying
// operation inside a CTE.
func IsModifyingCTE(sql string) bool {
	return modifyingCTEPattern.MatchString(sql)
}

// IsModifying returns true if the statement type can modify data.
func IsModifying(t StatementType) bool {
	switch t {
	case TypeInsert, TypeUpdate, TypeDelete:
		return true
	default:
		return false
	}
}

// HasWhereClause reports whether the statement carries a WHERE clause.
// Used to reject blanket DELETEs.
var wherePattern = regexp.MustCompile(`(?i)\bWHERE\b`)

func HasWhereClause(sql string) bool {
	return wherePattern.MatchString(sql)
}

// leadingKeywords are the statement keywords the syntax check accepts.
// Whether the statement is permitted is a security question, not a
// syntax one.
var leadingKeywords = []string{
	"SELECT", "WITH", "INSERT", "UPDATE", "DELETE",
	"CREATE", "ALTER", "DROP", "TRUNCATE",
}

// CheckSyntax applies structural checks to a single normalized statement:
// recognized leading keyword, balanced parentheses, and terminated string
// literals. It rejects obviously broken SQL; a database parse is the
// authority when execution is requested.
func CheckSyntax(sql string) error {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return fmt.Errorf("empty statement")
	}

	first := strings.Fields(strings.ToUpper(trimmed))[0]
	known := false
	for _, kw := range leadingKeywords {
		if first == kw {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("unrecognized statement keyword %q", first)
	}

	depth := 0
	inSingle := false
	inDouble := false
	prev := rune(0)

	for _, char := range trimmed {
		switch {
		case inSingle:
			if char == '\'' && prev != '\\' {
				inSingle = false
			}
		case inDouble:
			if char == '"' && prev != '\\' {
				inDouble = false
			}
		case char == '\'':
			inSingle = true
		case char == '"':
			inDouble = true
		case char == '(':
			depth++
		case char == ')':
			depth--
			if depth < 0 {
				return fmt.Errorf("unbalanced parentheses: unexpected ')'")
			}
		}
		prev = char
	}

	if depth != 0 {
		return fmt.Errorf("unbalanced parentheses: %d unclosed", depth)
	}
	if inSingle || inDouble {
		return fmt.Errorf("unterminated string literal")
	}

	return nil
}

// tableRefPattern captures identifiers following FROM or JOIN. Quoted and
// schema-qualified names are captured as written.
var tableRefPattern = regexp.MustCompile(`(?i)\b(?:FROM|JOIN)\s+("?[a-zA-Z_][a-zA-Z0-9_.]*"?)`)

// ExtractTables returns the distinct table names referenced in FROM and
// JOIN clauses, in order of first appearance. Subquery parentheses after
// FROM are skipped by the pattern itself.
func ExtractTables(sql string) []string {
	matches := tableRefPattern.FindAllStringSubmatch(sql, -1)

	var tables []string
	seen := make(map[string]bool)
	for _, m := range matches {
		name := strings.Trim(m[1], `"`)
		// Strip a schema qualifier; the engine resolves bare table names.
		if idx := strings.LastIndex(name, "."); idx >= 0 {
			name = name[idx+1:]
		}
		name = strings.ToLower(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		tables = append(tables, name)
	}

	return tables
}

// columnRefPattern captures column identifiers in WHERE/ON/GROUP BY/ORDER
// BY positions: a word followed by a comparison or used in a predicate.
var columnRefPattern = regexp.MustCompile(`(?i)(?:WHERE|AND|OR|ON)\s+(?:[a-zA-Z_][a-zA-Z0-9_]*\.)?([a-zA-Z_][a-zA-Z0-9_]*)\s*(?:=|<|>|!=|<>|LIKE|ILIKE|IN|IS|BETWEEN)`)

// ExtractFilterColumns returns the distinct column names used in filter
// and join predicates, in order of first appearance.
func ExtractFilterColumns(sql string) []string {
	matches := columnRefPattern.FindAllStringSubmatch(sql, -1)

	var columns []string
	seen := make(map[string]bool)
	for _, m := range matches {
		name := strings.ToLower(m[1])
		if seen[name] {
			continue
		}
		seen[name] = true
		columns = append(columns, name)
	}

	return columns
}

// selectStarPattern matches SELECT * (optionally table-qualified).
var selectStarPattern = regexp.MustCompile(`(?i)\bSELECT\s+(?:[a-zA-Z_][a-zA-Z0-9_]*\.)?\*`)

// HasSelectStar reports whether the statement selects all columns.
func HasSelectStar(sql string) bool {
	return selectStarPattern.MatchString(sql)
}

// limitPattern matches a LIMIT or FETCH FIRST clause.
var limitPattern = regexp.MustCompile(`(?i)\b(?:LIMIT\s+\d+|FETCH\s+FIRST)\b`)

// HasLimit reports whether the statement bounds its result set.
func HasLimit(sql string) bool {
	return limitPattern.MatchString(sql)
}
