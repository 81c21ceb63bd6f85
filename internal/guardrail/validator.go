package guardrail

import (
	"fmt"
	"sort"
	"strings"
)

// Rejection reasons. These are stable identifiers that surface in events,
// history records, and the CLI.
const (
	ReasonUnparseable      = "unparseable"
	ReasonMultiStatement   = "multi-statement"
	ReasonForbiddenKeyword = "forbidden-keyword"
	ReasonForbiddenObject  = "forbidden-object"
	ReasonOutOfScopeTable  = "out-of-scope-table"
)

// forbiddenKeywords are rejected anywhere in a candidate, at token level.
// Words inside string literals and quoted identifiers do not count.
var forbiddenKeywords = map[string]bool{
	"INSERT": true, "UPDATE": true, "DELETE": true, "DROP": true,
	"ALTER": true, "TRUNCATE": true, "CREATE": true, "REPLACE": true,
	"MERGE": true, "GRANT": true, "REVOKE": true, "EXEC": true,
	"EXECUTE": true, "CALL": true, "COPY": true, "VACUUM": true,
	"ANALYZE": true, "SET": true, "RESET": true,
}

// forbiddenObjects are system schemas and side-effect functions that a
// read-only analytical query has no business touching.
var forbiddenObjects = map[string]bool{
	"pg_catalog":           true,
	"information_schema":   true,
	"nextval":              true,
	"setval":               true,
	"pg_sleep":             true,
	"set_config":           true,
	"pg_read_file":         true,
	"pg_read_binary_file":  true,
	"pg_terminate_backend": true,
	"pg_cancel_backend":    true,
	"dblink":               true,
	"lo_import":            true,
	"lo_export":            true,
}

// clauseKeywords end a FROM list. An identifier following a table
// reference that is one of these is a clause, not an alias.
var clauseKeywords = map[string]bool{
	"WHERE": true, "JOIN": true, "ON": true, "USING": true, "GROUP": true,
	"ORDER": true, "LIMIT": true, "OFFSET": true, "HAVING": true,
	"UNION": true, "INTERSECT": true, "EXCEPT": true, "LEFT": true,
	"RIGHT": true, "INNER": true, "OUTER": true, "FULL": true,
	"CROSS": true, "NATURAL": true, "AS": true, "FETCH": true,
	"WINDOW": true, "FOR": true,
}

// Verdict is the outcome of validating one SQL candidate.
type Verdict struct {
	Accepted   bool   `json:"accepted"`
	Reason     string `json:"reason,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Normalized string `json:"normalized,omitempty"`
}

func reject(reason, detail string) Verdict {
	return Verdict{Reason: reason, Detail: detail}
}

// Validator checks SQL candidates against the safety policy.
type Validator struct {
	enforceScope bool
}

// NewValidator creates a validator. With enforceScope set, queries that
// reference tables outside the retrieved set are rejected.
func NewValidator(enforceScope bool) *Validator {
	return &Validator{enforceScope: enforceScope}
}

// Validate runs every check against the candidate in a fixed order:
// refusal, lexing, multi-statement, leading keyword, forbidden keywords,
// forbidden objects, then scoping. The first failing check decides the
// verdict, so a given candidate always rejects for the same reason.
func (v *Validator) Validate(sql string, scope []string) Verdict {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return reject(ReasonUnparseable, "empty SQL candidate")
	}

	// A leading comment is the model declining to answer
	if strings.HasPrefix(trimmed, "--") {
		firstLine := strings.SplitN(trimmed, "\n", 2)[0]
		reason := strings.TrimSpace(strings.TrimLeft(firstLine, "- "))

		return reject(ReasonUnparseable, fmt.Sprintf("model declined to answer: %s", reason))
	}

	tokens, err := tokenize(trimmed)
	if err != nil {
		return reject(ReasonUnparseable, err.Error())
	}

	if len(tokens) == 0 {
		return reject(ReasonUnparseable, "no SQL content")
	}

	for i, tok := range tokens {
		if tok.Kind == TokenSemicolon && i < len(tokens)-1 {
			return reject(ReasonMultiStatement, "multiple statements are not allowed")
		}
	}

	if verdict, ok := v.checkLeadingKeyword(tokens); !ok {
		return verdict
	}

	for _, tok := range tokens {
		if tok.Kind == TokenWord && forbiddenKeywords[strings.ToUpper(tok.Literal)] {
			return reject(ReasonForbiddenKeyword,
				fmt.Sprintf("forbidden keyword: %s", strings.ToUpper(tok.Literal)))
		}
	}

	for _, tok := range tokens {
		if tok.Kind != TokenWord && tok.Kind != TokenQuotedIdent {
			continue
		}

		if forbiddenObjects[strings.ToLower(tok.Literal)] {
			return reject(ReasonForbiddenObject,
				fmt.Sprintf("forbidden object: %s", strings.ToLower(tok.Literal)))
		}
	}

	if v.enforceScope && len(scope) > 0 {
		if verdict, ok := checkScope(tokens, scope); !ok {
			return verdict
		}
	}

	return Verdict{
		Accepted:   true,
		Normalized: normalize(trimmed),
	}
}

func (v *Validator) checkLeadingKeyword(tokens []Token) (Verdict, bool) {
	first := tokens[0]
	if first.Kind != TokenWord {
		return reject(ReasonForbiddenKeyword,
			fmt.Sprintf("only SELECT statements are allowed, got %q", first.Literal)), false
	}

	switch strings.ToUpper(first.Literal) {
	case "SELECT":
		return Verdict{}, true
	case "WITH":
		for _, tok := range tokens[1:] {
			if tok.Kind == TokenWord && strings.ToUpper(tok.Literal) == "SELECT" {
				return Verdict{}, true
			}
		}

		return reject(ReasonForbiddenKeyword, "WITH clause without a SELECT statement"), false
	default:
		return reject(ReasonForbiddenKeyword,
			fmt.Sprintf("only SELECT statements are allowed, got %s", strings.ToUpper(first.Literal))), false
	}
}

// checkScope verifies every table referenced from FROM/JOIN against the
// retrieved scope set. CTE names count as in scope.
func checkScope(tokens []Token, scope []string) (Verdict, bool) {
	allowed := make(map[string]bool, len(scope))
	for _, table := range scope {
		allowed[strings.ToLower(table)] = true
	}

	for name := range cteNames(tokens) {
		allowed[name] = true
	}

	var unknown []string

	for table := range referencedTables(tokens) {
		if !allowed[table] {
			unknown = append(unknown, table)
		}
	}

	if len(unknown) > 0 {
		sort.Strings(unknown)

		return reject(ReasonOutOfScopeTable,
			fmt.Sprintf("query references tables outside the retrieved schema: %s",
				strings.Join(unknown, ", "))), false
	}

	return Verdict{}, true
}

// cteNames returns the lowercased names defined by a WITH clause. A CTE
// name is an identifier whose AS is followed by an opening parenthesis.
func cteNames(tokens []Token) map[string]bool {
	names := make(map[string]bool)

	if len(tokens) == 0 || tokens[0].Kind != TokenWord ||
		strings.ToUpper(tokens[0].Literal) != "WITH" {
		return names
	}

	for i := 0; i+2 < len(tokens); i++ {
		if !isIdentifier(tokens[i]) {
			continue
		}

		j := i + 1

		// Optional column list: name (a, b) AS (...)
		if tokens[j].Literal == "(" && tokens[j].Kind == TokenSymbol {
			depth := 0
			for ; j < len(tokens); j++ {
				if tokens[j].Kind != TokenSymbol {
					continue
				}

				if tokens[j].Literal == "(" {
					depth++
				} else if tokens[j].Literal == ")" {
					depth--
					if depth == 0 {
						j++
						break
					}
				}
			}
		}

		if j+1 < len(tokens) &&
			tokens[j].Kind == TokenWord && strings.ToUpper(tokens[j].Literal) == "AS" &&
			tokens[j+1].Kind == TokenSymbol && tokens[j+1].Literal == "(" {
			names[strings.ToLower(tokens[i].Literal)] = true
		}
	}

	return names
}

// referencedTables returns the lowercased unqualified names of every table
// referenced after FROM or JOIN. Subqueries contribute nothing themselves.
func referencedTables(tokens []Token) map[string]bool {
	referenced := make(map[string]bool)

	for i := 0; i < len(tokens); i++ {
		if tokens[i].Kind != TokenWord {
			continue
		}

		switch strings.ToUpper(tokens[i].Literal) {
		case "FROM", "JOIN":
		default:
			continue
		}

		// Consume a comma-separated list of table references
		j := i + 1
		for j < len(tokens) {
			// Subquery: skip, its FROM clauses are scanned by the outer loop
			if tokens[j].Kind == TokenSymbol && tokens[j].Literal == "(" {
				break
			}

			if !isIdentifier(tokens[j]) {
				break
			}

			name := tokens[j].Literal
			j++

			// Qualified name: keep the last component
			for j+1 < len(tokens) &&
				tokens[j].Kind == TokenSymbol && tokens[j].Literal == "." &&
				isIdentifier(tokens[j+1]) {
				name = tokens[j+1].Literal
				j += 2
			}

			referenced[strings.ToLower(name)] = true

			// Optional alias: [AS] ident
			if j < len(tokens) && tokens[j].Kind == TokenWord &&
				strings.ToUpper(tokens[j].Literal) == "AS" {
				j++
			}

			if j < len(tokens) && isIdentifier(tokens[j]) &&
				!clauseKeywords[strings.ToUpper(tokens[j].Literal)] {
				j++
			}

			if j < len(tokens) && tokens[j].Kind == TokenSymbol && tokens[j].Literal == "," {
				j++
				continue
			}

			break
		}
	}

	return referenced
}

func isIdentifier(tok Token) bool {
	return tok.Kind == TokenWord || tok.Kind == TokenQuotedIdent
}

// normalize collapses runs of whitespace outside quoted regions and strips
// a single trailing terminator. No semantic rewriting happens here.
func normalize(sql string) string {
	sql = strings.TrimSpace(sql)
	sql = strings.TrimSuffix(sql, ";")
	sql = strings.TrimSpace(sql)

	var b strings.Builder

	inString := false
	inIdent := false
	lastSpace := false

	for i := 0; i < len(sql); i++ {
		ch := sql[i]

		switch {
		case inString:
			b.WriteByte(ch)
			if ch == '\'' {
				if i+1 < len(sql) && sql[i+1] == '\'' {
					b.WriteByte('\'')
					i++
				} else {
					inString = false
				}
			}
		case inIdent:
			b.WriteByte(ch)
			if ch == '"' {
				if i+1 < len(sql) && sql[i+1] == '"' {
					b.WriteByte('"')
					i++
				} else {
					inIdent = false
				}
			}
		case ch == '\'':
			b.WriteByte(ch)
			inString = true
			lastSpace = false
		case ch == '"':
			b.WriteByte(ch)
			inIdent = true
			lastSpace = false
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		default:
			b.WriteByte(ch)
			lastSpace = false
		}
	}

	return b.String()
}
