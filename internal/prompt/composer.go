// Package prompt assembles the generation request sent to the SQL model.
package prompt

import (
	"fmt"
	"strings"

	"github.com/querymind/querymind/internal/index"
)

// SystemPrompt is the fixed instruction set sent with every generation
// request. The safety rules are restated on every call rather than relying
// on conversation state.
const SystemPrompt = `You are an expert PostgreSQL query writer.

Rules you MUST follow:
1. Return ONLY the raw SQL query, without markdown, code blocks, or explanation.
2. Write only SELECT statements. Never use INSERT, UPDATE, DELETE, DROP, ALTER, TRUNCATE, or any DDL/DML.
3. Use proper PostgreSQL syntax.
4. CRITICAL: You may ONLY reference tables that are explicitly listed in the "Available tables" section of the prompt.
   Never infer, guess, or join tables that are not in that list, even if a column name implies a related table exists.
5. If the question cannot be answered using ONLY the available tables and their columns, return: -- Cannot answer: <reason>
6. Always qualify column names when joining tables to avoid ambiguity.
7. Use LIMIT 500 if the query could return many rows.
8. CRITICAL: Always wrap ALL table names and ALL column names in double quotes (e.g., "users", "screenConfig", "projectId").
9. JOIN LOGIC: Use explicit JOINs based on foreign keys described in the schema. If the user asks for email but a table doesn't have it, join with the "users" table.
10. ALIASING: If you assign an alias to a table (e.g., "table" AS "t"), you MUST use that alias for all column references (e.g., "t"."column"). Never use the original table name if an alias exists.
`

// Request is a fully composed generation request.
type Request struct {
	System string
	User   string
}

// Compose builds the generation request for a question and its retrieved
// schema documents. With no matches the model still gets the full rule set,
// which instructs it to refuse rather than hallucinate tables.
func Compose(question string, matches []index.Match) Request {
	docs := make([]string, len(matches))
	tables := make([]string, len(matches))

	for i, match := range matches {
		docs[i] = match.Document
		tables[i] = match.Table
	}

	user := fmt.Sprintf(
		"Available tables (you may ONLY use these): %s\n\n"+
			"Database Schema:\n%s\n\n"+
			"Question: %s\n\n"+
			"SQL Query:",
		strings.Join(tables, ", "),
		strings.Join(docs, "\n\n"),
		question,
	)

	return Request{
		System: SystemPrompt,
		User:   user,
	}
}
