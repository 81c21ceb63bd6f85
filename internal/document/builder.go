// Package document renders table descriptors into the deterministic text
// form that gets embedded and indexed.
package document

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/querymind/querymind/internal/schema"
)

// TableDocument is the indexable text rendering of one table.
type TableDocument struct {
	Table  string `json:"table"`
	Text   string `json:"text"`
	Digest string `json:"digest"`
}

// Build renders a table descriptor into its document form. The rendering
// is deterministic: the same descriptor always yields the same text and
// digest, which is what makes digest-based re-index short-circuiting safe.
func Build(table schema.TableDescriptor) TableDocument {
	var b strings.Builder

	fmt.Fprintf(&b, "Table: %s\n", table.Name)
	b.WriteString("Columns:")

	for _, col := range table.Columns {
		fmt.Fprintf(&b, "\n- %s (%s)", col.Name, col.DeclaredType)

		if !col.Nullable {
			b.WriteString(" NOT NULL")
		}

		if col.IsPrimaryKey {
			b.WriteString(" PRIMARY KEY")
		}
	}

	if len(table.ForeignKeys) > 0 {
		b.WriteString("\nForeign Keys:")

		for _, fk := range table.ForeignKeys {
			fmt.Fprintf(&b, "\n- (%s) -> %s(%s)", fk.Column, fk.RefTable, fk.RefColumn)
		}
	}

	text := b.String()

	return TableDocument{
		Table:  table.Name,
		Text:   text,
		Digest: Digest(text),
	}
}

// BuildAll renders every table in the model, preserving model order.
func BuildAll(model *schema.Model) []TableDocument {
	docs := make([]TableDocument, len(model.Tables))
	for i, table := range model.Tables {
		docs[i] = Build(table)
	}

	return docs
}

// Digest returns the sha256 hex digest of a document text.
func Digest(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
