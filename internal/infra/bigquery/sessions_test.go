package bigquery

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInsertSessionSQL(t *testing.T) {
	sql := insertSessionSQL("mydataset")

	// Every formatting verb must be consumed; a stray one would reach
	// BigQuery as a malformed column list.
	assert.NotContains(t, sql, "%!")

	assert.Contains(t, sql, "INSERT mydataset."+sessionsTable)
	for _, col := range []string{"session_id", "checksum_sha256", "ai_categorization"} {
		assert.Contains(t, sql, col)
		assert.Contains(t, sql, "@"+col)
	}
	assert.Equal(t, 2*(strings.Count(sql, "@")-1), strings.Count(sql, ","),
		"column list and parameter list must be the same length")
}
