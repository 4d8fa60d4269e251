package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDescribeSQL(t *testing.T) {
	cases := []struct {
		sql       string
		operation string
		table     string
	}{
		{"SELECT id FROM tasks WHERE user_id = $1", "select", "tasks"},
		{"\n  INSERT INTO emails (user_id) VALUES ($1)", "insert", "emails"},
		{"UPDATE users SET name = $1", "update", "users"},
		{"DELETE FROM meetings WHERE id = $1", "delete", "meetings"},
		{"", "unknown", "unknown"},
		{"BEGIN", "begin", "unknown"},
	}
	for _, tc := range cases {
		operation, table := describeSQL(tc.sql)
		assert.Equal(t, tc.operation, operation, tc.sql)
		assert.Equal(t, tc.table, table, tc.sql)
	}
}
