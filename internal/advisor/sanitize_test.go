package advisor

import "testing"

func TestSanitizeSQL(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain select", "SELECT * FROM allergies", "SELECT * FROM allergies"},
		{"lowercase select", "select substance from allergies", "select substance from allergies"},
		{"with clause", "WITH x AS (SELECT 1) SELECT * FROM x", "WITH x AS (SELECT 1) SELECT * FROM x"},
		{"markdown fence", "```sql\nSELECT 1\n```", "SELECT 1"},
		{"fence without language", "```\nSELECT 1\n```", "SELECT 1"},
		{"stray backticks", "SELECT `substance` FROM allergies", "SELECT substance FROM allergies"},
		{"line comment", "SELECT 1 -- all rows\nFROM allergies", "SELECT 1 \nFROM allergies"},
		{"block comment", "SELECT /* everything */ 1", "SELECT  1"},
		{"first statement only", "SELECT 1; DROP TABLE allergies", "SELECT 1"},
		{"trailing semicolon", "SELECT 1;", "SELECT 1"},
		{"semicolon inside string", "SELECT ';' AS c FROM allergies", "SELECT ';' AS c FROM allergies"},
		{"update rejected", "UPDATE allergies SET status = 'x'", ""},
		{"delete rejected", "DELETE FROM allergies", ""},
		{"drop rejected", "DROP TABLE allergies", ""},
		{"pragma rejected", "PRAGMA table_info(allergies)", ""},
		{"comment smuggled statement", "-- SELECT 1\nDELETE FROM allergies", ""},
		{"unbalanced paren", "SELECT count( FROM allergies", ""},
		{"unbalanced quote", "SELECT 'oops FROM allergies", ""},
		{"empty", "   ", ""},
		{"only a fence", "```sql\n```", ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := SanitizeSQL(c.in); got != c.want {
				t.Errorf("SanitizeSQL(%q) = %q, want %q", c.in, got, c.want)
			}
		})
	}
}
