package liverow

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/liverow/liverow/schema"
)

// identifierRegex validates SQL identifiers (column names, table names,
// aliases). Must start with a letter or underscore, followed by
// alphanumerics or underscores.
var identifierRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// sqlReservedWords contains SQL keywords rejected as identifiers. Quoting
// handles most injection; rejecting reserved words as column names prevents
// query structure attacks through unquoted contexts.
var sqlReservedWords = map[string]bool{
	"SELECT": true, "INSERT": true, "UPDATE": true, "DELETE": true,
	"DROP": true, "CREATE": true, "ALTER": true, "TRUNCATE": true,
	"EXEC": true, "EXECUTE": true, "UNION": true, "INTO": true,
	"FROM": true, "WHERE": true, "TABLE": true, "DATABASE": true,
	"GRANT": true, "REVOKE": true, "INDEX": true, "VIEW": true,
}

// validIdentifier ensures a SQL identifier is safe to splice into a
// statement. Rejects empty strings, strings over 128 characters, strings
// that don't match the identifier pattern, and SQL reserved words.
func validIdentifier(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("identifier cannot be empty")
	}
	if len(name) > 128 {
		return fmt.Errorf("identifier too long (max 128 chars): %q", name)
	}
	if !identifierRegex.MatchString(name) {
		return fmt.Errorf("invalid identifier %q: must match [a-zA-Z_][a-zA-Z0-9_]*", name)
	}
	if sqlReservedWords[strings.ToUpper(name)] {
		return fmt.Errorf("identifier %q is a SQL reserved word", name)
	}
	return nil
}

// quoteColumnRef validates and quotes a column reference, which may be a
// simple name like "age", a qualified name like "employee.age", or a
// qualified star like "employee.*".
func quoteColumnRef(d schema.Dialect, ref string) (string, error) {
	if ref == "*" {
		return "*", nil
	}
	parts := strings.Split(ref, ".")
	if len(parts) > 3 {
		return "", fmt.Errorf("column reference %q has too many parts (max: schema.table.column)", ref)
	}
	quoted := make([]string, len(parts))
	for i, part := range parts {
		if part == "*" && i == len(parts)-1 {
			quoted[i] = "*"
			continue
		}
		if err := validIdentifier(part); err != nil {
			return "", fmt.Errorf("in column reference %q: %w", ref, err)
		}
		quoted[i] = d.Quote(part)
	}
	return strings.Join(quoted, "."), nil
}
