package db

import (
	"strings"

	"github.com/google/uuid"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ContainsPattern returns an ILIKE pattern matching s anywhere in the column.
// Wildcards in s are escaped so they match literally.
func ContainsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

// ValidID reports whether id is a canonical hyphenated UUID.
func ValidID(id string) bool {
	return len(id) == 36 && uuid.Validate(id) == nil
}
