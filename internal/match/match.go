// Package match classifies free-text match tokens into a query shape the
// storage layer can execute, independent of the storage engine's search
// capabilities.
package match

import "strings"

// Field names a user column a match query runs against.
type Field string

const (
	FieldLogin       Field = "login"
	FieldNickname    Field = "nickname"
	FieldDisplayName Field = "display_name"
)

// Query is a classified match token: a case-insensitive prefix to match
// against a set of user fields.
type Query struct {
	// Prefix is the trimmed text to prefix-match, with any classification
	// sigil removed.
	Prefix string
	// Fields are the columns the prefix applies to, OR semantics.
	Fields []Field
}

// Classify turns a raw match token into a Query:
//
//   - tokens prefixed with ':' or '@' match nicknames;
//   - tokens containing '@' match logins;
//   - anything else matches display name, nickname and login.
//
// The token is trimmed first. An empty result prefix means the token was
// blank and should be skipped.
func Classify(token string) Query {
	text := strings.TrimSpace(token)

	switch {
	case strings.HasPrefix(text, ":"), strings.HasPrefix(text, "@"):
		return Query{
			Prefix: strings.TrimSpace(text[1:]),
			Fields: []Field{FieldNickname},
		}
	case strings.Contains(text, "@"):
		return Query{
			Prefix: text,
			Fields: []Field{FieldLogin},
		}
	default:
		return Query{
			Prefix: text,
			Fields: []Field{FieldDisplayName, FieldNickname, FieldLogin},
		}
	}
}
