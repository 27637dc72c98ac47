package store

import (
	"strings"
)

// Filter is one predicate of a file query. Filters are combined with
// AND and always translate to parameterized SQL, so user-supplied values
// never reach the query text.
type Filter interface {
	clause() (string, []any)
}

// SizeRange keeps files whose size lies in [Min, Max]; Max <= 0 means
// unbounded above.
type SizeRange struct {
	Min int64
	Max int64
}

func (f SizeRange) clause() (string, []any) {
	if f.Max > 0 {
		return "size_bytes BETWEEN ? AND ?", []any{f.Min, f.Max}
	}
	return "size_bytes >= ?", []any{f.Min}
}

// ExtensionSet keeps files whose extension is one of the given
// lowercase, dot-less extensions. An empty set matches nothing.
type ExtensionSet []string

func (f ExtensionSet) clause() (string, []any) {
	if len(f) == 0 {
		return "1=0", nil
	}
	args := make([]any, len(f))
	for i, ext := range f {
		args[i] = strings.ToLower(ext)
	}
	return "extension IN (" + inPlaceholders(len(f)) + ")", args
}

// OwnerSet keeps files owned by one of the given user names. An empty
// set matches nothing.
type OwnerSet []string

func (f OwnerSet) clause() (string, []any) {
	if len(f) == 0 {
		return "1=0", nil
	}
	args := make([]any, len(f))
	for i, owner := range f {
		args[i] = owner
	}
	return "owner_name IN (" + inPlaceholders(len(f)) + ")", args
}

// inPlaceholders renders n comma-separated SQL placeholders; n must be
// positive.
func inPlaceholders(n int) string {
	return strings.Repeat("?,", n-1) + "?"
}

// ModifiedRange keeps files whose mtime lies in [From, To] (epoch
// seconds); To <= 0 means unbounded above.
type ModifiedRange struct {
	From int64
	To   int64
}

func (f ModifiedRange) clause() (string, []any) {
	if f.To > 0 {
		return "mtime BETWEEN ? AND ?", []any{f.From, f.To}
	}
	return "mtime >= ?", []any{f.From}
}

// NamePattern keeps files whose base name matches a shell glob.
type NamePattern string

func (f NamePattern) clause() (string, []any) {
	return "filename GLOB ?", []any{string(f)}
}

// OnlyFiles excludes directory records.
type OnlyFiles struct{}

func (OnlyFiles) clause() (string, []any) { return "is_directory = 0", nil }

// OnlyErrors keeps only failed-extraction records.
type OnlyErrors struct{}

func (OnlyErrors) clause() (string, []any) { return "error_message IS NOT NULL", nil }
