// Package filter matches items against key/value query filters.
package filter

import (
	"strings"
)

// Predicate reports whether item matches the filter value.
type Predicate[T any] func(item T, filterValue string) bool

// StringValueProvider extracts a single string value from an item of type T.
type StringValueProvider[T any] func(T) string

// Matchers maps filter keys to the predicate applied for that key.
type Matchers[T any] map[string]Predicate[T]

// NormalizeString can be used to normalize a string value for filtering/comparison.
// The value is made lowercase and has any leading and/or trailing whitespace removed.
func NormalizeString(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Equals returns a Predicate that checks if the value extracted by the provider
// exactly matches the filter value (case-insensitive, normalized).
func Equals[T any](provider StringValueProvider[T]) Predicate[T] {
	return func(item T, val string) bool {
		return NormalizeString(provider(item)) == NormalizeString(val)
	}
}

// Partial returns a Predicate that checks if the value extracted by the provider
// contains the filter value as a substring (case-insensitive, normalized).
func Partial[T any](provider StringValueProvider[T]) Predicate[T] {
	return func(item T, val string) bool {
		return strings.Contains(NormalizeString(provider(item)), NormalizeString(val))
	}
}

// PartialAny returns a Predicate that checks if *ANY* of the values from the supplied providers
// contains the filter value as a substring (case-insensitive, normalized).
//
// Example:
//
// predicate := PartialAny(nameProvider, descriptionProvider),
// result := predicate(h, "health") // true if the name or the description mentions "health"
func PartialAny[T any](providers ...StringValueProvider[T]) Predicate[T] {
	return func(item T, val string) bool {
		q := NormalizeString(val)
		for _, p := range providers {
			if strings.Contains(NormalizeString(p(item)), q) {
				return true
			}
		}
		return false
	}
}

// Match applies filters to item. Keys without a matcher and empty values are ignored.
func Match[T any](item T, filters map[string]string, matchers Matchers[T]) bool {
	for key, val := range filters {
		if NormalizeString(val) == "" {
			continue
		}
		matcher, ok := matchers[NormalizeString(key)]
		if !ok {
			continue
		}
		if !matcher(item, val) {
			return false
		}
	}
	return true
}

// Apply returns the items that match every filter, preserving order.
func Apply[T any](items []T, filters map[string]string, matchers Matchers[T]) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if Match(item, filters, matchers) {
			out = append(out, item)
		}
	}
	return out
}
