// Package conv provides checked integer conversions between arena words,
// slot indexes and handle ids.
package conv
