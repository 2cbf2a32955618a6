// Package sanitizer normalizes request input before validation.
//
// All functions are idempotent: applying them twice gives the same result as
// applying them once. They never fail; input that cannot be normalized is
// returned trimmed and left for the validator to reject.
package sanitizer
