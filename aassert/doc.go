// Package aassert has assertions going beyond stretchr/testify/assert.
// The functions follow the testify conventions: they take the TestingT first
// and return whether the assertion passed.
package aassert
