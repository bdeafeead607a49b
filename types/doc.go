// Package types provides core types shared across the coterm coordination layer.
// This package has ZERO dependencies on other coterm packages to avoid circular
// imports. All other packages should import types from here.
package types
