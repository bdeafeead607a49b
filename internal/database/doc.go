// Package database manages the shared relational store connection: dialect
// selection from a resolved connection string, pool limits, health checks and
// retryable transactions. This package is internal and should not be imported
// by external projects.
package database
