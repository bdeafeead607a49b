package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindingsSearchExcludesOwnSession(t *testing.T) {
	s, clock := setupClockedStore(t, Options{})
	ctx := context.Background()

	_, err := s.AddFinding(ctx, "s1", "auth flow", "token refresh races the logout handler", []string{"auth", "race"})
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, err = s.AddFinding(ctx, "s2", "auth middleware", "session cookie is httponly", []string{"auth"})
	require.NoError(t, err)

	// s1 searching "auth" sees only s2's finding.
	found, err := s.SearchFindings(ctx, "auth", "s1")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "s2", found[0].SessionID)
}

func TestFindingsSearchMatchesTags(t *testing.T) {
	s, _ := setupClockedStore(t, Options{})
	ctx := context.Background()

	_, err := s.AddFinding(ctx, "s1", "build system", "codegen step is not hermetic", []string{"ci", "codegen"})
	require.NoError(t, err)

	found, err := s.SearchFindings(ctx, "codegen", "s2")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, []string{"ci", "codegen"}, found[0].Tags())

	found, err = s.SearchFindings(ctx, "deploy", "s2")
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestFindingsNewestFirst(t *testing.T) {
	s, clock := setupClockedStore(t, Options{})
	ctx := context.Background()

	first, err := s.AddFinding(ctx, "s1", "db", "older", nil)
	require.NoError(t, err)
	clock.Advance(time.Second)
	second, err := s.AddFinding(ctx, "s1", "db", "newer", nil)
	require.NoError(t, err)

	found, err := s.SearchFindings(ctx, "db", "other")
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, second, found[0].ID)
	assert.Equal(t, first, found[1].ID)
}
