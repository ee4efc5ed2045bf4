package main

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-relay/internal/document"
	"github.com/miradorstack/mirador-relay/internal/models"
	"github.com/miradorstack/mirador-relay/internal/repo"
)

func TestMockServesJiraClient(t *testing.T) {
	srv := httptest.NewServer(newTracker("OPS").routes())
	defer srv.Close()

	for _, richText := range []bool{true, false} {
		client := repo.NewJiraClient(repo.JiraConfig{BaseURL: srv.URL, Email: "ci@example.com", Token: "t", Project: "OPS", RichText: richText})
		ctx := context.Background()

		label := "fp:" + map[bool]string{true: "rich", false: "plain"}[richText]
		ref, err := client.CreateIssue(ctx, models.Ticket{Summary: "Fix [svc] boom", IssueType: "Bug", Labels: []string{label}}, document.Document{})
		require.NoError(t, err)

		refs, err := client.SearchByLabel(ctx, label, 0)
		require.NoError(t, err)
		require.Len(t, refs, 1)
		assert.Equal(t, ref.Key, refs[0].Key)

		require.NoError(t, client.AddComment(ctx, ref.Key, document.Document{}))

		id, ok, err := client.FindAccountID(ctx, "dev@example.com")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "mock-dev", id)

		name, err := client.CheckProject(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Mock OPS", name)
	}
}

func TestMockRejectsAnonymousCalls(t *testing.T) {
	srv := httptest.NewServer(newTracker("OPS").routes())
	defer srv.Close()

	client := repo.NewJiraClient(repo.JiraConfig{BaseURL: srv.URL, Project: "OPS"})
	_, err := client.CheckProject(context.Background())
	assert.Error(t, err)
}
