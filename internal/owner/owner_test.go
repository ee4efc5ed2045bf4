package owner

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-relay/internal/models"
	"github.com/miradorstack/mirador-relay/internal/utils"
)

func setupRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, out)
	}
	run("init")
	run("config", "user.name", "Test User")
	run("config", "user.email", "test@example.com")
	run("config", "commit.gpgsign", "false")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.py"), []byte("print('a')\nraise ValueError()\n"), 0o644))
	run("add", "app.py")
	run("commit", "-m", "initial")
	return dir
}

func TestResolveBlamesCommittedLine(t *testing.T) {
	dir := setupRepo(t)
	git, err := NewGit(context.Background())
	require.NoError(t, err)

	r := NewResolver(git, nil, Fallback("corp.io"), 0, utils.DiscardLogger())
	owner := r.Resolve(context.Background(), filepath.Join(dir, "app.py"), 2)
	assert.Equal(t, models.Owner{Name: "Test User", Email: "test@example.com"}, owner)

	head, err := git.Head(context.Background(), dir)
	require.NoError(t, err)
	assert.Len(t, head, 40)
}

func TestResolveFallbacks(t *testing.T) {
	dir := setupRepo(t)
	git, err := NewGit(context.Background())
	require.NoError(t, err)
	fallback := Fallback("corp.io")
	r := NewResolver(git, nil, fallback, 0, utils.DiscardLogger())
	ctx := context.Background()

	assert.Equal(t, fallback, r.Resolve(ctx, "", 0), "no location")
	assert.Equal(t, fallback, r.Resolve(ctx, filepath.Join(dir, "missing.py"), 1), "missing file")
	assert.Equal(t, fallback, r.Resolve(ctx, filepath.Join(dir, "app.py"), 99), "line out of range")

	outside := filepath.Join(t.TempDir(), "loose.py")
	require.NoError(t, os.WriteFile(outside, []byte("x\n"), 0o644))
	assert.Equal(t, fallback, r.Resolve(ctx, outside, 1), "no vcs history")
}

func TestFallbackOwner(t *testing.T) {
	o := Fallback("corp.io")
	assert.Equal(t, "devops-oncall@corp.io", o.Email)
	assert.Equal(t, "DevOps On-Call <devops-oncall@corp.io>", o.String())
}

func TestParsePorcelainUncommitted(t *testing.T) {
	_, err := parsePorcelain([]byte("0000 1 1 1\nauthor Not Committed Yet\nauthor-mail <not.committed.yet>\n"))
	assert.ErrorIs(t, err, ErrNotCommitted)
}

type fakeAccounts struct {
	id  string
	ok  bool
	err error
}

func (f fakeAccounts) FindAccountID(context.Context, string) (string, bool, error) {
	return f.id, f.ok, f.err
}

func TestFindAccount(t *testing.T) {
	ctx := context.Background()
	r := NewResolver(nil, fakeAccounts{id: "acc-1", ok: true}, Fallback(""), 0, utils.DiscardLogger())
	id, ok := r.FindAccount(ctx, "dev@corp.io")
	assert.True(t, ok)
	assert.Equal(t, "acc-1", id)

	r = NewResolver(nil, fakeAccounts{err: errors.New("503")}, Fallback(""), 0, utils.DiscardLogger())
	_, ok = r.FindAccount(ctx, "dev@corp.io")
	assert.False(t, ok)

	r = NewResolver(nil, nil, Fallback(""), 0, utils.DiscardLogger())
	_, ok = r.FindAccount(ctx, "dev@corp.io")
	assert.False(t, ok)
}
