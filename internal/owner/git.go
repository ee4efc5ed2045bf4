package owner

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/miradorstack/mirador-relay/internal/models"
)

// ErrNotCommitted is returned when blame attributes a line to the working tree.
var ErrNotCommitted = errors.New("line is not committed")

// Git runs the git CLI.
type Git struct {
	gitPath string
}

// NewGit locates git on PATH and checks that it runs.
func NewGit(ctx context.Context) (*Git, error) {
	gitPath, err := exec.LookPath("git")
	if err != nil {
		return nil, fmt.Errorf("git not found in PATH: %w", err)
	}
	if err := exec.CommandContext(ctx, gitPath, "version").Run(); err != nil {
		return nil, fmt.Errorf("git command failed: %w", err)
	}
	return &Git{gitPath: gitPath}, nil
}

// Blame attributes one line of file to its last author. git runs inside the file's
// directory so relative and absolute paths both work from any checkout.
func (g *Git) Blame(ctx context.Context, file string, line int) (models.Owner, error) {
	if line <= 0 {
		return models.Owner{}, fmt.Errorf("invalid line %d", line)
	}
	dir, base := filepath.Split(file)
	if dir == "" {
		dir = "."
	}
	span := strconv.Itoa(line) + "," + strconv.Itoa(line)
	cmd := exec.CommandContext(ctx, g.gitPath, "-C", dir, "blame", "-L", span, "--porcelain", "--", base)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		return models.Owner{}, fmt.Errorf("git blame %s:%d failed: %w: %s", file, line, err, strings.TrimSpace(stderr.String()))
	}
	return parsePorcelain(output)
}

// Head returns the commit checked out in dir.
func (g *Git) Head(ctx context.Context, dir string) (string, error) {
	return g.revParse(ctx, dir, "HEAD")
}

// Branch returns the branch checked out in dir, or "HEAD" when detached.
func (g *Git) Branch(ctx context.Context, dir string) (string, error) {
	return g.revParse(ctx, dir, "--abbrev-ref", "HEAD")
}

func (g *Git) revParse(ctx context.Context, dir string, args ...string) (string, error) {
	if dir == "" {
		dir = "."
	}
	cmd := exec.CommandContext(ctx, g.gitPath, append([]string{"-C", dir, "rev-parse"}, args...)...)
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git rev-parse %s failed in %s: %w", strings.Join(args, " "), dir, err)
	}
	return strings.TrimSpace(string(output)), nil
}

func parsePorcelain(output []byte) (models.Owner, error) {
	var owner models.Owner
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "author "):
			owner.Name = strings.TrimPrefix(line, "author ")
		case strings.HasPrefix(line, "author-mail "):
			owner.Email = strings.Trim(strings.TrimPrefix(line, "author-mail "), "<>")
		}
	}
	if err := scanner.Err(); err != nil {
		return models.Owner{}, err
	}
	if owner.Email == "" {
		return models.Owner{}, errors.New("blame output has no author")
	}
	if owner.Email == "not.committed.yet" {
		return models.Owner{}, ErrNotCommitted
	}
	return owner, nil
}
