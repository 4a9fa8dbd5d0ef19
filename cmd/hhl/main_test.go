package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hedgehog-learn/internal/auth"
	"hedgehog-learn/internal/config"
	"hedgehog-learn/internal/sync"
)

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
}

func contentTree(t *testing.T, courseModules string) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "modules", "intro", "README.md"), "---\ntitle: Intro\n---\nText\n")
	writeFile(t, filepath.Join(root, "courses", "c1.json"),
		`{"slug":"c1","title":"C1","summary_markdown":"S","modules":`+courseModules+`}`)
	return root
}

// execute runs the root command and returns stdout, stderr and the error.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), errOut.String(), err
}

func TestValidateCommand(t *testing.T) {
	t.Setenv("CONTENT_DIR", contentTree(t, `["intro"]`))
	out, _, err := execute(t, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "All references valid: 1 modules, 1 courses, 0 pathways")

	t.Setenv("CONTENT_DIR", contentTree(t, `["intro","missing-module"]`))
	_, errOut, err := execute(t, "validate")
	require.ErrorIs(t, err, errFailed)
	assert.Contains(t, errOut, "missing-module")
}

func TestSyncAbortsOnReferenceErrors(t *testing.T) {
	t.Setenv("CONTENT_DIR", contentTree(t, `["missing-module"]`))
	t.Setenv("HUBSPOT_API_TOKEN", "test-token")
	// A request would fail against this address; validation must stop first.
	t.Setenv("HUBSPOT_BASE_URL", "http://127.0.0.1:1")
	t.Setenv("HUBDB_COURSES_TABLE_ID", "t1")

	_, errOut, err := execute(t, "sync", "courses", "--dry-run")
	require.ErrorIs(t, err, errFailed)
	assert.Contains(t, errOut, "missing-module")
}

func TestSyncRequiresToken(t *testing.T) {
	t.Setenv("CONTENT_DIR", contentTree(t, `["intro"]`))
	for _, k := range []string{"HUBSPOT_PROJECT_ACCESS_TOKEN", "HUBSPOT_API_TOKEN", "HUBSPOT_PRIVATE_APP_TOKEN"} {
		t.Setenv(k, "")
	}
	_, _, err := execute(t, "sync", "modules")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "HUBSPOT_API_TOKEN"))
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-secret")
	out, _, err := execute(t, "token", "--contact-id", "42", "--email", "learner@example.com")
	require.NoError(t, err)

	c, err := auth.NewTokens("cli-secret").Verify(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, auth.Contact{ContactID: "42", Email: "learner@example.com"}, c)
}

func TestExitStatus(t *testing.T) {
	assert.NoError(t, exitStatus(0, 0))
	assert.ErrorIs(t, exitStatus(1, 0), errFailed)
	assert.ErrorIs(t, exitStatus(0, 2), errFailed)
}

func TestSyncOptionsArchiveOnlyForModules(t *testing.T) {
	archive := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(archive, "Old-Course"), 0o755))
	t.Setenv("SYNC_ARCHIVE_DIR", archive)
	cfg = config.Load()

	assert.Equal(t, map[string]bool{"old-course": true}, syncOptions(sync.Modules, false).ArchivedSlugs)
	assert.Empty(t, syncOptions(sync.Courses, false).ArchivedSlugs)
	assert.Empty(t, syncOptions(sync.Pathways, true).ArchivedSlugs)
}
