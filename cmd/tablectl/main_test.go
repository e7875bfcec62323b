package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/tablekit/internal/core"
	"github.com/JonMunkholm/tablekit/internal/core/interchange"
	"github.com/JonMunkholm/tablekit/internal/web/middleware"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func runCmd(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), &env{stdout: &stdout, stderr: &stderr}, args)
	return stdout.String(), stderr.String(), err
}

func TestRunUsage(t *testing.T) {
	_, stderr, err := runCmd(t)
	assert.ErrorIs(t, err, errUsage)
	assert.Contains(t, stderr, "usage: tablectl")
	assert.Contains(t, stderr, "sanitize")

	_, stderr, err = runCmd(t, "frobnicate")
	assert.ErrorIs(t, err, errUsage)
	assert.Contains(t, stderr, `unknown command "frobnicate"`)
}

func TestSanitize(t *testing.T) {
	out, _, err := runCmd(t, "sanitize", "Q3 Sales!", "2024 Budget")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, []string{"Q3", "Sales!", "q3_sales"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"2024", "Budget", "2024_budget"}, strings.Fields(lines[1]))

	_, _, err = runCmd(t, "sanitize")
	assert.ErrorIs(t, err, errUsage)
}

func TestPreview(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.csv")
	require.NoError(t, os.WriteFile(path, []byte("Item,Qty\nWidget,3\nGadget,5\n"), 0o600))

	out, _, err := runCmd(t, "preview", "--file", path)
	require.NoError(t, err)

	var p interchange.Preview
	require.NoError(t, json.Unmarshal([]byte(out), &p))
	assert.Equal(t, "items.csv", p.FileName)
	assert.Equal(t, interchange.FormatCSV, p.Format)
	assert.Equal(t, 2, p.TotalRows)

	bad := filepath.Join(t.TempDir(), "items.xlsx")
	require.NoError(t, os.WriteFile(bad, []byte("x"), 0o600))
	_, _, err = runCmd(t, "preview", "-f", bad)
	var unsupported *core.UnsupportedFormatError
	assert.ErrorAs(t, err, &unsupported)
}

func TestToken(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", testSecret)
	t.Setenv("AUTH_JWT_ISSUER", "tablekit-dev")

	out, _, err := runCmd(t, "token", "--sub", "u-1", "--email", "ada@example.com", "--ttl", "1h")
	require.NoError(t, err)

	claims, err := middleware.NewTokenVerifier(testSecret, "tablekit-dev").Verify(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.Subject)
	assert.Equal(t, "ada@example.com", claims.Email)
	assert.Equal(t, "tablekit-dev", claims.Issuer)
}

func TestTokenRejectsShortSecret(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "short")
	_, _, err := runCmd(t, "token")
	assert.ErrorContains(t, err, "AUTH_JWT_SECRET")
}

func TestTablesMemoryBackend(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")

	out, _, err := runCmd(t, "tables")
	require.NoError(t, err)
	assert.Equal(t, []string{"ID", "NAME", "COLLECTION", "ROWS", "OWNER"}, strings.Fields(out))

	_, _, err = runCmd(t, "export")
	assert.ErrorIs(t, err, errUsage)

	_, _, err = runCmd(t, "export", "--table", "missing", "--format", "xml")
	assert.Error(t, err)
}

func TestUserRequiresChange(t *testing.T) {
	_, _, err := runCmd(t, "user", "--id", "u-1")
	assert.ErrorIs(t, err, errUsage)
}

func TestReportError(t *testing.T) {
	var buf bytes.Buffer
	reportError(&buf, core.NotFound("table", "t1"))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "tablectl: "))
	assert.Contains(t, lines[1], "(Code: TBL001)")

	buf.Reset()
	reportError(&buf, errors.New("disk on fire"))
	assert.Equal(t, "tablectl: disk on fire\n", buf.String())
}
