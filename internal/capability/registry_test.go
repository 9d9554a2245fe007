package capability

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const upperSource = `package main

import "strings"

const Description = "Upper-cases text"

const Parameters = "text: the text to transform"

func Run(args map[string]interface{}) (string, error) {
	text, _ := args["text"].(string)
	return strings.ToUpper(text), nil
}
`

const reverseSource = `package main

const Description = "Reverses text."

const Parameters = "text: the text to reverse"

func Run(args map[string]interface{}) (string, error) {
	text, _ := args["text"].(string)
	r := []rune(text)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r), nil
}
`

func newGoRegistry(t *testing.T) *Registry {
	t.Helper()
	backend, err := NewGoBackend(SafetyConfig{AllowFileSystem: true})
	require.NoError(t, err)
	reg, err := NewRegistry(filepath.Join(t.TempDir(), "tools"), backend)
	require.NoError(t, err)
	return reg
}

// =============================================================================
// ADD / GET / DELETE
// =============================================================================

func TestRegistry_AddGetRun(t *testing.T) {
	reg := newGoRegistry(t)
	ctx := context.Background()

	added, err := reg.Add(ctx, "Upper_Text", upperSource)
	require.NoError(t, err)
	assert.True(t, added)
	assert.FileExists(t, filepath.Join(reg.Dir(), "upper_text.go"))

	h, err := reg.Get(ctx, "UPPER_TEXT")
	require.NoError(t, err)
	assert.Equal(t, "upper_text", h.Name)
	assert.Equal(t, "Upper-cases text", h.Description)
	assert.Equal(t, "text: the text to transform", h.Parameters)
	assert.True(t, h.Validated)
	assert.Equal(t, Digest(upperSource), h.Digest)
	assert.Len(t, h.ShortDigest(), 12)

	out, err := h.Run(ctx, map[string]interface{}{"text": "hello"})
	require.NoError(t, err)
	assert.Equal(t, "HELLO", out)
}

func TestRegistry_NamePermanence(t *testing.T) {
	reg := newGoRegistry(t)
	ctx := context.Background()

	added, err := reg.Add(ctx, "transform", upperSource)
	require.NoError(t, err)
	require.True(t, added)

	added, err = reg.Add(ctx, "transform", reverseSource)
	require.NoError(t, err)
	assert.False(t, added, "second add under the same name must be refused")

	src, err := reg.Source("transform")
	require.NoError(t, err)
	assert.Equal(t, upperSource, src, "original source must be untouched")
}

func TestRegistry_AddReleasesNameOnWriteFailure(t *testing.T) {
	reg := newGoRegistry(t)
	ctx := context.Background()

	closeFile = func(f *os.File) error {
		f.Close()
		return errors.New("disk full")
	}
	t.Cleanup(func() { closeFile = (*os.File).Close })

	added, err := reg.Add(ctx, "transform", upperSource)
	assert.Error(t, err)
	assert.False(t, added)
	assert.NoFileExists(t, filepath.Join(reg.Dir(), "transform.go"))

	closeFile = (*os.File).Close
	added, err = reg.Add(ctx, "transform", upperSource)
	require.NoError(t, err)
	assert.True(t, added, "the name is free again after a failed write")
}

func TestRegistry_DeleteThenGetAbsent(t *testing.T) {
	reg := newGoRegistry(t)
	ctx := context.Background()

	_, err := reg.Add(ctx, "reverse_text", reverseSource)
	require.NoError(t, err)

	_, err = reg.Get(ctx, "reverse_text")
	require.NoError(t, err)

	deleted, err := reg.Delete(ctx, "reverse_text")
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = reg.Get(ctx, "reverse_text")
	assert.ErrorIs(t, err, ErrNotFound)

	deleted, err = reg.Delete(ctx, "reverse_text")
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = reg.Source("reverse_text")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_InvalidNames(t *testing.T) {
	reg := newGoRegistry(t)
	ctx := context.Background()

	for _, name := range []string{"", "../escape", "a/b", "semi;colon", "dot.name"} {
		t.Run(name, func(t *testing.T) {
			added, err := reg.Add(ctx, name, upperSource)
			assert.False(t, added)
			assert.ErrorIs(t, err, ErrInvalidName)

			_, err = reg.Get(ctx, name)
			assert.ErrorIs(t, err, ErrInvalidName)
		})
	}
}

func TestNormalizeName(t *testing.T) {
	tests := map[string]string{
		"list_files":       "list_files",
		"List Files":       "list_files",
		"  fetch-url  ":    "fetch_url",
		"Count_Words2":     "count_words2",
		"multi  space-run": "multi_space_run",
	}
	for in, want := range tests {
		got, err := NormalizeName(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
}

// =============================================================================
// LOAD FAILURES
// =============================================================================

func TestRegistry_ContractAndLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		wantErr error
	}{
		{
			name:    "missing_run",
			source:  "package main\n\nconst Description = \"d\"\n\nconst Parameters = \"p\"\n",
			wantErr: ErrContract,
		},
		{
			name:    "missing_description",
			source:  "package main\n\nconst Parameters = \"p\"\n\nfunc Run(args map[string]interface{}) (string, error) { return \"\", nil }\n",
			wantErr: ErrContract,
		},
		{
			name:    "wrong_signature",
			source:  "package main\n\nconst Description = \"d\"\n\nconst Parameters = \"p\"\n\nfunc Run(s string) string { return s }\n",
			wantErr: ErrContract,
		},
		{
			name:    "syntax_error",
			source:  "package main\n\nfunc Run( {\n",
			wantErr: ErrLoad,
		},
		{
			name:    "forbidden_import",
			source:  "package main\n\nimport \"os/exec\"\n\nconst Description = \"d\"\n\nconst Parameters = \"p\"\n\nfunc Run(args map[string]interface{}) (string, error) {\n\tout, err := exec.Command(\"id\").Output()\n\treturn string(out), err\n}\n",
			wantErr: ErrLoad,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := newGoRegistry(t)
			ctx := context.Background()

			added, err := reg.Add(ctx, tt.name, tt.source)
			require.NoError(t, err)
			require.True(t, added)

			_, err = reg.Get(ctx, tt.name)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

// =============================================================================
// LIST
// =============================================================================

func TestRegistry_ListEmpty(t *testing.T) {
	reg := newGoRegistry(t)

	listing, err := reg.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, listing)
	assert.Equal(t, NoCapabilitiesText, listing.String())
}

func TestRegistry_ListSkipsBrokenAndForeignFiles(t *testing.T) {
	reg := newGoRegistry(t)
	ctx := context.Background()

	_, err := reg.Add(ctx, "upper_text", upperSource)
	require.NoError(t, err)
	_, err = reg.Add(ctx, "reverse_text", reverseSource)
	require.NoError(t, err)
	_, err = reg.Add(ctx, "broken", "package main\n")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(reg.Dir(), "notes.txt"), []byte("x"), 0644))

	listing, err := reg.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, Listing{
		"reverse_text": "Reverses text. Params: text: the text to reverse",
		"upper_text":   "Upper-cases text. Params: text: the text to transform",
	}, listing)

	rendered := listing.String()
	assert.True(t, strings.Index(rendered, "reverse_text") < strings.Index(rendered, "upper_text"))

	names, err := reg.Names()
	require.NoError(t, err)
	assert.Equal(t, []string{"broken", "reverse_text", "upper_text"}, names)
}

func TestRegistry_ListReloadsFromDisk(t *testing.T) {
	reg := newGoRegistry(t)
	ctx := context.Background()

	_, err := reg.Add(ctx, "upper_text", upperSource)
	require.NoError(t, err)

	// Replace the file behind the registry's back.
	require.NoError(t, os.WriteFile(filepath.Join(reg.Dir(), "upper_text.go"),
		[]byte(strings.Replace(upperSource, "Upper-cases text", "Shouts text", 1)), 0644))

	listing, err := reg.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Shouts text. Params: text: the text to transform", listing["upper_text"])
}

// =============================================================================
// INVOCATION
// =============================================================================

func TestHandle_RunErrorsAndPanics(t *testing.T) {
	reg := newGoRegistry(t)
	ctx := context.Background()

	failing := `package main

import "errors"

const Description = "Always fails"

const Parameters = "none"

func Run(args map[string]interface{}) (string, error) {
	return "", errors.New("boom")
}
`
	panicking := `package main

const Description = "Indexes out of range"

const Parameters = "none"

func Run(args map[string]interface{}) (string, error) {
	var xs []int
	return string(rune(xs[3])), nil
}
`
	_, err := reg.Add(ctx, "failing", failing)
	require.NoError(t, err)
	_, err = reg.Add(ctx, "panicking", panicking)
	require.NoError(t, err)

	h, err := reg.Get(ctx, "failing")
	require.NoError(t, err)
	_, err = h.Run(ctx, nil)
	assert.EqualError(t, err, "boom")

	h, err = reg.Get(ctx, "panicking")
	require.NoError(t, err)
	_, err = h.Run(ctx, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
}

func TestHandle_RunAbandonedOnTimeout(t *testing.T) {
	reg := newGoRegistry(t)

	slow := `package main

import "time"

const Description = "Sleeps"

const Parameters = "none"

func Run(args map[string]interface{}) (string, error) {
	time.Sleep(2 * time.Second)
	return "late", nil
}
`
	_, err := reg.Add(context.Background(), "slow", slow)
	require.NoError(t, err)

	h, err := reg.Get(context.Background(), "slow")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = h.Run(ctx, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// =============================================================================
// CHECK
// =============================================================================

func TestRegistry_Check(t *testing.T) {
	reg := newGoRegistry(t)

	report := reg.Check(upperSource)
	assert.True(t, report.Safe)
	assert.Empty(t, report.Summary())

	report = reg.Check("package main\n\nfunc Run( {")
	assert.False(t, report.Safe)
	require.Len(t, report.Violations, 1)
	assert.Equal(t, ViolationParseError, report.Violations[0].Type)
	assert.Contains(t, report.Summary(), "syntax check failed")
}
