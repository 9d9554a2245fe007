// Package capability implements the registry of synthesized capabilities.
//
// A capability is a named unit of code stored as one file under the tools
// directory. Each backend fixes a contract (a description, a parameter
// description and an entry point exposed under well-known names) and knows
// how to check, load and invoke sources in its language. Every lookup
// reloads from disk so the registry never serves stale code.
package capability

import (
	"context"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/zeebo/blake3"
)

// NoCapabilitiesText is rendered by an empty Listing.
const NoCapabilitiesText = "There are no capabilities yet"

// Capability describes one stored capability.
type Capability struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  string `json:"parameters"`
	Source      string `json:"-"`
	Validated   bool   `json:"validated"`
	Digest      string `json:"digest"`
}

// ShortDigest returns the first 12 hex digits of the source digest.
func (c *Capability) ShortDigest() string {
	if len(c.Digest) < 12 {
		return c.Digest
	}
	return c.Digest[:12]
}

// Instance is a loaded capability ready for invocation.
type Instance interface {
	Description() string
	Parameters() string
	Run(ctx context.Context, args map[string]interface{}) (string, error)
}

// Handle pairs a capability's metadata with its loaded instance.
type Handle struct {
	Capability
	instance Instance
}

// Run invokes the capability. Panics raised by the capability are
// returned as errors.
func (h *Handle) Run(ctx context.Context, args map[string]interface{}) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("capability %s panicked: %v", h.Name, r)
		}
	}()
	if args == nil {
		args = map[string]interface{}{}
	}
	return h.instance.Run(ctx, args)
}

// Listing maps capability names to "description. Params: parameters".
type Listing map[string]string

// String renders the listing for prompts, sorted by name.
func (l Listing) String() string {
	if len(l) == 0 {
		return NoCapabilitiesText
	}
	names := make([]string, 0, len(l))
	for name := range l {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		fmt.Fprintf(&sb, "- %s: %s\n", name, l[name])
	}
	return strings.TrimRight(sb.String(), "\n")
}

func listingEntry(description, parameters string) string {
	return fmt.Sprintf("%s. Params: %s", strings.TrimRight(strings.TrimSpace(description), "."), strings.TrimSpace(parameters))
}

var (
	validName    = regexp.MustCompile(`^[a-z0-9_]+$`)
	nameSpaceRun = regexp.MustCompile(`[\s-]+`)
)

// NormalizeName lower-cases a capability name and folds spaces and dashes
// into underscores. Names with any other character outside [a-z0-9_],
// including path separators, are rejected.
func NormalizeName(name string) (string, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	n = nameSpaceRun.ReplaceAllString(n, "_")
	if n == "" || !validName.MatchString(n) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return n, nil
}

// Digest returns the hex BLAKE3 fingerprint of a source.
func Digest(source string) string {
	sum := blake3.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}
