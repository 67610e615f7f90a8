// Package remote implements the object-set exchange interface: a thin
// HTTP transport for negotiating, fetching, and pushing objects and ref
// updates against a remote repository. The core object/index/repo
// packages never open a socket; everything network-facing lives here.
package remote

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/nyxforge/gitcore/pkg/object"
)

const (
	// ProtocolVersion is the current wire protocol version this client speaks.
	ProtocolVersion = "1"

	// ClientCapabilities lists every capability this client supports.
	ClientCapabilities = "pack,zstd,sideband"

	headerProtocol     = "Gitcore-Protocol"
	headerCapabilities = "Gitcore-Capabilities"
)

// ValidateHash checks that h is a well-formed 40-character lowercase hex
// SHA-1 object identifier.
func ValidateHash(h object.Hash) error {
	s := strings.TrimSpace(h.String())
	if s == "" || strings.Trim(s, "0") == "" {
		return fmt.Errorf("hash is empty")
	}
	if _, err := object.ParseHash(s); err != nil {
		return fmt.Errorf("invalid hash %q: %w", s, err)
	}
	return nil
}

// Capabilities is a set of protocol capability names.
type Capabilities struct {
	set map[string]struct{}
}

// ParseCapabilities parses a comma-separated capability string.
func ParseCapabilities(raw string) Capabilities {
	caps := Capabilities{set: make(map[string]struct{})}
	for _, c := range strings.Split(raw, ",") {
		c = strings.TrimSpace(c)
		if c != "" {
			caps.set[c] = struct{}{}
		}
	}
	return caps
}

// Has reports whether name is present.
func (c Capabilities) Has(name string) bool {
	_, ok := c.set[name]
	return ok
}

// Intersect returns the capabilities present in both sets.
func (c Capabilities) Intersect(other Capabilities) Capabilities {
	result := Capabilities{set: make(map[string]struct{})}
	for k := range c.set {
		if _, ok := other.set[k]; ok {
			result.set[k] = struct{}{}
		}
	}
	return result
}

func (c Capabilities) String() string {
	names := make([]string, 0, len(c.set))
	for k := range c.set {
		names = append(names, k)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

// RemoteError is a structured error surfaced by the remote server.
type RemoteError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
	Detail  string `json:"detail,omitempty"`
}

func (e *RemoteError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (%s): %s", e.Message, e.Code, e.Detail)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

func tryParseRemoteError(body []byte) *RemoteError {
	var re RemoteError
	if err := json.Unmarshal(body, &re); err != nil {
		return nil
	}
	if re.Message == "" && re.Code == "" {
		return nil
	}
	return &re
}

// Negotiate implements the core's negotiate(remote-refs, local-refs) ->
// wanted-oids contract: every remote ref target not already present in
// the local object store is wanted. This is a conservative, transport-side
// negotiation; FetchIntoStore additionally walks the object graph to
// guarantee closure regardless of what the remote's batch endpoint chose
// to include in a given round.
func Negotiate(store *object.Store, remoteRefs map[string]object.Hash, localRefs map[string]object.Hash) []object.Hash {
	wanted := make([]object.Hash, 0, len(remoteRefs))
	for _, h := range remoteRefs {
		if h.IsZero() {
			continue
		}
		if store.Exists(h) {
			continue
		}
		wanted = append(wanted, h)
	}
	sort.Slice(wanted, func(i, j int) bool { return wanted[i].String() < wanted[j].String() })
	return wanted
}
