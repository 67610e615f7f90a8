package main

import (
	"fmt"
	"strings"

	"github.com/nyxforge/gitcore/pkg/object"
	"github.com/nyxforge/gitcore/pkg/repo"
)

const defaultRemoteName = "origin"

// resolveRemoteNameAndURL accepts either a configured remote name or a raw
// URL in arg, defaulting to "origin" when arg is empty.
func resolveRemoteNameAndURL(r *repo.Repo, arg string) (name, url string, err error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		url, err := r.RemoteURL(defaultRemoteName)
		if err != nil {
			return "", "", fmt.Errorf("no remote specified and no %q remote configured: %w", defaultRemoteName, err)
		}
		return defaultRemoteName, url, nil
	}
	if url, err := r.RemoteURL(arg); err == nil {
		return arg, url, nil
	}
	return "anonymous", arg, nil
}

// remoteTrackingRefName builds the local tracking ref for a remote branch,
// e.g. "refs/remotes/origin/main" from remote "origin" and remoteRef
// "heads/main".
func remoteTrackingRefName(remoteName, remoteRef string) string {
	name := strings.TrimPrefix(remoteRef, "heads/")
	return "refs/remotes/" + remoteName + "/" + name
}

// localRefTips collects every locally known ref target, used as the
// "haves" side of fetch/push negotiation.
func localRefTips(r *repo.Repo) ([]object.Hash, error) {
	refs, err := r.Refs.List("refs/")
	if err != nil {
		return nil, err
	}
	out := make([]object.Hash, 0, len(refs))
	for _, h := range refs {
		if !h.IsZero() {
			out = append(out, h)
		}
	}
	return out, nil
}
