package repo

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nyxforge/gitcore/pkg/index"
	"github.com/nyxforge/gitcore/pkg/object"
	"github.com/nyxforge/gitcore/pkg/refstore"
)

// ErrUnresolvedConflicts is returned by Commit when the index still holds
// stage 1/2/3 entries from an unresolved merge.
var ErrUnresolvedConflicts = errors.New("repo: index has unresolved conflicts")

// ErrEmptyCommit is returned by Commit when the resulting tree would be
// identical to the current HEAD commit's tree.
var ErrEmptyCommit = errors.New("repo: nothing to commit, working tree matches HEAD")

// CommitSigner signs a commit's canonical pre-signature payload and
// returns an opaque signature string to embed in the commit message.
type CommitSigner func(payload []byte) (string, error)

const signatureTrailerPrefix = "gitcore-signature: "

// CommitSigningPayload builds the bytes a CommitSigner signs: the same
// header fields that end up in the commit object, computed before the
// signature trailer is appended to the message.
func CommitSigningPayload(tree object.Hash, parents []object.Hash, author, committer object.Person, message string) []byte {
	var payload []byte
	payload = append(payload, fmt.Sprintf("tree %s\n", tree)...)
	for _, p := range parents {
		payload = append(payload, fmt.Sprintf("parent %s\n", p)...)
	}
	payload = append(payload, fmt.Sprintf("author %s <%s> %d %s\n", author.Name, author.Email, author.Timestamp, author.TZOffset)...)
	payload = append(payload, fmt.Sprintf("committer %s <%s> %d %s\n", committer.Name, committer.Email, committer.Timestamp, committer.TZOffset)...)
	payload = append(payload, '\n')
	payload = append(payload, message...)
	return payload
}

// Commit records the current index as a new commit on the current branch
// (or detached HEAD), unsigned.
func (r *Repo) Commit(message string, author, committer object.Person) (object.Hash, error) {
	return r.CommitWithSigner(message, author, committer, nil)
}

// CommitWithSigner is Commit with an optional signer hook. When signer is
// non-nil, its signature is appended to the commit message as a trailer
// line before the commit object is written — this format has no separate
// signature header, so the trailer becomes part of the hashed payload.
func (r *Repo) CommitWithSigner(message string, author, committer object.Person, signer CommitSigner) (object.Hash, error) {
	idx, err := r.ReadIndex()
	if err != nil {
		return object.Hash{}, fmt.Errorf("commit: %w", err)
	}
	if idx.HasConflicts() {
		return object.Hash{}, fmt.Errorf("commit: %w", ErrUnresolvedConflicts)
	}

	treeHash, err := index.WriteTree(r.Store, idx)
	if err != nil {
		return object.Hash{}, fmt.Errorf("commit: write tree: %w", err)
	}

	var parents []object.Hash
	parentHash, err := r.Refs.Resolve("HEAD")
	hasParent := err == nil
	if err != nil && !errors.Is(err, refstore.ErrNotFound) {
		return object.Hash{}, fmt.Errorf("commit: resolve HEAD: %w", err)
	}
	if hasParent {
		parents = []object.Hash{parentHash}

		parentCommit, err := r.Store.GetCommit(parentHash)
		if err != nil {
			return object.Hash{}, fmt.Errorf("commit: read parent: %w", err)
		}
		if parentCommit.Tree == treeHash {
			return object.Hash{}, fmt.Errorf("commit: %w", ErrEmptyCommit)
		}
	}

	if signer != nil {
		payload := CommitSigningPayload(treeHash, parents, author, committer, message)
		sig, err := signer(payload)
		if err != nil {
			return object.Hash{}, fmt.Errorf("commit: sign: %w", err)
		}
		message = message + "\n\n" + signatureTrailerPrefix + sig + "\n"
	}

	commitHash, err := r.Store.PutCommit(&object.Commit{
		Tree:      treeHash,
		Parents:   parents,
		Author:    author,
		Committer: committer,
		Message:   message,
	})
	if err != nil {
		return object.Hash{}, fmt.Errorf("commit: write commit object: %w", err)
	}

	targetRef, err := r.headUpdateTarget()
	if err != nil {
		return object.Hash{}, fmt.Errorf("commit: %w", err)
	}

	var oldHash object.Hash
	if hasParent {
		oldHash = parentHash
	}
	if err := r.Refs.Update(targetRef, commitHash, oldHash, true, committer, "commit: "+firstLine(message)); err != nil {
		return object.Hash{}, fmt.Errorf("commit: update ref %q: %w", targetRef, err)
	}

	r.invalidateStatusCache()
	return commitHash, nil
}

// headUpdateTarget returns the ref that a commit/merge should CAS-update:
// the current branch's ref path, or the literal "HEAD" when detached.
func (r *Repo) headUpdateTarget() (string, error) {
	head, err := r.Refs.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	if head == "" || !strings.HasPrefix(head, "refs/") {
		return "HEAD", nil
	}
	return head, nil
}

func firstLine(s string) string {
	for i, c := range s {
		if c == '\n' {
			return s[:i]
		}
	}
	return s
}

// Log walks first-parent history from start, returning at most limit
// commits (limit <= 0 means unlimited).
func (r *Repo) Log(start object.Hash, limit int) ([]*object.Commit, error) {
	var out []*object.Commit
	cur := start
	for {
		if limit > 0 && len(out) >= limit {
			break
		}
		c, err := r.Store.GetCommit(cur)
		if err != nil {
			return nil, fmt.Errorf("log: read %s: %w", cur, err)
		}
		out = append(out, c)
		if len(c.Parents) == 0 {
			break
		}
		cur = c.Parents[0]
	}
	return out, nil
}
