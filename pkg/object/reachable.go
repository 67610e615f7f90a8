package object

import "fmt"

// ReachableSet returns all object hashes reachable from roots by following
// object references (commit -> tree/parents, tree -> entries, tag ->
// target). Missing roots are skipped rather than treated as an error,
// since a root is commonly a ref tip that may point at a dangling or
// already-pruned object during gc.
func (s *Store) ReachableSet(roots []Hash) (map[Hash]struct{}, error) {
	out := make(map[Hash]struct{})
	stack := uniqueHashes(roots)

	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if h.IsZero() {
			continue
		}
		if _, ok := out[h]; ok {
			continue
		}
		if !s.Exists(h) {
			continue
		}
		out[h] = struct{}{}

		kind, data, err := s.Get(h)
		if err != nil {
			return nil, fmt.Errorf("reachable set read %s: %w", h, err)
		}
		refs, err := referencedHashes(kind, data)
		if err != nil {
			return nil, fmt.Errorf("reachable set parse %s (%s): %w", h, kind, err)
		}
		stack = append(stack, refs...)
	}

	return out, nil
}

func referencedHashes(kind ObjectType, data []byte) ([]Hash, error) {
	switch kind {
	case TypeBlob:
		return nil, nil
	case TypeTag:
		tag, err := DecodeTag(data)
		if err != nil {
			return nil, err
		}
		return []Hash{tag.Object}, nil
	case TypeCommit:
		commit, err := DecodeCommit(data)
		if err != nil {
			return nil, err
		}
		refs := make([]Hash, 0, 1+len(commit.Parents))
		refs = append(refs, commit.Tree)
		refs = append(refs, commit.Parents...)
		return refs, nil
	case TypeTree:
		tree, err := DecodeTree(data)
		if err != nil {
			return nil, err
		}
		refs := make([]Hash, 0, len(tree.Entries))
		for _, e := range tree.Entries {
			refs = append(refs, e.Hash)
		}
		return refs, nil
	default:
		return nil, fmt.Errorf("unsupported object type %q", kind)
	}
}

func uniqueHashes(in []Hash) []Hash {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[Hash]struct{}, len(in))
	out := make([]Hash, 0, len(in))
	for _, h := range in {
		if h.IsZero() {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	return out
}
