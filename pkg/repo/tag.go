package repo

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nyxforge/gitcore/pkg/object"
)

// CreateTag creates or updates a lightweight tag ref under refs/tags/.
func (r *Repo) CreateTag(name string, target object.Hash, force bool) error {
	name = strings.TrimSpace(name)
	if err := validateTagName(name); err != nil {
		return fmt.Errorf("create tag: %w", err)
	}

	refName := "refs/tags/" + name
	if !force {
		if _, err := r.Refs.Resolve(refName); err == nil {
			return fmt.Errorf("create tag: tag %q already exists", name)
		}
	}
	committer, err := r.defaultPerson()
	if err != nil {
		return fmt.Errorf("create tag: %w", err)
	}
	if err := r.Refs.Update(refName, target, object.Hash{}, false, committer, "tag: "+name); err != nil {
		return fmt.Errorf("create tag: %w", err)
	}
	return nil
}

// CreateAnnotatedTag creates or updates an annotated tag ref under
// refs/tags/. The ref points at a stored tag object, which in turn
// points at target.
func (r *Repo) CreateAnnotatedTag(name string, target object.Hash, tagger object.Person, message string, force bool) (object.Hash, error) {
	name = strings.TrimSpace(name)
	if err := validateTagName(name); err != nil {
		return object.Hash{}, fmt.Errorf("create annotated tag: %w", err)
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return object.Hash{}, fmt.Errorf("create annotated tag: message is required")
	}

	targetType, _, err := r.Store.Get(target)
	if err != nil {
		return object.Hash{}, fmt.Errorf("create annotated tag: read target %s: %w", target, err)
	}

	refName := "refs/tags/" + name
	if !force {
		if _, err := r.Refs.Resolve(refName); err == nil {
			return object.Hash{}, fmt.Errorf("create annotated tag: tag %q already exists", name)
		}
	}

	tagHash, err := r.Store.PutTag(&object.Tag{
		Object:  target,
		Type:    targetType,
		Name:    name,
		Tagger:  tagger,
		Message: message,
	})
	if err != nil {
		return object.Hash{}, fmt.Errorf("create annotated tag: write tag object: %w", err)
	}

	if err := r.Refs.Update(refName, tagHash, object.Hash{}, false, tagger, "tag: "+name); err != nil {
		return object.Hash{}, fmt.Errorf("create annotated tag: %w", err)
	}
	return tagHash, nil
}

// DeleteTag removes a tag ref.
func (r *Repo) DeleteTag(name string) error {
	name = strings.TrimSpace(name)
	if err := validateTagName(name); err != nil {
		return fmt.Errorf("delete tag: %w", err)
	}

	refName := "refs/tags/" + name
	if _, err := r.Refs.Resolve(refName); err != nil {
		return fmt.Errorf("delete tag: tag %q does not exist", name)
	}
	committer, err := r.defaultPerson()
	if err != nil {
		return fmt.Errorf("delete tag: %w", err)
	}
	if err := r.Refs.Delete(refName, committer); err != nil {
		return fmt.Errorf("delete tag: %w", err)
	}
	return nil
}

// ResolveTag resolves a tag name under refs/tags/.
func (r *Repo) ResolveTag(name string) (object.Hash, error) {
	name = strings.TrimSpace(name)
	if err := validateTagName(name); err != nil {
		return object.Hash{}, fmt.Errorf("resolve tag: %w", err)
	}
	return r.Refs.Resolve("refs/tags/" + name)
}

// ListTags returns the names of all tags (without the refs/tags/ prefix),
// sorted.
func (r *Repo) ListTags() ([]string, error) {
	refs, err := r.Refs.List("refs/tags/")
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	names := make([]string, 0, len(refs))
	for full := range refs {
		names = append(names, strings.TrimPrefix(full, "refs/tags/"))
	}
	sort.Strings(names)
	return names, nil
}

func validateTagName(name string) error {
	if name == "" {
		return fmt.Errorf("tag name is required")
	}
	if strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/") {
		return fmt.Errorf("invalid tag name %q", name)
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("invalid tag name %q", name)
	}
	if strings.ContainsAny(name, " \t\n\r") {
		return fmt.Errorf("invalid tag name %q", name)
	}
	return nil
}

// FormatTZOffset renders t's zone as a signed four-digit offset, e.g.
// "+0000" or "-0500", for Person.TZOffset.
func FormatTZOffset(t time.Time) string {
	_, offset := t.Zone()
	sign := "+"
	if offset < 0 {
		sign = "-"
		offset = -offset
	}
	hours := offset / 3600
	minutes := (offset % 3600) / 60
	return fmt.Sprintf("%s%02d%02d", sign, hours, minutes)
}
