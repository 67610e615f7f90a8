package object

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// MalformedObjectError reports a decode failure with the offending reason,
// per the spec's Corrupt(kind, detail) taxonomy.
type MalformedObjectError struct {
	Kind   ObjectType
	Reason string
}

func (e *MalformedObjectError) Error() string {
	return fmt.Sprintf("malformed %s object: %s", e.Kind, e.Reason)
}

func malformed(kind ObjectType, reason string, args ...interface{}) error {
	return &MalformedObjectError{Kind: kind, Reason: fmt.Sprintf(reason, args...)}
}

// ---------------------------------------------------------------------
// Blob
// ---------------------------------------------------------------------

// EncodeBlob returns the blob's canonical payload: raw bytes, verbatim.
func EncodeBlob(b *Blob) []byte {
	out := make([]byte, len(b.Data))
	copy(out, b.Data)
	return out
}

// DecodeBlob is the identity decode of a blob payload.
func DecodeBlob(data []byte) (*Blob, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return &Blob{Data: out}, nil
}

// ---------------------------------------------------------------------
// Tree
// ---------------------------------------------------------------------

// treeSortKey returns the name used for I5 ordering: directory entries
// sort as though their name had a trailing slash.
func treeSortKey(e TreeEntry) string {
	if e.IsDir() {
		return e.Name + "/"
	}
	return e.Name
}

// EncodeTree returns the tree's canonical payload: entries sorted by
// treeSortKey, each "<mode> <name>\x00<20-byte-oid>" concatenated with no
// separators between entries.
func EncodeTree(t *Tree) ([]byte, error) {
	sorted := make([]TreeEntry, len(t.Entries))
	copy(sorted, t.Entries)
	sort.Slice(sorted, func(i, j int) bool {
		return treeSortKey(sorted[i]) < treeSortKey(sorted[j])
	})

	var buf bytes.Buffer
	for i, e := range sorted {
		if strings.ContainsAny(e.Name, "/\x00") {
			return nil, fmt.Errorf("encode tree: entry %q: name must not contain '/' or NUL", e.Name)
		}
		if i > 0 && treeSortKey(sorted[i-1]) == treeSortKey(e) {
			return nil, fmt.Errorf("encode tree: duplicate entry name %q", e.Name)
		}
		buf.WriteString(e.Mode)
		buf.WriteByte(' ')
		buf.WriteString(e.Name)
		buf.WriteByte(0)
		buf.Write(e.Hash[:])
	}
	return buf.Bytes(), nil
}

// DecodeTree parses a tree's canonical payload. It rejects entries missing
// a NUL name terminator and entries that are not in canonical I5 order.
func DecodeTree(data []byte) (*Tree, error) {
	t := &Tree{}
	prevKey := ""
	first := true

	for len(data) > 0 {
		sp := bytes.IndexByte(data, ' ')
		if sp < 0 {
			return nil, malformed(TypeTree, "entry missing mode/name separator")
		}
		mode := string(data[:sp])
		rest := data[sp+1:]

		nul := bytes.IndexByte(rest, 0)
		if nul < 0 {
			return nil, malformed(TypeTree, "entry %q missing NUL name terminator", mode)
		}
		name := string(rest[:nul])
		rest = rest[nul+1:]
		if len(rest) < HashSize {
			return nil, malformed(TypeTree, "entry %q: truncated oid", name)
		}
		var h Hash
		copy(h[:], rest[:HashSize])
		data = rest[HashSize:]

		entry := TreeEntry{Mode: mode, Name: name, Hash: h}
		key := treeSortKey(entry)
		if !first && key <= prevKey {
			return nil, malformed(TypeTree, "entries out of order at %q", name)
		}
		prevKey = key
		first = false

		t.Entries = append(t.Entries, entry)
	}
	return t, nil
}

// ---------------------------------------------------------------------
// Person
// ---------------------------------------------------------------------

func encodePerson(p Person) string {
	return fmt.Sprintf("%s <%s> %d %s", p.Name, p.Email, p.Timestamp, p.TZOffset)
}

// FormatPersonIdent renders p the same way commit/tag headers do
// ("Name <email> ts tz"), for callers outside this package that need an
// ident string without a full commit/tag encode, e.g. reflog lines.
func FormatPersonIdent(p Person) string {
	return encodePerson(p)
}

func decodePerson(kind ObjectType, field, s string) (Person, error) {
	emailStart := strings.IndexByte(s, '<')
	emailEnd := strings.IndexByte(s, '>')
	if emailStart < 0 || emailEnd < emailStart {
		return Person{}, malformed(kind, "%s: missing <email>", field)
	}
	name := strings.TrimSpace(s[:emailStart])
	email := s[emailStart+1 : emailEnd]

	rest := strings.TrimSpace(s[emailEnd+1:])
	parts := strings.SplitN(rest, " ", 2)
	if len(parts) != 2 {
		return Person{}, malformed(kind, "%s: missing timestamp/offset", field)
	}
	ts, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Person{}, malformed(kind, "%s: bad timestamp %q", field, parts[0])
	}
	return Person{Name: name, Email: email, Timestamp: ts, TZOffset: parts[1]}, nil
}

// ---------------------------------------------------------------------
// Commit
// ---------------------------------------------------------------------

// EncodeCommit returns the commit's canonical payload: "tree" (required,
// first), zero or more "parent" lines, "author", "committer", a blank
// line, then the message verbatim.
func EncodeCommit(c *Commit) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "tree %s\n", c.Tree)
	for _, p := range c.Parents {
		fmt.Fprintf(&buf, "parent %s\n", p)
	}
	fmt.Fprintf(&buf, "author %s\n", encodePerson(c.Author))
	fmt.Fprintf(&buf, "committer %s\n", encodePerson(c.Committer))
	buf.WriteByte('\n')
	buf.WriteString(c.Message)
	return buf.Bytes()
}

// DecodeCommit parses a commit's canonical payload. "tree" must appear
// first; "parent" lines must precede "author".
func DecodeCommit(data []byte) (*Commit, error) {
	idx := bytes.Index(data, []byte("\n\n"))
	if idx < 0 {
		return nil, malformed(TypeCommit, "missing header/message separator")
	}
	header := string(data[:idx])
	message := string(data[idx+2:])

	c := &Commit{Message: message}
	sawTree, sawAuthor := false, false

	for i, line := range strings.Split(header, "\n") {
		key, val, ok := strings.Cut(line, " ")
		if !ok {
			return nil, malformed(TypeCommit, "malformed header line %q", line)
		}
		switch key {
		case "tree":
			if i != 0 {
				return nil, malformed(TypeCommit, "tree header must appear first")
			}
			h, err := ParseHash(val)
			if err != nil {
				return nil, malformed(TypeCommit, "bad tree oid: %v", err)
			}
			c.Tree = h
			sawTree = true
		case "parent":
			if sawAuthor {
				return nil, malformed(TypeCommit, "parent header must precede author")
			}
			h, err := ParseHash(val)
			if err != nil {
				return nil, malformed(TypeCommit, "bad parent oid: %v", err)
			}
			c.Parents = append(c.Parents, h)
		case "author":
			p, err := decodePerson(TypeCommit, "author", val)
			if err != nil {
				return nil, err
			}
			c.Author = p
			sawAuthor = true
		case "committer":
			p, err := decodePerson(TypeCommit, "committer", val)
			if err != nil {
				return nil, err
			}
			c.Committer = p
		default:
			return nil, malformed(TypeCommit, "unknown header key %q", key)
		}
	}
	if !sawTree {
		return nil, malformed(TypeCommit, "missing tree header")
	}
	return c, nil
}

// ---------------------------------------------------------------------
// Tag
// ---------------------------------------------------------------------

// EncodeTag returns the tag's canonical payload.
func EncodeTag(t *Tag) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "object %s\n", t.Object)
	fmt.Fprintf(&buf, "type %s\n", t.Type)
	fmt.Fprintf(&buf, "tag %s\n", t.Name)
	fmt.Fprintf(&buf, "tagger %s\n", encodePerson(t.Tagger))
	buf.WriteByte('\n')
	buf.WriteString(t.Message)
	return buf.Bytes()
}

// DecodeTag parses a tag's canonical payload.
func DecodeTag(data []byte) (*Tag, error) {
	idx := bytes.Index(data, []byte("\n\n"))
	if idx < 0 {
		return nil, malformed(TypeTag, "missing header/message separator")
	}
	header := string(data[:idx])
	message := string(data[idx+2:])

	t := &Tag{Message: message}
	for _, line := range strings.Split(header, "\n") {
		key, val, ok := strings.Cut(line, " ")
		if !ok {
			return nil, malformed(TypeTag, "malformed header line %q", line)
		}
		switch key {
		case "object":
			h, err := ParseHash(val)
			if err != nil {
				return nil, malformed(TypeTag, "bad object oid: %v", err)
			}
			t.Object = h
		case "type":
			t.Type = ObjectType(val)
		case "tag":
			t.Name = val
		case "tagger":
			p, err := decodePerson(TypeTag, "tagger", val)
			if err != nil {
				return nil, err
			}
			t.Tagger = p
		default:
			return nil, malformed(TypeTag, "unknown header key %q", key)
		}
	}
	if t.Object.IsZero() {
		return nil, malformed(TypeTag, "missing object header")
	}
	return t, nil
}

// ---------------------------------------------------------------------
// Framing
// ---------------------------------------------------------------------

// Frame wraps a payload in the header that is actually hashed and stored:
// "<kind> <len>\x00<payload>".
func Frame(kind ObjectType, payload []byte) []byte {
	header := fmt.Sprintf("%s %d\x00", kind, len(payload))
	out := make([]byte, 0, len(header)+len(payload))
	out = append(out, header...)
	out = append(out, payload...)
	return out
}

// Unframe splits a framed byte string into its kind and payload, validating
// the declared length against the actual payload length.
func Unframe(framed []byte) (ObjectType, []byte, error) {
	nul := bytes.IndexByte(framed, 0)
	if nul < 0 {
		return "", nil, malformed("", "missing NUL in header")
	}
	header := string(framed[:nul])
	payload := framed[nul+1:]

	kind, lenStr, ok := strings.Cut(header, " ")
	if !ok {
		return "", nil, malformed("", "malformed header %q", header)
	}
	switch ObjectType(kind) {
	case TypeBlob, TypeTree, TypeCommit, TypeTag:
	default:
		return "", nil, malformed(ObjectType(kind), "unknown object kind %q", kind)
	}
	n, err := strconv.Atoi(lenStr)
	if err != nil {
		return "", nil, malformed(ObjectType(kind), "bad length %q", lenStr)
	}
	if n != len(payload) {
		return "", nil, malformed(ObjectType(kind), "length mismatch: header=%d actual=%d", n, len(payload))
	}
	return ObjectType(kind), payload, nil
}

// OidOf is the pure function oid_of(framed) = sha1(framed), used
// universally by the codec and the object database.
func OidOf(framed []byte) Hash {
	return HashBytes(framed)
}

// EncodeFramed encodes payload for kind and returns the framed bytes ready
// to be hashed and stored.
func EncodeFramed(kind ObjectType, payload []byte) []byte {
	return Frame(kind, payload)
}
