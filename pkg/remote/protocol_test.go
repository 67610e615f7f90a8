package remote

import (
	"os"
	"testing"

	"github.com/nyxforge/gitcore/pkg/object"
)

func newProtocolTestStore(t *testing.T) *object.Store {
	t.Helper()
	dir, err := os.MkdirTemp("", "gitcore-remote-test-")
	if err != nil {
		t.Fatalf("mkdtemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return object.NewStore(dir)
}

func TestValidateHashValid(t *testing.T) {
	h := object.HashObject(object.TypeBlob, object.EncodeBlob(&object.Blob{Data: []byte("hi")}))
	if err := ValidateHash(h); err != nil {
		t.Fatalf("valid hash rejected: %v", err)
	}
}

func TestValidateHashZero(t *testing.T) {
	if err := ValidateHash(object.Hash{}); err == nil {
		t.Fatal("zero hash accepted")
	}
}

func TestParseCapabilities(t *testing.T) {
	caps := ParseCapabilities("pack,zstd,sideband")
	if !caps.Has("pack") || !caps.Has("zstd") || !caps.Has("sideband") {
		t.Fatal("missing capability")
	}
	if caps.Has("nonexistent") {
		t.Fatal("unexpected capability")
	}
}

func TestCapabilitiesIntersect(t *testing.T) {
	a := ParseCapabilities("pack,zstd,sideband")
	b := ParseCapabilities("pack,zstd")
	common := a.Intersect(b)
	if !common.Has("pack") || !common.Has("zstd") {
		t.Fatal("missing intersected capability")
	}
	if common.Has("sideband") {
		t.Fatal("sideband should not be in intersection")
	}
}

func TestCapabilitiesString(t *testing.T) {
	caps := ParseCapabilities("zstd,pack,sideband")
	if s := caps.String(); s != "pack,sideband,zstd" {
		t.Fatalf("String() = %q, want %q", s, "pack,sideband,zstd")
	}
}

func TestRemoteErrorFormat(t *testing.T) {
	re := &RemoteError{Code: "ref_not_found", Message: "ref not found", Detail: "heads/main"}
	if re.Error() != "ref not found (ref_not_found): heads/main" {
		t.Fatalf("Error() = %q", re.Error())
	}
}

func TestNegotiateWantsMissingRefs(t *testing.T) {
	store := newProtocolTestStore(t)

	present := object.HashObject(object.TypeBlob, object.EncodeBlob(&object.Blob{Data: []byte("present")}))
	if _, err := store.PutBlob(&object.Blob{Data: []byte("present")}); err != nil {
		t.Fatal(err)
	}
	missing := object.HashObject(object.TypeBlob, object.EncodeBlob(&object.Blob{Data: []byte("missing")}))

	remoteRefs := map[string]object.Hash{
		"refs/heads/main": present,
		"refs/heads/dev":  missing,
	}

	wants := Negotiate(store, remoteRefs, nil)
	if len(wants) != 1 || wants[0] != missing {
		t.Fatalf("wants = %v, want [%s]", wants, missing)
	}
}

func TestNegotiateNothingWantedWhenAllPresent(t *testing.T) {
	store := newProtocolTestStore(t)
	h, err := store.PutBlob(&object.Blob{Data: []byte("x")})
	if err != nil {
		t.Fatal(err)
	}
	wants := Negotiate(store, map[string]object.Hash{"refs/heads/main": h}, nil)
	if len(wants) != 0 {
		t.Fatalf("wants = %v, want none", wants)
	}
}
