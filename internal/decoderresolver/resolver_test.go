package decoderresolver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sporeprotocol/dob-decoder-go/internal/dobtype"
	"github.com/sporeprotocol/dob-decoder-go/internal/spore"
)

func TestResolveReturnsCachedPathWithoutFetch(t *testing.T) {
	dir := t.TempDir()
	r := New(nil, dir, nil)

	descriptor := spore.DecoderDescriptor{Location: spore.LocationCodeHash, Hash: "0xAABBCC"}
	path, err := r.cachePath(descriptor)
	if err != nil {
		t.Fatalf("cachePath: %v", err)
	}
	if err := os.WriteFile(path, []byte("cached binary"), 0o644); err != nil {
		t.Fatalf("seed cache file: %v", err)
	}

	got, err := r.Resolve(context.Background(), descriptor)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != path {
		t.Errorf("got %q, want %q", got, path)
	}
}

func TestCachePathNaming(t *testing.T) {
	dir := t.TempDir()
	r := New(nil, dir, nil)

	codeHash := spore.DecoderDescriptor{Location: spore.LocationCodeHash, Hash: "0xAABB"}
	path, err := r.cachePath(codeHash)
	if err != nil {
		t.Fatalf("cachePath: %v", err)
	}
	if want := filepath.Join(dir, "code_hash_aabb.bin"); path != want {
		t.Errorf("got %q, want %q", path, want)
	}

	typeID := spore.DecoderDescriptor{Location: spore.LocationTypeID, Hash: "0xCCDD"}
	path, err = r.cachePath(typeID)
	if err != nil {
		t.Fatalf("cachePath: %v", err)
	}
	if want := filepath.Join(dir, "type_id_ccdd.bin"); path != want {
		t.Errorf("got %q, want %q", path, want)
	}
}

func TestCachePathTypeScriptMissingScript(t *testing.T) {
	dir := t.TempDir()
	r := New(nil, dir, nil)
	descriptor := spore.DecoderDescriptor{Location: spore.LocationTypeScript}
	if _, err := r.cachePath(descriptor); dobtype.KindOf(err) != dobtype.KindDecoderIdNotFound {
		t.Errorf("expected DecoderIdNotFound, got %v", err)
	}
}

func TestCachePathUnknownLocation(t *testing.T) {
	dir := t.TempDir()
	r := New(nil, dir, nil)
	descriptor := spore.DecoderDescriptor{Location: "bogus"}
	if _, err := r.cachePath(descriptor); dobtype.KindOf(err) != dobtype.KindDecoderIdNotFound {
		t.Errorf("expected DecoderIdNotFound, got %v", err)
	}
}
