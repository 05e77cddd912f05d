package fileops

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteAtomicAndReadBack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a", "b", "file.txt")

	if err := Write(path, "hello"); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("got %q, want %q", data, "hello")
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	for _, e := range entries {
		if filepath.Ext(e.Name()) == "" && e.Name() != "file.txt" {
			t.Fatalf("leftover temp file: %s", e.Name())
		}
	}
}

func TestWriteOverwrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")
	if err := Write(path, "first"); err != nil {
		t.Fatal(err)
	}
	if err := Write(path, "second"); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "second" {
		t.Fatalf("got %q, want %q", data, "second")
	}
}

func TestRemoveIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nonexistent")
	if err := Remove(path); err != nil {
		t.Fatalf("first remove: %v", err)
	}
	if err := Remove(path); err != nil {
		t.Fatalf("second remove: %v", err)
	}
}

func TestRemoveDirectoryRecursive(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	os.MkdirAll(sub, 0o750)
	os.WriteFile(filepath.Join(sub, "f.txt"), []byte("x"), 0o640)

	if err := Remove(dir); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if Exists(dir) {
		t.Fatal("expected directory removed")
	}
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")
	os.WriteFile(src, []byte("content"), 0o640)

	if err := Copy(src, dst); err != nil {
		t.Fatalf("copy: %v", err)
	}
	data, _ := os.ReadFile(dst)
	if string(data) != "content" {
		t.Fatalf("got %q", data)
	}
}

func TestCopyDirectoryRecursive(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	os.MkdirAll(filepath.Join(src, "nested"), 0o750)
	os.WriteFile(filepath.Join(src, "a.txt"), []byte("a"), 0o640)
	os.WriteFile(filepath.Join(src, "nested", "b.txt"), []byte("b"), 0o640)

	dst := filepath.Join(dir, "dst")
	if err := Copy(src, dst); err != nil {
		t.Fatalf("copy: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dst, "nested", "b.txt"))
	if err != nil || string(data) != "b" {
		t.Fatalf("nested file not copied correctly: %v %q", err, data)
	}
}

func TestCopyReplacesExistingDestination(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")
	os.WriteFile(src, []byte("new"), 0o640)
	os.WriteFile(dst, []byte("old"), 0o640)

	if err := Copy(src, dst); err != nil {
		t.Fatalf("copy: %v", err)
	}
	data, _ := os.ReadFile(dst)
	if string(data) != "new" {
		t.Fatalf("got %q, want new", data)
	}
}

func TestLinkReplacesExisting(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "link")
	os.WriteFile(src, []byte("x"), 0o640)

	if err := Link(src, dst); err != nil {
		t.Fatalf("link: %v", err)
	}
	if err := Link(src, dst); err != nil {
		t.Fatalf("re-link: %v", err)
	}
	target, err := os.Readlink(dst)
	if err != nil || target != src {
		t.Fatalf("readlink: %v %q", err, target)
	}
}

func TestMkdirIdempotent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "d")
	if err := Mkdir(dir, false); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := Mkdir(dir, false); err != nil {
		t.Fatalf("mkdir again: %v", err)
	}
}

func TestMkdirCreateParents(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b", "c")
	if err := Mkdir(dir, true); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if !Exists(dir) {
		t.Fatal("expected directory to exist")
	}
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	if Exists(filepath.Join(dir, "missing")) {
		t.Fatal("expected false for missing path")
	}
	if !Exists(dir) {
		t.Fatal("expected true for existing dir")
	}
}

func TestDownloadStreamsProgress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("payload-bytes"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	var lines []string
	path, err := Download(srv.URL+"/file.bin", dir, func(l string) { lines = append(lines, l) })
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "payload-bytes" {
		t.Fatalf("unexpected content: %v %q", err, data)
	}
	if len(lines) == 0 {
		t.Fatal("expected progress lines")
	}
}

func TestDownloadHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	dir := t.TempDir()
	if _, err := Download(srv.URL+"/missing", dir, nil); err == nil {
		t.Fatal("expected error for 404")
	}
}
