package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRotatingWriterRotatesAndShiftsBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "syncread.log")

	rw, err := NewRotatingWriter(path, 1, 2)
	if err != nil {
		t.Fatalf("NewRotatingWriter: %v", err)
	}
	defer rw.Close()
	rw.maxSize = 32 // rotate after two entries

	// Fixed-width 20-byte entries: the second write in each file tips it
	// over maxSize and triggers a rotation.
	entry := func(tag string) string {
		return tag + strings.Repeat(".", 19-len(tag)) + "\n"
	}
	write := func(tag string) {
		t.Helper()
		if _, err := rw.Write([]byte(entry(tag))); err != nil {
			t.Fatalf("Write(%s): %v", tag, err)
		}
	}
	contents := func(p string) string {
		t.Helper()
		data, err := os.ReadFile(p)
		if err != nil {
			t.Fatalf("ReadFile(%s): %v", p, err)
		}
		return string(data)
	}

	write("entry-A")
	write("entry-B") // rotates: A -> .1
	write("entry-C") // rotates: A -> .2, B -> .1
	write("entry-D") // rotates: A dropped, B -> .2, C -> .1

	if got := contents(path); !strings.Contains(got, "entry-D") {
		t.Fatalf("current file = %q, want entry-D", got)
	}
	if got := contents(path + ".1"); !strings.Contains(got, "entry-C") {
		t.Fatalf("backup .1 = %q, want entry-C", got)
	}
	if got := contents(path + ".2"); !strings.Contains(got, "entry-B") {
		t.Fatalf("backup .2 = %q, want entry-B", got)
	}

	// maxBackups caps the chain: the oldest entry is gone, no .3 appears.
	if _, err := os.Stat(path + ".3"); !os.IsNotExist(err) {
		t.Fatalf("backup .3 should not exist, stat err = %v", err)
	}
}

func TestRotatingWriterResumesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "syncread.log")
	if err := os.WriteFile(path, []byte(strings.Repeat("x", 30)), 0600); err != nil {
		t.Fatal(err)
	}

	rw, err := NewRotatingWriter(path, 1, 2)
	if err != nil {
		t.Fatalf("NewRotatingWriter: %v", err)
	}
	defer rw.Close()
	rw.maxSize = 32

	// 30 bytes already on disk count toward the limit, so this write
	// rotates instead of appending.
	if _, err := rw.Write([]byte("fresh entry\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	data, err := os.ReadFile(path + ".1")
	if err != nil {
		t.Fatalf("expected a backup of the pre-existing file: %v", err)
	}
	if !strings.HasPrefix(string(data), "xxx") {
		t.Fatalf("backup .1 = %q, want the pre-existing content", data)
	}
}
