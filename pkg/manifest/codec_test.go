package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
)

func TestEncodeIndentation(t *testing.T) {
	data, err := Encode([]*Node{{Name: "a.txt", Type: TypeFile, Path: "assets/instructions/a.txt", Ext: "txt", Readable: true}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := "[\n  {\n    \"name\": \"a.txt\",\n"
	if !strings.HasPrefix(string(data), want) {
		t.Errorf("unexpected encoding:\n%s", data)
	}
	if strings.Contains(string(data), "children") {
		t.Error("file nodes must not carry children")
	}
}

func TestEncodeEmpty(t *testing.T) {
	data, err := Encode(nil)
	if err != nil {
		t.Fatalf("Encode(nil): %v", err)
	}
	if strings.TrimSpace(string(data)) != "[]" {
		t.Errorf("Encode(nil) = %q, want []", data)
	}
}

func TestDecode(t *testing.T) {
	nodes, err := Decode([]byte(`[{"name":"a.txt","type":"file","path":"assets/instructions/a.txt","ext":"txt","readable":true}]`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(nodes) != 1 || !nodes[0].IsFile() || !nodes[0].Readable {
		t.Errorf("unexpected nodes: %+v", nodes)
	}

	nodes, err = Decode([]byte("null"))
	if err != nil || nodes == nil || len(nodes) != 0 {
		t.Errorf("Decode(null) = %v, %v; want empty forest", nodes, err)
	}

	if _, err := Decode([]byte("  ")); err == nil {
		t.Error("expected error for empty document")
	}
	if _, err := Decode([]byte("{")); err == nil {
		t.Error("expected error for malformed document")
	}
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, FileName)
	mtime := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	nodes := []*Node{{Name: "a.txt", Type: TypeFile, Path: "assets/instructions/a.txt", Size: 5, ModifiedAt: &mtime}}
	if err := WriteFile(out, nodes); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	got, err := Read(f)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != 1 || got[0].Size != 5 || !got[0].ModifiedAt.Equal(mtime) {
		t.Errorf("round trip mismatch: %+v", got)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %d entries", len(entries))
	}
}

func TestWriteFileMissingDir(t *testing.T) {
	err := WriteFile(filepath.Join(t.TempDir(), "missing", FileName), nil)
	if err == nil {
		t.Fatal("expected error writing into a missing directory")
	}
}

func TestEncodeZeroValuedFileFields(t *testing.T) {
	nodes := []*Node{
		{Name: "Empty", Type: TypeFolder, Path: "assets/instructions/Empty"},
		{Name: "empty", Type: TypeFile, Path: "assets/instructions/empty", Mime: DefaultMIME},
	}
	data, err := Encode(nodes)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(raw) != 2 {
		t.Fatalf("got %d nodes, want 2", len(raw))
	}

	folder := raw[0]
	if children, ok := folder["children"].([]any); !ok || len(children) != 0 {
		t.Errorf("folder children = %v, want []", folder["children"])
	}
	for _, key := range []string{"ext", "size", "readable", "mime"} {
		if _, ok := folder[key]; ok {
			t.Errorf("folder carries %q", key)
		}
	}

	file := raw[1]
	if file["ext"] != "" {
		t.Errorf("ext = %v, want empty string", file["ext"])
	}
	if file["size"] != float64(0) {
		t.Errorf("size = %v, want 0", file["size"])
	}
	if file["readable"] != false {
		t.Errorf("readable = %v, want false", file["readable"])
	}
	if _, ok := file["children"]; ok {
		t.Error("file carries children")
	}

	back, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !back[1].IsFile() || back[1].Size != 0 || back[1].Ext != "" || back[1].Readable {
		t.Errorf("round trip mismatch: %+v", back[1])
	}
}
