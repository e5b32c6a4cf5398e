// Package manifest contains the document library manifest schema shared by
// the builder and the runtime.
package manifest

import (
	"path"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// NodeType distinguishes folders from files.
type NodeType string

const (
	TypeFolder NodeType = "folder"
	TypeFile   NodeType = "file"
)

const (
	// AssetRoot is the first segment of every node path.
	AssetRoot = "assets"
	// LibraryDir is the library folder below the asset root.
	LibraryDir = "instructions"
	// FileName is the manifest file written into the library folder.
	FileName = "manifest.json"
	// DefaultMIME is used when no type is known for an extension.
	DefaultMIME = "application/octet-stream"
)

// URL is the fixed location the manifest is served from.
var URL = "/" + path.Join(AssetRoot, LibraryDir, FileName)

// Node is one entry (file or folder) of the manifest tree.
type Node struct {
	Name          string     `json:"name"`
	Type          NodeType   `json:"type"`
	Path          string     `json:"path"`
	Ext           string     `json:"ext,omitempty"`
	Size          int64      `json:"size,omitempty"`
	ModifiedAt    *time.Time `json:"modifiedAt,omitempty"`
	Mime          string     `json:"mime,omitempty"`
	Readable      bool       `json:"readable,omitempty"`
	ConvertedPath string     `json:"convertedPath,omitempty"`
	Children      []*Node    `json:"children,omitempty"`
}

type folderJSON struct {
	Name     string   `json:"name"`
	Type     NodeType `json:"type"`
	Path     string   `json:"path"`
	Children []*Node  `json:"children"`
}

type fileJSON struct {
	Name          string     `json:"name"`
	Type          NodeType   `json:"type"`
	Path          string     `json:"path"`
	Ext           string     `json:"ext"`
	Size          int64      `json:"size"`
	ModifiedAt    *time.Time `json:"modifiedAt,omitempty"`
	Mime          string     `json:"mime,omitempty"`
	Readable      bool       `json:"readable"`
	ConvertedPath string     `json:"convertedPath,omitempty"`
}

// MarshalJSON writes the folder or file shape of n. Folders always carry
// children; files always carry ext, size and readable, even when zero.
func (n Node) MarshalJSON() ([]byte, error) {
	if n.Type == TypeFolder {
		children := n.Children
		if children == nil {
			children = []*Node{}
		}
		return json.Marshal(folderJSON{Name: n.Name, Type: n.Type, Path: n.Path, Children: children})
	}
	return json.Marshal(fileJSON{
		Name:          n.Name,
		Type:          n.Type,
		Path:          n.Path,
		Ext:           n.Ext,
		Size:          n.Size,
		ModifiedAt:    n.ModifiedAt,
		Mime:          n.Mime,
		Readable:      n.Readable,
		ConvertedPath: n.ConvertedPath,
	})
}

// IsFolder reports whether n is a folder.
func (n *Node) IsFolder() bool { return n != nil && n.Type == TypeFolder }

// IsFile reports whether n is a file.
func (n *Node) IsFile() bool { return n != nil && n.Type == TypeFile }

// Extension returns the lower-cased extension of a node without the dot.
// The recorded ext wins; otherwise it is derived from the last path segment.
func Extension(n *Node) string {
	if n == nil {
		return ""
	}
	if n.Ext != "" {
		return strings.ToLower(n.Ext)
	}
	return ExtensionOf(n.Path)
}

// ExtensionOf derives the lower-cased extension from the final segment of p.
// It returns "" when the segment has no dot.
func ExtensionOf(p string) string {
	segment := p
	if i := strings.LastIndex(segment, "/"); i >= 0 {
		segment = segment[i+1:]
	}
	dot := strings.LastIndex(segment, ".")
	if dot == -1 {
		return ""
	}
	return strings.ToLower(segment[dot+1:])
}

// ResolveAssetPath turns a node path into a fetchable URL. Absolute http(s)
// URLs and data URIs are returned unchanged.
func ResolveAssetPath(p string) string {
	if p == "" {
		return ""
	}
	lower := strings.ToLower(p)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") || strings.HasPrefix(p, "data:") {
		return p
	}
	if strings.HasPrefix(p, "/") {
		return p
	}
	return "/" + p
}

// ChildPath joins a parent virtual path and a child name POSIX-style.
func ChildPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}
