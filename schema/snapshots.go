package schema

// TabSnapshot is a transport-friendly view of an open tab.
type TabSnapshot struct {
	ID      DocID  `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Active  bool   `json:"active"`
	Dirty   bool   `json:"dirty"`
}

// EntryKind tags a directory entry as a folder or a file.
type EntryKind string

const (
	// EntryFolder is a folder that holds other entries.
	EntryFolder EntryKind = "folder"
	// EntryFile references a document.
	EntryFile EntryKind = "file"
)

// DirectoryEntry is one node of the directory tree. Children and Expanded
// only apply to folders.
type DirectoryEntry struct {
	Kind     EntryKind        `json:"type"`
	ID       DocID            `json:"id"`
	Name     string           `json:"name"`
	Expanded bool             `json:"expanded,omitempty"`
	Children []DirectoryEntry `json:"children,omitempty"`
}

// FileEntry builds a file entry for a document.
func FileEntry(id DocID, name string) DirectoryEntry {
	return DirectoryEntry{Kind: EntryFile, ID: id, Name: name}
}
