package core

import "pkt.systems/notesync/schema"

type dirEntry struct {
	kind     schema.EntryKind
	id       schema.DocID
	name     string
	expanded bool
	children []*dirEntry
}

// directoryIndex mirrors known documents as a folder tree. Child order is
// insertion order; nothing re-sorts it.
type directoryIndex struct {
	roots []*dirEntry
}

func newDirectoryIndex() *directoryIndex {
	return &directoryIndex{}
}

// ensureFolder appends a top-level folder unless one with id already exists.
func (d *directoryIndex) ensureFolder(id schema.DocID, name string) {
	if d.findFolder(id) != nil {
		return
	}
	d.roots = append(d.roots, &dirEntry{kind: schema.EntryFolder, id: id, name: name, expanded: true})
}

// toggleFolder flips the expanded flag of the matching folder.
func (d *directoryIndex) toggleFolder(id schema.DocID) bool {
	folder := d.findFolder(id)
	if folder == nil {
		return false
	}
	folder.expanded = !folder.expanded
	return true
}

// insertFile appends entry to the folder unless the folder already holds
// an entry with the same id.
func (d *directoryIndex) insertFile(folderID schema.DocID, entry schema.DirectoryEntry) bool {
	folder := d.findFolder(folderID)
	if folder == nil {
		return false
	}
	for _, child := range folder.children {
		if child.id == entry.ID {
			return false
		}
	}
	folder.children = append(folder.children, fromSnapshot(entry))
	return true
}

// addFolder puts a new empty, expanded folder at the front of the top level.
func (d *directoryIndex) addFolder(name string) schema.DirectoryEntry {
	folder := &dirEntry{kind: schema.EntryFolder, id: newFolderID(), name: name, expanded: true}
	d.roots = append([]*dirEntry{folder}, d.roots...)
	return folder.snapshot()
}

// findFile returns the first file entry with id in depth-first order.
func (d *directoryIndex) findFile(id schema.DocID) (schema.DirectoryEntry, bool) {
	entry := findEntry(d.roots, schema.EntryFile, id)
	if entry == nil {
		return schema.DirectoryEntry{}, false
	}
	return entry.snapshot(), true
}

// renameFile updates the display name of every file entry for id.
func (d *directoryIndex) renameFile(id schema.DocID, name string) int {
	return walkFiles(d.roots, id, func(e *dirEntry) { e.name = name })
}

// rekeyFile moves file entries from one document id to another.
func (d *directoryIndex) rekeyFile(from, to schema.DocID) int {
	return walkFiles(d.roots, from, func(e *dirEntry) { e.id = to })
}

func (d *directoryIndex) findFolder(id schema.DocID) *dirEntry {
	return findEntry(d.roots, schema.EntryFolder, id)
}

func (d *directoryIndex) snapshot() []schema.DirectoryEntry {
	return snapshotEntries(d.roots)
}

func findEntry(entries []*dirEntry, kind schema.EntryKind, id schema.DocID) *dirEntry {
	for _, entry := range entries {
		if entry.kind == kind && entry.id == id {
			return entry
		}
		if entry.kind == schema.EntryFolder {
			if found := findEntry(entry.children, kind, id); found != nil {
				return found
			}
		}
	}
	return nil
}

func walkFiles(entries []*dirEntry, id schema.DocID, fn func(*dirEntry)) int {
	count := 0
	for _, entry := range entries {
		switch entry.kind {
		case schema.EntryFile:
			if entry.id == id {
				fn(entry)
				count++
			}
		case schema.EntryFolder:
			count += walkFiles(entry.children, id, fn)
		}
	}
	return count
}

func (e *dirEntry) snapshot() schema.DirectoryEntry {
	out := schema.DirectoryEntry{Kind: e.kind, ID: e.id, Name: e.name}
	if e.kind == schema.EntryFolder {
		out.Expanded = e.expanded
		out.Children = snapshotEntries(e.children)
	}
	return out
}

func snapshotEntries(entries []*dirEntry) []schema.DirectoryEntry {
	if len(entries) == 0 {
		return nil
	}
	out := make([]schema.DirectoryEntry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry.snapshot())
	}
	return out
}

func fromSnapshot(entry schema.DirectoryEntry) *dirEntry {
	out := &dirEntry{kind: entry.Kind, id: entry.ID, name: entry.Name}
	if out.kind == "" {
		out.kind = schema.EntryFile
	}
	if out.kind == schema.EntryFolder {
		out.expanded = entry.Expanded
		for _, child := range entry.Children {
			out.children = append(out.children, fromSnapshot(child))
		}
	}
	return out
}
