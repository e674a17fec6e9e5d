package files

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	xdr "github.com/rasky/go-xdr/xdr2"
)

// DirEntry is one name in a directory.
type DirEntry struct {
	Name string
	ID   ID
	Type Type
}

// dirRecord is the XDR form of a directory's content block.
type dirRecord struct {
	Entries []dirEntryRecord
}

type dirEntryRecord struct {
	Name string
	ID   [IDSize]byte
	Type uint32
}

// Directory maps names to file identifiers. The whole entry list is kept
// in block 0 and loaded when the directory is opened.
type Directory struct {
	*base

	entries      map[string]DirEntry
	contentDirty bool
}

func newDirectory(b *base) *Directory {
	return &Directory{base: b, entries: make(map[string]DirEntry)}
}

func (d *Directory) load(ctx context.Context) error {
	data, err := d.readBlock(ctx, 0)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	var rec dirRecord
	if _, err := xdr.Unmarshal(bytes.NewReader(data), &rec); err != nil {
		return fmt.Errorf("directory %s: decode entries: %v: %w", d.id, err, ErrCorrupted)
	}
	for _, e := range rec.Entries {
		d.entries[e.Name] = DirEntry{Name: e.Name, ID: ID(e.ID), Type: Type(e.Type)}
	}
	return nil
}

func validName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\x00") {
		return fmt.Errorf("invalid entry name %q", name)
	}
	return nil
}

// Get looks up name.
func (d *Directory) Get(name string) (DirEntry, bool) {
	e, ok := d.entries[name]
	return e, ok
}

// Add inserts a new entry. It fails with ErrExists if name is taken.
func (d *Directory) Add(name string, id ID, typ Type) error {
	if err := d.checkWritable(); err != nil {
		return err
	}
	if err := validName(name); err != nil {
		return err
	}
	if !typ.Valid() {
		return fmt.Errorf("add %q to %s: unknown type %d", name, d.id, typ)
	}
	if _, ok := d.entries[name]; ok {
		return fmt.Errorf("add %q to %s: %w", name, d.id, ErrExists)
	}
	d.entries[name] = DirEntry{Name: name, ID: id, Type: typ}
	d.contentDirty = true
	d.touchModify()
	return nil
}

// Remove deletes name and returns the removed entry.
func (d *Directory) Remove(name string) (DirEntry, error) {
	if err := d.checkWritable(); err != nil {
		return DirEntry{}, err
	}
	e, ok := d.entries[name]
	if !ok {
		return DirEntry{}, fmt.Errorf("remove %q from %s: %w", name, d.id, ErrNotFound)
	}
	delete(d.entries, name)
	d.contentDirty = true
	d.touchModify()
	return e, nil
}

// List returns every entry sorted by name.
func (d *Directory) List() []DirEntry {
	out := make([]DirEntry, 0, len(d.entries))
	for _, e := range d.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of entries.
func (d *Directory) Len() int {
	return len(d.entries)
}

// Flush writes the entry list and the header.
func (d *Directory) Flush(ctx context.Context) error {
	if d.wiped {
		return nil
	}
	if d.contentDirty {
		list := d.List()
		rec := dirRecord{Entries: make([]dirEntryRecord, len(list))}
		for i, e := range list {
			rec.Entries[i] = dirEntryRecord{Name: e.Name, ID: e.ID, Type: uint32(e.Type)}
		}

		var buf bytes.Buffer
		if _, err := xdr.Marshal(&buf, &rec); err != nil {
			return fmt.Errorf("directory %s: encode entries: %w", d.id, err)
		}
		if err := d.writeBlock(ctx, 0, buf.Bytes()); err != nil {
			return err
		}
		d.hdr.Size = uint64(buf.Len())
		d.metaDirty = true
		d.contentDirty = false
	}
	return d.writeHeader(ctx)
}

func (d *Directory) wipe() {
	clear(d.entries)
	d.base.wipe()
}
