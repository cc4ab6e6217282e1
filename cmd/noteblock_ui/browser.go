package main

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
)

var mediaExts = map[string]bool{".mid": true, ".midi": true, ".wav": true, ".ogg": true, ".mp3": true}

func isMIDI(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mid", ".midi":
		return true
	}
	return false
}

type entry struct {
	name string
	path string
	dir  bool
}

func (e entry) label() string {
	if e.dir && e.name != ".." {
		return e.name + "/"
	}
	return e.name
}

// browser lists the subdirectories and playable files of one directory.
type browser struct {
	dir     string
	entries []entry
	scroll  int
}

func (b *browser) chdir(dir string) error {
	items, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var dirs, files []entry
	for _, it := range items {
		e := entry{name: it.Name(), path: filepath.Join(dir, it.Name()), dir: it.IsDir()}
		switch {
		case e.dir:
			dirs = append(dirs, e)
		case mediaExts[strings.ToLower(filepath.Ext(e.name))]:
			files = append(files, e)
		}
	}
	byName := func(a, b entry) int {
		return strings.Compare(strings.ToLower(a.name), strings.ToLower(b.name))
	}
	slices.SortFunc(dirs, byName)
	slices.SortFunc(files, byName)
	if parent := filepath.Dir(dir); parent != dir {
		dirs = slices.Insert(dirs, 0, entry{name: "..", path: parent, dir: true})
	}
	b.dir = dir
	b.entries = append(dirs, files...)
	b.scroll = 0
	return nil
}

func (b *browser) scrollBy(n int) {
	b.scroll = max(0, min(b.scroll+n, len(b.entries)-1))
}

// visible returns the entries shown in a window of rows lines.
func (b *browser) visible(rows int) []entry {
	if b.scroll >= len(b.entries) {
		b.scroll = max(0, len(b.entries)-1)
	}
	end := min(len(b.entries), b.scroll+rows)
	return b.entries[b.scroll:end]
}

func (b *browser) at(row int) (entry, bool) {
	i := b.scroll + row
	if row < 0 || i >= len(b.entries) {
		return entry{}, false
	}
	return b.entries[i], true
}

func samePath(a, b string) bool {
	return a != "" && b != "" && filepath.Clean(a) == filepath.Clean(b)
}
