// Package serverini edits the dedicated server's <name>.ini. The file is a
// flat list of key=value lines; edits rewrite only the affected line so
// comments and ordering survive.
package serverini

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Separator joins list values such as Mods and WorkshopItems.
const Separator = ";"

type File struct {
	path string
	mu   sync.Mutex
}

func Open(path string) (*File, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("server ini: %w", err)
	}
	return &File{path: path}, nil
}

func (f *File) Path() string { return f.path }

// Get returns the value of key, re-reading the file so edits made by the
// server itself are seen.
func (f *File) Get(key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lines, err := f.read()
	if err != nil {
		return "", false, err
	}
	if i := find(lines, key); i >= 0 {
		_, v, _ := strings.Cut(lines[i], "=")
		return v, true, nil
	}
	return "", false, nil
}

// Set replaces the line holding key, or appends one when key is absent.
func (f *File) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.set(key, value)
}

// List splits a ;-separated value. Empty entries are dropped.
func (f *File) List(key string) ([]string, error) {
	v, _, err := f.Get(key)
	if err != nil {
		return nil, err
	}
	return split(v), nil
}

func (f *File) Append(key, value string) error {
	return f.mutate(key, func(l []string) []string { return append(l, value) })
}

// Insert puts value at index, clamped to the list bounds.
func (f *File) Insert(key string, index int, value string) error {
	return f.mutate(key, func(l []string) []string {
		index = min(max(index, 0), len(l))
		return append(l[:index], append([]string{value}, l[index:]...)...)
	})
}

func (f *File) Extend(key string, values ...string) error {
	return f.mutate(key, func(l []string) []string { return append(l, values...) })
}

// Update applies fn to the list under key in one locked read-modify-write.
func (f *File) Update(key string, fn func([]string) []string) error {
	return f.mutate(key, fn)
}

// Snapshot copies the file next to itself with a timestamp suffix and
// returns the copy's path.
func (f *File) Snapshot(now time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := os.ReadFile(f.path)
	if err != nil {
		return "", fmt.Errorf("snapshot server ini: %w", err)
	}
	dst := fmt.Sprintf("%s.%s.bak", f.path, now.Format("20060102-150405"))
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return "", fmt.Errorf("snapshot server ini: %w", err)
	}
	return dst, nil
}

func (f *File) mutate(key string, fn func([]string) []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	lines, err := f.read()
	if err != nil {
		return err
	}
	var cur string
	if i := find(lines, key); i >= 0 {
		_, cur, _ = strings.Cut(lines[i], "=")
	}
	return f.set(key, strings.Join(fn(split(cur)), Separator))
}

func (f *File) set(key, value string) error {
	lines, err := f.read()
	if err != nil {
		return err
	}
	entry := key + "=" + value
	if i := find(lines, key); i >= 0 {
		lines[i] = entry
	} else {
		lines = append(lines, entry)
	}
	return f.write(lines)
}

func (f *File) read() ([]string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read server ini: %w", err)
	}
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		lines = append(lines, strings.TrimRight(sc.Text(), "\r"))
	}
	return lines, sc.Err()
}

// write replaces the file through a rename so the server never reads a
// half-written ini.
func (f *File) write(lines []string) error {
	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*")
	if err != nil {
		return fmt.Errorf("write server ini: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	for _, l := range lines {
		w.WriteString(l)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("write server ini: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write server ini: %w", err)
	}
	if info, err := os.Stat(f.path); err == nil {
		os.Chmod(tmp.Name(), info.Mode())
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("write server ini: %w", err)
	}
	return nil
}

func find(lines []string, key string) int {
	prefix := key + "="
	for i, l := range lines {
		if strings.HasPrefix(strings.TrimLeft(l, " \t"), prefix) {
			return i
		}
	}
	return -1
}

func split(v string) []string {
	var out []string
	for _, s := range strings.Split(v, Separator) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
