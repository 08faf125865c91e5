// Package logs indexes the dedicated server's log directory by log group and
// timestamp.
package logs

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/reedfamily/zomboidbot/internal/game"
	"go.uber.org/zap"
)

// Known log groups, most specific first.
const (
	GroupDebug       = "DebugLog"
	GroupZombieSpawn = "ZombieSpawn"
	GroupClientChat  = "client chat"
	GroupChat        = "chat"
	GroupUser        = "user"
)

var knownGroups = []string{GroupDebug, GroupZombieSpawn, GroupClientChat, GroupChat, GroupUser}

var groupPatterns = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(knownGroups))
	for i, g := range knownGroups {
		out[i] = regexp.MustCompile(regexp.QuoteMeta(g) + `(?:\.txt|\s)`)
	}
	return out
}()

var stampRe = regexp.MustCompile(`(\d{2}-\d{2}-\d{2})(?:_(\d{2}-\d{2}-\d{2}))?`)

// Source tells where a log file was found.
type Source string

const (
	SourceServer Source = "server" // top-level *.txt
	SourceSubdir Source = "subdir" // inside a dated subdirectory
)

type File struct {
	Path      string    `json:"path"`
	Group     string    `json:"group"`
	Source    Source    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// Accessor keeps an index of the log directory. The server opens new files
// during the day, so callers Refresh before reading the latest log.
type Accessor struct {
	dir     string
	adapter game.Adapter
	log     *zap.Logger

	mu    sync.RWMutex
	index map[Source]map[string][]File
}

func New(dir string, adapter game.Adapter, log *zap.Logger) (*Accessor, error) {
	a := Open(dir, adapter, log)
	if err := a.Refresh(); err != nil {
		return nil, err
	}
	return a, nil
}

// Open returns an accessor that has not scanned dir yet. The server creates
// its log directory on first start, so long-running callers use Open and
// Refresh before each read.
func Open(dir string, adapter game.Adapter, log *zap.Logger) *Accessor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Accessor{dir: dir, adapter: adapter, log: log}
}

// Refresh rescans the log directory.
func (a *Accessor) Refresh() error {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return fmt.Errorf("read logs dir: %w", err)
	}

	index := map[Source]map[string][]File{
		SourceServer: {},
		SourceSubdir: {},
	}
	add := func(path string, src Source) {
		f, ok := classify(path, src)
		if ok {
			index[src][f.Group] = append(index[src][f.Group], f)
		}
	}

	for _, e := range entries {
		path := filepath.Join(a.dir, e.Name())
		if e.IsDir() {
			sub, err := os.ReadDir(path)
			if err != nil {
				a.log.Warn("skipping unreadable log subdir", zap.String("dir", path), zap.Error(err))
				continue
			}
			for _, s := range sub {
				if !s.IsDir() {
					add(filepath.Join(path, s.Name()), SourceSubdir)
				}
			}
			continue
		}
		if filepath.Ext(e.Name()) == ".txt" {
			add(path, SourceServer)
		}
	}

	for _, groups := range index {
		for _, files := range groups {
			sort.Slice(files, func(i, j int) bool { return files[i].CreatedAt.After(files[j].CreatedAt) })
		}
	}

	a.mu.Lock()
	a.index = index
	a.mu.Unlock()
	return nil
}

// Groups lists the groups seen in the last scan.
func (a *Accessor) Groups() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	seen := map[string]bool{}
	for _, groups := range a.index {
		for g := range groups {
			seen[g] = true
		}
	}
	out := make([]string, 0, len(seen))
	for g := range seen {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// Latest returns the newest file of group across both sources. When no group
// has exactly that name, the first group containing it is used instead.
func (a *Accessor) Latest(group string) (File, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var best File
	found := false
	for _, src := range []Source{SourceSubdir, SourceServer} {
		files := a.lookup(src, group)
		if len(files) == 0 {
			continue
		}
		if !found || files[0].CreatedAt.After(best.CreatedAt) {
			best, found = files[0], true
		}
	}
	return best, found
}

func (a *Accessor) lookup(src Source, group string) []File {
	groups := a.index[src]
	if files, ok := groups[group]; ok {
		return files
	}
	names := make([]string, 0, len(groups))
	for g := range groups {
		names = append(names, g)
	}
	sort.Strings(names)
	for _, g := range names {
		if strings.Contains(g, group) {
			return groups[g]
		}
	}
	return nil
}

// ActivePlayers counts connects minus disconnects in the newest user log.
func (a *Accessor) ActivePlayers() (int, error) {
	f, ok := a.Latest(GroupUser)
	if !ok {
		return 0, nil
	}
	connected, disconnected := 0, 0
	err := scanLines(f.Path, func(line string) {
		if strings.Contains(line, " connected") {
			connected++
		}
		if strings.Contains(line, "disconnected") {
			disconnected++
		}
	})
	if err != nil {
		return 0, err
	}
	return max(connected-disconnected, 0), nil
}

// Players replays join and leave events of the newest user log and returns
// who is still online, sorted by name.
func (a *Accessor) Players() ([]string, error) {
	f, ok := a.Latest(GroupUser)
	if !ok || a.adapter == nil {
		return nil, nil
	}
	online := map[string]bool{}
	err := scanLines(f.Path, func(line string) {
		ev := a.adapter.ParseLogLine(line)
		if ev == nil {
			return
		}
		switch ev.Type {
		case game.EventJoin:
			online[ev.Player] = true
		case game.EventLeave:
			delete(online, ev.Player)
		}
	})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(online))
	for p := range online {
		names = append(names, p)
	}
	sort.Strings(names)
	return names, nil
}

// Events parses the newest file of group into events.
func (a *Accessor) Events(group string) ([]game.LogEvent, error) {
	f, ok := a.Latest(group)
	if !ok || a.adapter == nil {
		return nil, nil
	}
	var events []game.LogEvent
	err := scanLines(f.Path, func(line string) {
		if ev := a.adapter.ParseLogLine(line); ev != nil {
			events = append(events, *ev)
		}
	})
	return events, err
}

func scanLines(path string, fn func(string)) error {
	fh, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer fh.Close()

	sc := bufio.NewScanner(fh)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		fn(sc.Text())
	}
	return sc.Err()
}

func classify(path string, src Source) (File, bool) {
	// The file name carries the precise stamp; dated subdirectories only
	// carry the day.
	created, ok := ParseStamp(filepath.Base(path))
	if !ok {
		created, ok = ParseStamp(path)
	}
	if !ok {
		return File{}, false
	}
	return File{Path: path, Group: groupOf(path), Source: src, CreatedAt: created}, true
}

// ParseStamp finds a dd-mm-yy date, optionally followed by _HH-MM-SS, in s.
func ParseStamp(s string) (time.Time, bool) {
	m := stampRe.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	if m[2] != "" {
		t, err := time.Parse("02-01-06_15-04-05", m[1]+"_"+m[2])
		return t, err == nil
	}
	t, err := time.Parse("02-01-06", m[1])
	return t, err == nil
}

func groupOf(path string) string {
	for i, re := range groupPatterns {
		if re.MatchString(path) {
			return knownGroups[i]
		}
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	parts := strings.SplitN(name, "_", 4)
	if len(parts) >= 3 {
		name = parts[2]
	}
	words := strings.Fields(name)
	if len(words) > 2 {
		words = words[:2]
	}
	return strings.Join(words, " ")
}
