package zomboid

import (
	"regexp"
	"strings"

	"github.com/reedfamily/zomboidbot/internal/game"
)

func init() {
	game.Register(&Adapter{})
}

type Adapter struct{}

// user log:  [15-10-26 18:01:02.345] 76561198000000000 "alice" fully connected (10,20,0).
// chat log:  [15-10-26 18:03:00.000][info] Got message:ChatMessage{chat=General, author='alice', text='hi'}.
var (
	joinRe  = regexp.MustCompile(`"([^"]+)" (?:fully )?connected`)
	leaveRe = regexp.MustCompile(`"([^"]+)" disconnected`)
	chatRe  = regexp.MustCompile(`author='([^']*)', text='(.*)'\}`)
)

func (a *Adapter) Game() string { return "zomboid" }

func (a *Adapter) ParseLogLine(line string) *game.LogEvent {
	if m := leaveRe.FindStringSubmatch(line); m != nil {
		return &game.LogEvent{Type: game.EventLeave, Player: m[1]}
	}
	if m := joinRe.FindStringSubmatch(line); m != nil {
		return &game.LogEvent{Type: game.EventJoin, Player: m[1]}
	}
	if m := chatRe.FindStringSubmatch(line); m != nil {
		return &game.LogEvent{Type: game.EventChat, Player: m[1], Message: m[2]}
	}
	if strings.Contains(line, "ERROR") || strings.Contains(line, "Exception") {
		return &game.LogEvent{Type: game.EventError, Message: line}
	}
	return nil
}

func (a *Adapter) PlayerCommand() string { return "players" }
