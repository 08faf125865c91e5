package game

// Adapter turns a game's server log lines into events.
type Adapter interface {
	// Game returns the game identifier (e.g., "zomboid")
	Game() string

	// ParseLogLine extracts structured events from log lines
	ParseLogLine(line string) *LogEvent

	// PlayerCommand returns the console command that lists online players
	PlayerCommand() string
}

type LogEvent struct {
	Type    string // "player_join", "player_leave", "chat", "error"
	Player  string
	Message string
}

const (
	EventJoin  = "player_join"
	EventLeave = "player_leave"
	EventChat  = "chat"
	EventError = "error"
)
