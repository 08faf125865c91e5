package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config is the typed configuration loaded once at process start and passed
// to every component.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	TelegramBot TelegramBotConfig `yaml:"telegram_bot"`
	RCON        RCONConfig        `yaml:"rcon"`
	Other       OtherConfig       `yaml:"other"`

	// Env holds settings that only come from the environment.
	Env EnvConfig `yaml:"-"`
}

type ServerConfig struct {
	Name                string       `yaml:"name"`
	ConfigDirPath       string       `yaml:"config_dirpath"`
	LogsDirPath         string       `yaml:"logs_dir_path"`
	SavesDirPath        string       `yaml:"saves_dir_path"`
	StartServerFilePath string       `yaml:"start_server_filepath"`
	TmuxSessionName     string       `yaml:"tmux_session_name"`
	Backend             string       `yaml:"backend"` // tmux, docker
	Docker              DockerConfig `yaml:"docker"`
}

type DockerConfig struct {
	Image     string            `yaml:"image"`
	Container string            `yaml:"container"`
	Ports     []string          `yaml:"ports"`
	Env       map[string]string `yaml:"env"`
	Volumes   map[string]string `yaml:"volumes"`
	Memory    string            `yaml:"memory"`
	CPU       float64           `yaml:"cpu"`
}

type TelegramBotConfig struct {
	TmuxSessionName string `yaml:"tmux_session_name"`
	WorkDir         string `yaml:"work_dir"`
	SetupCommand    string `yaml:"setup_command"`
	LaunchCommand   string `yaml:"launch_command"`
	LaunchLabel     string `yaml:"launch_label"`
	ChatID          int64  `yaml:"chat_id"`
	APIBaseURL      string `yaml:"api_base_url"`
}

type RCONConfig struct {
	Host            string   `yaml:"host"`
	Port            int      `yaml:"port"`
	Timeout         Seconds  `yaml:"timeout"`
	AllowedCommands []string `yaml:"allowed_commands"`
}

type OtherConfig struct {
	ModManagerTimeout         Seconds `yaml:"mod_manager_timeout"`
	MinimumAgreeMembersForMod int     `yaml:"minimum_agree_members_for_mod"`
	PollMaxAnswers            int     `yaml:"poll_max_answers"`
	PollDuration              Seconds `yaml:"poll_duration"`
	RestartNoticeDelay        Seconds `yaml:"restart_notice_delay"`
	PlayerSampleInterval      Seconds `yaml:"player_sample_interval"`
}

// DefaultAdminPass is the operator password used when ZOMBOID_ADMIN_PASS
// is unset.
const DefaultAdminPass = "admin"

// EnvConfig is populated by envconfig with the ZOMBOID prefix.
type EnvConfig struct {
	ListenAddr    string `envconfig:"LISTEN" default:":8080"`
	DataDir       string `envconfig:"DATA_DIR" default:"./data"`
	DatabasePath  string `envconfig:"DB"`
	TelegramToken string `envconfig:"TELEGRAM_TOKEN"`
	WebhookSecret string `envconfig:"WEBHOOK_SECRET"`
	PublicURL     string `envconfig:"PUBLIC_URL"`
	RCONPassword  string `envconfig:"RCON_PASSWORD"`
	LogLevel      string `envconfig:"LOG_LEVEL" default:"info"`
	LogDev        bool   `envconfig:"LOG_DEV" default:"false"`
	AdminUser     string `envconfig:"ADMIN_USER" default:"admin"`
	AdminPass     string `envconfig:"ADMIN_PASS" default:"admin"`
}

// Seconds is a duration that accepts either a bare number of seconds or a
// Go duration string in YAML.
type Seconds time.Duration

func (s *Seconds) UnmarshalYAML(value *yaml.Node) error {
	var n float64
	if err := value.Decode(&n); err == nil {
		*s = Seconds(time.Duration(n * float64(time.Second)))
		return nil
	}
	var str string
	if err := value.Decode(&str); err != nil {
		return fmt.Errorf("line %d: expected seconds or duration", value.Line)
	}
	d, err := time.ParseDuration(str)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*s = Seconds(d)
	return nil
}

// Duration returns s as a time.Duration.
func (s Seconds) Duration() time.Duration { return time.Duration(s) }

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Backend: "tmux",
		},
		TelegramBot: TelegramBotConfig{
			SetupCommand:  "source venv/bin/activate",
			LaunchCommand: "python bot.py",
			LaunchLabel:   "bot.py",
			APIBaseURL:    "https://api.telegram.org",
		},
		RCON: RCONConfig{
			Host:    "127.0.0.1",
			Port:    27015,
			Timeout: Seconds(10 * time.Second),
		},
		Other: OtherConfig{
			ModManagerTimeout:         Seconds(5 * time.Second),
			MinimumAgreeMembersForMod: 3,
			PollMaxAnswers:            5,
			PollDuration:              Seconds(time.Hour),
			RestartNoticeDelay:        Seconds(210 * time.Second),
			PlayerSampleInterval:      Seconds(30 * time.Second),
		},
	}
}

// Load reads the YAML file at path and overlays environment settings.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse parses YAML bytes into a validated Config. Environment settings are
// not applied.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) loadEnv() error {
	if err := envconfig.Process("ZOMBOID", &c.Env); err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	// Variable names used by older deployment scripts.
	if c.Env.TelegramToken == "" {
		c.Env.TelegramToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	}
	if c.Env.RCONPassword == "" {
		c.Env.RCONPassword = os.Getenv("RCON_PASSWORD")
	}

	dataDir, err := filepath.Abs(c.Env.DataDir)
	if err != nil {
		return err
	}
	c.Env.DataDir = dataDir
	if c.Env.DatabasePath == "" {
		c.Env.DatabasePath = filepath.Join(dataDir, "zomboidbot.db")
	}
	return nil
}

// Validate checks the fields every command depends on.
func (c *Config) Validate() error {
	if c.Server.TmuxSessionName == "" {
		return fmt.Errorf("config: server.tmux_session_name is required")
	}
	if c.TelegramBot.TmuxSessionName == "" {
		return fmt.Errorf("config: telegram_bot.tmux_session_name is required")
	}
	if c.Server.Name == "" {
		return fmt.Errorf("config: server.name is required")
	}
	switch c.Server.Backend {
	case "tmux":
	case "docker":
		if c.Server.Docker.Image == "" || c.Server.Docker.Container == "" {
			return fmt.Errorf("config: docker backend needs server.docker.image and server.docker.container")
		}
	default:
		return fmt.Errorf("config: unknown server.backend %q", c.Server.Backend)
	}
	if c.Other.MinimumAgreeMembersForMod < 1 {
		return fmt.Errorf("config: other.minimum_agree_members_for_mod must be positive")
	}
	if c.Other.PollMaxAnswers < c.Other.MinimumAgreeMembersForMod {
		return fmt.Errorf("config: other.poll_max_answers must be at least minimum_agree_members_for_mod")
	}
	return nil
}

// ServerIniPath is the main server settings file, <config_dirpath>/<name>.ini.
func (c *Config) ServerIniPath() string {
	return filepath.Join(c.Server.ConfigDirPath, c.Server.Name+".ini")
}

// StartServerScript is the launcher shipped with the dedicated server.
func (c *Config) StartServerScript() string {
	return filepath.Join(c.Server.StartServerFilePath, "start-server.sh")
}

// RCONAddr returns host:port for the RCON listener.
func (c *Config) RCONAddr() string {
	return fmt.Sprintf("%s:%d", c.RCON.Host, c.RCON.Port)
}
