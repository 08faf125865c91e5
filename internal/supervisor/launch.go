package supervisor

import (
	"fmt"

	"github.com/reedfamily/zomboidbot/internal/config"
	"github.com/reedfamily/zomboidbot/internal/docker"
)

// BotLaunch starts the bot inside its own session.
func BotLaunch(cfg *config.Config) Launch {
	return Launch{
		WorkDir: cfg.TelegramBot.WorkDir,
		Setup:   cfg.TelegramBot.SetupCommand,
		Command: cfg.TelegramBot.LaunchCommand,
		Label:   cfg.TelegramBot.LaunchLabel,
	}
}

// ServerLaunch starts the dedicated server with the configured server name.
func ServerLaunch(cfg *config.Config) Launch {
	return Launch{
		Setup:   "cd " + cfg.Server.StartServerFilePath,
		Command: fmt.Sprintf("%s -servername %s", cfg.StartServerScript(), cfg.Server.Name),
		Label:   "start-server.sh",
	}
}

// ContainerSpec builds the docker container for the dedicated server.
func ContainerSpec(cfg *config.Config) (docker.ContainerConfig, error) {
	d := cfg.Server.Docker
	ports, err := docker.ParsePortMappings(d.Ports)
	if err != nil {
		return docker.ContainerConfig{}, err
	}
	memory, err := docker.ParseMemory(d.Memory)
	if err != nil {
		return docker.ContainerConfig{}, err
	}
	env := map[string]string{"SERVERNAME": cfg.Server.Name}
	for k, v := range d.Env {
		env[k] = v
	}
	return docker.ContainerConfig{
		Name:        d.Container,
		Image:       d.Image,
		Env:         env,
		Ports:       ports,
		Volumes:     d.Volumes,
		MemoryLimit: memory,
		CPULimit:    d.CPU,
	}, nil
}
