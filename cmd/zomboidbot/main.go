// Command zomboidbot runs the Project Zomboid Telegram bot and manages the
// tmux sessions of the bot and the dedicated server.
package main

func main() {
	Execute()
}
