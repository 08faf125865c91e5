// Package bot answers the Telegram group's commands: server restarts,
// player counts, and mod requests settled by a vote.
package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/reedfamily/zomboidbot/internal/metrics"
	"github.com/reedfamily/zomboidbot/internal/mods"
	"github.com/reedfamily/zomboidbot/internal/ratelimit"
	"github.com/reedfamily/zomboidbot/internal/supervisor"
	"github.com/reedfamily/zomboidbot/internal/telegram"
	"github.com/reedfamily/zomboidbot/internal/workshop"
	"go.uber.org/zap"
)

// Commands understood by the bot.
const (
	CmdRestartServer = "restart_server"
	CmdActivePlayer  = "active_player"
	CmdAddMod        = "add_mod"
	CmdModDependents = "mod_dependents"
	CmdSessionStatus = "session_status"
)

// DefaultLimits are the per-command rate limits.
var DefaultLimits = map[string]ratelimit.Rule{
	CmdRestartServer: {Window: 220 * time.Second, PerUser: 1, Global: 1},
	CmdActivePlayer:  {Window: 10 * time.Second, PerUser: 5},
	CmdAddMod:        {Window: 100 * time.Second, PerUser: 4},
}

type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string, opts telegram.MessageOptions) (*telegram.Message, error)
	SendPoll(ctx context.Context, chatID int64, question string, options []string, anonymous bool) (*telegram.Message, error)
	StopPoll(ctx context.Context, chatID, messageID int64) (*telegram.Poll, error)
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
}

type Session interface {
	Restart(ctx context.Context) (supervisor.Result, error)
	Status(ctx context.Context) (supervisor.Status, error)
}

type PlayerCounter interface {
	Refresh() error
	ActivePlayers() (int, error)
}

type ModManager interface {
	ModURL(id string) string
	Check(ctx context.Context, id string) error
	Resolve(ctx context.Context, id string) (map[string]workshop.Mod, error)
	Install(ctx context.Context, mods map[string]workshop.Mod) ([]workshop.Mod, error)
	Dependents(identifier string) ([]string, error)
}

type Options struct {
	// ChatID restricts the bot to one group. Zero accepts every chat.
	ChatID             int64
	MinAgree           int
	MaxAnswers         int
	PollDuration       time.Duration
	ShortenedDuration  time.Duration
	RestartNoticeDelay time.Duration
	InstallPause       time.Duration
}

func DefaultOptions() Options {
	return Options{
		MinAgree:           3,
		MaxAnswers:         5,
		PollDuration:       time.Hour,
		ShortenedDuration:  30 * time.Minute,
		RestartNoticeDelay: 210 * time.Second,
		InstallPause:       3 * time.Second,
	}
}

type Bot struct {
	tg      Messenger
	server  Session
	players PlayerCounter
	mods    ModManager
	polls   *PollStore
	limits  *ratelimit.Set
	metrics *metrics.Metrics
	opts    Options
	log     *zap.Logger

	now   func() time.Time
	after func(time.Duration, func())
	pause func(context.Context, time.Duration)

	updates chan telegram.Update
}

func New(tg Messenger, server Session, players PlayerCounter, modMgr ModManager, polls *PollStore, opts Options, m *metrics.Metrics, log *zap.Logger) *Bot {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bot{
		tg:      tg,
		server:  server,
		players: players,
		mods:    modMgr,
		polls:   polls,
		limits:  ratelimit.NewSet(DefaultLimits),
		metrics: m,
		opts:    opts,
		log:     log,
		now:     time.Now,
		after:   func(d time.Duration, f func()) { time.AfterFunc(d, f) },
		pause:   sleep,
		updates: make(chan telegram.Update, 64),
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Enqueue hands an update to Run. It reports false when the queue is full.
func (b *Bot) Enqueue(u telegram.Update) bool {
	select {
	case b.updates <- u:
		return true
	default:
		return false
	}
}

// Run handles queued updates one at a time and closes polls as they
// expire, until ctx is done.
func (b *Bot) Run(ctx context.Context, pollCheck time.Duration) {
	ticker := time.NewTicker(pollCheck)
	defer ticker.Stop()

	b.CloseDuePolls(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-b.updates:
			if err := b.HandleUpdate(ctx, u); err != nil {
				b.log.Error("handle update", zap.Int64("update_id", u.UpdateID), zap.Error(err))
			}
		case <-ticker.C:
			b.CloseDuePolls(ctx)
		}
	}
}

func (b *Bot) HandleUpdate(ctx context.Context, u telegram.Update) error {
	switch {
	case u.PollAnswer != nil:
		return b.onPollAnswer(ctx, u.PollAnswer)
	case u.Message != nil:
		return b.onMessage(ctx, u.Message)
	}
	return nil
}

func (b *Bot) onMessage(ctx context.Context, msg *telegram.Message) error {
	if b.opts.ChatID != 0 && msg.Chat.ID != b.opts.ChatID {
		return nil
	}
	cmd, args, ok := telegram.ParseCommand(msg.Text)
	if !ok || msg.From == nil {
		return nil
	}

	var handler func(context.Context, *telegram.Message, string) error
	switch cmd {
	case CmdRestartServer:
		handler = b.restartServer
	case CmdActivePlayer:
		handler = b.activePlayer
	case CmdAddMod:
		handler = b.addMod
	case CmdModDependents:
		handler = b.modDependents
	case CmdSessionStatus:
		handler = b.sessionStatus
	default:
		return nil
	}

	if err := b.limits.Allow(cmd, msg.From.ID, msg.From.Name()); err != nil {
		var le *ratelimit.LimitError
		if !errors.As(err, &le) {
			return err
		}
		b.count(cmd, "limited")
		if le.Global {
			return b.send(ctx, msg.Chat.ID, fmt.Sprintf(
				"Permintaan ditolak karena <b>telah dilakukan oleh %s</b>.\nFungsi ini akan bekerja %d detik lagi.",
				html.EscapeString(le.Holder), le.Seconds()))
		}
		return b.send(ctx, msg.Chat.ID, fmt.Sprintf("Telah mencapai batas pemanggilan. Mohon tunggu %d detik lagi.", le.Seconds()))
	}

	b.log.Info("command", zap.String("command", cmd), zap.String("user", msg.From.Name()), zap.Int64("chat", msg.Chat.ID))
	if err := handler(ctx, msg, args); err != nil {
		b.count(cmd, "error")
		return fmt.Errorf("/%s: %w", cmd, err)
	}
	b.count(cmd, "ok")
	return nil
}

func (b *Bot) restartServer(ctx context.Context, msg *telegram.Message, _ string) error {
	chat := msg.Chat.ID
	if err := b.players.Refresh(); err != nil {
		b.log.Warn("refresh logs", zap.Error(err))
		return b.reply(ctx, msg, "Gagal merestart, log tidak ditemukan.")
	}
	active, err := b.players.ActivePlayers()
	if err != nil {
		b.log.Warn("count players", zap.Error(err))
		return b.reply(ctx, msg, "Gagal merestart, log tidak ditemukan.")
	}
	b.log.Info("restart requested", zap.Int("active_players", active))

	if active > 0 {
		if err := b.reply(ctx, msg, fmt.Sprintf("<b>Restart server ditolak</b>, terdapat %d player di dalam server.", active)); err != nil {
			return err
		}
		return b.send(ctx, chat, "Mohon beritahukan kepada pemain tersebut untuk <b>log out</b> sementara.")
	}

	if _, err := b.server.Restart(ctx); err != nil {
		b.reply(ctx, msg, "Gagal merestart server.")
		return err
	}
	if err := b.reply(ctx, msg, "Sedang merestart server ..\nMohon tunggu beberapa menit."); err != nil {
		return err
	}
	b.after(b.opts.RestartNoticeDelay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := b.reply(ctx, msg, "Server telah <b>sukses di-restart</b>."); err != nil {
			b.log.Warn("restart notice", zap.Error(err))
		}
	})
	return nil
}

func (b *Bot) activePlayer(ctx context.Context, msg *telegram.Message, _ string) error {
	if err := b.players.Refresh(); err != nil {
		b.log.Warn("refresh logs", zap.Error(err))
		return b.reply(ctx, msg, "Log tidak ditemukan, kemungkinan tidak ada player online.")
	}
	active, err := b.players.ActivePlayers()
	if err != nil {
		b.log.Warn("count players", zap.Error(err))
		return b.reply(ctx, msg, "Log tidak ditemukan, kemungkinan tidak ada player online.")
	}
	if b.metrics != nil {
		b.metrics.ActivePlayers.Set(float64(active))
	}
	return b.reply(ctx, msg, fmt.Sprintf("Terdapat %d player yang sedang bermain di dalam server.", active))
}

func (b *Bot) modLink(id string) string {
	return fmt.Sprintf(`<a href="%s">Mod ID: %s</a>`, html.EscapeString(b.mods.ModURL(id)), html.EscapeString(id))
}

func (b *Bot) addMod(ctx context.Context, msg *telegram.Message, args string) error {
	chat := msg.Chat.ID
	if args == "" {
		return b.reply(ctx, msg, "Mohon tuliskan ID MOD yang ingin ditambahkan.")
	}
	if !workshop.IsWorkshopID(args) {
		return b.reply(ctx, msg, "Mohon <b>tulis ID MOD saja</b>.")
	}

	link := b.modLink(args)
	err := b.mods.Check(ctx, args)
	switch {
	case errors.Is(err, mods.ErrInvalidMod):
		return b.send(ctx, chat, fmt.Sprintf("Mohon maaf, %s tidak valid.", link))
	case errors.Is(err, mods.ErrAlreadyInstalled):
		return b.send(ctx, chat, fmt.Sprintf("Mohon maaf, %s telah terinstall di dalam server.", link))
	case err != nil:
		b.send(ctx, chat, fmt.Sprintf("Gagal memeriksa %s, coba lagi nanti.", link))
		return err
	}

	if err := b.send(ctx, chat, fmt.Sprintf("Silahkan vote apakah MOD %s layak masuk server", link)); err != nil {
		return err
	}
	pm, err := b.tg.SendPoll(ctx, chat, "Gimana?", pollOptions, false)
	if err != nil {
		return err
	}
	if pm.Poll == nil {
		return errors.New("sendPoll returned no poll")
	}
	poll := Poll{
		ID:          pm.Poll.ID,
		ChatID:      chat,
		MessageID:   pm.MessageID,
		WorkshopID:  args,
		RequestedBy: msg.From.Name(),
		ClosesAt:    b.now().Add(b.opts.PollDuration),
	}
	if err := b.polls.Create(ctx, poll); err != nil {
		return err
	}
	b.log.Info("mod poll opened", zap.String("poll", poll.ID), zap.String("workshop_id", args), zap.Time("closes_at", poll.ClosesAt))
	b.refreshOpenPolls(ctx)
	return nil
}

func (b *Bot) modDependents(ctx context.Context, msg *telegram.Message, args string) error {
	if args == "" {
		return b.reply(ctx, msg, "Mohon tuliskan ID atau nama MOD.")
	}
	deps, err := b.mods.Dependents(args)
	switch {
	case errors.Is(err, mods.ErrUnknownMod):
		return b.reply(ctx, msg, fmt.Sprintf("MOD %s tidak ditemukan.", html.EscapeString(args)))
	case errors.Is(err, mods.ErrAmbiguousMod):
		return b.reply(ctx, msg, fmt.Sprintf("Nama MOD %s ambigu, gunakan ID MOD.", html.EscapeString(args)))
	case err != nil:
		return err
	}
	if len(deps) == 0 {
		return b.reply(ctx, msg, fmt.Sprintf("Tidak ada MOD yang membutuhkan %s.", html.EscapeString(args)))
	}
	return b.reply(ctx, msg, fmt.Sprintf("MOD %s dibutuhkan oleh:\n%s", html.EscapeString(args), strings.Join(deps, "\n")))
}

func (b *Bot) sessionStatus(ctx context.Context, msg *telegram.Message, _ string) error {
	status, err := b.server.Status(ctx)
	if err != nil {
		return err
	}
	if status == supervisor.StatusRunning {
		return b.reply(ctx, msg, "Server sedang <b>berjalan</b>.")
	}
	return b.reply(ctx, msg, "Server sedang <b>mati</b>.")
}

func (b *Bot) onPollAnswer(ctx context.Context, ans *telegram.PollAnswer) error {
	poll, err := b.polls.Get(ctx, ans.PollID)
	if errors.Is(err, errPollNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if poll.Closed || ans.User == nil {
		return nil
	}

	retract := len(ans.OptionIDs) == 0
	option := -1
	if !retract {
		option = ans.OptionIDs[0]
		if option < 0 || option >= len(pollOptions) {
			return nil
		}
	}
	if err := b.polls.Vote(ctx, poll.ID, ans.User.ID, ans.User.Name(), option, retract); err != nil {
		return err
	}
	if retract {
		return nil
	}

	if err := b.send(ctx, poll.ChatID, fmt.Sprintf("%s %s!", telegram.MentionHTML(*ans.User), strings.ToLower(pollOptions[option]))); err != nil {
		b.log.Warn("announce vote", zap.Error(err))
	}

	tally, err := b.polls.Tally(ctx, poll.ID)
	if err != nil {
		return err
	}
	switch answers := tally.Voters(); {
	case answers >= b.opts.MaxAnswers:
		return b.closePoll(ctx, *poll)
	case answers == b.opts.MinAgree:
		closesAt := b.now().Add(b.opts.ShortenedDuration)
		if closesAt.After(poll.ClosesAt) {
			return nil
		}
		if err := b.polls.SetClosesAt(ctx, poll.ID, closesAt); err != nil {
			return err
		}
		return b.send(ctx, poll.ChatID, fmt.Sprintf(
			"Setengah dari anggota grub telah voting, polling akan ditutup %d menit lagi!",
			int(b.opts.ShortenedDuration.Minutes())))
	}
	return nil
}

// CloseDuePolls settles every poll whose time is up.
func (b *Bot) CloseDuePolls(ctx context.Context) {
	due, err := b.polls.Due(ctx, b.now())
	if err != nil {
		b.log.Error("list due polls", zap.Error(err))
		return
	}
	for _, p := range due {
		if err := b.closePoll(ctx, p); err != nil {
			b.log.Error("close poll", zap.String("poll", p.ID), zap.Error(err))
		}
	}
	b.refreshOpenPolls(ctx)
}

func (b *Bot) closePoll(ctx context.Context, p Poll) error {
	claimed, err := b.polls.Claim(ctx, p.ID)
	if err != nil || !claimed {
		return err
	}
	defer b.refreshOpenPolls(ctx)

	if _, err := b.tg.StopPoll(ctx, p.ChatID, p.MessageID); err != nil {
		b.log.Warn("stop poll", zap.String("poll", p.ID), zap.Error(err))
	}
	if err := b.tg.DeleteMessage(ctx, p.ChatID, p.MessageID); err != nil {
		b.log.Warn("delete poll message", zap.String("poll", p.ID), zap.Error(err))
	}

	tally, err := b.polls.Tally(ctx, p.ID)
	if err != nil {
		return err
	}
	b.log.Info("mod poll closed", zap.String("poll", p.ID), zap.Int("agree", tally.Agree), zap.Int("disagree", tally.Disagree))

	if tally.Agree <= tally.Disagree {
		b.polls.SetOutcome(ctx, p.ID, OutcomeRejected)
		return b.send(ctx, p.ChatID, "Voting berakhir dan mayoritas tidak menyetujui mod tersebut!")
	}

	if err := b.send(ctx, p.ChatID, "Voting berakhir dan mayoritas menyetujui mod tersebut!"); err != nil {
		b.log.Warn("announce result", zap.Error(err))
	}
	b.pause(ctx, b.opts.InstallPause)
	if err := b.send(ctx, p.ChatID, "Mod akan diinstall!"); err != nil {
		b.log.Warn("announce install", zap.Error(err))
	}

	if err := b.install(ctx, p); err != nil {
		b.polls.SetOutcome(ctx, p.ID, OutcomeFailed)
		b.send(ctx, p.ChatID, "Gagal menambahkan mod, mohon coba lagi nanti.")
		return err
	}
	return b.polls.SetOutcome(ctx, p.ID, OutcomeApproved)
}

func (b *Bot) install(ctx context.Context, p Poll) error {
	resolved, err := b.mods.Resolve(ctx, p.WorkshopID)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", p.WorkshopID, err)
	}
	ordered, err := mods.InstallOrder(resolved)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(ordered))
	for _, m := range ordered {
		ids = append(ids, m.WorkshopID)
	}
	if err := b.send(ctx, p.ChatID, "Berikut adalah Mod ID yang akan ditambahkan:\n\n"+strings.Join(ids, "\n")); err != nil {
		b.log.Warn("announce mod ids", zap.Error(err))
	}

	added, err := b.mods.Install(ctx, resolved)
	if err != nil {
		return err
	}
	if b.metrics != nil {
		b.metrics.ModsInstalled.Add(float64(len(added)))
	}
	return b.send(ctx, p.ChatID, "Mod berhasil ditambahkan.")
}

func (b *Bot) refreshOpenPolls(ctx context.Context) {
	if b.metrics == nil {
		return
	}
	if n, err := b.polls.OpenCount(ctx); err == nil {
		b.metrics.PollsOpen.Set(float64(n))
	}
}

func (b *Bot) count(cmd, result string) {
	if b.metrics != nil {
		b.metrics.BotCommands.WithLabelValues(cmd, result).Inc()
	}
}

func (b *Bot) send(ctx context.Context, chatID int64, text string) error {
	_, err := b.tg.SendMessage(ctx, chatID, text, telegram.MessageOptions{ParseMode: telegram.ParseModeHTML})
	return err
}

func (b *Bot) reply(ctx context.Context, msg *telegram.Message, text string) error {
	_, err := b.tg.SendMessage(ctx, msg.Chat.ID, text, telegram.MessageOptions{
		ParseMode:        telegram.ParseModeHTML,
		ReplyToMessageID: msg.MessageID,
	})
	return err
}
