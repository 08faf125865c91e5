package bot

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Poll answer options, in the order they are sent.
const (
	OptionAgree    = 0
	OptionDisagree = 1
)

var pollOptions = []string{"Setuju", "Tidak Setuju"}

// Poll outcomes.
const (
	OutcomeApproved = "approved"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

var errPollNotFound = errors.New("poll not found")

type Poll struct {
	ID          string    `json:"id"`
	ChatID      int64     `json:"chat_id"`
	MessageID   int64     `json:"message_id"`
	WorkshopID  string    `json:"workshop_id"`
	RequestedBy string    `json:"requested_by"`
	ClosesAt    time.Time `json:"closes_at"`
	Closed      bool      `json:"closed"`
	Outcome     string    `json:"outcome"`
}

type Tally struct {
	Agree    int `json:"agree"`
	Disagree int `json:"disagree"`
}

// Voters is everyone who currently has an answer on the poll.
func (t Tally) Voters() int { return t.Agree + t.Disagree }

// PollStore keeps mod polls and their votes in sqlite so a restart of the
// bot does not lose running polls.
type PollStore struct {
	db *sql.DB
}

func NewPollStore(db *sql.DB) *PollStore {
	return &PollStore{db: db}
}

func (s *PollStore) Create(ctx context.Context, p Poll) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO polls (id, chat_id, message_id, workshop_id, requested_by, closes_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, p.ID, p.ChatID, p.MessageID, p.WorkshopID, p.RequestedBy, p.ClosesAt.UTC())
	return err
}

func (s *PollStore) Get(ctx context.Context, id string) (*Poll, error) {
	var p Poll
	err := s.db.QueryRowContext(ctx, `
		SELECT id, chat_id, message_id, workshop_id, requested_by, closes_at, closed, outcome
		FROM polls WHERE id = ?
	`, id).Scan(&p.ID, &p.ChatID, &p.MessageID, &p.WorkshopID, &p.RequestedBy, &p.ClosesAt, &p.Closed, &p.Outcome)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errPollNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Vote records the user's current answer. An empty answer is a retracted
// vote.
func (s *PollStore) Vote(ctx context.Context, pollID string, userID int64, username string, option int, retract bool) error {
	if retract {
		_, err := s.db.ExecContext(ctx, "DELETE FROM poll_votes WHERE poll_id = ? AND user_id = ?", pollID, userID)
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO poll_votes (poll_id, user_id, username, option, voted_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(poll_id, user_id) DO UPDATE SET option = excluded.option, username = excluded.username, voted_at = excluded.voted_at
	`, pollID, userID, username, option, time.Now().UTC())
	return err
}

func (s *PollStore) Tally(ctx context.Context, pollID string) (Tally, error) {
	var t Tally
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN option = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN option = ? THEN 1 ELSE 0 END), 0)
		FROM poll_votes WHERE poll_id = ?
	`, OptionAgree, OptionDisagree, pollID).Scan(&t.Agree, &t.Disagree)
	return t, err
}

func (s *PollStore) SetClosesAt(ctx context.Context, pollID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, "UPDATE polls SET closes_at = ? WHERE id = ?", at.UTC(), pollID)
	return err
}

// Claim marks the poll closed. Only the first caller gets true, so a poll
// is settled once even when the timer and the last vote race.
func (s *PollStore) Claim(ctx context.Context, pollID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "UPDATE polls SET closed = 1 WHERE id = ? AND closed = 0", pollID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (s *PollStore) SetOutcome(ctx context.Context, pollID, outcome string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE polls SET outcome = ? WHERE id = ?", outcome, pollID)
	return err
}

// Due lists open polls whose closing time has passed.
func (s *PollStore) Due(ctx context.Context, now time.Time) ([]Poll, error) {
	return s.query(ctx, `
		SELECT id, chat_id, message_id, workshop_id, requested_by, closes_at, closed, outcome
		FROM polls WHERE closed = 0 AND closes_at <= ? ORDER BY closes_at
	`, now.UTC())
}

// List returns the most recent polls first.
func (s *PollStore) List(ctx context.Context, limit int) ([]Poll, error) {
	return s.query(ctx, `
		SELECT id, chat_id, message_id, workshop_id, requested_by, closes_at, closed, outcome
		FROM polls ORDER BY created_at DESC, closes_at DESC LIMIT ?
	`, limit)
}

func (s *PollStore) OpenCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM polls WHERE closed = 0").Scan(&n)
	return n, err
}

func (s *PollStore) query(ctx context.Context, q string, args ...any) ([]Poll, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var polls []Poll
	for rows.Next() {
		var p Poll
		if err := rows.Scan(&p.ID, &p.ChatID, &p.MessageID, &p.WorkshopID, &p.RequestedBy, &p.ClosesAt, &p.Closed, &p.Outcome); err != nil {
			return nil, err
		}
		polls = append(polls, p)
	}
	return polls, rows.Err()
}
