package jobqueue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"fknsrs.biz/p/sorm"

	"fknsrs.biz/p/clipcatalog/internal/sqltypes"
)

// ParsePayload splits a payload of the form "target?key=value" into its
// target and parameters.
func ParsePayload(s string) (string, url.Values, error) {
	target, query, ok := strings.Cut(s, "?")
	if !ok {
		return s, url.Values{}, nil
	}

	m, err := url.ParseQuery(query)
	if err != nil {
		return target, url.Values{}, fmt.Errorf("jobqueue.ParsePayload: %w", err)
	}

	return target, m, nil
}

func FormatPayload(s string, m url.Values) string {
	if len(m) == 0 {
		return s
	}

	return s + "?" + m.Encode()
}

const (
	DefaultFailureDelay      = time.Second * 5
	DefaultAttempts          = 3
	DefaultReservationLength = time.Minute * 5
)

var (
	ErrAlreadyFinished = errors.New("jobqueue: job has already finished")
	ErrReserved        = errors.New("jobqueue: job has a reservation that has not expired")
)

// Job is one unit of background work. A failed attempt with attempts
// remaining is put back in the queue rather than finished, so every element
// of ErrorMessages but the last belongs to a retried attempt.
type Job struct {
	ID                int                      `sql:",table:jobs" json:"id"`
	CreatedAt         time.Time                `json:"created_at"`
	QueueName         string                   `json:"queue_name"`
	Payload           string                   `json:"payload"`
	RunAfter          time.Time                `json:"run_after"`
	FailureDelay      time.Duration            `json:"failure_delay"`
	AttemptsRemaining int                      `json:"attempts_remaining"`
	ReservedAt        *time.Time               `json:"reserved_at"`
	ReservedUntil     *time.Time               `json:"reserved_until"`
	FinishedAt        *time.Time               `json:"finished_at"`
	ErrorMessages     sqltypes.JSONStringSlice `json:"error_messages"`
	OutputMessages    sqltypes.JSONStringSlice `json:"output_messages"`
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusReserved  Status = "reserved"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Failed reports whether the job has finished with an error and no attempts
// left.
func (j *Job) Failed() bool {
	return j.FinishedAt != nil && len(j.ErrorMessages) > 0 && j.ErrorMessages[len(j.ErrorMessages)-1] != ""
}

// Status describes the job as of now. An expired reservation counts as
// pending since the next worker to look will take it.
func (j *Job) Status(now time.Time) Status {
	switch {
	case j.Failed():
		return StatusFailed
	case j.FinishedAt != nil:
		return StatusSucceeded
	case j.ReservedUntil != nil && j.ReservedUntil.After(now):
		return StatusReserved
	default:
		return StatusPending
	}
}

// MarshalJSON adds a status computed against the wall clock.
func (j Job) MarshalJSON() ([]byte, error) {
	type plain Job

	return json.Marshal(struct {
		plain
		Status Status `json:"status"`
	}{plain(j), j.Status(time.Now())})
}

func numberedPlaceholders(from, n int) string {
	a := make([]string, n)
	for i := range a {
		a[i] = fmt.Sprintf("?%d", from+i)
	}

	return strings.Join(a, ", ")
}

func findNext(ctx context.Context, db sorm.Querier, queueNames []string, now time.Time) (*Job, error) {
	if len(queueNames) == 0 {
		return nil, nil
	}

	parameters := make([]interface{}, 0, len(queueNames)+1)
	for _, name := range queueNames {
		parameters = append(parameters, name)
	}
	parameters = append(parameters, now)

	nowParameter := len(parameters)

	query := fmt.Sprintf(
		"where queue_name in (%s) and run_after <= ?%d and (reserved_until is null or reserved_until < ?%d) and finished_at is null order by run_after asc, id asc",
		numberedPlaceholders(1, len(queueNames)),
		nowParameter,
		nowParameter,
	)

	var job Job
	if err := sorm.FindFirstWhere(ctx, db, &job, query, parameters...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("jobqueue.findNext: %w", err)
	}

	return &job, nil
}

func reserve(ctx context.Context, tx *sql.Tx, job *Job, now time.Time, length time.Duration) error {
	switch job.Status(now) {
	case StatusReserved:
		return fmt.Errorf("jobqueue.reserve: %w", ErrReserved)
	case StatusSucceeded, StatusFailed:
		return fmt.Errorf("jobqueue.reserve: %w", ErrAlreadyFinished)
	}

	if length == 0 {
		length = DefaultReservationLength
	}

	until := now.Add(length)
	job.ReservedAt = &now
	job.ReservedUntil = &until

	if err := sorm.SaveRecord(ctx, tx, job); err != nil {
		return fmt.Errorf("jobqueue.reserve: %w", err)
	}

	return nil
}

// findNextAndReserve returns nil when nothing is due.
func findNextAndReserve(ctx context.Context, tx *sql.Tx, queueNames []string, now time.Time, length time.Duration) (*Job, error) {
	j, err := findNext(ctx, tx, queueNames, now)
	if err != nil || j == nil {
		return nil, err
	}

	if err := reserve(ctx, tx, j, now, length); err != nil {
		return nil, err
	}

	return j, nil
}

// finish records the outcome of one attempt. A failed attempt with attempts
// remaining puts the job back in the queue after its failure delay.
func finish(ctx context.Context, tx *sql.Tx, job *Job, now time.Time, errorMessage, outputMessage string) error {
	if job.FinishedAt != nil {
		return fmt.Errorf("jobqueue.finish: %w", ErrAlreadyFinished)
	}

	job.ErrorMessages = append(job.ErrorMessages, errorMessage)
	job.OutputMessages = append(job.OutputMessages, outputMessage)
	job.ReservedAt = nil
	job.ReservedUntil = nil

	if errorMessage != "" && job.AttemptsRemaining > 0 {
		job.AttemptsRemaining--
		job.RunAfter = now.Add(job.FailureDelay)
	} else {
		job.FinishedAt = &now
	}

	if err := sorm.SaveRecord(ctx, tx, job); err != nil {
		return fmt.Errorf("jobqueue.finish: %w", err)
	}

	return nil
}
