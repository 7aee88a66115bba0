package model

import (
	"fmt"
	"strings"
	"time"
)

// Mode selects what a run does with each rendered message.
type Mode string

const (
	ModeNew      Mode = "new"      // send a fresh message and label it
	ModeFollowUp Mode = "followup" // reply inside the thread stored on the row
	ModeDraft    Mode = "draft"    // create a draft only
)

// ParseMode accepts the canonical names plus a few spellings the UI uses.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "new", "send":
		return ModeNew, nil
	case "followup", "follow-up", "reply":
		return ModeFollowUp, nil
	case "draft", "drafts":
		return ModeDraft, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Template is the subject/body pair for a run. Format is "markup" (the
// default **bold** / [link](url) dialect) or "markdown".
type Template struct {
	Subject string
	Body    string
	Format  string
}

// Header is a single message header as returned by the transport.
type Header struct {
	Name  string
	Value string
}

// Correlation links an outgoing message to its thread for later follow-ups.
type Correlation struct {
	ThreadID  string
	MessageID string // RFC 5322 Message-ID header value
}

// Message is a rendered message ready for the transport.
type Message struct {
	From     string // optional, provider default when empty
	To       string
	Subject  string
	HTMLBody string
	TextBody string

	// Follow-up addressing; empty for new messages.
	ThreadID   string
	InReplyTo  string
	References string

	Attachments []Attachment
}

// Attachment is a file carried by a Message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// SentMessage is what the transport returns for a send or draft.
type SentMessage struct {
	ID       string
	ThreadID string
}

// Label is a mailbox label.
type Label struct {
	ID   string
	Name string
}

// OutcomeKind tags an Outcome.
type OutcomeKind string

const (
	OutcomeSent    OutcomeKind = "sent"
	OutcomeSkipped OutcomeKind = "skipped"
	OutcomeFailed  OutcomeKind = "failed"
)

// Outcome is the result of one row. Exactly one per processed row.
type Outcome struct {
	Row        int // zero-based row index
	Identifier string
	Kind       OutcomeKind

	// Sent
	GmailID     string
	Correlation Correlation

	// Skipped
	Reason string

	// Failed
	Error string
}

func SentOutcome(row int, identifier, gmailID string, c Correlation) Outcome {
	return Outcome{Row: row, Identifier: identifier, Kind: OutcomeSent, GmailID: gmailID, Correlation: c}
}

func SkippedOutcome(row int, identifier, reason string) Outcome {
	return Outcome{Row: row, Identifier: identifier, Kind: OutcomeSkipped, Reason: reason}
}

func FailedOutcome(row int, identifier string, err error) Outcome {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return Outcome{Row: row, Identifier: identifier, Kind: OutcomeFailed, Error: msg}
}

// Failure pairs a recipient identifier with the transport error text.
type Failure struct {
	Identifier string
	Error      string
}

// Report is the immutable result of a run.
type Report struct {
	RunID      string
	Mode       Mode
	Label      string
	StartedAt  time.Time
	FinishedAt time.Time

	Sent       int
	SkippedIDs []string
	Failures   []Failure
	Outcomes   []Outcome
	Total      int  // rows in the input table
	Cancelled  bool // stopped before the last row

	Table *Table
}

func (r *Report) Skipped() int   { return len(r.SkippedIDs) }
func (r *Report) Failed() int    { return len(r.Failures) }
func (r *Report) Processed() int { return len(r.Outcomes) }

// Summary is the one-line, user-facing result.
func (r *Report) Summary() string {
	verb := "Processed"
	if r.Mode == ModeDraft {
		verb = "Drafted"
	}
	s := fmt.Sprintf("%s %d of %d emails: %d skipped, %d failed", verb, r.Sent, r.Total, r.Skipped(), r.Failed())
	if r.Cancelled {
		s += fmt.Sprintf(" (cancelled after %d rows)", r.Processed())
	}
	return s
}

// Progress is emitted after every outcome while a run is active.
type Progress struct {
	RunID   string
	Done    int
	Total   int
	Outcome Outcome
}
