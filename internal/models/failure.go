package models

import "time"

// FailureEvent is one unrecoverable phase failure handed to the relay.
type FailureEvent struct {
	Source  string
	Log     string
	TraceID string
	// File and Line locate the failing code when known; zero values mean absent.
	File    string
	Line    int
	Command string
}

// HasLocation reports whether both file and line are present.
func (e FailureEvent) HasLocation() bool {
	return e.File != "" && e.Line > 0
}

// Owner is the human the incident is attributed to.
type Owner struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// String renders the owner as "Name <email>".
func (o Owner) String() string {
	if o.Name == "" {
		return o.Email
	}
	return o.Name + " <" + o.Email + ">"
}

// TicketRef points at an existing ticket in the ticketing backend or the local ledger.
type TicketRef struct {
	Key string `json:"key"`
	URL string `json:"url,omitempty"`
}

// IsZero reports whether the reference is empty.
func (r TicketRef) IsZero() bool {
	return r.Key == ""
}

// DedupRecord maps a fingerprint to the ticket created for it.
type DedupRecord struct {
	Fingerprint string        `json:"fingerprint"`
	TicketKey   string        `json:"ticket_key"`
	CreatedAt   time.Time     `json:"created_at"`
	TTL         time.Duration `json:"ttl"`
}

// Expired reports whether the record is past its TTL at now. A zero TTL never expires.
func (r DedupRecord) Expired(now time.Time) bool {
	return r.TTL > 0 && !now.Before(r.CreatedAt.Add(r.TTL))
}

// Ticket is the create payload sent to the ticketing backend.
type Ticket struct {
	Key       string
	Project   string
	Summary   string
	IssueType string
	Priority  string
	Labels    []string
	Assignee  string
}

// Governance is the classification block shown at the top of an incident description.
type Governance struct {
	ExecutionModel string
	FailureMode    string
	RiskLevel      string
	ComplianceTags []string
	// Labels are added to the ticket on top of the fixed classification labels.
	Labels []string
}

// CISignals are the ambient CI facts read once at startup.
type CISignals struct {
	CI         bool
	Provider   string
	Ref        string
	Repository string
	RunID      string
	ServerURL  string
	SHA        string
	// DeployEnv overrides the derived deployment environment when set.
	DeployEnv string
}

// RunURL links to the CI run, or "" when the signals are incomplete.
func (c CISignals) RunURL() string {
	if c.ServerURL == "" || c.Repository == "" || c.RunID == "" {
		return ""
	}
	return c.ServerURL + "/" + c.Repository + "/actions/runs/" + c.RunID
}

// RepositoryURL is the full repository URL, or "" when unknown.
func (c CISignals) RepositoryURL() string {
	if c.ServerURL == "" || c.Repository == "" {
		return ""
	}
	return c.ServerURL + "/" + c.Repository
}

// Ledger line kinds.
const (
	LedgerIncident   = "incident"
	LedgerRecurrence = "recurrence"
)

// LedgerEvent is one line of the local dedup ledger.
type LedgerEvent struct {
	Kind        string
	Fingerprint string
	TicketKey   string
	At          time.Time
}

// Hotspot aggregates the ledger history of one fingerprint.
type Hotspot struct {
	Fingerprint string
	TicketKey   string
	Incidents   int
	Recurrences int
	FirstSeen   time.Time
	LastSeen    time.Time
}

// Total counts every reported occurrence.
func (h Hotspot) Total() int { return h.Incidents + h.Recurrences }
