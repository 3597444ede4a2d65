package notification

// Outcome classifies what happened to one eligible user during a run.
type Outcome string

const (
	OutcomeSent                  Outcome = "sent"
	OutcomeSkippedAlreadyLogged  Outcome = "skipped_already_logged"
	OutcomeSkippedNoSubscription Outcome = "skipped_no_subscription"
	OutcomeFailedTransient       Outcome = "failed_transient"
	OutcomeFailedPermanent       Outcome = "failed_permanent"
)

// UserResult is the per-user record of a dispatch run.
type UserResult struct {
	UserID     string
	Date       string
	Outcome    Outcome
	StatusCode int
	Err        error
}

// Summary is the run report returned to whoever triggered the job.
type Summary struct {
	Success           bool            `json:"success"`
	Message           string          `json:"message,omitempty"`
	Error             string          `json:"error,omitempty"`
	NotificationsSent int             `json:"notificationsSent"`
	UsersChecked      int             `json:"usersChecked"`
	Breakdown         map[Outcome]int `json:"breakdown,omitempty"`
	Results           []UserResult    `json:"-"`
}

// Failure builds the summary reported for a run aborted by err.
func Failure(err error) *Summary {
	return &Summary{Success: false, Error: err.Error()}
}

func summarize(results []UserResult) *Summary {
	s := &Summary{
		Success:      true,
		UsersChecked: len(results),
		Breakdown:    make(map[Outcome]int),
		Results:      results,
	}
	for _, r := range results {
		s.Breakdown[r.Outcome]++
		if r.Outcome == OutcomeSent {
			s.NotificationsSent++
		}
	}
	if len(results) == 0 {
		s.Message = "No users to notify at this time"
	} else {
		s.Message = "Notifications sent successfully"
	}
	return s
}
