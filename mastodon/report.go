package mastodon

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/insalol/reportwatch/util"
)

// https://docs.joinmastodon.org/entities/Admin_Report/
type Report struct {
	ID            string    `json:"id"`
	ActionTaken   bool      `json:"action_taken"`
	Category      string    `json:"category"`
	Comment       string    `json:"comment"`
	CreatedAt     time.Time `json:"-"`
	Account       Account   `json:"account"`
	TargetAccount Account   `json:"target_account"`
}

// https://docs.joinmastodon.org/entities/Admin_Account/
type Account struct {
	Username string  `json:"username"`
	Domain   *string `json:"domain"`
}

// Renders the account as `@username` for local accounts and
// `@username@domain` for remote ones.
func (a Account) String() string {
	if a.Domain == nil || *a.Domain == "" {
		return "@" + a.Username
	}
	return fmt.Sprintf("@%s@%s", a.Username, *a.Domain)
}

// Age of the report relative to now. Negative if the report timestamp is in the future.
func (r *Report) Age(now time.Time) time.Duration {
	return now.Sub(r.CreatedAt)
}

type reportJSON struct {
	ID            string  `json:"id"`
	ActionTaken   bool    `json:"action_taken"`
	Category      string  `json:"category"`
	Comment       string  `json:"comment"`
	CreatedAt     *string `json:"created_at"`
	Account       Account `json:"account"`
	TargetAccount Account `json:"target_account"`
}

func (r *Report) UnmarshalJSON(b []byte) error {
	var raw reportJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw.CreatedAt == nil {
		return fmt.Errorf("report %q: missing created_at", raw.ID)
	}
	createdAt, err := util.ParseTimestamp(*raw.CreatedAt)
	if err != nil {
		return fmt.Errorf("report %q: %w", raw.ID, err)
	}
	*r = Report{
		ID:            raw.ID,
		ActionTaken:   raw.ActionTaken,
		Category:      raw.Category,
		Comment:       raw.Comment,
		CreatedAt:     createdAt,
		Account:       raw.Account,
		TargetAccount: raw.TargetAccount,
	}
	return nil
}

func (r Report) MarshalJSON() ([]byte, error) {
	createdAt := r.CreatedAt.UTC().Format(util.ISO8601)
	return json.Marshal(reportJSON{
		ID:            r.ID,
		ActionTaken:   r.ActionTaken,
		Category:      r.Category,
		Comment:       r.Comment,
		CreatedAt:     &createdAt,
		Account:       r.Account,
		TargetAccount: r.TargetAccount,
	})
}
