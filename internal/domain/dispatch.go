package domain

import (
	"errors"
	"fmt"
	"time"
)

// DispatchRequest is everything needed to deliver one notice type to a set
// of recipients. It is the payload of both send-now and queued sends.
type DispatchRequest struct {
	Recipients []UserID `json:"recipients"`
	Label      string   `json:"label"`
	Context    Context  `json:"context,omitempty"`
	OnSite     bool     `json:"on_site"`
	Sender     *UserID  `json:"sender,omitempty"`
}

// Validate checks the parts of a request that can be checked without
// touching storage. A non-empty label that could never have been registered
// is reported as ErrNotFound, the same as any other unknown label.
func (r *DispatchRequest) Validate() error {
	if r.Label == "" {
		return ErrInvalidLabel
	}
	if err := ValidateLabel(r.Label); err != nil {
		return fmt.Errorf("notice type %q: %w", r.Label, ErrNotFound)
	}
	return r.Context.Validate()
}

// QueuedDispatch is a dispatch request persisted for a later drain.
// IDs increase monotonically so they double as insertion order.
type QueuedDispatch struct {
	ID         int64      `json:"id"`
	Recipients []UserID   `json:"recipients"`
	Label      string     `json:"label"`
	Context    Context    `json:"context,omitempty"`
	OnSite     bool       `json:"on_site"`
	Sender     *UserID    `json:"sender,omitempty"`
	EnqueuedAt time.Time  `json:"enqueued_at"`
	ClaimedBy  *string    `json:"claimed_by,omitempty"`
	ClaimedAt  *time.Time `json:"claimed_at,omitempty"`

	// DecodeErr is set when the stored row could not be decoded. Such a row
	// is still claimed so that a drain can discard it.
	DecodeErr error `json:"-"`
}

// Request rebuilds the dispatch request stored in the row.
func (q *QueuedDispatch) Request() DispatchRequest {
	return DispatchRequest{
		Recipients: q.Recipients,
		Label:      q.Label,
		Context:    q.Context,
		OnSite:     q.OnSite,
		Sender:     q.Sender,
	}
}

// RecipientFailure records a delivery that failed for one recipient and medium.
// Medium is empty when the failure happened before any medium was tried.
type RecipientFailure struct {
	Recipient UserID `json:"recipient"`
	Medium    Medium `json:"medium,omitempty"`
	Err       error  `json:"-"`
	Error     string `json:"error"`
}

// DispatchReport summarises a completed dispatch.
type DispatchReport struct {
	Label     string             `json:"label"`
	Attempted int                `json:"attempted"`
	OnSite    int                `json:"on_site"`
	Emailed   int                `json:"emailed"`
	Skipped   []UserID           `json:"skipped,omitempty"`
	Failures  []RecipientFailure `json:"failures,omitempty"`
}

// Fail appends a recipient-scoped failure.
func (r *DispatchReport) Fail(user UserID, medium Medium, err error) {
	r.Failures = append(r.Failures, RecipientFailure{
		Recipient: user,
		Medium:    medium,
		Err:       err,
		Error:     err.Error(),
	})
}

// FailedWith reports whether any failure matches target.
func (r *DispatchReport) FailedWith(target error) bool {
	for _, f := range r.Failures {
		if errors.Is(f.Err, target) {
			return true
		}
	}
	return false
}

// DrainReport summarises one drain invocation.
type DrainReport struct {
	Batches    int     `json:"batches"`
	Claimed    int     `json:"claimed"`
	Dispatched int     `json:"dispatched"`
	Failed     int     `json:"failed"`
	ClaimedIDs []int64 `json:"claimed_ids,omitempty"`
}

// DefaultSignal is the observation signal used when none is given.
const DefaultSignal = "post_save"

// Observation registers a user's interest in an application object.
// Sending a signal for the object notifies every observer.
type Observation struct {
	UserID   UserID    `json:"user_id"`
	Observed Ref       `json:"observed"`
	Label    string    `json:"label"`
	Signal   string    `json:"signal"`
	AddedAt  time.Time `json:"added_at"`
}
