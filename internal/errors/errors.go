package appErrors

import "fmt"

// ValidationError reports a bad campaign definition or filter spec. It maps to
// a 400 at the API boundary.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Helper constructor
func NewValidation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// StateConflictError reports an illegal lifecycle transition, naming the state
// the campaign is actually in versus the one the caller asked for.
type StateConflictError struct {
	CampaignID int
	Current    string
	Requested  string
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("campaign %d is %s, cannot transition to %s", e.CampaignID, e.Current, e.Requested)
}

func NewStateConflict(id int, current, requested string) error {
	return &StateConflictError{CampaignID: id, Current: current, Requested: requested}
}

// CampaignNotFoundError is returned when a campaign id does not exist.
type CampaignNotFoundError struct {
	CampaignID int
}

func (e *CampaignNotFoundError) Error() string {
	return fmt.Sprintf("campaign with ID %d not found", e.CampaignID)
}

func NewCampaignNotFound(id int) error {
	return &CampaignNotFoundError{CampaignID: id}
}

// TransportError classifies a failed send. Transient errors (timeouts,
// connection drops) are retried by the dispatcher; permanent ones are not.
// It never crosses the API boundary, sends are asynchronous.
type TransportError struct {
	Transient bool
	Reason    string
}

func (e *TransportError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("%s transport error: %s", kind, e.Reason)
}

func NewTransportError(transient bool, reason string) error {
	return &TransportError{Transient: transient, Reason: reason}
}

// ResourceUnavailableError reports that a collaborator (customer store, queue)
// failed mid-action. The triggering action is left without effect and may be
// retried by the caller.
type ResourceUnavailableError struct {
	Resource string
	Err      error
}

func (e *ResourceUnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Resource, e.Err)
}

func (e *ResourceUnavailableError) Unwrap() error { return e.Err }

func NewResourceUnavailable(resource string, err error) error {
	return &ResourceUnavailableError{Resource: resource, Err: err}
}
