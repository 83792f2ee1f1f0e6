package perplexity

import "fmt"

// ValidationError indicates a locally rejected search request. No network
// request has been made and no quota has been consumed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %v: %v", e.Field, e.Reason)
}

// QuotaError indicates that the session's remaining budget cannot cover the
// request. Like ValidationError, it is raised before any network traffic.
type QuotaError struct {
	Kind      string
	Remaining int
	Requested int
}

func (e QuotaError) Error() string {
	return fmt.Sprintf("%v quota exceeded: requested %v, %v remaining", e.Kind, e.Requested, e.Remaining)
}

// UploadError aborts the entire search call. The query POST is never sent if
// any file fails to upload.
type UploadError struct {
	Filename string
	Status   string
	Body     string
}

func (e UploadError) Error() string {
	return fmt.Sprintf("failed to upload file: '%v', status: %v, body: %v", e.Filename, e.Status, e.Body)
}
