package perplexity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/baalimago/go_away_boilerplate/pkg/ancli"
	"github.com/google/uuid"
	"golang.org/x/exp/maps"
)

const askPath = "/rest/sse/perplexity_ask"

// FollowUp links a query to a prior query's server-side conversation,
// enabling multi-turn context.
type FollowUp struct {
	// Attachments are the prior turn's attachment URLs, carried forward.
	Attachments []string
	// BackendUUID is the prior turn's server-side conversation id.
	BackendUUID string
}

// SearchRequest describes one query. The zero value of Mode, Sources and
// Language resolve to auto, web and en-US respectively.
type SearchRequest struct {
	Query     string
	Mode      Mode
	Model     string
	Sources   []Source
	Files     map[string][]byte
	Language  string
	FollowUp  *FollowUp
	Incognito bool
}

func (r *SearchRequest) applyDefaults() {
	if r.Mode == "" {
		r.Mode = ModeAuto
	}
	if len(r.Sources) == 0 {
		r.Sources = []Source{SourceWeb}
	}
	if r.Language == "" {
		r.Language = "en-US"
	}
}

type askParams struct {
	Attachments         []string `json:"attachments"`
	FrontendContextUUID string   `json:"frontend_context_uuid"`
	FrontendUUID        string   `json:"frontend_uuid"`
	IsIncognito         bool     `json:"is_incognito"`
	Language            string   `json:"language"`
	LastBackendUUID     *string  `json:"last_backend_uuid"`
	Mode                string   `json:"mode"`
	ModelPreference     string   `json:"model_preference"`
	Source              string   `json:"source"`
	Sources             []Source `json:"sources"`
	Version             string   `json:"version"`
}

type askRequest struct {
	QueryStr string    `json:"query_str"`
	Params   askParams `json:"params"`
}

// validate runs the full precondition gate and, only once every check has
// passed, consumes the budgets. A failed gate has zero side effects and
// issues zero requests.
func (c *Client) validate(req *SearchRequest) error {
	if !validMode(req.Mode) {
		modes := maps.Keys(modelPreference)
		sort.Slice(modes, func(i, j int) bool { return modes[i] < modes[j] })
		return ValidationError{Field: "mode", Reason: fmt.Sprintf("'%v' is not one of %v", req.Mode, modes)}
	}
	if c.OwnsAccount() && !modelAllowed(req.Mode, req.Model) {
		models := maps.Keys(modelPreference[req.Mode])
		sort.Strings(models)
		return ValidationError{Field: "model", Reason: fmt.Sprintf("'%v' is not available in mode '%v', pick one of %q", req.Model, req.Mode, models)}
	}
	for _, source := range req.Sources {
		if !validSources[source] {
			return ValidationError{Field: "sources", Reason: fmt.Sprintf("'%v' is not one of [web scholar social]", source)}
		}
	}
	return c.quota.consume(req.Mode.elevated(), len(req.Files))
}

// dispatch runs the gate, the upload pipeline and the query POST. A nil
// response with a nil error means the service answered non-200, which
// callers must treat as an empty result rather than a failure.
func (c *Client) dispatch(ctx context.Context, req SearchRequest) (*http.Response, error) {
	if err := c.requireConnected(); err != nil {
		return nil, err
	}
	req.applyDefaults()
	if err := c.validate(&req); err != nil {
		return nil, err
	}

	attachments, err := c.uploadFiles(ctx, req.Files)
	if err != nil {
		return nil, err
	}
	var lastBackendUUID *string
	if req.FollowUp != nil {
		attachments = append(attachments, req.FollowUp.Attachments...)
		if req.FollowUp.BackendUUID != "" {
			lastBackendUUID = &req.FollowUp.BackendUUID
		}
	}

	// The gate has verified the pair for owned accounts. Anonymous sessions
	// skip the gate, so an unknown model falls back to the mode's default.
	preference, ok := modelPreference[req.Mode][req.Model]
	if !ok {
		preference = modelPreference[req.Mode][""]
	}

	envelope := askRequest{
		QueryStr: req.Query,
		Params: askParams{
			Attachments:         attachments,
			FrontendContextUUID: uuid.NewString(),
			FrontendUUID:        uuid.NewString(),
			IsIncognito:         req.Incognito,
			Language:            req.Language,
			LastBackendUUID:     lastBackendUUID,
			Mode:                req.Mode.serverMode(),
			ModelPreference:     preference,
			Source:              "default",
			Sources:             req.Sources,
			Version:             "2.18",
		},
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("failed to encode query envelope: %w", err)
	}
	if c.debug {
		ancli.PrintOK(fmt.Sprintf("session %v query envelope: %v\n", c.salt, string(payload)))
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, c.BaseURL+askPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create query request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	res, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(res.Body)
		res.Body.Close()
		ancli.PrintWarn(fmt.Sprintf("query answered %v, returning empty result, body: %.300s\n", res.Status, string(body)))
		return nil, nil
	}
	return res, nil
}

// Search runs one query to completion and returns the most recent step
// record, or an empty record if the service produced none.
func (c *Client) Search(ctx context.Context, req SearchRequest) (StepRecord, error) {
	res, err := c.dispatch(ctx, req)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return StepRecord{}, nil
	}
	return collectLast(res, c.debug), nil
}

// SearchStream runs one query and yields step records as they arrive. The
// channel is closed after the final record, on service errors, or when ctx
// is cancelled. A non-200 answer yields an already-closed empty channel.
func (c *Client) SearchStream(ctx context.Context, req SearchRequest) (<-chan StepRecord, error) {
	res, err := c.dispatch(ctx, req)
	if err != nil {
		return nil, err
	}
	if res == nil {
		out := make(chan StepRecord)
		close(out)
		return out, nil
	}
	return c.streamSteps(ctx, res), nil
}
