package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/baalimago/go_away_boilerplate/pkg/testboil"
	"github.com/lifanwar/warung22/internal/perplexity"
)

type fakeSearcher struct {
	requests []perplexity.SearchRequest
	respond  func(req perplexity.SearchRequest) (perplexity.StepRecord, error)
}

func (f *fakeSearcher) Search(ctx context.Context, req perplexity.SearchRequest) (perplexity.StepRecord, error) {
	f.requests = append(f.requests, req)
	return f.respond(req)
}

type staticMenu string

func (m staticMenu) Context() string { return string(m) }

func finalRecord(answer string) perplexity.StepRecord {
	return perplexity.StepRecord{
		"text": []any{
			map[string]any{"step_type": "SEARCH_WEB"},
			map[string]any{
				"step_type": "FINAL",
				"content":   map[string]any{"answer": answer},
			},
		},
	}
}

func TestAsk_PrefersProMode(t *testing.T) {
	searcher := &fakeSearcher{respond: func(req perplexity.SearchRequest) (perplexity.StepRecord, error) {
		return finalRecord("es teh is 8 EGP"), nil
	}}
	a := New(searcher, staticMenu("drinks[1]{id,name,price,is_available}:\n  1,es teh,8,1\n"), "")

	got, err := a.Ask(context.Background(), "how much is the iced tea?")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	testboil.FailTestIfDiff(t, got, "es teh is 8 EGP")
	testboil.FailTestIfDiff(t, len(searcher.requests), 1)

	req := searcher.requests[0]
	testboil.FailTestIfDiff(t, string(req.Mode), "pro")
	testboil.FailTestIfDiff(t, req.Model, "grok-4")
	if !req.Incognito {
		t.Fatal("menu questions must not pollute account history")
	}
	if !strings.Contains(req.Query, "es teh,8,1") {
		t.Fatalf("expected menu context in prompt, got:\n%v", req.Query)
	}
	if !strings.Contains(req.Query, "how much is the iced tea?") {
		t.Fatalf("expected question in prompt, got:\n%v", req.Query)
	}
}

func TestAsk_DowngradesPermanentlyOnQuotaExhaustion(t *testing.T) {
	searcher := &fakeSearcher{respond: func(req perplexity.SearchRequest) (perplexity.StepRecord, error) {
		if req.Mode == perplexity.ModePro {
			return nil, perplexity.QuotaError{Kind: "enhanced query", Requested: 1}
		}
		return finalRecord("answer via auto"), nil
	}}
	a := New(searcher, staticMenu("menu"), "")

	got, err := a.Ask(context.Background(), "q1")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	testboil.FailTestIfDiff(t, got, "answer via auto")
	// pro attempt, then auto fallback
	testboil.FailTestIfDiff(t, len(searcher.requests), 2)

	// The downgrade sticks for the rest of the session
	if _, err := a.Ask(context.Background(), "q2"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	testboil.FailTestIfDiff(t, len(searcher.requests), 3)
	testboil.FailTestIfDiff(t, string(searcher.requests[2].Mode), "auto")
}

func TestAsk_NonQuotaErrorsPropagate(t *testing.T) {
	searcher := &fakeSearcher{respond: func(req perplexity.SearchRequest) (perplexity.StepRecord, error) {
		return nil, errors.New("connection reset")
	}}
	a := New(searcher, staticMenu("menu"), "")

	if _, err := a.Ask(context.Background(), "q"); err == nil {
		t.Fatal("expected transport error to propagate")
	}
	testboil.FailTestIfDiff(t, len(searcher.requests), 1)
}

func TestExtractAnswer_Chain(t *testing.T) {
	cases := []struct {
		name string
		rec  perplexity.StepRecord
		want string
	}{
		{
			name: "final step with plain answer",
			rec:  finalRecord("plain"),
			want: "plain",
		},
		{
			name: "final step with JSON encoded answer",
			rec: perplexity.StepRecord{"text": []any{map[string]any{
				"step_type": "FINAL",
				"content":   map[string]any{"answer": `{"answer":"nested"}`},
			}}},
			want: "nested",
		},
		{
			name: "final step with answer object",
			rec: perplexity.StepRecord{"text": []any{map[string]any{
				"step_type": "FINAL",
				"content":   map[string]any{"answer": map[string]any{"answer": "objectified"}},
			}}},
			want: "objectified",
		},
		{
			name: "no final step falls back to last step content",
			rec: perplexity.StepRecord{"text": []any{map[string]any{
				"step_type": "SEARCH_RESULTS",
				"content":   map[string]any{"answer": "partial"},
			}}},
			want: "partial",
		},
		{
			name: "direct string text",
			rec:  perplexity.StepRecord{"text": "direct"},
			want: "direct",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ExtractAnswer(tc.rec)
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			testboil.FailTestIfDiff(t, got, tc.want)
		})
	}
}

func TestExtractAnswer_Errors(t *testing.T) {
	if _, err := ExtractAnswer(perplexity.StepRecord{}); err == nil {
		t.Fatal("expected error for empty record")
	}
	if _, err := ExtractAnswer(perplexity.StepRecord{"step_type": "FINAL"}); err == nil {
		t.Fatal("expected error for record without text")
	}
	if _, err := ExtractAnswer(perplexity.StepRecord{"text": []any{}}); err == nil {
		t.Fatal("expected error for empty step list")
	}
}
