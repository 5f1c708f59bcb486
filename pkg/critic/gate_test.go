// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package critic

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/mindsoc/chorus/pkg/llm"
	"github.com/mindsoc/chorus/pkg/registry"
	"github.com/mindsoc/chorus/pkg/schema"
	"github.com/mindsoc/chorus/pkg/workspace"
)

var testCritics = []registry.CriticSpec{
	{Name: "advice_reflex", Role: "Reject unsolicited advice. Marker: CRITIC-advice"},
	{Name: "cliche", Role: "Reject clichés. Marker: CRITIC-cliche"},
	{Name: "coherence", Role: "Reject incoherent replies. Marker: CRITIC-coherence"},
}

func passVerdict(critic string) string {
	return `{"critic":"` + critic + `","passed":true,"reason":"","severity":0,"quote":""}`
}

func failVerdict(critic, reason string, severity float64, quote string) string {
	return `{"critic":"` + critic + `","passed":false,"reason":"` + reason + `","severity":` +
		strconv.FormatFloat(severity, 'f', -1, 64) + `,"quote":"` + quote + `"}`
}

func allPass() *llm.RoleScriptedProvider {
	p := llm.NewRoleScriptedProvider()
	p.Script("CRITIC-advice", passVerdict("advice_reflex"))
	p.Script("CRITIC-cliche", passVerdict("cliche"))
	p.Script("CRITIC-coherence", passVerdict("coherence"))
	return p
}

func newGate(p llm.Provider, cap int) *Gate {
	return NewGate(p, "test-model", 200*time.Millisecond, testCritics, cap, 2, 10, nil)
}

func noRevise(t *testing.T) Reviser {
	return ReviserFunc(func(ctx context.Context, draft string, feedback []schema.CriticVerdict) (string, error) {
		t.Fatal("reviser called unexpectedly")
		return "", nil
	})
}

func wsWitness() workspace.Workspace {
	return workspace.Workspace{Goal: workspace.GoalWitness}
}

func TestReviewAcceptsWhenAllPass(t *testing.T) {
	g := newGate(allPass(), 2)
	out := g.Review(context.Background(), wsWitness(), "hi", "a fine reply", noRevise(t))
	if !out.Accepted || out.Fallback {
		t.Fatalf("outcome = %+v, want clean acceptance", out)
	}
	if out.Text != "a fine reply" || out.Rounds != 1 {
		t.Errorf("outcome = %+v", out)
	}
}

func TestReviewSingleRevisionRecovers(t *testing.T) {
	p := llm.NewRoleScriptedProvider()
	// advice critic fails the first draft, passes the revision
	p.Script("CRITIC-advice",
		failVerdict("advice_reflex", "gives unsolicited advice", 0.9, "you should"),
		passVerdict("advice_reflex"))
	p.Script("CRITIC-cliche", passVerdict("cliche"), passVerdict("cliche"))
	p.Script("CRITIC-coherence", passVerdict("coherence"), passVerdict("coherence"))

	var gotFeedback []schema.CriticVerdict
	reviser := ReviserFunc(func(ctx context.Context, draft string, feedback []schema.CriticVerdict) (string, error) {
		gotFeedback = feedback
		return "a better reply", nil
	})

	g := newGate(p, 2)
	out := g.Review(context.Background(), wsWitness(), "hi", "you should quit", reviser)
	if !out.Accepted || out.Fallback {
		t.Fatalf("outcome = %+v, want acceptance after one revision", out)
	}
	if out.Text != "a better reply" || out.Rounds != 2 {
		t.Errorf("outcome = %+v", out)
	}
	if len(gotFeedback) != 1 || gotFeedback[0].Quote != "you should" {
		t.Errorf("feedback = %+v, want the quoted span carried", gotFeedback)
	}
}

func TestReviewCapExhaustedFallsBack(t *testing.T) {
	p := llm.NewRoleScriptedProvider()
	p.Default = failVerdict("cliche", "still trite", 0.6, "")
	p.Script("CRITIC-advice", passVerdict("advice_reflex"))
	p.Script("CRITIC-coherence", passVerdict("coherence"))

	revisions := 0
	reviser := ReviserFunc(func(ctx context.Context, draft string, feedback []schema.CriticVerdict) (string, error) {
		revisions++
		return "attempt " + draft, nil
	})

	g := newGate(p, 2)
	out := g.Review(context.Background(), wsWitness(), "hi", "every cloud has a silver lining", reviser)
	if out.Accepted {
		t.Fatal("unsatisfiable critic must not accept")
	}
	if !out.Fallback || out.Text != FallbackText {
		t.Fatalf("outcome = %+v, want safe fallback text", out)
	}
	if revisions != 2 {
		t.Errorf("revisions = %d, want exactly the cap", revisions)
	}
	if out.Rounds != 3 {
		t.Errorf("rounds = %d, want 3 validations", out.Rounds)
	}
}

func TestReviewFeedbackIsTopKBySeverity(t *testing.T) {
	p := llm.NewRoleScriptedProvider()
	p.Script("CRITIC-advice", failVerdict("advice_reflex", "unsolicited advice", 0.3, ""))
	p.Script("CRITIC-cliche", failVerdict("cliche", "trite phrasing", 0.9, "silver lining"))
	p.Script("CRITIC-coherence", failVerdict("coherence", "contradicts itself", 0.6, ""))

	var gotFeedback []schema.CriticVerdict
	reviser := ReviserFunc(func(ctx context.Context, draft string, feedback []schema.CriticVerdict) (string, error) {
		if gotFeedback == nil {
			gotFeedback = feedback
		}
		return "", context.Canceled // stop the loop via failed revision
	})

	g := newGate(p, 2)
	out := g.Review(context.Background(), wsWitness(), "hi", "draft", reviser)
	if !out.Fallback {
		t.Fatalf("outcome = %+v, want fallback after failed revision", out)
	}
	if len(gotFeedback) != 2 {
		t.Fatalf("feedback = %+v, want top 2", gotFeedback)
	}
	if gotFeedback[0].Critic != "cliche" || gotFeedback[1].Critic != "coherence" {
		t.Errorf("feedback order = [%s %s], want severity descending", gotFeedback[0].Critic, gotFeedback[1].Critic)
	}
}

func TestReviewCriticTimeoutAbstains(t *testing.T) {
	p := allPass()
	p.DelayFor("CRITIC-coherence", time.Second)

	g := newGate(p, 2)
	out := g.Review(context.Background(), wsWitness(), "hi", "a fine reply", noRevise(t))
	if !out.Accepted {
		t.Fatalf("outcome = %+v, want acceptance when slow critic abstains", out)
	}
}

func TestReviewMalformedCriticRetriesThenAbstains(t *testing.T) {
	p := llm.NewRoleScriptedProvider()
	p.Script("CRITIC-advice", passVerdict("advice_reflex"))
	p.Script("CRITIC-cliche", `not json`, passVerdict("cliche"))
	p.Script("CRITIC-coherence", `not json`, `still not json`)

	g := newGate(p, 2)
	out := g.Review(context.Background(), wsWitness(), "hi", "a fine reply", noRevise(t))
	if !out.Accepted {
		t.Fatalf("outcome = %+v, want acceptance (retry recovers one, other abstains)", out)
	}
	if got := p.Calls("CRITIC-cliche"); got != 2 {
		t.Errorf("cliche calls = %d, want corrective retry", got)
	}
}

func TestReviewNeverEmitsFailingDraft(t *testing.T) {
	p := llm.NewRoleScriptedProvider()
	p.Default = failVerdict("cliche", "still trite", 0.6, "")
	p.Script("CRITIC-advice", passVerdict("advice_reflex"))
	p.Script("CRITIC-coherence", passVerdict("coherence"))

	reviser := ReviserFunc(func(ctx context.Context, draft string, feedback []schema.CriticVerdict) (string, error) {
		return "still failing draft", nil
	})
	g := newGate(p, 1)
	out := g.Review(context.Background(), wsWitness(), "hi", "first draft", reviser)
	if out.Text == "first draft" || out.Text == "still failing draft" {
		t.Fatalf("emitted unvalidated draft: %q", out.Text)
	}
	if out.Text != FallbackText {
		t.Errorf("text = %q, want fallback", out.Text)
	}
}
