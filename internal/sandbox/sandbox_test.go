package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRenderTemplate(t *testing.T) {
	s := New(time.Second)
	out, err := s.RenderTemplate(context.Background(), "<p>Hi <%= user.name %></p>", "", map[string]any{
		"user": map[string]any{"name": "A"},
	})
	require.NoError(t, err)
	require.Equal(t, "<p>Hi A</p>", out)
}

func TestRenderTemplateWithPreamble(t *testing.T) {
	s := New(time.Second)
	out, err := s.RenderTemplate(context.Background(),
		"<%= greeting %>, <%= user.name %>!",
		"var greeting = user.active ? 'Welcome back' : 'Hello';",
		map[string]any{"user": map[string]any{"name": "A", "active": true}},
	)
	require.NoError(t, err)
	require.Equal(t, "Welcome back, A!", out)
}

func TestEvalUserExpr(t *testing.T) {
	s := New(time.Second)
	out, err := s.EvalUserExpr(context.Background(), "Welcome, <%= user.name %>", map[string]any{"name": "A"})
	require.NoError(t, err)
	require.Equal(t, "Welcome, A", out)
}

func TestEvalUserEventExpr(t *testing.T) {
	s := New(time.Second)
	out, err := s.EvalUserEventExpr(context.Background(), "Order <%= event.id %>",
		map[string]any{"name": "N"}, map[string]any{"id": "o1"})
	require.NoError(t, err)
	require.Equal(t, "Order o1", out)
}

func TestStepFlowSingleYield(t *testing.T) {
	s := New(time.Second)
	step, err := s.StepFlow(context.Background(),
		`function*(ctx, rt){ yield rt.sendEmail("welcome"); }`,
		[]map[string]any{{"email": "a@x"}}, 0,
	)
	require.NoError(t, err)
	require.False(t, step.Done)
	require.Equal(t, CommandSendEmail, step.Command.Type)
	require.Equal(t, "welcome", step.Command.TemplateID)
}

func TestStepFlowCompletesAfterLastYield(t *testing.T) {
	s := New(time.Second)
	step, err := s.StepFlow(context.Background(),
		`function*(ctx, rt){ yield rt.sendEmail("welcome"); }`,
		[]map[string]any{{"email": "a@x"}, {"email": "a@x"}}, 1,
	)
	require.NoError(t, err)
	require.True(t, step.Done)
}

func TestStepFlowWaitThenEmail(t *testing.T) {
	s := New(time.Second)
	flow := `function*(ctx, rt){ yield rt.wait({seconds:60}); yield rt.sendEmail("welcome"); }`
	states := []map[string]any{{"email": "a@x"}, {"email": "a@x"}}

	first, err := s.StepFlow(context.Background(), flow, states, 0)
	require.NoError(t, err)
	require.Equal(t, CommandWait, first.Command.Type)
	require.Equal(t, float64(60), first.Command.Duration["seconds"])

	second, err := s.StepFlow(context.Background(), flow, states, 1)
	require.NoError(t, err)
	require.Equal(t, CommandSendEmail, second.Command.Type)
}

func TestStepFlowMutatesAttributes(t *testing.T) {
	s := New(time.Second)
	flow := `function*(ctx, rt){ ctx.attributes.seen = true; yield rt.sendEmail("welcome"); }`
	step, err := s.StepFlow(context.Background(), flow, []map[string]any{{"email": "a@x"}}, 0)
	require.NoError(t, err)
	require.Equal(t, true, step.Attributes["seen"])
}

func TestStepFlowThrowSurfacesAsSandboxError(t *testing.T) {
	s := New(time.Second)
	_, err := s.StepFlow(context.Background(),
		`function*(ctx, rt){ throw new Error("boom"); yield rt.wait({seconds:1}); }`,
		[]map[string]any{{"email": "a@x"}}, 0,
	)
	require.Error(t, err)
}
