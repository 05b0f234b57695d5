package sandbox

import (
	"context"
	"fmt"

	"github.com/dop251/goja"
)

// CommandType tags the value a flow program yields.
type CommandType string

const (
	CommandSendEmail CommandType = "SEND_EMAIL"
	CommandWait      CommandType = "WAIT"
	CommandSendSMS   CommandType = "SEND_SMS"
)

// Command is one yielded step of a flow program.
type Command struct {
	Type       CommandType
	TemplateID string
	Duration   map[string]float64
	Message    string
}

// Step is the result of advancing a flow program to targetIndex.
type Step struct {
	Done       bool
	Command    Command
	Attributes map[string]any
}

const flowRuntimeSource = `(function(){
  var ctx = {attributes: undefined};
  var rt = {
    sendEmail: function(templateId){ return {type:"SEND_EMAIL", templateId:templateId}; },
    wait: function(duration){ return {type:"WAIT", duration:duration}; },
    sendSMS: function(message){ return {type:"SEND_SMS", message:message}; }
  };
  return {ctx: ctx, gen: (%s)(ctx, rt)};
}())`

// StepFlow drives flowSource from its beginning through exactly
// targetIndex+1 yields, rebinding ctx.attributes from attrStates[i]
// immediately before producing the i-th yield, and returns the
// post-advance state.
func (s *Sandbox) StepFlow(ctx context.Context, flowSource string, attrStates []map[string]any, targetIndex int) (Step, error) {
	if targetIndex < 0 {
		return Step{}, newError("sandbox: targetIndex must be >= 0")
	}
	if len(attrStates) < targetIndex+1 {
		return Step{}, newError("sandbox: attrStates has %d entries, need %d", len(attrStates), targetIndex+1)
	}

	program, err := goja.Compile("", fmt.Sprintf(flowRuntimeSource, flowSource), true)
	if err != nil {
		return Step{}, wrapError(err, "compile")
	}

	rt := goja.New()
	disarm := s.arm(ctx, rt)
	defer disarm()

	result, err := rt.RunProgram(program)
	if err != nil {
		return Step{}, translateRunErr(err)
	}

	root := result.ToObject(rt)
	genCtx := root.Get("ctx").ToObject(rt)
	genObj := root.Get("gen").ToObject(rt)
	next, ok := goja.AssertFunction(genObj.Get("next"))
	if !ok {
		return Step{}, newError("sandbox: flow did not evaluate to a generator")
	}

	var yielded goja.Value
	done := false
	for i := 0; i <= targetIndex; i++ {
		genCtx.Set("attributes", attrStates[i])
		res, callErr := next(genObj)
		if callErr != nil {
			return Step{}, translateRunErr(callErr)
		}
		resObj := res.ToObject(rt)
		yielded = resObj.Get("value")
		done = resObj.Get("done").ToBoolean()
		if done {
			break
		}
	}

	attributes, _ := genCtx.Get("attributes").Export().(map[string]any)

	if done {
		return Step{Done: true, Attributes: attributes}, nil
	}
	if yielded == nil || goja.IsUndefined(yielded) {
		return Step{}, newError("sandbox: generator yielded undefined")
	}
	cmd, err := decodeCommand(yielded)
	if err != nil {
		return Step{}, err
	}
	return Step{Done: false, Command: cmd, Attributes: attributes}, nil
}

func decodeCommand(v goja.Value) (Command, error) {
	exported, ok := v.Export().(map[string]any)
	if !ok {
		return Command{}, newError("sandbox: yielded value is not a command object")
	}
	kind, _ := exported["type"].(string)
	switch CommandType(kind) {
	case CommandSendEmail:
		id, _ := exported["templateId"].(string)
		return Command{Type: CommandSendEmail, TemplateID: id}, nil
	case CommandWait:
		duration := map[string]float64{}
		if raw, ok := exported["duration"].(map[string]any); ok {
			for k, v := range raw {
				if f, ok := toFloat(v); ok {
					duration[k] = f
				}
			}
		}
		return Command{Type: CommandWait, Duration: duration}, nil
	case CommandSendSMS:
		msg, _ := exported["message"].(string)
		return Command{Type: CommandSendSMS, Message: msg}, nil
	default:
		return Command{}, newError("sandbox: unknown command type %q", kind)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
