package handlers

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog"

	"github.com/agac/browser-action-core/internal/agacerr"
	"github.com/agac/browser-action-core/internal/model"
	"github.com/agac/browser-action-core/internal/page"
)

const defaultMaxRetries = 3

// ActInput is the normalized form every act() call is reduced to
// before dispatch, per spec 4.H's "first normalizes input into an
// ActOptions object".
type ActInput struct {
	Instruction      string // free text, if that's how the caller invoked act
	Action           string // structured form: explicit action name
	Selector         string
	VariableValues   map[string]string
	Timeout          time.Duration
	DomSettleTimeout time.Duration
	ModelName        string
	SelfHeal         bool
	observeResult    *model.ObserveResult // set when act() is called directly with a prior ObserveResult
}

// ActInputFromObserveResult builds an ActInput that dispatches r
// directly instead of observing first.
func ActInputFromObserveResult(r model.ObserveResult) ActInput {
	return ActInput{observeResult: &r}
}

// Actor implements the act handler + method dispatcher (4.H).
type Actor struct {
	Page     *page.Page
	BrowserContext playwright.BrowserContext
	Observer *Observer
	Log      zerolog.Logger
}

// Act runs one act() call to completion, including self-healing
// retries, and returns its outcome.
func (a *Actor) Act(ctx context.Context, in ActInput) model.ActResult {
	return a.actAttempt(ctx, in, 0)
}

func (a *Actor) actAttempt(ctx context.Context, in ActInput, retryCount int) model.ActResult {
	log := a.Log.With().Str("component", "act_handler").Int("retry", retryCount).Logger()

	var obs model.ObserveResult
	switch {
	case in.observeResult != nil:
		obs = *in.observeResult
		if obs.Method == string(model.MethodNotSupported) {
			return failResult(obs.Method, obs.Selector, fmt.Errorf("no supported method for instruction"))
		}
	default:
		guess := guessAction(in.Instruction)
		instruction := in.Instruction
		if instruction == "" {
			instruction = describeStructuredAction(in)
		}
		results, err := a.Observer.Observe(ctx, ObserveOptions{
			Instruction: instruction,
			FromAct:     true,
			ModelName:   in.ModelName,
			Timeout:     in.Timeout,
		})
		if err != nil {
			return failResult(guess.action, in.Selector, err)
		}
		if len(results) == 0 {
			return failResult(guess.action, in.Selector, fmt.Errorf("element not found"))
		}
		obs = results[0]
		if obs.Method == string(model.MethodNotSupported) {
			return failResult(obs.Method, obs.Selector, fmt.Errorf("no supported method for instruction"))
		}
	}

	xp := obs.XPathFromSelector()
	method := model.MethodType(obs.Method)
	args := obs.Arguments
	if len(args) == 0 && in.observeResult == nil {
		if guess := guessAction(in.Instruction); guess.value != "" {
			args = []string{guess.value}
		}
	}

	frame := a.Page.Raw().MainFrame()
	dispatchErr := dispatch(frame, method, xp, args)
	if dispatchErr != nil {
		if in.SelfHeal && retryCount < defaultMaxRetries {
			return a.heal(ctx, in, obs, dispatchErr, retryCount)
		}
		return failResult(string(method), obs.Selector, agacerr.NewActionFailed(string(method), xp, dispatchErr))
	}

	if causesNavigation(method, args) {
		timeout := in.DomSettleTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		settle := func(c context.Context, _ time.Duration) error { return a.Page.WaitForSettledDOM(c, timeout) }
		if err := waitForNewPageOrSettle(ctx, a.BrowserContext, a.Page.Raw(), settle); err != nil {
			log.Warn().Err(err).Msg("post-action settle wait failed, continuing")
		}
	}

	return model.ActResult{
		Success:     true,
		Action:      actionTypeFor(method),
		Selector:    obs.Selector,
		Description: obs.Description,
		Metadata:    map[string]any{"method": string(method), "retries": retryCount},
	}
}

// heal rebuilds an instruction describing the original intent plus the
// observed failure mode, then re-observes and recurses, per spec 4.H's
// self-healing loop.
func (a *Actor) heal(ctx context.Context, in ActInput, failed model.ObserveResult, cause error, retryCount int) model.ActResult {
	time.Sleep(time.Duration(float64(retryCount+1) * 0.5 * float64(time.Second)))

	mode := classifyFailure(cause)
	original := in.Instruction
	if original == "" {
		original = failed.Description
	}
	healed := in
	healed.Instruction = fmt.Sprintf("%s (previous attempt failed: %s on %s)", original, mode, failed.Selector)
	healed.observeResult = nil
	return a.actAttempt(ctx, healed, retryCount+1)
}

func classifyFailure(err error) string {
	if err == nil {
		return "unknown"
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"):
		return "timeout"
	case strings.Contains(msg, "not found") || strings.Contains(msg, "no node"):
		return "not found"
	case strings.Contains(msg, "not clickable") || strings.Contains(msg, "intercept"):
		return "not clickable"
	default:
		return "generic failure"
	}
}

func failResult(action, selector string, err error) model.ActResult {
	return model.ActResult{
		Success:  false,
		Action:   model.ActionType(action),
		Selector: selector,
		Error:    err.Error(),
	}
}

func causesNavigation(method model.MethodType, args []string) bool {
	if method == model.MethodClick {
		return true
	}
	if method == model.MethodPress && len(args) > 0 && isEnterLike(args[0]) {
		return true
	}
	return false
}

func actionTypeFor(m model.MethodType) model.ActionType {
	switch m {
	case model.MethodClick:
		return model.ActionClick
	case model.MethodFill:
		return model.ActionFill
	case model.MethodType_:
		return model.ActionType_
	case model.MethodPress:
		return model.ActionPress
	case model.MethodHover:
		return model.ActionHover
	case model.MethodScrollIntoView, model.MethodScrollTo, model.MethodScroll, model.MethodNextChunk, model.MethodPrevChunk:
		return model.ActionScroll
	default:
		return model.ActionType(string(m))
	}
}

func describeStructuredAction(in ActInput) string {
	if in.Action == "" {
		return "perform the requested action"
	}
	return fmt.Sprintf("%s %s", in.Action, in.Selector)
}

// actionGuess is the free-text guesser's output: an advisory action
// and, for fill/press, the first quoted value found in the
// instruction. This is a best-effort guess the act handler may
// override entirely once observe returns an authoritative method; it
// exists to give observe's fromAct prompt a head start, not to be
// relied on for correctness.
type actionGuess struct {
	action string
	value  string
}

var quotedValuePattern = regexp.MustCompile(`"([^"]*)"|'([^']*)'`)

var actionVerbs = []struct {
	action string
	verbs  []string
}{
	{"click", []string{"click", "press the button", "tap", "select the", "choose"}},
	{"fill", []string{"fill", "type", "enter", "input"}},
	{"press", []string{"press"}},
	{"scroll", []string{"scroll"}},
	{"hover", []string{"hover"}},
	{"wait", []string{"wait"}},
	{"navigate", []string{"navigate", "go to", "open"}},
}

// guessAction lightly pattern-matches instruction to one of the known
// action verbs and, for fill/press-shaped instructions, extracts the
// first quoted substring as the candidate value (spec 4.H: "lightly
// pattern-matched ... to extract a quoted value"). This is the decided
// resolution for an intentionally underspecified part of the
// dispatcher contract: the first quoted value wins even if a second
// quoted value appears later in the instruction.
func guessAction(instruction string) actionGuess {
	lower := strings.ToLower(instruction)
	guess := actionGuess{action: "click"}
	for _, av := range actionVerbs {
		for _, v := range av.verbs {
			if strings.Contains(lower, v) {
				guess.action = av.action
				break
			}
		}
	}
	if guess.action == "fill" || guess.action == "press" {
		if m := quotedValuePattern.FindStringSubmatch(instruction); m != nil {
			if m[1] != "" {
				guess.value = m[1]
			} else {
				guess.value = m[2]
			}
		}
	}
	return guess
}
