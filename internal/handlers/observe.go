// Package handlers implements the observe/act/extract public contracts
// (spec components 4.G, 4.H, 4.I), each a thin orchestration layer
// over axtree, settle, page, and llm.
//
// Grounded on playwright_ai/handlers/observe.py and the call sites that
// invoke it from core/page.py, generalized from the teacher's
// internal/tools toolbox (which hardcodes a fixed tool list) into a
// free-form instruction-driven handler.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/agac/browser-action-core/internal/agacerr"
	"github.com/agac/browser-action-core/internal/axtree"
	"github.com/agac/browser-action-core/internal/llm"
	"github.com/agac/browser-action-core/internal/model"
	"github.com/agac/browser-action-core/internal/page"
)

// ObserveOptions mirrors spec 4.G's input contract.
type ObserveOptions struct {
	Instruction string
	OnlyVisible bool
	DrawOverlay bool
	Iframes     bool
	FromAct     bool
	ModelName   string
	ReturnAction bool
	Timeout     time.Duration
}

// rawObserveEntry is the shape the LLM is asked to return: either a
// single object (fromAct=true) or an array of these (fromAct=false).
type rawObserveEntry struct {
	ElementID   string   `json:"elementId"`
	Description string   `json:"description"`
	Action      string   `json:"action,omitempty"`
	Method      string   `json:"method,omitempty"`
	Arguments   []string `json:"arguments,omitempty"`
}

// Observer implements the observe handler (4.G).
type Observer struct {
	Page *page.Page
	LLM  llm.Client
	Log  zerolog.Logger
}

// Observe runs the 7-step algorithm of spec 4.G and returns the kept,
// validated results.
func (o *Observer) Observe(ctx context.Context, opts ObserveOptions) ([]model.ObserveResult, error) {
	log := o.Log.With().Str("component", "observe_handler").Str("instruction", opts.Instruction).Logger()

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if err := o.Page.WaitForSettledDOM(ctx, timeout); err != nil {
		return nil, err
	}

	if err := o.Page.EnsureInjectedAllFrames(); err != nil {
		log.Warn().Err(err).Msg("helper injection incomplete, continuing with best effort")
	}

	tree, err := o.buildTree(opts.Iframes)
	if err != nil {
		return nil, err
	}

	prompt := o.buildPrompt(tree, opts)
	resp, err := o.LLM.Generate(ctx, llm.Request{
		System:      prompt.system,
		Messages:    []llm.Message{{Role: "user", Content: prompt.user}},
		Temperature: 0.1,
		MaxTokens:   1200,
		JSONMode:    true,
	})
	if err != nil {
		return nil, agacerr.NewActionFailed("observe", "", err)
	}

	entries, parseErr := parseObserveEntries(resp.Text, opts.FromAct)
	if parseErr != nil {
		// Schema validation failure returns an empty list, not an error.
		log.Warn().Err(parseErr).Msg("observe response failed schema validation, returning empty result")
		return nil, nil
	}

	results := make([]model.ObserveResult, 0, len(entries))
	for _, e := range entries {
		xp, ok := tree.XPathMap[model.EncodedId(e.ElementID)]
		if !ok {
			xp = ""
		}
		if isTextOrCommentXPath(xp) {
			// A text() or comment() node surfaced in the outline
			// (StaticText keeps a non-empty AX name) but neither is a
			// valid act target; skip it rather than hand the LLM's
			// pick back as a dead selector.
			continue
		}
		r := model.ObserveResult{
			Selector:    "xpath=" + xp,
			Description: e.Description,
			EncodedId:   model.EncodedId(e.ElementID),
		}
		if opts.FromAct {
			m := model.MethodType(e.Method)
			if !model.IsSupportedMethod(m) {
				m = model.MethodNotSupported
			}
			r.Method = string(m)
			r.Arguments = e.Arguments
		}
		results = append(results, r)
		if opts.FromAct {
			break // fromAct=true: at most one result.
		}
	}

	if opts.DrawOverlay {
		if err := o.drawOverlay(results); err != nil {
			log.Warn().Err(err).Msg("draw overlay failed, continuing")
		}
	}

	return results, nil
}

func (o *Observer) buildTree(iframes bool) (*model.TreeResult, error) {
	pool := o.Page.Pool()
	sess, err := pool.PageSession()
	if err != nil {
		return nil, agacerr.NewCDPError("Page.getSession", err)
	}
	mainFrame := o.Page.Raw().MainFrame()
	rootFrameID := mainFrame.Name() + "@" + mainFrame.URL()

	if !iframes {
		return axtree.BuildSingleFrameTree(sess, rootFrameID, nil, o.Page, o.Log)
	}

	descriptors := []axtree.FrameDescriptor{{FrameID: rootFrameID, Session: sess}}
	for _, child := range mainFrame.ChildFrames() {
		childSess, err := pool.FrameSession(child, child.Name()+"@"+child.URL())
		if err != nil {
			o.Log.Warn().Err(err).Str("frame_url", child.URL()).Msg("could not open frame session, skipping frame")
			continue
		}
		desc, err := axtree.NewChildFrameDescriptor(
			child.Name()+"@"+child.URL(), 0, childSess, nil, "", rootFrameID, sess, 0,
		)
		if err != nil {
			o.Log.Warn().Err(err).Msg("could not resolve frame owner, skipping frame")
			continue
		}
		descriptors = append(descriptors, desc)
	}
	return axtree.StitchFrames(descriptors, o.Page, o.Log)
}

type observePrompt struct {
	system string
	user   string
}

func (o *Observer) buildPrompt(tree *model.TreeResult, opts ObserveOptions) observePrompt {
	var sb strings.Builder
	sb.WriteString("You are given a page's accessibility outline. ")
	sb.WriteString("Identify the elements that satisfy the instruction.\n\n")
	sb.WriteString("URL: ")
	sb.WriteString(o.Page.Raw().URL())
	sb.WriteString("\nTitle: ")
	title, _ := o.Page.Raw().Title()
	sb.WriteString(title)
	sb.WriteString("\n\nAccessibility outline:\n")
	sb.WriteString(tree.Simplified)
	sb.WriteString("\n\nInstruction: ")
	sb.WriteString(opts.Instruction)

	if opts.FromAct {
		sb.WriteString("\n\nReturn exactly one JSON object: ")
		sb.WriteString(`{"elementId": "...", "description": "...", "method": "...", "arguments": [...]}`)
		sb.WriteString("\nmethod must be one of: ")
		names := make([]string, 0, len(model.SupportedMethods))
		for _, m := range model.SupportedMethods {
			names = append(names, string(m))
		}
		sb.WriteString(strings.Join(names, ", "))
		sb.WriteString(", or \"not-supported\" if nothing matches.")
	} else {
		sb.WriteString("\n\nReturn a JSON array of objects: ")
		sb.WriteString(`[{"elementId": "...", "description": "..."}]`)
	}

	return observePrompt{
		system: "You output only valid JSON, no surrounding prose.",
		user:   sb.String(),
	}
}

func parseObserveEntries(text string, fromAct bool) ([]rawObserveEntry, error) {
	text = extractJSONPayload(text)
	if fromAct {
		var single rawObserveEntry
		if err := json.Unmarshal([]byte(text), &single); err != nil {
			return nil, fmt.Errorf("decode single observe entry: %w", err)
		}
		if single.ElementID == "" && single.Method == "" {
			return nil, nil
		}
		return []rawObserveEntry{single}, nil
	}
	var arr []rawObserveEntry
	if err := json.Unmarshal([]byte(text), &arr); err != nil {
		return nil, fmt.Errorf("decode observe entry array: %w", err)
	}
	kept := arr[:0:0]
	for _, e := range arr {
		if e.ElementID == "" {
			continue
		}
		kept = append(kept, e)
	}
	return kept, nil
}

// isTextOrCommentXPath reports whether xp resolves into a text() or
// comment() node rather than an element: xpaths built over DOM.Node
// children of type Text/Comment end in a "text()[n]"/"comment()[n]"
// step (see axtree.segmentKind), and such a step can never be an act
// target.
func isTextOrCommentXPath(xp string) bool {
	if xp == "" {
		return false
	}
	last := xp
	if i := strings.LastIndexByte(xp, '/'); i >= 0 {
		last = xp[i+1:]
	}
	return strings.HasPrefix(last, "text()[") || strings.HasPrefix(last, "comment()[")
}

// extractJSONPayload trims a fenced code block wrapper an LLM
// sometimes adds despite being told not to ("```json\n...\n```").
func extractJSONPayload(text string) string {
	t := strings.TrimSpace(text)
	if strings.HasPrefix(t, "```") {
		t = strings.TrimPrefix(t, "```json")
		t = strings.TrimPrefix(t, "```")
		t = strings.TrimSuffix(t, "```")
		t = strings.TrimSpace(t)
	}
	return t
}

func (o *Observer) drawOverlay(results []model.ObserveResult) error {
	frame := o.Page.Raw().MainFrame()
	for _, r := range results {
		xp := r.XPathFromSelector()
		if xp == "" {
			continue
		}
		script := fmt.Sprintf(`() => {
			const node = window.__agacHelpers && window.__agacHelpers.getNodeFromXpath(%q);
			if (!node || !node.getBoundingClientRect) return;
			const rect = node.getBoundingClientRect();
			const box = document.createElement('div');
			box.style.cssText = 'position:fixed;z-index:2147483647;pointer-events:none;border:2px solid #ff3366;';
			box.style.left = rect.left + 'px';
			box.style.top = rect.top + 'px';
			box.style.width = rect.width + 'px';
			box.style.height = rect.height + 'px';
			document.body.appendChild(box);
		}`, xp)
		if _, err := frame.Evaluate(script, nil); err != nil {
			return err
		}
	}
	return nil
}
