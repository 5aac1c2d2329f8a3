package axtree

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/accessibility"
	"github.com/rs/zerolog"

	"github.com/agac/browser-action-core/internal/cdputil"
	"github.com/agac/browser-action-core/internal/model"
)

// role names the tree builder treats specially.
const (
	roleGeneric         = "generic"
	roleNone            = "none"
	roleInlineTextBox   = "InlineTextBox"
	roleStaticText      = "StaticText"
	roleIframeCanonical = "Iframe"
)

// axNodeFlat mirrors one node of Accessibility.getFullAXTree's flat
// array before reshaping, with CDP's {value:...} wrapper objects
// flattened to scalars (spec 4.D step 3).
type axNodeFlat struct {
	NodeID           string
	Ignored          bool
	Role             string
	Name             string
	Description      string
	Value            string
	ParentID         string
	ChildIDs         []string
	BackendDOMNodeID int64
	HasURLValue      bool
	URLValue         string
}

func flattenValue(v *accessibility.Value) string {
	if v == nil || len(v.Value) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(v.Value, &s); err == nil {
		return s
	}
	// Non-string scalar (number/bool): fall back to the raw JSON text.
	return strings.Trim(string(v.Value), `"`)
}

// BuildSingleFrameTree produces a TreeResult for one target (page or a
// single frame) by composing BuildBackendIDMaps with
// Accessibility.getFullAXTree, scrollable decoration, and the
// hierarchical reshape. session must already be the correct session
// for the target (page session, or the frame's own OOP session, or the
// page session plus an `axParams` carrying {frameId: ...}).
func BuildSingleFrameTree(session cdpSender, rootFrameID string, axParams map[string]any, ordinals FrameOrdinals, log zerolog.Logger) (*model.TreeResult, error) {
	log = log.With().Str("component", "axtree_builder").Logger()

	maps, err := BuildBackendIDMaps(session, rootFrameID, ordinals, log)
	if err != nil {
		return nil, err
	}

	if _, err := session.Send("Accessibility.enable", nil); err != nil {
		log.Warn().Err(err).Msg("Accessibility.enable failed")
	}
	defer func() {
		if _, err := session.Send("Accessibility.disable", nil); err != nil {
			log.Debug().Err(err).Msg("Accessibility.disable failed")
		}
	}()

	raw, err := session.Send("Accessibility.getFullAXTree", axParams)
	if err != nil {
		return nil, fmt.Errorf("Accessibility.getFullAXTree: %w", err)
	}
	var ret accessibility.GetFullAXTreeReturns
	if err := cdputil.Remarshal(raw, &ret); err != nil {
		return nil, fmt.Errorf("decode getFullAXTree: %w", err)
	}

	flat := make(map[string]*axNodeFlat, len(ret.Nodes))
	order := make([]string, 0, len(ret.Nodes))
	backendToNodeIDs := map[int64][]string{}
	for _, n := range ret.Nodes {
		if n == nil {
			continue
		}
		fn := &axNodeFlat{
			NodeID:           string(n.NodeID),
			Ignored:          n.Ignored,
			Role:             flattenValue(n.Role),
			Name:             flattenValue(n.Name),
			Description:      flattenValue(n.Description),
			Value:            flattenValue(n.Value),
			ParentID:         string(n.ParentID),
			BackendDOMNodeID: int64(n.BackendDOMNodeID),
		}
		for _, c := range n.ChildIds {
			fn.ChildIDs = append(fn.ChildIDs, string(c))
		}
		if strings.EqualFold(fn.Role, "link") {
			if v := flattenValue(n.Value); isLikelyURL(v) {
				fn.HasURLValue = true
				fn.URLValue = v
			}
		}
		for _, p := range n.Properties {
			if p == nil {
				continue
			}
			if strings.EqualFold(string(p.Name), "href") {
				if v := flattenValue(p.Value); isLikelyURL(v) {
					fn.HasURLValue = true
					fn.URLValue = v
				}
			}
		}
		flat[fn.NodeID] = fn
		order = append(order, fn.NodeID)
		if fn.BackendDOMNodeID > 0 {
			backendToNodeIDs[fn.BackendDOMNodeID] = append(backendToNodeIDs[fn.BackendDOMNodeID], fn.NodeID)
		}
	}

	scrollSet, err := findScrollableBackendIDs(session, log)
	if err != nil {
		log.Warn().Err(err).Msg("scrollable detection failed, continuing without decoration")
		scrollSet = map[int64]bool{}
	}
	for _, fn := range flat {
		if scrollSet[fn.BackendDOMNodeID] {
			decorateScrollable(fn)
		}
	}

	tb := &treeBuilder{
		flat:             flat,
		tagNames:         maps.TagNames,
		backendToNodeIDs: backendToNodeIDs,
		frameOrdinal:     ordinals.OrdinalForFrameID(rootFrameID),
		idToURL:          map[model.EncodedId]string{},
		log:              log,
	}
	roots := tb.buildRoots(order)

	var iframes []*model.AccessibilityNode
	var simplified strings.Builder
	for _, r := range roots {
		tb.collectIframes(r, &iframes)
		renderSimplified(&simplified, r, 0)
	}

	return &model.TreeResult{
		Tree:       roots,
		Simplified: simplified.String(),
		Iframes:    iframes,
		IdToURL:    tb.idToURL,
		XPathMap:   maps.XPaths,
		TagNameMap: maps.TagNames,
	}, nil
}

func isLikelyURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "/") || strings.HasPrefix(s, "#")
}

type treeBuilder struct {
	flat             map[string]*axNodeFlat
	tagNames         model.TagNameMap
	backendToNodeIDs map[int64][]string
	frameOrdinal     int
	idToURL          map[model.EncodedId]string
	log              zerolog.Logger
}

// buildRoots wires parent/child relationships, applies the keep rule,
// structural prune, and redundant-StaticText prune (spec 4.D steps 5-6).
func (tb *treeBuilder) buildRoots(order []string) []*model.AccessibilityNode {
	children := map[string][]string{}
	var rootIDs []string
	for _, id := range order {
		fn := tb.flat[id]
		if fn.ParentID != "" {
			children[fn.ParentID] = append(children[fn.ParentID], id)
		} else {
			rootIDs = append(rootIDs, id)
		}
	}

	var build func(id string) *model.AccessibilityNode
	build = func(id string) *model.AccessibilityNode {
		fn, ok := tb.flat[id]
		if !ok || fn.NodeID == "" {
			return nil
		}
		var kept []*model.AccessibilityNode
		for _, cid := range children[id] {
			if c := build(cid); c != nil {
				kept = append(kept, c)
			}
		}
		kept = pruneRedundantStaticText(fn.Name, kept)

		isInteractive := fn.Role != roleGeneric && fn.Role != roleNone && fn.Role != roleInlineTextBox
		hasName := strings.TrimSpace(fn.Name) != ""
		if !hasName && len(kept) == 0 && !isInteractive {
			return nil
		}

		role := fn.Role
		if (role == roleGeneric || role == roleNone) && len(kept) == 1 {
			return kept[0]
		}
		if (role == roleGeneric || role == roleNone) && len(kept) == 0 && !hasName {
			return nil
		}

		node := &model.AccessibilityNode{
			NodeID:           fn.NodeID,
			Role:             role,
			Name:             fn.Name,
			Description:      fn.Description,
			Value:            fn.Value,
			BackendDOMNodeID: fn.BackendDOMNodeID,
			Children:         kept,
		}
		if (role == roleGeneric || role == roleNone) && fn.BackendDOMNodeID > 0 {
			if nodeIDs := tb.backendToNodeIDs[fn.BackendDOMNodeID]; len(nodeIDs) == 1 {
				if tag, ok := tb.tagForBackend(fn.BackendDOMNodeID); ok {
					node.Role = tag
				}
			}
		}

		if encID, ok := tb.encodedIDFor(fn.BackendDOMNodeID); ok {
			node.EncodedId = encID
			if fn.HasURLValue {
				tb.idToURL[encID] = fn.URLValue
			}
		}
		return node
	}

	var roots []*model.AccessibilityNode
	for _, id := range rootIDs {
		if n := build(id); n != nil {
			roots = append(roots, n)
		}
	}
	return roots
}

func (tb *treeBuilder) tagForBackend(backendID int64) (string, bool) {
	for encID, tag := range tb.tagNames {
		ord, b, err := encID.Split()
		if err != nil || ord != tb.frameOrdinal || b != backendID {
			continue
		}
		return tag, true
	}
	return "", false
}

// encodedIDFor returns an EncodedId iff backendID maps to exactly one
// TagNameMap entry in this frame (spec's "ambiguous matches are dropped
// to avoid cross-frame collisions").
func (tb *treeBuilder) encodedIDFor(backendID int64) (model.EncodedId, bool) {
	if backendID <= 0 {
		return "", false
	}
	candidate := model.NewEncodedId(tb.frameOrdinal, backendID)
	if _, ok := tb.tagNames[candidate]; ok {
		return candidate, true
	}
	return "", false
}

func pruneRedundantStaticText(parentName string, kept []*model.AccessibilityNode) []*model.AccessibilityNode {
	trimmedParent := strings.TrimSpace(parentName)
	if trimmedParent == "" {
		return kept
	}
	out := kept[:0:0]
	for _, c := range kept {
		if c.Role == roleStaticText && strings.TrimSpace(c.Name) == trimmedParent {
			continue
		}
		out = append(out, c)
	}
	return out
}

func decorateScrollable(fn *axNodeFlat) {
	if strings.HasPrefix(fn.Role, "scrollable") {
		return
	}
	if fn.Role == "" {
		fn.Role = "scrollable"
	} else {
		fn.Role = "scrollable, " + fn.Role
	}
}

func (tb *treeBuilder) collectIframes(n *model.AccessibilityNode, out *[]*model.AccessibilityNode) {
	if n == nil {
		return
	}
	if n.Role == roleIframeCanonical {
		*out = append(*out, n)
	}
	for _, c := range n.Children {
		tb.collectIframes(c, out)
	}
}

func renderSimplified(b *strings.Builder, n *model.AccessibilityNode, depth int) {
	if n == nil {
		return
	}
	label := n.NodeID
	if n.EncodedId != "" {
		label = string(n.EncodedId)
	}
	fmt.Fprintf(b, "%s[%s] %s: %s\n", strings.Repeat("  ", depth), label, n.Role, n.Name)
	for _, c := range n.Children {
		renderSimplified(b, c, depth+1)
	}
}

// findScrollableBackendIDs resolves every XPath returned by the
// in-page getScrollableElementXpaths helper to a backend node id via
// Runtime.evaluate + DOM.describeNode (spec 4.D step 4).
func findScrollableBackendIDs(session cdpSender, log zerolog.Logger) (map[int64]bool, error) {
	evalResult, err := session.Send("Runtime.evaluate", map[string]any{
		"expression":    "window.__agacHelpers ? window.__agacHelpers.getScrollableElementXpaths() : []",
		"returnByValue": true,
	})
	if err != nil {
		return nil, err
	}
	xpaths, err := decodeStringArray(evalResult)
	if err != nil || len(xpaths) == 0 {
		return map[int64]bool{}, nil
	}

	out := map[int64]bool{}
	for _, xp := range xpaths {
		objResult, err := session.Send("Runtime.evaluate", map[string]any{
			"expression": fmt.Sprintf("window.__agacHelpers.getNodeFromXpath(%q)", xp),
		})
		if err != nil {
			log.Debug().Err(err).Str("xpath", xp).Msg("resolve scrollable xpath failed")
			continue
		}
		objectID, ok := extractObjectID(objResult)
		if !ok {
			continue
		}
		backendID, err := describeNodeBackendID(session, objectID)
		if err != nil {
			log.Debug().Err(err).Str("xpath", xp).Msg("describeNode failed for scrollable element")
			continue
		}
		out[backendID] = true
	}
	return out, nil
}

func decodeStringArray(evalResult map[string]any) ([]string, error) {
	result, ok := evalResult["result"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("no result field")
	}
	value, ok := result["value"]
	if !ok {
		return nil, nil
	}
	items, ok := value.([]any)
	if !ok {
		return nil, nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func extractObjectID(evalResult map[string]any) (string, bool) {
	result, ok := evalResult["result"].(map[string]any)
	if !ok {
		return "", false
	}
	objectID, ok := result["objectId"].(string)
	return objectID, ok
}
