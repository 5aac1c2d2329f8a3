// Package axtree implements the backend-id/xpath map builder (4.C), the
// accessibility tree builder (4.D) with multi-frame stitching, and the
// frame chain resolver (4.E).
//
// Grounded throughout on playwright_ai/a11y/utils_v2.py
// (build_backend_id_maps, clean_structural_nodes,
// build_hierarchical_tree, decorate_roles, inject_subtrees,
// resolve_frame_chain), using github.com/chromedp/cdproto's typed
// dom/accessibility domain structs for marshaling (grounded on
// karlorz-cmux's cmd/worker/browser.go) sent over the playwright-go CDP
// session wrapped by internal/cdp.
package axtree

import (
	"fmt"

	"github.com/chromedp/cdproto/dom"
	"github.com/rs/zerolog"

	"github.com/agac/browser-action-core/internal/cdputil"
	"github.com/agac/browser-action-core/internal/model"
)

// cdpSender is the minimal surface axtree needs from a cdp.Session; kept
// as an interface so tests can substitute a scripted transport.
type cdpSender interface {
	Send(method string, params map[string]any) (map[string]any, error)
}

const (
	nodeTypeElement = 1
	nodeTypeText    = 3
	nodeTypeComment = 8
)

// BackendMapResult is the output of BuildBackendIDMaps for one target
// (a page or a single frame's subtree).
type BackendMapResult struct {
	TagNames model.TagNameMap
	XPaths   model.XPathMap
}

// FrameOrdinals resolves a CDP frame id to the Page's stable ordinal,
// assigning a fresh one on first sight. Implemented by page.Page;
// axtree only depends on this narrow interface to avoid importing page
// (which imports axtree), avoiding an import cycle.
type FrameOrdinals interface {
	OrdinalForFrameID(frameID string) int
}

// BuildBackendIDMaps runs the DFS described in spec 4.C starting from
// DOM.getDocument on session, attributing every visited node to
// ordinals.OrdinalForFrameID(rootFrameID) for the starting frame and to
// freshly-assigned ordinals for any same-process iframe content
// documents encountered during the walk.
func BuildBackendIDMaps(session cdpSender, rootFrameID string, ordinals FrameOrdinals, log zerolog.Logger) (*BackendMapResult, error) {
	log = log.With().Str("component", "backend_map_builder").Logger()

	if _, err := session.Send("DOM.enable", nil); err != nil {
		log.Warn().Err(err).Msg("DOM.enable failed, continuing with partial maps")
	}
	defer func() {
		if _, err := session.Send("DOM.disable", nil); err != nil {
			log.Debug().Err(err).Msg("DOM.disable failed")
		}
	}()

	raw, err := session.Send("DOM.getDocument", map[string]any{"depth": -1, "pierce": true})
	if err != nil {
		log.Warn().Err(err).Msg("DOM.getDocument failed, returning empty maps")
		return &BackendMapResult{TagNames: model.TagNameMap{}, XPaths: model.XPathMap{}}, nil
	}

	var ret dom.GetDocumentReturns
	if err := cdputil.Remarshal(raw, &ret); err != nil || ret.Root == nil {
		log.Warn().Err(err).Msg("could not decode DOM.getDocument response")
		return &BackendMapResult{TagNames: model.TagNameMap{}, XPaths: model.XPathMap{}}, nil
	}

	b := &builder{
		tagNames: model.TagNameMap{},
		xpaths:   model.XPathMap{},
		seen:     map[int64]bool{},
		ordinals: ordinals,
		log:      log,
	}
	b.walk(ret.Root, ordinals.OrdinalForFrameID(rootFrameID), "")
	return &BackendMapResult{TagNames: b.tagNames, XPaths: b.xpaths}, nil
}

type builder struct {
	tagNames model.TagNameMap
	xpaths   model.XPathMap
	seen     map[int64]bool
	ordinals FrameOrdinals
	log      zerolog.Logger
}

// walk performs the DFS over a single document (or content document)
// subtree rooted at n, attributing nodes to frameOrdinal and building
// XPaths relative to basePath ("" at the root of this sub-space).
func (b *builder) walk(n *dom.Node, frameOrdinal int, basePath string) {
	if n == nil {
		return
	}
	b.visitChildren(n.Children, frameOrdinal, basePath, map[string]int{})

	// DOM.getDocument's top-level root is the #document node itself;
	// descend once into its children with an empty base path, which
	// visitChildren above already does. Shadow roots, if present, are
	// walked the same way as regular children so shadow DOM content is
	// still reachable (pierce:true already inlines them as children in
	// most Chromium versions; this is defensive for variants that
	// nest them under ShadowRoots instead).
	for _, sr := range n.ShadowRoots {
		b.visitChildren(sr.Children, frameOrdinal, basePath, map[string]int{})
	}
}

func (b *builder) visitChildren(children []*dom.Node, frameOrdinal int, basePath string, counters map[string]int) {
	for _, child := range children {
		b.visitNode(child, frameOrdinal, basePath, counters)
	}
}

func (b *builder) visitNode(n *dom.Node, frameOrdinal int, basePath string, counters map[string]int) {
	kind := segmentKind(n)
	counters[kind]++
	idx := counters[kind]
	path := fmt.Sprintf("%s/%s[%d]", basePath, kind, idx)

	backendID := int64(n.BackendNodeID)
	if backendID >= 0 && !b.seen[backendID] {
		b.seen[backendID] = true
		encID := model.NewEncodedId(frameOrdinal, backendID)
		b.tagNames[encID] = lowerTagName(n)
		b.xpaths[encID] = path
	}

	if n.NodeName == "IFRAME" && n.ContentDocument != nil {
		// A new sub-space: own frame ordinal, own path space starting
		// empty, per spec 4.C step 4's "push content document with
		// child frame's ordinal and an empty path".
		childOrdinal := frameOrdinal
		if n.FrameID != "" {
			childOrdinal = b.ordinals.OrdinalForFrameID(string(n.FrameID))
		}
		b.walk(n.ContentDocument, childOrdinal, "")
	}

	childCounters := map[string]int{}
	b.visitChildren(n.Children, frameOrdinal, path, childCounters)
}

func segmentKind(n *dom.Node) string {
	switch n.NodeType {
	case nodeTypeText:
		return "text()"
	case nodeTypeComment:
		return "comment()"
	default:
		return lowerTagName(n)
	}
}

func lowerTagName(n *dom.Node) string {
	name := n.NodeName
	out := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

// GetFrameOwnerBackendID resolves the backend node id of the element
// that owns frameID, used when descending into a same-process iframe's
// contentDocument from outside the DFS (spec 4.C step 3).
func GetFrameOwnerBackendID(session cdpSender, frameID string) (int64, error) {
	raw, err := session.Send("DOM.getFrameOwner", map[string]any{"frameId": frameID})
	if err != nil {
		return 0, err
	}
	var ret dom.GetFrameOwnerReturns
	if err := cdputil.Remarshal(raw, &ret); err != nil {
		return 0, err
	}
	return int64(ret.BackendNodeID), nil
}

// describeNodeBackendID resolves a DOM.describeNode call's backend id,
// used by the scrollable-decoration step (4.D step 4).
func describeNodeBackendID(session cdpSender, objectID string) (int64, error) {
	raw, err := session.Send("DOM.describeNode", map[string]any{"objectId": objectID})
	if err != nil {
		return 0, err
	}
	var ret dom.DescribeNodeReturns
	if err := cdputil.Remarshal(raw, &ret); err != nil || ret.Node == nil {
		return 0, err
	}
	return int64(ret.Node.BackendNodeID), nil
}

