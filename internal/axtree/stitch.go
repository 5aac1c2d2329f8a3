package axtree

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/agac/browser-action-core/internal/model"
)

// FrameDescriptor is everything the stitcher needs about one frame
// beyond its own TreeResult: the CDP session to use for it, its
// stable ordinal, and (for every frame but the main one) the host
// XPath of the iframe element that owns it in its parent's document.
type FrameDescriptor struct {
	FrameID        string
	Ordinal        int
	Session        cdpSender
	AXParams       map[string]any
	HostXPath      string          // XPath of the <iframe> element in the parent frame, "" for the root
	ParentFrame    string          // parent FrameID, "" for the root
	ownerEncodedID model.EncodedId // EncodedId (in ParentFrame's ordinal space) of the owning <iframe> element
}

// NewChildFrameDescriptor builds a FrameDescriptor for a non-root frame,
// resolving the owning iframe element's backend id (via
// GetFrameOwnerBackendID against the parent's session) so the stitcher
// can later match the parent tree's Iframe placeholder node back to
// this frame.
func NewChildFrameDescriptor(frameID string, ordinal int, session cdpSender, axParams map[string]any, hostXPath, parentFrame string, parentSession cdpSender, parentOrdinal int) (FrameDescriptor, error) {
	backendID, err := GetFrameOwnerBackendID(parentSession, frameID)
	if err != nil {
		return FrameDescriptor{}, fmt.Errorf("resolve frame owner for %s: %w", frameID, err)
	}
	return FrameDescriptor{
		FrameID:        frameID,
		Ordinal:        ordinal,
		Session:        session,
		AXParams:       axParams,
		HostXPath:      hostXPath,
		ParentFrame:    parentFrame,
		ownerEncodedID: model.NewEncodedId(parentOrdinal, backendID),
	}, nil
}

// StitchFrames builds a TreeResult per descriptor and combines them
// into a single outline rooted at main (spec 4.D steps 9-11): each
// non-root frame's root nodes are appended to the children of its
// iframe node in its parent's tree (so the simplified outline lists
// them right after the iframe line, one level deeper), and every XPath
// in the combined XPathMap is prefixed with the full host-iframe-chain
// XPath so a caller outside the DFS's frame-local coordinate space can
// still resolve an element.
//
// An EncodedId that appears in more than one frame's XPathMap keeps
// the entry of the frame merged first (the root frame, then child
// frames in descriptor order); later duplicates are dropped and logged
// at warn, preferring a smaller-but-unambiguous map over one with
// silently replaced entries.
func StitchFrames(descriptors []FrameDescriptor, ordinals FrameOrdinals, log zerolog.Logger) (*model.TreeResult, error) {
	log = log.With().Str("component", "frame_stitcher").Logger()
	if len(descriptors) == 0 {
		return &model.TreeResult{
			IdToURL:    map[model.EncodedId]string{},
			XPathMap:   model.XPathMap{},
			TagNameMap: model.TagNameMap{},
		}, nil
	}

	perFrame := make(map[string]*model.TreeResult, len(descriptors))
	byID := make(map[string]FrameDescriptor, len(descriptors))
	var root FrameDescriptor
	for _, d := range descriptors {
		byID[d.FrameID] = d
		if d.ParentFrame == "" {
			root = d
		}
	}

	// Each descriptor owns a distinct CDP session, so the per-frame tree
	// builds below have no shared mutable state apart from perFrame
	// itself; run them concurrently instead of one at a time.
	var mu sync.Mutex
	var g errgroup.Group
	for _, d := range descriptors {
		d := d
		g.Go(func() error {
			res, err := BuildSingleFrameTree(d.Session, d.FrameID, d.AXParams, ordinals, log)
			if err != nil {
				log.Warn().Err(err).Str("frame_id", d.FrameID).Msg("frame tree build failed, skipping frame")
				return nil
			}
			mu.Lock()
			perFrame[d.FrameID] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // per-frame errors are already logged and skipped above

	rootResult, ok := perFrame[root.FrameID]
	if !ok {
		return nil, fmt.Errorf("root frame %s produced no tree", root.FrameID)
	}

	combinedXPaths := model.XPathMap{}
	combinedTags := model.TagNameMap{}
	combinedURLs := map[model.EncodedId]string{}
	seen := map[model.EncodedId]string{} // encID -> owning frame id, for collision detection

	var hostPrefix func(frameID string) string
	hostPrefix = func(frameID string) string {
		d, ok := byID[frameID]
		if !ok || d.ParentFrame == "" {
			return ""
		}
		return hostPrefix(d.ParentFrame) + d.HostXPath
	}

	mergeFrame := func(frameID string) {
		res, ok := perFrame[frameID]
		if !ok {
			return
		}
		prefix := hostPrefix(frameID)
		for encID, xp := range res.XPathMap {
			if owner, exists := seen[encID]; exists && owner != frameID {
				log.Warn().Str("encoded_id", string(encID)).Str("existing_frame", owner).Str("new_frame", frameID).
					Msg("dropping colliding accessibility subtree entry")
				continue
			}
			seen[encID] = frameID
			combinedXPaths[encID] = prefix + xp
		}
		for encID, tag := range res.TagNameMap {
			combinedTags[encID] = tag
		}
		for encID, url := range res.IdToURL {
			combinedURLs[encID] = url
		}
	}
	mergeFrame(root.FrameID)

	var children []string
	for _, d := range descriptors {
		if d.ParentFrame != "" {
			children = append(children, d.FrameID)
		}
	}

	visited := map[string]bool{root.FrameID: true}
	injected := injectSubtrees(rootResult.Tree, byID, perFrame, visited, log)

	for _, fid := range children {
		if !visited[fid] {
			// Unreachable from the main outline (detached or not
			// referenced by any iframe node we kept): still fold its
			// map entries in so direct-by-EncodedId lookups work, but
			// it contributes no nodes to the combined tree.
			mergeFrame(fid)
			continue
		}
		mergeFrame(fid)
	}

	var simplified strings.Builder
	for _, r := range injected {
		renderSimplified(&simplified, r, 0)
	}

	var iframes []*model.AccessibilityNode
	tb := &treeBuilder{}
	for _, r := range injected {
		tb.collectIframes(r, &iframes)
	}

	return &model.TreeResult{
		Tree:       injected,
		Simplified: simplified.String(),
		Iframes:    iframes,
		IdToURL:    combinedURLs,
		XPathMap:   combinedXPaths,
		TagNameMap: combinedTags,
	}, nil
}

// injectSubtrees walks nodes looking for Iframe-role placeholders and
// appends the corresponding child frame's own root nodes to the
// placeholder's children, recursing into the injected content so nested
// iframes are resolved too. A frame referenced by more than one placeholder (which
// should not happen, since each iframe element owns exactly one content
// frame) only has its subtree spliced in once; the decision to keep
// first-seen is logged as a collision.
func injectSubtrees(nodes []*model.AccessibilityNode, byID map[string]FrameDescriptor, perFrame map[string]*model.TreeResult, visited map[string]bool, log zerolog.Logger) []*model.AccessibilityNode {
	out := make([]*model.AccessibilityNode, 0, len(nodes))
	for _, n := range nodes {
		if n == nil {
			continue
		}
		childFrame, isIframe := frameForNode(n, byID)
		if isIframe {
			if visited[childFrame] {
				log.Warn().Str("frame_id", childFrame).Msg("iframe placeholder references an already-injected frame, dropping duplicate")
				out = append(out, n)
				continue
			}
			res, ok := perFrame[childFrame]
			if !ok {
				out = append(out, n)
				continue
			}
			visited[childFrame] = true
			n.Children = append(n.Children, injectSubtrees(res.Tree, byID, perFrame, visited, log)...)
			out = append(out, n)
			continue
		}
		n.Children = injectSubtrees(n.Children, byID, perFrame, visited, log)
		out = append(out, n)
	}
	return out
}

// frameForNode reports whether n is an iframe placeholder for a known
// child frame: n must have the Iframe role and its EncodedId must equal
// a non-root descriptor's owner EncodedId (the parent ordinal plus the
// owner backend id recorded by NewChildFrameDescriptor). An Iframe node
// that matches no descriptor is not treated as a placeholder.
func frameForNode(n *model.AccessibilityNode, byID map[string]FrameDescriptor) (string, bool) {
	if n.Role != roleIframeCanonical {
		return "", false
	}
	for fid, d := range byID {
		if d.ParentFrame != "" && d.ownerEncodedID == n.EncodedId {
			return fid, true
		}
	}
	return "", false
}
