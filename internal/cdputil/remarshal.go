// Package cdputil bridges the untyped JSON maps returned by
// playwright-go's CDPSession.Send to github.com/chromedp/cdproto's
// typed per-domain result structs, so the rest of the core can work
// with typed fields (NodeID, BackendNodeID, FrameID, ...) instead of
// re-deriving CDP's wire shapes by hand.
package cdputil

import "encoding/json"

// Remarshal round-trips a decoded JSON map (or any JSON-marshalable
// value) through encoding/json into a typed destination struct. This is
// the glue that lets axtree and settle use cdproto's domain types while
// the transport itself (playwright's CDPSession) only speaks
// map[string]any.
func Remarshal(src any, dst any) error {
	b, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}
