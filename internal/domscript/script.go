// Package domscript holds the in-page JavaScript helper blob (spec
// component 4.B): XPath synthesis, scrollable-element detection, and
// scroll-end waiting. It is injected once per frame, guarded by a
// global flag, and is the only bridge from CDP backend ids back to
// live DOM operations.
//
// Grounded on playwright_ai/dom/utils.py's script generator functions
// (get_scrollable_elements_script, get_node_from_xpath_script,
// wait_for_element_scroll_end_script) and ai_browser_automation/dom/
// xpath.py's prioritized-attribute uniqueness search, translated to a
// single injectable blob the way the teacher inlines scripts in
// internal/browser/browser.go and internal/snapshot/snapshot.go.
package domscript

// InjectedFlag is the global flag guarding re-injection, mirroring the
// spec's window.__aiBrowserAutomationInjected name (kept verbatim: it's
// an external initialization contract other in-page code may check
// for, not an internal implementation detail worth renaming).
const InjectedFlag = "__aiBrowserAutomationInjected"

// PriorityAttributes is the ordered list of attributes combined when
// synthesizing a "unique" XPath for an element.
var PriorityAttributes = []string{
	"data-qa", "data-component", "data-role", "role", "aria-role",
	"type", "name", "aria-label", "placeholder", "title", "alt",
}

// Source is the full helper blob. It defines everything on
// window.__agacHelpers and sets the injected flag as its last step, so
// a caller can check for the flag via Evaluate before deciding whether
// to inject again.
var Source = `(() => {
  if (window.` + InjectedFlag + `) return true;

  const PRIORITY_ATTRS = ` + jsStringArray(PriorityAttributes) + `;

  function tagOf(el) {
    return (el && el.tagName) ? el.tagName.toLowerCase() : '';
  }

  function generateXPath(el) {
    if (!el) return '';
    if (el.nodeType === Node.DOCUMENT_NODE) return '/';
    const segs = [];
    let node = el;
    while (node && node.nodeType !== Node.DOCUMENT_NODE) {
      let segIndex = 1;
      let sibling = node.previousSibling;
      const kind = node.nodeType === Node.TEXT_NODE ? 'text()'
        : node.nodeType === Node.COMMENT_NODE ? 'comment()'
        : tagOf(node);
      while (sibling) {
        const sKind = sibling.nodeType === Node.TEXT_NODE ? 'text()'
          : sibling.nodeType === Node.COMMENT_NODE ? 'comment()'
          : tagOf(sibling);
        if (sKind === kind) segIndex++;
        sibling = sibling.previousSibling;
      }
      segs.unshift(kind + '[' + segIndex + ']');
      node = node.parentNode;
    }
    return '/' + segs.join('/');
  }

  function countMatches(xpath, doc) {
    try {
      const r = doc.evaluate(xpath, doc, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
      return r.snapshotLength;
    } catch (e) {
      return -1;
    }
  }

  function idBasedXPath(el) {
    if (!el.id) return null;
    const xp = '//*[@id="' + el.id.replace(/"/g, '') + '"]';
    return countMatches(xp, el.ownerDocument) === 1 ? xp : null;
  }

  function uniqueAttributeXPath(el) {
    const tag = tagOf(el) || '*';
    const present = PRIORITY_ATTRS
      .map((a) => [a, el.getAttribute(a)])
      .filter(([, v]) => v !== null && v !== '');
    if (present.length === 0) return null;
    // Search from most- to least-specific combination: all attrs
    // first, then drop from the tail one at a time.
    for (let take = present.length; take >= 1; take--) {
      const subset = present.slice(0, take);
      const predicate = subset.map(([a, v]) => '@' + a + '="' + v.replace(/"/g, '') + '"').join(' and ');
      const xp = '//' + tag + '[' + predicate + ']';
      if (countMatches(xp, el.ownerDocument) === 1) return xp;
    }
    return null;
  }

  function generateXPathsForElement(el) {
    const out = [];
    const unique = uniqueAttributeXPath(el);
    if (unique) out.push(unique);
    const idXp = idBasedXPath(el);
    if (idXp) out.push(idXp);
    out.push(generateXPath(el));
    return out;
  }

  function isScrollable(el) {
    if (!el || !el.isConnected) return false;
    const style = window.getComputedStyle(el);
    const oy = style.overflowY;
    if (oy !== 'auto' && oy !== 'scroll' && oy !== 'overlay') return false;
    if (el.scrollHeight <= el.clientHeight) return false;
    const before = el.scrollTop;
    el.scrollTop = before + 1;
    const moved = el.scrollTop !== before;
    el.scrollTop = before;
    return moved;
  }

  function getScrollableElements(topN) {
    const all = Array.from(document.querySelectorAll('*')).filter(isScrollable);
    all.sort((a, b) => b.scrollHeight - a.scrollHeight);
    const result = [document.documentElement, ...all];
    return typeof topN === 'number' ? result.slice(0, topN) : result;
  }

  function getScrollableElementXpaths(topN) {
    return getScrollableElements(topN).map((el) => generateXPathsForElement(el)[0]);
  }

  function getNodeFromXpath(xpath) {
    const r = document.evaluate(xpath, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null);
    return r.singleNodeValue;
  }

  function waitForElementScrollEnd(el, idleMs) {
    idleMs = idleMs || 100;
    return new Promise((resolve) => {
      let timer = setTimeout(resolve, idleMs);
      const onScroll = () => {
        clearTimeout(timer);
        timer = setTimeout(() => { el.removeEventListener('scroll', onScroll); resolve(); }, idleMs);
      };
      el.addEventListener('scroll', onScroll, { passive: true });
    });
  }

  window.__agacHelpers = {
    generateXPath,
    generateXPathsForElement,
    getScrollableElements,
    getScrollableElementXpaths,
    getNodeFromXpath,
    waitForElementScrollEnd,
  };
  window.` + InjectedFlag + ` = true;
  return true;
})();`

func jsStringArray(items []string) string {
	out := "["
	for i, it := range items {
		if i > 0 {
			out += ", "
		}
		out += `"` + it + `"`
	}
	out += "]"
	return out
}
