// Package model holds the data types shared across the accessibility
// tree builder, the frame chain resolver, and the observe/act/extract
// handlers. Nothing in this package talks to CDP or an LLM directly.
package model

import (
	"fmt"
	"strconv"
	"strings"
)

// EncodedId is "<frameOrdinal>-<backendNodeId>", unique per Page.
type EncodedId string

// NewEncodedId builds an EncodedId from a frame ordinal and a CDP
// backend node id.
func NewEncodedId(frameOrdinal int, backendNodeID int64) EncodedId {
	return EncodedId(fmt.Sprintf("%d-%d", frameOrdinal, backendNodeID))
}

// Split parses the EncodedId back into its frame ordinal and backend
// node id. Returns an error if the value isn't of the "f-b" shape.
func (e EncodedId) Split() (frameOrdinal int, backendNodeID int64, err error) {
	parts := strings.SplitN(string(e), "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("encodedId %q: expected \"f-b\" shape", e)
	}
	frameOrdinal, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("encodedId %q: bad frame ordinal: %w", e, err)
	}
	backendNodeID, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("encodedId %q: bad backend node id: %w", e, err)
	}
	return frameOrdinal, backendNodeID, nil
}

// TagNameMap maps EncodedId to lowercase HTML tag name.
type TagNameMap map[EncodedId]string

// XPathMap maps EncodedId to a relative XPath string.
type XPathMap map[EncodedId]string

// AccessibilityNode is one node of the reshaped accessibility tree.
type AccessibilityNode struct {
	NodeID           string
	Role             string
	Name             string
	Description      string
	Value            string
	EncodedId        EncodedId
	BackendDOMNodeID int64
	Children         []*AccessibilityNode
}

// HasEncodedId reports whether the node carries a resolved EncodedId.
func (n *AccessibilityNode) HasEncodedId() bool { return n.EncodedId != "" }

// TreeResult is the output of the accessibility tree builder for a
// target (single frame or the whole page).
type TreeResult struct {
	Tree       []*AccessibilityNode
	Simplified string
	Iframes    []*AccessibilityNode
	IdToURL    map[EncodedId]string
	XPathMap   XPathMap
	TagNameMap TagNameMap
}

// ObserveResult is one candidate element returned by the observe
// handler. Selector is always "xpath=<path>"; path may be empty.
type ObserveResult struct {
	Selector    string
	Description string
	Method      string
	Arguments   []string
	EncodedId   EncodedId
}

// XPathFromSelector strips the mandatory "xpath=" prefix, returning the
// bare path (possibly empty).
func (o ObserveResult) XPathFromSelector() string {
	return strings.TrimPrefix(o.Selector, "xpath=")
}

// ActionType is the closed set of actions an ActResult can report.
type ActionType string

const (
	ActionClick      ActionType = "click"
	ActionFill       ActionType = "fill"
	ActionType_      ActionType = "type"
	ActionPress      ActionType = "press"
	ActionScroll     ActionType = "scroll"
	ActionHover      ActionType = "hover"
	ActionDrag       ActionType = "drag"
	ActionScreenshot ActionType = "screenshot"
	ActionWait       ActionType = "wait"
	ActionNavigate   ActionType = "navigate"
)

// ActResult reports the outcome of a single act() call.
type ActResult struct {
	Success     bool
	Action      ActionType
	Selector    string
	Description string
	Error       string
	Metadata    map[string]any
}

// MethodType is the closed set of dispatcher methods an ObserveResult
// may name when fromAct=true.
type MethodType string

const (
	MethodClick          MethodType = "click"
	MethodFill           MethodType = "fill"
	MethodType_          MethodType = "type"
	MethodPress          MethodType = "press"
	MethodHover          MethodType = "hover"
	MethodSelectOption   MethodType = "selectOption"
	MethodCheck          MethodType = "check"
	MethodUncheck        MethodType = "uncheck"
	MethodFocus          MethodType = "focus"
	MethodBlur           MethodType = "blur"
	MethodScrollIntoView MethodType = "scrollIntoView"
	MethodScrollTo       MethodType = "scrollTo"
	MethodScroll         MethodType = "scroll"
	MethodNextChunk      MethodType = "nextChunk"
	MethodPrevChunk      MethodType = "prevChunk"
	MethodNotSupported   MethodType = "not-supported"
)

// SupportedMethods lists the closed dispatch set, excluding
// not-supported, in the order the observe prompt should present them.
var SupportedMethods = []MethodType{
	MethodClick, MethodFill, MethodType_, MethodPress, MethodHover,
	MethodSelectOption, MethodCheck, MethodUncheck, MethodFocus, MethodBlur,
	MethodScrollIntoView, MethodScrollTo, MethodScroll, MethodNextChunk, MethodPrevChunk,
}

// IsSupportedMethod reports whether m is in the closed dispatch set or
// is the not-supported sentinel.
func IsSupportedMethod(m MethodType) bool {
	if m == MethodNotSupported {
		return true
	}
	for _, sm := range SupportedMethods {
		if sm == m {
			return true
		}
	}
	return false
}

// FieldType is the closed set of scalar types an extract schema field
// may declare.
type FieldType string

const (
	FieldString FieldType = "string"
	FieldNumber FieldType = "number"
	FieldBool   FieldType = "bool"
	FieldURL    FieldType = "url"
)

// FieldSpec describes one field of an extract schema.
type FieldSpec struct {
	Name     string
	Type     FieldType
	Required bool
}

// ExtractMode selects between schema-guided extraction (LLM-backed) and
// plain readability-style article extraction (LLM-free).
type ExtractMode string

const (
	ExtractModeSchema  ExtractMode = "schema"
	ExtractModeArticle ExtractMode = "article"
)

// ExtractSchema is the tiny, library-agnostic schema the extract
// handler validates against. Callers that want richer validation
// supply Validate themselves; the core never imports a schema library.
type ExtractSchema struct {
	Fields   []FieldSpec
	Mode     ExtractMode
	Validate func(payload []byte) error
}
