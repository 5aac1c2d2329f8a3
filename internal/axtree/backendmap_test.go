package axtree

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/agac/browser-action-core/internal/model"
)

// fakeOrdinals hands out ordinals in first-seen order, mimicking page.Page
// without pulling in that package (which would import axtree back).
type fakeOrdinals struct {
	next int
	seen map[string]int
}

func newFakeOrdinals() *fakeOrdinals {
	return &fakeOrdinals{seen: map[string]int{}}
}

func (f *fakeOrdinals) OrdinalForFrameID(frameID string) int {
	if frameID == "" {
		return 0
	}
	if ord, ok := f.seen[frameID]; ok {
		return ord
	}
	ord := f.next
	f.next++
	f.seen[frameID] = ord
	return ord
}

// fakeSession returns one canned response per method, keyed in call order
// for getDocument-like single-shot calls.
type fakeSession struct {
	responses map[string]map[string]any
}

func (f *fakeSession) Send(method string, params map[string]any) (map[string]any, error) {
	if r, ok := f.responses[method]; ok {
		return r, nil
	}
	return map[string]any{}, nil
}

func TestBuildBackendIDMapsAssignsSequentialXPaths(t *testing.T) {
	doc := map[string]any{
		"root": map[string]any{
			"nodeId":        1,
			"backendNodeId": 1,
			"nodeType":      9,
			"nodeName":      "#document",
			"children": []any{
				map[string]any{
					"nodeId":        2,
					"backendNodeId": 2,
					"nodeType":      1,
					"nodeName":      "HTML",
					"children": []any{
						map[string]any{
							"nodeId":        3,
							"backendNodeId": 3,
							"nodeType":      1,
							"nodeName":      "BODY",
							"children": []any{
								map[string]any{
									"nodeId":        4,
									"backendNodeId": 4,
									"nodeType":      1,
									"nodeName":      "DIV",
								},
								map[string]any{
									"nodeId":        5,
									"backendNodeId": 5,
									"nodeType":      1,
									"nodeName":      "DIV",
								},
							},
						},
					},
				},
			},
		},
	}

	session := &fakeSession{responses: map[string]map[string]any{
		"DOM.getDocument": doc,
	}}
	ordinals := newFakeOrdinals()

	result, err := BuildBackendIDMaps(session, "main", ordinals, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bodyID := model.NewEncodedId(0, 3)
	firstDivID := model.NewEncodedId(0, 4)
	secondDivID := model.NewEncodedId(0, 5)

	if result.XPaths[bodyID] != "/html[1]/body[1]" {
		t.Errorf("body xpath = %q", result.XPaths[bodyID])
	}
	if result.XPaths[firstDivID] != "/html[1]/body[1]/div[1]" {
		t.Errorf("first div xpath = %q", result.XPaths[firstDivID])
	}
	if result.XPaths[secondDivID] != "/html[1]/body[1]/div[2]" {
		t.Errorf("second div xpath = %q", result.XPaths[secondDivID])
	}
	if result.TagNames[firstDivID] != "div" {
		t.Errorf("expected lowercased tag name, got %q", result.TagNames[firstDivID])
	}
}

func TestBuildBackendIDMapsHandlesMissingDocumentGracefully(t *testing.T) {
	session := &fakeSession{responses: map[string]map[string]any{}}
	ordinals := newFakeOrdinals()

	result, err := BuildBackendIDMaps(session, "main", ordinals, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.TagNames) != 0 || len(result.XPaths) != 0 {
		t.Fatal("expected empty maps when DOM.getDocument yields nothing usable")
	}
}

func TestGetFrameOwnerBackendID(t *testing.T) {
	session := &fakeSession{responses: map[string]map[string]any{
		"DOM.getFrameOwner": {"backendNodeId": 42},
	}}
	id, err := GetFrameOwnerBackendID(session, "child-frame")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != 42 {
		t.Fatalf("expected backend id 42, got %d", id)
	}
}
