package browser

import (
	"strings"
	"testing"

	"github.com/go-rod/rod/lib/proto"
)

func text(id int, v string) *proto.DOMNode {
	return &proto.DOMNode{NodeID: proto.DOMNodeID(id), NodeType: nodeText, NodeName: "#text", NodeValue: v}
}

func elem(id int, name string, kids ...*proto.DOMNode) *proto.DOMNode {
	return &proto.DOMNode{NodeID: proto.DOMNodeID(id), NodeType: 1, NodeName: name, Children: kids}
}

// <div>one<span>two<b>three</b></span><script>x</script><style>y</style>four</div>
func sampleTree() *proto.DOMNode {
	return elem(1, "DIV",
		text(2, "one"),
		elem(3, "SPAN", text(4, "two"), elem(5, "B", text(6, "three"))),
		elem(7, "SCRIPT", text(8, "x")),
		elem(9, "STYLE", text(10, "y")),
		text(11, "four"),
	)
}

func TestTextLeaves_DocumentOrder(t *testing.T) {
	var got []string
	for n := range textLeaves(sampleTree()) {
		got = append(got, n.NodeValue)
	}
	if strings.Join(got, ",") != "one,two,three,four" {
		t.Fatalf("leaves = %v", got)
	}
}

func TestTextLeaves_EarlyStop(t *testing.T) {
	n := 0
	for range textLeaves(sampleTree()) {
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Fatalf("visited %d", n)
	}
}

func TestTextLeaves_Nil(t *testing.T) {
	for range textLeaves(nil) {
		t.Fatal("nil tree yielded a node")
	}
}

func TestIndexNodes(t *testing.T) {
	idx := indexNodes(sampleTree())
	if len(idx) != 11 {
		t.Fatalf("indexed %d nodes, want 11", len(idx))
	}
	if idx[6].NodeValue != "three" {
		t.Fatalf("node 6 = %+v", idx[6])
	}
}

func TestResourceName(t *testing.T) {
	blocked := blockSet([]string{"Images", " fonts ", "media"})
	tests := []struct {
		typ  proto.NetworkResourceType
		want bool
	}{
		{proto.NetworkResourceTypeImage, true},
		{proto.NetworkResourceTypeFont, true},
		{proto.NetworkResourceTypeMedia, true},
		{proto.NetworkResourceTypeStylesheet, false},
		{proto.NetworkResourceTypeDocument, false},
		{proto.NetworkResourceTypeXHR, false},
	}
	for _, tt := range tests {
		if got := blocked[resourceName(tt.typ)]; got != tt.want {
			t.Errorf("%s blocked = %v, want %v", tt.typ, got, tt.want)
		}
	}
}

func TestObserverScript(t *testing.T) {
	if !strings.HasPrefix(observerJS, "() =>") {
		t.Fatal("observer script must be a function expression")
	}
	for _, want := range []string{bindingName, "childList: true", "subtree: true", "document.body"} {
		if !strings.Contains(observerJS, want) {
			t.Errorf("observer script missing %q", want)
		}
	}
	if strings.Contains(observerJS, "characterData") {
		t.Error("observer must not watch character data")
	}
}
