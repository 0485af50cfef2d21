package contenthash

import (
	"strings"
	"testing"
)

func TestNormalizeStripsMarkup(t *testing.T) {
	html := `<p>Hello,&nbsp;<b>world</b>!</p>  <p>Second   paragraph.</p>`
	got := Normalize(html)
	if strings.Contains(got, "<") {
		t.Fatalf("markup survived normalization: %q", got)
	}
	if !strings.Contains(got, "Hello,") || !strings.Contains(got, "Second paragraph.") {
		t.Fatalf("text lost during normalization: %q", got)
	}
}

func TestNormalizeCollapsesWhitespace(t *testing.T) {
	if got := Normalize("a\n\n  b\t c "); got != "a b c" {
		t.Fatalf("got %q", got)
	}
}

func TestSumBodyStableAcrossMarkupVariants(t *testing.T) {
	a := SumBody("<div>same   words here</div>")
	b := SumBody("same words\nhere")
	if a != b {
		t.Fatalf("equivalent content hashed differently: %s vs %s", a, b)
	}
	if len(a) != 16 {
		t.Fatalf("expected 16 hex chars, got %q", a)
	}
}

func TestSumBodyDiffersForDifferentContent(t *testing.T) {
	if SumBody("alpha") == SumBody("beta") {
		t.Fatal("distinct content collided")
	}
}

func TestSumKeyFixedWidth(t *testing.T) {
	for _, id := range []string{"https://example.com/feed.xml", "guid-1", ""} {
		if got := SumKey(id); len(got) != 16 {
			t.Fatalf("SumKey(%q) = %q, want 16 hex chars", id, got)
		}
	}
	if SumKey(" padded ") != SumKey("padded") {
		t.Fatal("identifier whitespace should not change the key")
	}
}
