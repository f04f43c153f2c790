package studyforge

import "testing"

func TestTruncateRespectsWordBoundary(t *testing.T) {
	got := truncate("the quick brown fox jumps", 13)
	if got != "the quick" {
		t.Errorf("truncate = %q, want %q", got, "the quick")
	}
}

func TestTruncateNoOp(t *testing.T) {
	if got := truncate("short", 100); got != "short" {
		t.Errorf("truncate = %q, want unchanged", got)
	}
}

func TestBulletTextIndentsByDepth(t *testing.T) {
	bullets := []BulletPoint{
		{Text: "top", Depth: 0, Children: []BulletPoint{
			{Text: "child", Depth: 1},
		}},
	}
	got := bulletText(bullets)
	want := "- top\n  - child\n"
	if got != want {
		t.Errorf("bulletText = %q, want %q", got, want)
	}
}

func TestSampledPagesUnderThresholdReturnsAll(t *testing.T) {
	pages := make([]Page, 10)
	for i := range pages {
		pages[i] = testPage(i+1, "", "")
	}
	got := sampledPages(pages, 20)
	if len(got) != 10 {
		t.Errorf("len(sampledPages) = %d, want 10 (no sampling under threshold)", len(got))
	}
}

func TestSampledPagesOverThresholdSamplesAndOrders(t *testing.T) {
	pages := make([]Page, 50)
	for i := range pages {
		pages[i] = testPage(i+1, "", "")
	}
	got := sampledPages(pages, 20)

	if len(got) == 50 {
		t.Fatal("expected sampling to reduce page count for a 50-page document")
	}
	for i := 1; i < len(got); i++ {
		if got[i].PageNumber <= got[i-1].PageNumber {
			t.Fatalf("sampledPages not in ascending page-number order at index %d: %+v", i, got)
		}
	}
	// First and last 5 pages must always be present.
	first := got[0].PageNumber
	last := got[len(got)-1].PageNumber
	if first != 1 {
		t.Errorf("first sampled page = %d, want 1", first)
	}
	if last != 50 {
		t.Errorf("last sampled page = %d, want 50", last)
	}
}

func TestSampledPagesThresholdIsCallerControlled(t *testing.T) {
	pages := make([]Page, 18)
	for i := range pages {
		pages[i] = testPage(i+1, "", "")
	}
	if got := sampledPages(pages, 20); len(got) != 18 {
		t.Errorf("threshold 20: len(sampledPages) = %d, want 18 (under threshold)", len(got))
	}
	if got := sampledPages(pages, 15); len(got) == 18 {
		t.Error("threshold 15: expected sampling to reduce an 18-page set below 18")
	}
}
