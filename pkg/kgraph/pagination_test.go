package kgraph

import "testing"

func intp(i int) *int { return &i }

func TestNormalizePageRequest_OffsetLimit(t *testing.T) {
	t.Parallel()

	offset, limit, pageStyle, err := NormalizePageRequest(PageRequest{Offset: intp(5), Limit: intp(10)}, Limits{DefaultLimit: 20, MaxLimit: 50})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if offset != 5 || limit != 10 || pageStyle {
		t.Errorf("got offset=%d limit=%d pageStyle=%v", offset, limit, pageStyle)
	}
}

func TestNormalizePageRequest_LimitClampedToMax(t *testing.T) {
	t.Parallel()

	_, limit, _, err := NormalizePageRequest(PageRequest{Limit: intp(1000)}, Limits{DefaultLimit: 20, MaxLimit: 50})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if limit != 50 {
		t.Errorf("limit = %d, want 50 (clamped)", limit)
	}
}

func TestNormalizePageRequest_PageStyle(t *testing.T) {
	t.Parallel()

	offset, limit, pageStyle, err := NormalizePageRequest(PageRequest{Page: intp(3), PageSize: intp(10)}, Limits{DefaultLimit: 20, MaxLimit: 50})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !pageStyle {
		t.Error("expected pageStyle=true")
	}
	if offset != 20 || limit != 10 {
		t.Errorf("got offset=%d limit=%d, want offset=20 limit=10", offset, limit)
	}
}

func TestNormalizePageRequest_Defaults(t *testing.T) {
	t.Parallel()

	offset, limit, pageStyle, err := NormalizePageRequest(PageRequest{}, Limits{DefaultLimit: 20, MaxLimit: 50})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if offset != 0 || limit != 20 || pageStyle {
		t.Errorf("got offset=%d limit=%d pageStyle=%v", offset, limit, pageStyle)
	}
}

func TestNormalizePageRequest_InvalidPage(t *testing.T) {
	t.Parallel()

	_, _, _, err := NormalizePageRequest(PageRequest{Page: intp(0)}, Limits{DefaultLimit: 20})
	if !IsKind(err, KindInvalidArgument) {
		t.Errorf("expected KindInvalidArgument, got %v", err)
	}
}

func TestNormalizePageRequest_NegativeOffset(t *testing.T) {
	t.Parallel()

	_, _, _, err := NormalizePageRequest(PageRequest{Offset: intp(-1)}, Limits{DefaultLimit: 20})
	if !IsKind(err, KindInvalidArgument) {
		t.Errorf("expected KindInvalidArgument, got %v", err)
	}
}

func TestBuildPage_HasMoreByTotal(t *testing.T) {
	t.Parallel()

	total := 100
	p := BuildPage(10, 20, 20, &total, false, 0)
	if !p.HasMore {
		t.Error("expected HasMore=true (10+20 < 100)")
	}

	total2 := 25
	p2 := BuildPage(10, 20, 15, &total2, false, 0)
	if p2.HasMore {
		t.Error("expected HasMore=false (10+15 == 25)")
	}
}

func TestBuildPage_PageStyleMetadata(t *testing.T) {
	t.Parallel()

	total := 45
	p := BuildPage(20, 20, 20, &total, true, 0)
	if p.CurrentPage == nil || *p.CurrentPage != 2 {
		t.Errorf("CurrentPage = %v, want 2", p.CurrentPage)
	}
	if p.TotalPages == nil || *p.TotalPages != 3 {
		t.Errorf("TotalPages = %v, want 3", p.TotalPages)
	}
}
