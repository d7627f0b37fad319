package domain

import (
	"errors"
	"testing"
)

func TestPageRequest_Normalize(t *testing.T) {
	tests := []struct {
		name     string
		in       PageRequest
		wantSize int
		wantErr  bool
	}{
		{name: "default size", in: PageRequest{}, wantSize: DefaultPageSize},
		{name: "clamped size", in: PageRequest{Size: 5000}, wantSize: MaxPageSize},
		{name: "kept size", in: PageRequest{Size: 10}, wantSize: 10},
		{name: "negative page", in: PageRequest{Page: -1}, wantErr: true},
		{name: "negative size", in: PageRequest{Size: -1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.in.Normalize()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPage) {
					t.Fatalf("expected ErrInvalidPage, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Size != tt.wantSize {
				t.Errorf("expected size %d, got %d", tt.wantSize, got.Size)
			}
		})
	}
}

func TestNewOffsetPage_HasNext(t *testing.T) {
	req := PageRequest{Page: 0, Size: 2}

	full := NewOffsetPage([]int{1, 2}, req, 5)
	if !full.HasNext {
		t.Error("expected next page when more elements remain")
	}
	if full.TotalPages() != 3 {
		t.Errorf("expected 3 pages, got %d", full.TotalPages())
	}

	last := NewOffsetPage([]int{5}, PageRequest{Page: 2, Size: 2}, 5)
	if last.HasNext {
		t.Error("expected no next page on partial last page")
	}

	exact := NewOffsetPage([]int{3, 4}, PageRequest{Page: 1, Size: 2}, 4)
	if exact.HasNext {
		t.Error("expected no next page when the full page ends the result set")
	}
}

func TestNewCursorPage(t *testing.T) {
	page := NewCursorPage([]string{"a", "b"}, PageRequest{Size: 2, Cursor: "x"}, "b")
	if !page.HasNext || page.NextCursor != "b" {
		t.Errorf("expected next cursor b, got %+v", page)
	}
	if page.TotalElements != -1 || page.TotalPages() != 0 {
		t.Errorf("expected unknown total, got %d", page.TotalElements)
	}
}

func TestMapPage(t *testing.T) {
	in := NewOffsetPage([]int{1, 2}, PageRequest{Size: 2}, 2)
	out := MapPage(in, func(v int) string { return string(rune('a' + v)) })
	if out.Content[0] != "b" || out.TotalElements != 2 {
		t.Errorf("unexpected mapped page: %+v", out)
	}
}
