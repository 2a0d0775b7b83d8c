package splittable

import (
	"errors"
	"testing"
)

// --- OffsetRangeTracker Tests ---

func TestOffsetRangeTracker_TryClaim(t *testing.T) {
	tr := NewOffsetRangeTracker(OffsetRange{From: 10, To: 13})

	for _, pos := range []int64{10, 11, 12} {
		if !tr.TryClaim(pos) {
			t.Fatalf("expected claim %d to succeed", pos)
		}
	}

	if tr.TryClaim(int64(13)) {
		t.Error("claim at range end must fail")
	}

	if err := tr.CheckDone(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	last, ok := tr.LastClaimed()
	if !ok || last != 12 {
		t.Errorf("expected last claimed 12, got %d (%v)", last, ok)
	}
}

func TestOffsetRangeTracker_ClaimErrors(t *testing.T) {
	tests := []struct {
		name   string
		claims []any
		want   error
	}{
		{name: "before start", claims: []any{int64(5)}, want: ErrClaimBeforeStart},
		{name: "non monotonic", claims: []any{int64(11), int64(11)}, want: ErrNonMonotonicClaim},
		{name: "bad type", claims: []any{"11"}, want: ErrBadPosition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewOffsetRangeTracker(OffsetRange{From: 10, To: 20})
			for _, c := range tt.claims {
				tr.TryClaim(c)
			}

			if err := tr.CheckDone(); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if tr.TryClaim(int64(19)) {
				t.Error("tracker in error state must refuse claims")
			}
		})
	}
}

func TestOffsetRangeTracker_Checkpoint(t *testing.T) {
	tr := NewOffsetRangeTracker(OffsetRange{From: 0, To: 100})
	for i := 0; i < 40; i++ {
		tr.TryClaim(i)
	}

	residual, err := tr.Checkpoint()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if residual != (OffsetRange{From: 40, To: 100}) {
		t.Errorf("expected residual [40, 100), got %v", residual)
	}
	if tr.Range() != (OffsetRange{From: 0, To: 40}) {
		t.Errorf("expected current [0, 40), got %v", tr.Range())
	}

	// После checkpoint дальнейшие позиции недоступны
	if tr.TryClaim(40) {
		t.Error("claim after checkpoint must fail")
	}
	if err := tr.CheckDone(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestOffsetRangeTracker_CheckpointBeforeClaim(t *testing.T) {
	tr := NewOffsetRangeTracker(OffsetRange{From: 5, To: 8})

	residual, err := tr.Checkpoint()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if residual != (OffsetRange{From: 5, To: 8}) {
		t.Errorf("expected whole range as residual, got %v", residual)
	}
	if !tr.Range().IsEmpty() {
		t.Errorf("expected empty current range, got %v", tr.Range())
	}
}

func TestOffsetRangeTracker_CheckpointWhenFinished(t *testing.T) {
	tr := NewOffsetRangeTracker(OffsetRange{From: 0, To: 3})
	for i := 0; i < 4; i++ {
		tr.TryClaim(i)
	}

	residual, err := tr.Checkpoint()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if residual != nil {
		t.Errorf("expected no residual, got %v", residual)
	}
}

func TestOffsetRangeTracker_CheckDoneUnfinished(t *testing.T) {
	tr := NewOffsetRangeTracker(OffsetRange{From: 0, To: 10})
	tr.TryClaim(int64(3))

	if err := tr.CheckDone(); !errors.Is(err, ErrUnfinishedRange) {
		t.Errorf("expected ErrUnfinishedRange, got %v", err)
	}
}

func TestOffsetRangeTracker_Progress(t *testing.T) {
	tr := NewOffsetRangeTracker(OffsetRange{From: 0, To: 10})

	done, remaining := tr.Progress()
	if done != 0 || remaining != 10 {
		t.Errorf("expected 0/10, got %v/%v", done, remaining)
	}

	tr.TryClaim(3)
	done, remaining = tr.Progress()
	if done != 3 || remaining != 7 {
		t.Errorf("expected 3/7, got %v/%v", done, remaining)
	}

	tr.TryClaim(15)
	done, remaining = tr.Progress()
	if done != 10 || remaining != 0 {
		t.Errorf("expected 10/0, got %v/%v", done, remaining)
	}
}

func TestOffsetRange_Split(t *testing.T) {
	parts := OffsetRange{From: 0, To: 10}.Split(4)

	want := []OffsetRange{{0, 4}, {4, 8}, {8, 10}}
	if len(parts) != len(want) {
		t.Fatalf("expected %d parts, got %v", len(want), parts)
	}
	for i := range want {
		if parts[i] != want[i] {
			t.Errorf("part %d: expected %v, got %v", i, want[i], parts[i])
		}
	}

	if got := (OffsetRange{From: 3, To: 3}).Split(2); len(got) != 1 {
		t.Errorf("empty range should not be split, got %v", got)
	}
}

// --- Coder Tests ---

func TestJSONCoder(t *testing.T) {
	coder := JSONCoder[OffsetRange]{}

	data, err := coder.Encode(OffsetRange{From: 7, To: 9})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != `{"from":7,"to":9}` {
		t.Errorf("unexpected encoding %s", data)
	}

	r, err := coder.Decode(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r != (OffsetRange{From: 7, To: 9}) {
		t.Errorf("unexpected decode %v", r)
	}

	if _, err := coder.Encode("nope"); !errors.Is(err, ErrBadRestriction) {
		t.Errorf("expected ErrBadRestriction, got %v", err)
	}
}
