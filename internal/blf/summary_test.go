package blf

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestSummaryMerge(t *testing.T) {
	a := NewSummary()
	a.countMessage(CanFrame{})
	a.countMessage(Other{Meta: Meta{ObjectType: ObjectTypeAppText}})
	a.Objects = 3
	a.SkippedObjects = 1
	a.recordError(&DecodeError{Level: LevelObject, Err: ErrMalformedBody})

	b := NewSummary()
	b.countMessage(LinFrame{})
	b.countMessage(Other{Meta: Meta{ObjectType: ObjectTypeAppText}})
	b.Objects = 2
	b.Resyncs = 4

	total := NewSummary()
	total.Merge(a)
	total.Merge(b)
	if total.Messages != 4 || total.Objects != 5 || total.SkippedObjects != 1 || total.Resyncs != 4 {
		t.Fatalf("total = %+v", total)
	}
	if total.Count(KindCAN) != 1 || total.Count(KindLIN) != 1 || total.Count(KindOther) != 2 {
		t.Fatalf("ByKind = %v", total.ByKind)
	}
	if total.OtherByType[ObjectTypeAppText] != 2 {
		t.Fatalf("OtherByType = %v", total.OtherByType)
	}
	if len(total.Errors) != 1 {
		t.Fatalf("Errors = %v", total.Errors)
	}
	if a.Count(KindLIN) != 0 {
		t.Fatalf("Merge modified its argument")
	}
}

func TestSummaryErrorCap(t *testing.T) {
	s := NewSummary()
	for i := 0; i < maxRecordedErrors+5; i++ {
		s.recordError(&DecodeError{Level: LevelObject, Offset: int64(i), Err: ErrMalformedBody})
	}
	if len(s.Errors) != maxRecordedErrors || s.ErrorsDropped != 5 {
		t.Fatalf("errors = %d dropped = %d", len(s.Errors), s.ErrorsDropped)
	}
}

func TestSummaryCloneIsDeep(t *testing.T) {
	s := NewSummary()
	s.countMessage(CanFrame{})
	c := s.Clone()
	s.countMessage(CanFrame{})
	if c.Count(KindCAN) != 1 {
		t.Fatalf("clone count = %d, want 1", c.Count(KindCAN))
	}
}

func TestDecodeErrorJSON(t *testing.T) {
	in := &DecodeError{Level: LevelContainer, Container: 144, Offset: -1, ObjectType: ObjectTypeLogContainer, Err: ErrContainerSizeMismatch}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var out DecodeError
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.Level != in.Level || out.Container != 144 || out.Offset != -1 || out.ObjectType != ObjectTypeLogContainer {
		t.Fatalf("round trip = %+v", out)
	}
	if out.Err == nil || out.Err.Error() != ErrContainerSizeMismatch.Error() {
		t.Fatalf("Err = %v", out.Err)
	}
	if !errors.Is(in, ErrContainerSizeMismatch) {
		t.Fatalf("errors.Is failed on %v", in)
	}
}
