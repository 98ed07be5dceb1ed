package blf

import "maps"

// maxRecordedErrors caps Summary.Errors; further errors are only counted.
const maxRecordedErrors = 256

// Summary accumulates counters over one decoding pass. Objects always equals
// Messages plus SkippedObjects.
type Summary struct {
	Containers        int64 `json:"containers"`
	SkippedContainers int64 `json:"skippedContainers"`
	Objects           int64 `json:"objects"`
	Messages          int64 `json:"messages"`
	SkippedObjects    int64 `json:"skippedObjects"`

	ByKind      map[Kind]int64       `json:"byKind"`
	OtherByType map[ObjectType]int64 `json:"otherByType,omitempty"`

	CompactHeaders            int64 `json:"compactHeaders"`
	MislabeledHeaders         int64 `json:"mislabeledHeaders"`
	UnsupportedHeaderVersions int64 `json:"unsupportedHeaderVersions"`
	Resyncs                   int64 `json:"resyncs"`
	SkippedTopLevel           int64 `json:"skippedTopLevel"`

	Errors        []*DecodeError `json:"errors,omitempty"`
	ErrorsDropped int64          `json:"errorsDropped,omitempty"`
}

// NewSummary returns a summary with a zero count for every message kind.
func NewSummary() Summary {
	s := Summary{ByKind: make(map[Kind]int64, len(Kinds))}
	for _, k := range Kinds {
		s.ByKind[k] = 0
	}
	return s
}

func (s Summary) Count(k Kind) int64 {
	return s.ByKind[k]
}

func (s *Summary) countMessage(msg Message) {
	if s.ByKind == nil {
		s.ByKind = NewSummary().ByKind
	}
	s.Messages++
	s.ByKind[msg.Kind()]++
	if msg.Kind() == KindOther {
		if s.OtherByType == nil {
			s.OtherByType = make(map[ObjectType]int64)
		}
		s.OtherByType[msg.Info().ObjectType]++
	}
}

func (s *Summary) countHeader(hdr ObjectHeader) {
	if hdr.Annotations.Has(AnnotationCompactHeader) {
		s.CompactHeaders++
	}
	if hdr.Annotations.Has(AnnotationMislabeledHeader) {
		s.MislabeledHeaders++
	}
	if hdr.Annotations.Has(AnnotationUnsupportedHeaderVersion) {
		s.UnsupportedHeaderVersions++
	}
}

func (s *Summary) recordError(e *DecodeError) {
	if len(s.Errors) >= maxRecordedErrors {
		s.ErrorsDropped++
		return
	}
	s.Errors = append(s.Errors, e)
}

// Clone returns a deep copy of s.
func (s Summary) Clone() Summary {
	out := s
	out.ByKind = maps.Clone(s.ByKind)
	out.OtherByType = maps.Clone(s.OtherByType)
	if s.Errors != nil {
		out.Errors = append([]*DecodeError(nil), s.Errors...)
	}
	return out
}

// Merge adds the counters of other to s. Recorded errors are appended up to
// the usual cap.
func (s *Summary) Merge(other Summary) {
	*s = mergeInto(*s, other)
}

func mergeInto(dst, src Summary) Summary {
	dst = dst.Clone()
	if dst.ByKind == nil {
		dst.ByKind = NewSummary().ByKind
	}
	dst.Containers += src.Containers
	dst.SkippedContainers += src.SkippedContainers
	dst.Objects += src.Objects
	dst.Messages += src.Messages
	dst.SkippedObjects += src.SkippedObjects
	for k, v := range src.ByKind {
		dst.ByKind[k] += v
	}
	for t, v := range src.OtherByType {
		if dst.OtherByType == nil {
			dst.OtherByType = make(map[ObjectType]int64)
		}
		dst.OtherByType[t] += v
	}
	dst.CompactHeaders += src.CompactHeaders
	dst.MislabeledHeaders += src.MislabeledHeaders
	dst.UnsupportedHeaderVersions += src.UnsupportedHeaderVersions
	dst.Resyncs += src.Resyncs
	dst.SkippedTopLevel += src.SkippedTopLevel
	for _, e := range src.Errors {
		dst.recordError(e)
	}
	dst.ErrorsDropped += src.ErrorsDropped
	return dst
}
