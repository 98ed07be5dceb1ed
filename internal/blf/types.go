package blf

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ObjectType is the numeric type id carried in every object header.
type ObjectType uint32

const (
	ObjectTypeCANMessage     ObjectType = 1
	ObjectTypeCANError       ObjectType = 2
	ObjectTypeCANOverload    ObjectType = 3
	ObjectTypeCANStatistic   ObjectType = 4
	ObjectTypeAppTrigger     ObjectType = 5
	ObjectTypeEnvInteger     ObjectType = 6
	ObjectTypeEnvDouble      ObjectType = 7
	ObjectTypeEnvString      ObjectType = 8
	ObjectTypeEnvData        ObjectType = 9
	ObjectTypeLogContainer   ObjectType = 10
	ObjectTypeLINMessage     ObjectType = 11
	ObjectTypeLINCRCError    ObjectType = 12
	ObjectTypeLINMessage2    ObjectType = 57
	ObjectTypeAppText        ObjectType = 65
	ObjectTypeCANErrorExt    ObjectType = 73
	ObjectTypeCANMessage2    ObjectType = 86
	ObjectTypeGlobalMarker   ObjectType = 96
	ObjectTypeCANFDMessage   ObjectType = 100
	ObjectTypeCANFDMessage64 ObjectType = 101
	ObjectTypeCANFDError64   ObjectType = 104
)

var objectTypeNames = map[ObjectType]string{
	ObjectTypeCANMessage:     "CAN_MESSAGE",
	ObjectTypeCANError:       "CAN_ERROR",
	ObjectTypeCANOverload:    "CAN_OVERLOAD",
	ObjectTypeCANStatistic:   "CAN_STATISTIC",
	ObjectTypeAppTrigger:     "APP_TRIGGER",
	ObjectTypeEnvInteger:     "ENV_INTEGER",
	ObjectTypeEnvDouble:      "ENV_DOUBLE",
	ObjectTypeEnvString:      "ENV_STRING",
	ObjectTypeEnvData:        "ENV_DATA",
	ObjectTypeLogContainer:   "LOG_CONTAINER",
	ObjectTypeLINMessage:     "LIN_MESSAGE",
	ObjectTypeLINCRCError:    "LIN_CRC_ERROR",
	ObjectTypeLINMessage2:    "LIN_MESSAGE2",
	ObjectTypeAppText:        "APP_TEXT",
	ObjectTypeCANErrorExt:    "CAN_ERROR_EXT",
	ObjectTypeCANMessage2:    "CAN_MESSAGE2",
	ObjectTypeGlobalMarker:   "GLOBAL_MARKER",
	ObjectTypeCANFDMessage:   "CAN_FD_MESSAGE",
	ObjectTypeCANFDMessage64: "CAN_FD_MESSAGE_64",
	ObjectTypeCANFDError64:   "CAN_FD_ERROR_64",
}

func (t ObjectType) String() string {
	if name, ok := objectTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TYPE_%d", uint32(t))
}

// Annotation records how an object header deviated from the declared layout.
type Annotation uint8

const (
	// AnnotationCompactHeader marks an object that carried only the base
	// header, so its timestamp is zero.
	AnnotationCompactHeader Annotation = 1 << iota
	// AnnotationMislabeledHeader marks an object that declared a 16-byte
	// header but was followed by a full extended block.
	AnnotationMislabeledHeader
	// AnnotationUnsupportedHeaderVersion marks an object whose header version
	// is not 1; only the base fields were decoded.
	AnnotationUnsupportedHeaderVersion
)

var annotationNames = []struct {
	bit  Annotation
	name string
}{
	{AnnotationCompactHeader, "compact-header"},
	{AnnotationMislabeledHeader, "mislabeled-header"},
	{AnnotationUnsupportedHeaderVersion, "unsupported-header-version"},
}

func (a Annotation) Has(bit Annotation) bool {
	return a&bit != 0
}

// Names lists the set annotations in a stable order.
func (a Annotation) Names() []string {
	var out []string
	for _, n := range annotationNames {
		if a.Has(n.bit) {
			out = append(out, n.name)
		}
	}
	return out
}

func (a Annotation) String() string {
	if a == 0 {
		return "none"
	}
	return strings.Join(a.Names(), ",")
}

func (a Annotation) MarshalJSON() ([]byte, error) {
	names := a.Names()
	if names == nil {
		names = []string{}
	}
	return json.Marshal(names)
}

func (a *Annotation) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	*a = 0
	for _, name := range names {
		found := false
		for _, n := range annotationNames {
			if n.name == name {
				*a |= n.bit
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("unknown annotation %q", name)
		}
	}
	return nil
}
