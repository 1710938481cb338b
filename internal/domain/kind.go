package domain

// Kind identifies the type of value flowing between pipeline stages.
type Kind int

const (
	KindNone Kind = iota
	KindRelation
	KindSpace
	KindSlices
)

func (k Kind) String() string {
	switch k {
	case KindRelation:
		return "relation"
	case KindSpace:
		return "relation_space"
	case KindSlices:
		return "slice_relation"
	default:
		return "none"
	}
}

// Value is anything a pipeline stage consumes or produces.
type Value interface {
	Kind() Kind
}

// Kind implements Value.
func (r Relation) Kind() Kind { return KindRelation }

// Kind implements Value.
func (s *RelationSpace) Kind() Kind { return KindSpace }

// Kind implements Value.
func (s *SliceRelation) Kind() Kind { return KindSlices }

// KindOfValue returns v's kind, or KindNone for nil.
func KindOfValue(v Value) Kind {
	if v == nil {
		return KindNone
	}
	return v.Kind()
}
