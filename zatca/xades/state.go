package xades

// State is a step of one signing operation.
type State int

const (
	Received State = iota
	KeyExtracted
	Canonicalized
	SignatureComputed
	Serialized
	Failed
)

func (s State) String() string {
	switch s {
	case Received:
		return "Received"
	case KeyExtracted:
		return "KeyExtracted"
	case Canonicalized:
		return "Canonicalized"
	case SignatureComputed:
		return "SignatureComputed"
	case Serialized:
		return "Serialized"
	case Failed:
		return "Failed"
	}
	return "Unknown"
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Serialized || s == Failed
}
