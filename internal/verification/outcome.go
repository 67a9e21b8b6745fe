package verification

type Outcome int

const (
	Consumed Outcome = iota + 1
	Expired
	Mismatch
	NoneOutstanding
)

func (o Outcome) String() string {
	switch o {
	case Consumed:
		return "consumed"
	case Expired:
		return "expired"
	case Mismatch:
		return "mismatch"
	case NoneOutstanding:
		return "none_outstanding"
	default:
		return "unknown"
	}
}
