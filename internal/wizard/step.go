package wizard

// Step names a wizard step in chain order.
type Step int

const (
	StepFile Step = iota
	StepSchema
	StepAID
	StepBuckets
	StepResult
	StepExport
)

func (step Step) String() string {
	switch step {
	case StepFile:
		return "file"
	case StepSchema:
		return "schema"
	case StepAID:
		return "aid"
	case StepBuckets:
		return "buckets"
	case StepResult:
		return "result"
	case StepExport:
		return "export"
	default:
		return "unknown"
	}
}
