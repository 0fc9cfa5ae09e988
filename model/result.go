package model

// Status is the per-test outcome in the report.
type Status string

const (
	StatusPassed Status = "passed"
	StatusFailed Status = "failed"
	StatusError  Status = "error"
)

// VerdictStatus is the comparator's classification of one response.
type VerdictStatus string

const (
	VerdictMatch    VerdictStatus = "match"
	VerdictMismatch VerdictStatus = "mismatch"
	VerdictError    VerdictStatus = "error"
)

// FieldDiff records one divergent field, with its dotted path relative to
// the tool-call arguments ("name" for the tool name itself).
type FieldDiff struct {
	Field    string `json:"field"`
	Expected any    `json:"expected"`
	Actual   any    `json:"actual"`
}

// Verdict is the comparator's output for one test case. On a mismatch
// against several expected variants, Diff holds the variant closest to
// the actual call.
type Verdict struct {
	TestID string        `json:"test_id"`
	Status VerdictStatus `json:"status"`
	Detail string        `json:"detail,omitempty"`
	Diff   []FieldDiff   `json:"diff,omitempty"`
}

// InvocationResult is the timed outcome of calling the agent once per
// test, across however many attempts were configured.
type InvocationResult struct {
	TestID   string         `json:"test_id"`
	Payload  map[string]any `json:"payload,omitempty"`
	Duration float64        `json:"duration"`
	Retries  int            `json:"retries,omitempty"`
	HasError bool           `json:"has_error"`
	Error    string         `json:"error,omitempty"`
}

// TestRecord is the fully-resolved row that feeds aggregation and the
// report's test_details section.
type TestRecord struct {
	TestID      string         `json:"test_id"`
	Category    string         `json:"category"`
	Description string         `json:"description,omitempty"`
	Difficulty  string         `json:"difficulty,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Status      Status         `json:"status"`
	Duration    float64        `json:"duration"`
	Input       TestInput      `json:"input"`
	Expected    []ExpectedCall `json:"expected_output"`
	Actual      map[string]any `json:"actual_output,omitempty"`
	Comparison  *Verdict       `json:"comparison,omitempty"`
	Retries     int            `json:"retries,omitempty"`
	HasError    bool           `json:"has_error"`
	Error       string         `json:"error,omitempty"`
}

// NewTestRecord folds a test case, its invocation outcome and (when the
// invocation succeeded) the comparator verdict into one record. An
// invocation failure yields status error with has_error set; a verdict
// the comparator could not reach (malformed payload) also yields status
// error but counts against failed, which has_error distinguishes.
func NewTestRecord(tc TestCase, inv InvocationResult, verdict *Verdict) TestRecord {
	rec := TestRecord{
		TestID:      tc.ID,
		Category:    tc.Category,
		Description: tc.Description,
		Difficulty:  tc.Difficulty,
		Tags:        tc.Tags,
		Duration:    inv.Duration,
		Input:       tc.Input,
		Expected:    tc.Expected,
		Actual:      inv.Payload,
		Comparison:  verdict,
		Retries:     inv.Retries,
		HasError:    inv.HasError,
		Error:       inv.Error,
	}
	switch {
	case inv.HasError:
		rec.Status = StatusError
	case verdict == nil:
		rec.Status = StatusError
		rec.HasError = true
		rec.Error = "no comparison performed"
	case verdict.Status == VerdictMatch:
		rec.Status = StatusPassed
	case verdict.Status == VerdictMismatch:
		rec.Status = StatusFailed
	default:
		rec.Status = StatusError
	}
	return rec
}
