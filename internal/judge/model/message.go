package model

// JudgeRequest is the payload for a judge run. The HTTP API binds it from
// the request body and the Kafka consumer decodes it from message bodies.
type JudgeRequest struct {
	RunID string `json:"run_id"`
	// Subject names a configured program. Command and Args are only
	// honoured by runners that accept raw commands; Args wins over Command.
	Subject string   `json:"subject"`
	Command string   `json:"command"`
	Args    []string `json:"args"`
	// Expected is the reference output. SuiteKey loads a suite instead.
	Expected  string   `json:"expected"`
	SuiteKey  string   `json:"suite_key"`
	Stdin     string   `json:"stdin"`
	Env       []string `json:"env"`
	File      *string  `json:"file"`
	TimeoutMs int64    `json:"timeout_ms"`
	Repeat    int      `json:"repeat"`
	Unordered []string `json:"unordered"`
}

// HasSuite reports whether the request references a stored suite.
func (r JudgeRequest) HasSuite() bool {
	return r.SuiteKey != ""
}
