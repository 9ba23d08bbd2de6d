package stage

import (
	"encoding/json"
	"fmt"
	"strings"

	"vidintel/internal/services"
)

// DecodeInput unmarshals a job's input JSON into target. An empty input or
// malformed JSON yields services.ErrValidation so handlers fail the job with
// a readable message.
func DecodeInput(stageName string, raw json.RawMessage, target any) error {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return services.Wrap(services.ErrValidation, stageName, "decode input", "Job input missing", nil)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return services.Wrap(services.ErrValidation, stageName, "decode input",
			fmt.Sprintf("Job input is not valid JSON (%d bytes)", len(raw)), err)
	}
	return nil
}

// FailureMessage is the error text persisted on a failed job.
func FailureMessage(err error) string {
	if err == nil {
		return "job failed"
	}
	if msg := strings.TrimSpace(services.Details(err).Message); msg != "" {
		return msg
	}
	return strings.TrimSpace(err.Error())
}
