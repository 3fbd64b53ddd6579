package genflow

import "context"

// sendWithCompliance sends call and, when structured output was requested, re-sends
// the identical request while the response comes back without any content parts.
// The conversation is never touched here; every attempt posts the same body.
func (c *Client) sendWithCompliance(ctx context.Context, call Call, r resolvedParams, schemaRequested bool) (*ApiResponse, int, error) {
	budget := 1
	if schemaRequested {
		budget = r.complianceRetries
	}

	var last *ApiResponse
	// empty attempts are billed too
	usage := Metrics{}
	for attempt := 1; attempt <= budget; attempt++ {
		resp, err := c.send(ctx, call, r.maxRetries)
		if err != nil {
			return nil, attempt, err
		}
		usage.add(resp.Usage)
		if !schemaRequested || resp.hasContent() {
			resp.Usage = usage
			return resp, attempt, nil
		}
		last = resp
		c.logger.WarnContext(ctx, "compliance retry",
			"attempt", attempt,
			"budget", budget,
			"finish_reason", finishReasonOf(resp),
		)
	}
	return nil, budget, SchemaComplianceErr{Attempts: budget, Cause: emptyResponseErr(last, r.maxOutputTokens)}
}

func finishReasonOf(resp *ApiResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	return resp.Candidates[0].RawFinishReason
}
