package genflow

import "context"

// run drives one generation call to completion. Each round sends the conversation,
// and when the model asks for one of the declared tools, executes it and appends
// the [model invocation, tool result] pair before the next round. The loop ends
// with a final answer, a fatal error, or when maxToolRounds tool rounds have run.
//
// conv is owned by this call and grows as rounds complete.
func (c *Client) run(ctx context.Context, conv Conversation, r resolvedParams) (*Result, error) {
	tools, err := newToolSet(r.tools)
	if err != nil {
		return nil, err
	}
	schemaRequested := r.responseSchema != nil
	usage := Metrics{}
	rounds := 0

	for {
		// Check for context cancellation before each request
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req, err := buildGenerateRequest(c.dialect, r, tools, conv)
		if err != nil {
			return nil, err
		}
		call, err := c.dialect.Generate(c.baseURL, req)
		if err != nil {
			return nil, err
		}

		resp, requests, err := c.sendWithCompliance(ctx, call, r, schemaRequested)
		if err != nil {
			return nil, err
		}
		usage.add(resp.Usage)
		usage.add(Metrics{UsageMetricRequests: requests})

		// Invocations are only honored when the call declared tools; otherwise the
		// invocation itself is the answer.
		var tc *ToolCall
		if !tools.empty() && len(resp.Candidates) > 0 {
			tc = resp.Candidates[0].Content.FirstToolCall()
		}
		if tc == nil {
			res, err := extract(resp, r.maxOutputTokens, schemaRequested)
			if err != nil {
				return nil, err
			}
			res.Conversation = append(conv, resp.Candidates[0].Content)
			res.Usage = usage
			res.Rounds = rounds
			return res, nil
		}

		decl, ok := tools.lookup(tc.Name)
		if !ok {
			return nil, UnknownToolErr(tc.Name)
		}
		args, err := toolArgs(tc)
		if err != nil {
			return nil, err
		}

		c.logger.InfoContext(ctx, "tool round", "round", rounds+1, "tool", tc.Name)

		// The invocation is recorded before the handler runs so the pair is
		// complete whatever the handler does
		conv = append(conv, invocationTurn(resp.Candidates[0].Content, tc))
		result, callErr := invokeTool(ctx, decl.Handler, args)
		if callErr != nil {
			c.logger.WarnContext(ctx, "tool handler failed", "tool", tc.Name, "error", callErr)
		}
		payload, isErr := toolResultPayload(result, callErr)
		conv = append(conv, Turn{
			Role: RoleTool,
			Parts: []Part{{ToolResult: &ToolResult{
				ID:       tc.ID,
				Name:     tc.Name,
				Response: payload,
				IsError:  isErr,
			}}},
		})

		rounds++
		if rounds >= r.maxToolRounds {
			return nil, ToolCallLimitErr{Rounds: rounds}
		}
	}
}

// invocationTurn is the model turn recorded for a tool round: the candidate's text
// and reasoning parts plus the single invocation being executed.
func invocationTurn(content Turn, tc *ToolCall) Turn {
	turn := Turn{Role: RoleModel}
	for _, p := range content.Parts {
		if p.ToolCall != nil && p.ToolCall != tc {
			continue
		}
		if p.ToolCall == tc {
			p.ToolCall = &ToolCall{ID: tc.ID, Name: tc.Name, Args: tc.Args, RawArgs: tc.RawArgs}
		}
		turn.Parts = append(turn.Parts, p)
	}
	return turn
}
