package genflow

import "fmt"

// newUserTurn assembles the opening user turn of a call: the prompt text followed
// by every resolved attachment. Attachments without a MIME type or bytes are
// rejected here, before anything is sent.
func newUserTurn(prompt string, media []Media) (Turn, error) {
	parts, err := resolveMedia(media)
	if err != nil {
		return Turn{}, err
	}
	turn := Turn{Role: RoleUser}
	if prompt != "" || len(parts) == 0 {
		turn.Parts = append(turn.Parts, TextPart(prompt))
	}
	turn.Parts = append(turn.Parts, parts...)
	return turn, nil
}

// buildGenerateRequest translates the merged parameters and the current
// conversation into the vendor-neutral request. It performs no I/O.
func buildGenerateRequest(d Dialect, r resolvedParams, tools toolSet, conv Conversation) (*GenerateRequest, error) {
	keywords := r.schemaKeywords
	if keywords == nil {
		keywords = d.SchemaKeywords()
	}

	req := &GenerateRequest{
		Model:             r.model,
		SystemInstruction: r.systemInstruction,
		Conversation:      conv,
		MaxOutputTokens:   r.maxOutputTokens,
		Temperature:       r.temperature,
		TopP:              r.topP,
		TopK:              r.topK,
		CandidateCount:    r.candidateCount,
		StopSequences:     r.stopSequences,
		SafetySettings:    r.safetySettings,
	}

	schema, err := schemaToMap(r.responseSchema, keywords)
	if err != nil {
		return nil, ConfigInvalidErr{Field: "ResponseSchema", Reason: err.Error()}
	}
	req.ResponseSchema = schema

	for _, decl := range tools.declarations() {
		params, err := schemaToMap(decl.Parameters, keywords)
		if err != nil {
			return nil, ConfigInvalidErr{Field: fmt.Sprintf("Tools[%s].Parameters", decl.Name), Reason: err.Error()}
		}
		req.Tools = append(req.Tools, FunctionDescriptor{
			Name:        decl.Name,
			Description: decl.Description,
			Parameters:  params,
		})
	}
	return req, nil
}
