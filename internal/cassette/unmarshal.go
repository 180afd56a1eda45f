package cassette

import "fmt"

// FromMap reconstructs a Cassette from its wire-format mapping. Only known
// keys are read; extra keys are ignored. Missing required fields produce an
// error naming the field.
func FromMap(data map[string]any) (*Cassette, error) {
	c := &Cassette{}

	version, ok := data["schema_version"].(string)
	if !ok {
		return nil, fmt.Errorf("cassette: missing schema_version")
	}
	c.SchemaVersion = version

	sessionData, ok := data["session"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("cassette: missing session block")
	}
	c.Session = sessionMetaFromMap(sessionData)

	requestData, ok := data["request"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("cassette: missing request block")
	}
	request, err := requestFromMap(requestData)
	if err != nil {
		return nil, err
	}
	c.Request = request

	responseData, ok := data["response"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("cassette: missing response block")
	}
	response, err := responseFromMap(responseData)
	if err != nil {
		return nil, err
	}
	c.Response = response

	if rawEvents, ok := data["events"].([]any); ok {
		events := make([]DependencyEvent, 0, len(rawEvents))
		for i, raw := range rawEvents {
			eventData, ok := raw.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("cassette: event %d is not an object", i)
			}
			event, err := eventFromMap(eventData)
			if err != nil {
				return nil, fmt.Errorf("cassette: event %d: %w", i, err)
			}
			events = append(events, event)
		}
		c.Events = events
	}

	if policiesData, ok := data["policies"].(map[string]any); ok {
		c.Policies = policiesFromMap(policiesData)
	}
	if statsData, ok := data["stats"].(map[string]any); ok {
		c.Stats = statsFromMap(statsData)
	}
	if errorData, ok := data["error_info"].(map[string]any); ok {
		info := errorInfoFromMap(errorData)
		c.ErrorInfo = &info
	}

	return c, nil
}

func sessionMetaFromMap(data map[string]any) SessionMeta {
	return SessionMeta{
		ID:              asString(data["id"]),
		RecordedAt:      asString(data["recorded_at"]),
		Service:         asString(data["service"]),
		Env:             asString(data["env"]),
		Framework:       asString(data["framework"]),
		TapedeckVersion: asString(data["tapedeck_version"]),
		GoVersion:       asString(data["go_version"]),
		GitSHA:          asString(data["git_sha"]),
	}
}

func requestFromMap(data map[string]any) (RequestSnapshot, error) {
	method := asString(data["method"])
	path := asString(data["path"])
	if method == "" || path == "" {
		return RequestSnapshot{}, fmt.Errorf("request requires method and path")
	}
	r := RequestSnapshot{
		Method:        method,
		Path:          path,
		RouteTemplate: asString(data["route_template"]),
		Headers:       asStringMap(data["headers"]),
		Query:         asStringMap(data["query"]),
		ClientIP:      asString(data["client_ip"]),
		UserAgent:     asString(data["user_agent"]),
	}
	if bodyData, ok := data["body"].(map[string]any); ok {
		r.Body = bodySnapshotFromMap(bodyData)
	}
	return r, nil
}

func responseFromMap(data map[string]any) (ResponseSnapshot, error) {
	status, ok := asInt(data["status"])
	if !ok {
		return ResponseSnapshot{}, fmt.Errorf("response requires status")
	}
	r := ResponseSnapshot{
		Status:     status,
		DurationMS: asFloat(data["duration_ms"]),
		Headers:    asStringMap(data["headers"]),
	}
	if bodyData, ok := data["body"].(map[string]any); ok {
		r.Body = bodySnapshotFromMap(bodyData)
	}
	return r, nil
}

func bodySnapshotFromMap(data map[string]any) *BodySnapshot {
	b := &BodySnapshot{
		Captured: asBool(data["_captured"]),
		Encoding: asString(data["encoding"]),
		Data:     data["data"],
		Hash:     asString(data["hash"]),
	}
	b.Truncated = asBool(data["truncated"])
	if size, ok := asInt(data["size_bytes"]); ok {
		b.SizeBytes = &size
	}
	return b
}

func eventFromMap(data map[string]any) (DependencyEvent, error) {
	eid, ok := asInt(data["eid"])
	if !ok {
		return DependencyEvent{}, fmt.Errorf("missing eid")
	}
	eventType := EventType(asString(data["type"]))
	if !eventType.Valid() {
		return DependencyEvent{}, fmt.Errorf("unknown event type %q", asString(data["type"]))
	}
	signatureData, ok := data["signature"].(map[string]any)
	if !ok {
		return DependencyEvent{}, fmt.Errorf("missing signature")
	}
	resultData, _ := data["result"].(map[string]any)

	return DependencyEvent{
		EID:           eid,
		Type:          eventType,
		StartOffsetMS: asFloat(data["start_offset_ms"]),
		DurationMS:    asFloat(data["duration_ms"]),
		Signature:     signatureFromMap(signatureData),
		Result:        resultFromMap(resultData),
	}, nil
}

func signatureFromMap(data map[string]any) EventSignature {
	s := EventSignature{
		Lib:         asString(data["lib"]),
		Method:      asString(data["method"]),
		URL:         asString(data["url"]),
		HeadersHash: asString(data["headers_hash"]),
		BodyHash:    asString(data["body_hash"]),
	}
	if query, ok := data["query"].(map[string]any); ok {
		s.Query = query
	}
	return s
}

func resultFromMap(data map[string]any) EventResult {
	r := EventResult{
		Headers:   asStringMap(data["headers"]),
		Error:     asString(data["error"]),
		ErrorType: asString(data["error_type"]),
	}
	if status, ok := asInt(data["status"]); ok {
		r.Status = &status
	}
	if bodyData, ok := data["body"].(map[string]any); ok {
		r.Body = bodySnapshotFromMap(bodyData)
	}
	return r
}

func policiesFromMap(data map[string]any) AppliedPolicies {
	p := AppliedPolicies{}
	if redaction, ok := data["redaction"].(map[string]any); ok {
		p.RedactionMode = asString(redaction["mode"])
		if rules, ok := redaction["rules"].([]any); ok {
			for _, rule := range rules {
				p.RedactionRules = append(p.RedactionRules, asString(rule))
			}
		}
	}
	if capture, ok := data["capture"].(map[string]any); ok {
		p.MaxBodyKB, _ = asInt(capture["max_body_kb"])
		p.StoreRequestBody = asString(capture["store_request_body"])
		p.StoreResponseBody = asString(capture["store_response_body"])
	}
	if sampling, ok := data["sampling"].(map[string]any); ok {
		p.SampleRate = asFloat(sampling["rate"])
		p.ErrorsOnly = asBool(sampling["errors_only"])
	}
	return p
}

func statsFromMap(data map[string]any) CaptureStats {
	s := CaptureStats{
		EventCounts: map[string]int{},
	}
	if counts, ok := data["event_counts"].(map[string]any); ok {
		for k, v := range counts {
			if n, ok := asInt(v); ok {
				s.EventCounts[k] = n
			}
		}
	}
	s.TotalEvents, _ = asInt(data["total_events"])
	s.TotalDurationMS = asFloat(data["total_duration_ms"])
	return s
}

func errorInfoFromMap(data map[string]any) ErrorInfo {
	return ErrorInfo{
		Type:      asString(data["type"]),
		Message:   asString(data["message"]),
		Traceback: asString(data["traceback"]),
	}
}

// JSON numbers decode as float64; stored integers come back through asInt.

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}

func asStringMap(v any) map[string]string {
	raw, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, val := range raw {
		out[k] = asString(val)
	}
	return out
}
