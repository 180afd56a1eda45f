package cassette

// Explicit per-entity converters to the wire format. Optional fields are
// omitted from the map entirely, never written as null, with one exception:
// session.git_sha is always present (null when unknown) so provenance
// consumers can distinguish "no VCS info" from an older schema.

// ToMap converts the cassette into its wire-format mapping.
func (c *Cassette) ToMap() map[string]any {
	m := map[string]any{
		"schema_version": c.SchemaVersion,
		"session":        sessionMetaToMap(c.Session),
		"request":        requestToMap(c.Request),
		"response":       responseToMap(c.Response),
		"events":         eventsToList(c.Events),
		"policies":       policiesToMap(c.Policies),
		"stats":          statsToMap(c.Stats),
	}
	if c.ErrorInfo != nil {
		m["error_info"] = errorInfoToMap(*c.ErrorInfo)
	}
	return m
}

func sessionMetaToMap(s SessionMeta) map[string]any {
	m := map[string]any{
		"id":               s.ID,
		"recorded_at":      s.RecordedAt,
		"service":          s.Service,
		"env":              s.Env,
		"framework":        s.Framework,
		"tapedeck_version": s.TapedeckVersion,
		"go_version":       s.GoVersion,
	}
	if s.GitSHA != "" {
		m["git_sha"] = s.GitSHA
	} else {
		m["git_sha"] = nil
	}
	return m
}

func requestToMap(r RequestSnapshot) map[string]any {
	m := map[string]any{
		"method": r.Method,
		"path":   r.Path,
	}
	if r.RouteTemplate != "" {
		m["route_template"] = r.RouteTemplate
	}
	if len(r.Headers) > 0 {
		m["headers"] = stringMapToAny(r.Headers)
	}
	if len(r.Query) > 0 {
		m["query"] = stringMapToAny(r.Query)
	}
	if r.Body != nil {
		m["body"] = bodySnapshotToMap(r.Body)
	}
	if r.ClientIP != "" {
		m["client_ip"] = r.ClientIP
	}
	if r.UserAgent != "" {
		m["user_agent"] = r.UserAgent
	}
	return m
}

func responseToMap(r ResponseSnapshot) map[string]any {
	m := map[string]any{
		"status":      r.Status,
		"duration_ms": r.DurationMS,
	}
	if len(r.Headers) > 0 {
		m["headers"] = stringMapToAny(r.Headers)
	}
	if r.Body != nil {
		m["body"] = bodySnapshotToMap(r.Body)
	}
	return m
}

func bodySnapshotToMap(b *BodySnapshot) map[string]any {
	m := map[string]any{
		"_captured": b.Captured,
	}
	if b.Encoding != "" {
		m["encoding"] = b.Encoding
	}
	if b.Data != nil {
		m["data"] = b.Data
	}
	if b.Truncated {
		m["truncated"] = true
	}
	if b.SizeBytes != nil {
		m["size_bytes"] = *b.SizeBytes
	}
	if b.Hash != "" {
		m["hash"] = b.Hash
	}
	return m
}

func eventsToList(events []DependencyEvent) []any {
	list := make([]any, len(events))
	for i, e := range events {
		list[i] = eventToMap(e)
	}
	return list
}

func eventToMap(e DependencyEvent) map[string]any {
	return map[string]any{
		"eid":             e.EID,
		"type":            string(e.Type),
		"start_offset_ms": e.StartOffsetMS,
		"duration_ms":     e.DurationMS,
		"signature":       signatureToMap(e.Signature),
		"result":          resultToMap(e.Result),
	}
}

func signatureToMap(s EventSignature) map[string]any {
	m := map[string]any{
		"lib":    s.Lib,
		"method": s.Method,
	}
	if s.URL != "" {
		m["url"] = s.URL
	}
	if len(s.Query) > 0 {
		m["query"] = s.Query
	}
	if s.HeadersHash != "" {
		m["headers_hash"] = s.HeadersHash
	}
	if s.BodyHash != "" {
		m["body_hash"] = s.BodyHash
	}
	return m
}

func resultToMap(r EventResult) map[string]any {
	m := map[string]any{}
	if r.Status != nil {
		m["status"] = *r.Status
	}
	if len(r.Headers) > 0 {
		m["headers"] = stringMapToAny(r.Headers)
	}
	if r.Body != nil {
		m["body"] = bodySnapshotToMap(r.Body)
	}
	if r.Error != "" {
		m["error"] = r.Error
	}
	if r.ErrorType != "" {
		m["error_type"] = r.ErrorType
	}
	return m
}

func policiesToMap(p AppliedPolicies) map[string]any {
	rules := make([]any, len(p.RedactionRules))
	for i, r := range p.RedactionRules {
		rules[i] = r
	}
	return map[string]any{
		"redaction": map[string]any{
			"mode":  p.RedactionMode,
			"rules": rules,
		},
		"capture": map[string]any{
			"max_body_kb":         p.MaxBodyKB,
			"store_request_body":  p.StoreRequestBody,
			"store_response_body": p.StoreResponseBody,
		},
		"sampling": map[string]any{
			"rate":        p.SampleRate,
			"errors_only": p.ErrorsOnly,
		},
	}
}

func statsToMap(s CaptureStats) map[string]any {
	counts := make(map[string]any, len(s.EventCounts))
	for k, v := range s.EventCounts {
		counts[k] = v
	}
	return map[string]any{
		"event_counts":      counts,
		"total_events":      s.TotalEvents,
		"total_duration_ms": s.TotalDurationMS,
	}
}

func errorInfoToMap(e ErrorInfo) map[string]any {
	m := map[string]any{
		"type":    e.Type,
		"message": e.Message,
	}
	if e.Traceback != "" {
		m["traceback"] = e.Traceback
	}
	return m
}

func stringMapToAny(in map[string]string) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
