package terminology

// LookupRequest identifies a code within a CodeSystem by canonical URL.
type LookupRequest struct {
	System  string `json:"system"`
	Code    string `json:"code"`
	Version string `json:"version,omitempty"`
}

// LookupResult is the outcome of CodeSystem/$lookup.
type LookupResult struct {
	System     string `json:"system"`
	Code       string `json:"code"`
	Name       string `json:"name,omitempty"`
	Version    string `json:"version,omitempty"`
	Display    string `json:"display,omitempty"`
	Definition string `json:"definition,omitempty"`
}

// Parameters renders the result as a FHIR Parameters resource.
func (r *LookupResult) Parameters() map[string]interface{} {
	params := []interface{}{}
	add := func(name, value string) {
		if value != "" {
			params = append(params, map[string]interface{}{
				"name":        name,
				"valueString": value,
			})
		}
	}
	add("name", r.Name)
	add("version", r.Version)
	add("display", r.Display)
	add("definition", r.Definition)
	params = append(params, map[string]interface{}{
		"name":         "abstract",
		"valueBoolean": false,
	})
	return map[string]interface{}{
		"resourceType": "Parameters",
		"parameter":    params,
	}
}

// ExpandRequest selects a ValueSet by id or canonical URL. ID wins when both
// are set. Count <= 0 means no limit.
type ExpandRequest struct {
	ID     string `json:"id,omitempty"`
	URL    string `json:"url,omitempty"`
	Filter string `json:"filter,omitempty"`
	Offset int    `json:"offset,omitempty"`
	Count  int    `json:"count,omitempty"`
}

// Contains is one concept of an expansion.
type Contains struct {
	System  string `json:"system,omitempty"`
	Version string `json:"version,omitempty"`
	Code    string `json:"code"`
	Display string `json:"display,omitempty"`
}

// Expansion is the outcome of ValueSet/$expand.
type Expansion struct {
	ValueSetID string     `json:"id,omitempty"`
	URL        string     `json:"url,omitempty"`
	Name       string     `json:"name,omitempty"`
	Title      string     `json:"title,omitempty"`
	Total      int        `json:"total"`
	Offset     int        `json:"offset"`
	Contains   []Contains `json:"contains"`
}

// ValueSet renders the expansion as a FHIR ValueSet with an expansion element.
func (e *Expansion) ValueSet(identifier, timestamp string) map[string]interface{} {
	result := map[string]interface{}{
		"resourceType": "ValueSet",
		"status":       "active",
	}
	if e.ValueSetID != "" {
		result["id"] = e.ValueSetID
	}
	if e.URL != "" {
		result["url"] = e.URL
	}
	if e.Name != "" {
		result["name"] = e.Name
	}
	if e.Title != "" {
		result["title"] = e.Title
	}

	contains := make([]interface{}, 0, len(e.Contains))
	for _, c := range e.Contains {
		entry := map[string]interface{}{"code": c.Code}
		if c.System != "" {
			entry["system"] = c.System
		}
		if c.Version != "" {
			entry["version"] = c.Version
		}
		if c.Display != "" {
			entry["display"] = c.Display
		}
		contains = append(contains, entry)
	}

	result["expansion"] = map[string]interface{}{
		"identifier": identifier,
		"timestamp":  timestamp,
		"total":      e.Total,
		"offset":     e.Offset,
		"contains":   contains,
	}
	return result
}
