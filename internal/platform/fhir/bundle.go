package fhir

import (
	"encoding/json"
	"time"
)

// Bundle represents a FHIR searchset Bundle.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id,omitempty"`
	Type         string        `json:"type"`
	Total        *int          `json:"total,omitempty"`
	Link         []BundleLink  `json:"link,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
	Timestamp    *time.Time    `json:"timestamp,omitempty"`
}

type BundleLink struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
	Search   *BundleSearch   `json:"search,omitempty"`
}

type BundleSearch struct {
	Mode string `json:"mode,omitempty"`
}

// NewSearchBundle creates a searchset Bundle from a page of documents.
// total is the size of the full result set, not the page.
func NewSearchBundle(docs []Document, total int, links []BundleLink) *Bundle {
	now := time.Now().UTC()
	entries := make([]BundleEntry, 0, len(docs))
	for _, d := range docs {
		raw, err := json.Marshal(map[string]interface{}(d))
		if err != nil {
			continue
		}
		entries = append(entries, BundleEntry{
			FullURL:  d.Key(),
			Resource: raw,
			Search:   &BundleSearch{Mode: "match"},
		})
	}
	return &Bundle{
		ResourceType: "Bundle",
		Type:         "searchset",
		Total:        &total,
		Timestamp:    &now,
		Link:         links,
		Entry:        entries,
	}
}

// CapabilityStatement represents the FHIR CapabilityStatement (metadata).
type CapabilityStatement struct {
	ResourceType   string            `json:"resourceType"`
	Status         string            `json:"status"`
	Date           string            `json:"date"`
	Kind           string            `json:"kind"`
	FHIRVersion    string            `json:"fhirVersion"`
	Format         []string          `json:"format"`
	Implementation *CSImplementation `json:"implementation,omitempty"`
	Rest           []CSRest          `json:"rest"`
}

type CSImplementation struct {
	Description string `json:"description"`
}

type CSRest struct {
	Mode      string        `json:"mode"`
	Resource  []CSResource  `json:"resource"`
	Operation []CSOperation `json:"operation,omitempty"`
}

type CSResource struct {
	Type        string          `json:"type"`
	Interaction []CSInteraction `json:"interaction"`
	// Count is the number of stored documents of this type.
	Count int `json:"count"`
}

type CSInteraction struct {
	Code string `json:"code"`
}

type CSOperation struct {
	Name       string `json:"name"`
	Definition string `json:"definition"`
}

// ApplyOperations lists the operations every engine instance supports.
var ApplyOperations = []CSOperation{
	{Name: "apply", Definition: "http://hl7.org/fhir/OperationDefinition/PlanDefinition-apply"},
	{Name: "lookup", Definition: "http://hl7.org/fhir/OperationDefinition/CodeSystem-lookup"},
	{Name: "expand", Definition: "http://hl7.org/fhir/OperationDefinition/ValueSet-expand"},
}

// NewCapabilityStatement describes the stored types and their counts.
func NewCapabilityStatement(counts map[string]int, types []string) *CapabilityStatement {
	resources := make([]CSResource, 0, len(types))
	for _, t := range types {
		resources = append(resources, CSResource{
			Type: t,
			Interaction: []CSInteraction{
				{Code: "read"},
				{Code: "search-type"},
				{Code: "create"},
				{Code: "update"},
				{Code: "delete"},
			},
			Count: counts[t],
		})
	}
	return &CapabilityStatement{
		ResourceType: "CapabilityStatement",
		Status:       "active",
		Date:         time.Now().UTC().Format("2006-01-02"),
		Kind:         "instance",
		FHIRVersion:  "4.0.1",
		Format:       []string{"json"},
		Implementation: &CSImplementation{
			Description: "In-memory PlanDefinition engine",
		},
		Rest: []CSRest{
			{
				Mode:      "server",
				Resource:  resources,
				Operation: ApplyOperations,
			},
		},
	}
}
