package plandefinition

import (
	"encoding/json"

	"github.com/ehr/planengine/internal/platform/fhir"
	"github.com/ehr/planengine/pkg/fhirmodels"
)

const libraryTypeSystem = "http://terminology.hl7.org/CodeSystem/library-type"

// DataRequirements collects the input DataRequirements of every action at
// every depth, first occurrence wins, and reports them as a
// module-definition Library in the shape of $data-requirements.
func DataRequirements(def *Definition) fhir.Document {
	seen := make(map[string]bool)
	reqs := []interface{}{}
	var walk func(actions []Action)
	walk = func(actions []Action) {
		for _, a := range actions {
			for _, in := range a.Inputs {
				key, err := json.Marshal(in)
				if err != nil || seen[string(key)] {
					continue
				}
				seen[string(key)] = true
				reqs = append(reqs, fhir.CloneValue(in))
			}
			walk(a.Children)
		}
	}
	walk(def.Actions)

	canonical := def.URL
	if canonical == "" {
		canonical = def.Ref()
	}
	return fhir.Document{
		"resourceType": fhirmodels.TypeLibrary,
		"status":       "active",
		"type": map[string]interface{}{
			"coding": []interface{}{
				map[string]interface{}{"system": libraryTypeSystem, "code": "module-definition"},
			},
		},
		"relatedArtifact": []interface{}{
			map[string]interface{}{"type": "depends-on", "resource": canonical},
		},
		"dataRequirement": reqs,
	}
}
