package types

// SBOMComponent holds only the fields we need from CycloneDX components to
// seed a dependency graph.
type SBOMComponent struct {
	BOMRef   string        `json:"bom-ref,omitempty"`
	Type     string        `json:"type"`
	Group    string        `json:"group,omitempty"`
	Name     string        `json:"name"`
	Version  string        `json:"version,omitempty"`
	PURL     string        `json:"purl,omitempty"`
	Scope    string        `json:"scope,omitempty"`
	Licenses []SBOMLicense `json:"licenses,omitempty"`
	// ParentPURL is the purl of metadata.component (the SBOM's top-level component).
	// Filled during SBOM streaming/decoding for easy linkage to the parent.
	// Not part of the original component JSON; kept out of JSON encoding on purpose.
	ParentPURL string `json:"-"`
}

// SBOMLicense is a CycloneDX license choice: either a license or an SPDX expression.
type SBOMLicense struct {
	License *struct {
		ID   string `json:"id,omitempty"`
		Name string `json:"name,omitempty"`
	} `json:"license,omitempty"`
	Expression string `json:"expression,omitempty"`
}

// LicenseIDs returns the SPDX ids (or names, or expressions) declared by c.
func (c SBOMComponent) LicenseIDs() []string {
	var out []string
	for _, l := range c.Licenses {
		switch {
		case l.License != nil && l.License.ID != "":
			out = append(out, l.License.ID)
		case l.License != nil && l.License.Name != "":
			out = append(out, l.License.Name)
		case l.Expression != "":
			out = append(out, l.Expression)
		}
	}
	return out
}

// SBOMDependency is one entry of the CycloneDX dependencies array.
type SBOMDependency struct {
	Ref       string   `json:"ref"`
	DependsOn []string `json:"dependsOn,omitempty"`
}
