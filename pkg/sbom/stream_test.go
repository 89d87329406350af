// Copyright 2025 venslabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sbom

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venslabs/depgraph/pkg/api/types"
)

const cyclonedxFixture = `{
  "bomFormat": "CycloneDX",
  "specVersion": "1.6",
  "metadata": {
    "timestamp": "2025-01-01T00:00:00Z",
    "tools": {"components": [{"name": "syft"}]},
    "component": {"bom-ref": "app", "type": "application", "name": "app", "version": "1.0.0", "purl": "pkg:npm/app@1.0.0"}
  },
  "components": [
    {"bom-ref": "a", "type": "library", "name": "a", "version": "1.0.0", "purl": "pkg:npm/a@1.0.0",
     "licenses": [{"license": {"id": "MIT"}}, {"expression": "Apache-2.0 OR MIT"}]},
    {"bom-ref": "b", "type": "library", "name": "b", "version": "2.0.0", "purl": "pkg:npm/b@2.0.0",
     "properties": [{"name": "x", "value": "y"}]}
  ],
  "dependencies": [
    {"ref": "app", "dependsOn": ["a"]},
    {"ref": "a", "dependsOn": ["b"]}
  ],
  "vulnerabilities": []
}`

func TestStreamCycloneDX(t *testing.T) {
	var subject types.SBOMComponent
	var comps []types.SBOMComponent
	var deps []types.SBOMDependency
	err := StreamCycloneDX(strings.NewReader(cyclonedxFixture), StreamHandler{
		Subject:    func(c types.SBOMComponent) error { subject = c; return nil },
		Component:  func(c types.SBOMComponent) error { comps = append(comps, c); return nil },
		Dependency: func(d types.SBOMDependency) error { deps = append(deps, d); return nil },
	})
	require.NoError(t, err)

	assert.Equal(t, "pkg:npm/app@1.0.0", subject.PURL)
	require.Len(t, comps, 2)
	assert.Equal(t, "pkg:npm/app@1.0.0", comps[0].ParentPURL)
	assert.Equal(t, []string{"MIT", "Apache-2.0 OR MIT"}, comps[0].LicenseIDs())
	assert.Equal(t, "b", comps[1].BOMRef)
	assert.Equal(t, []types.SBOMDependency{
		{Ref: "app", DependsOn: []string{"a"}},
		{Ref: "a", DependsOn: []string{"b"}},
	}, deps)
}

func TestStreamCycloneDXPartialHandler(t *testing.T) {
	n := 0
	err := StreamCycloneDX(strings.NewReader(cyclonedxFixture), StreamHandler{
		Dependency: func(types.SBOMDependency) error { n++; return nil },
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestStreamCycloneDXErrors(t *testing.T) {
	stop := errors.New("stop")
	err := StreamCycloneDX(strings.NewReader(cyclonedxFixture), StreamHandler{
		Component: func(types.SBOMComponent) error { return stop },
	})
	assert.ErrorIs(t, err, stop)

	err = StreamCycloneDX(strings.NewReader(`[]`), StreamHandler{})
	assert.Error(t, err)

	err = StreamCycloneDX(strings.NewReader(`{"components": {}}`), StreamHandler{
		Component: func(types.SBOMComponent) error { return nil },
	})
	assert.Error(t, err)
}
