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

package outputhandler

import (
	"encoding/json"
	"io"
)

// NewJSONOutputHandler writes the document in its native JSON form, the
// form snapshots are stored in.
func NewJSONOutputHandler(w io.Writer) OutputHandler {
	return &jsonOutputHandler{w: w}
}

type jsonOutputHandler struct {
	single
	w io.Writer
}

func (h *jsonOutputHandler) Close() error {
	if h.doc == nil {
		return nil
	}
	enc := json.NewEncoder(h.w)
	enc.SetIndent("", "  ")
	return enc.Encode(h.doc)
}
