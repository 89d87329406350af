package types

import "time"

// Subset of the OSV schema, https://ossf.github.io/osv-schema/

type OSVEntry struct {
	SchemaVersion    string           `json:"schema_version,omitempty"`
	ID               string           `json:"id"`
	Modified         time.Time        `json:"modified,omitzero"`
	Published        time.Time        `json:"published,omitzero"`
	Withdrawn        time.Time        `json:"withdrawn,omitzero"`
	Aliases          []string         `json:"aliases,omitempty"`
	Summary          string           `json:"summary,omitempty"`
	Details          string           `json:"details,omitempty"`
	Severities       []OSVSeverity    `json:"severity,omitempty"`
	Affected         []OSVAffected    `json:"affected,omitempty"`
	References       []OSVReference   `json:"references,omitempty"`
	DatabaseSpecific *OSVDatabaseInfo `json:"database_specific,omitempty"`
}

type OSVSeverity struct {
	Type  string `json:"type"`
	Score string `json:"score"`
}

type OSVAffected struct {
	Package    OSVPackage    `json:"package"`
	Severities []OSVSeverity `json:"severity,omitempty"`
	Ranges     []OSVRange    `json:"ranges,omitempty"`
	Versions   []string      `json:"versions,omitempty"`
}

type OSVPackage struct {
	Ecosystem string `json:"ecosystem,omitempty"`
	Name      string `json:"name,omitempty"`
	PURL      string `json:"purl,omitempty"`
}

type OSVRange struct {
	Type   string     `json:"type"`
	Repo   string     `json:"repo,omitempty"`
	Events []OSVEvent `json:"events"`
}

type OSVEvent struct {
	Introduced   string `json:"introduced,omitempty"`
	Fixed        string `json:"fixed,omitempty"`
	LastAffected string `json:"last_affected,omitempty"`
	Limit        string `json:"limit,omitempty"`
}

type OSVReference struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// OSVDatabaseInfo holds the GitHub advisory database extensions we read.
type OSVDatabaseInfo struct {
	CWEIDs   []string `json:"cwe_ids,omitempty"`
	Severity string   `json:"severity,omitempty"`
}

// OSVQuery is the body of a POST /v1/query request.
type OSVQuery struct {
	Version   string     `json:"version,omitempty"`
	Package   OSVPackage `json:"package"`
	PageToken string     `json:"page_token,omitempty"`
}

// OSVQueryResponse is the response of POST /v1/query.
type OSVQueryResponse struct {
	Vulns         []OSVEntry `json:"vulns"`
	NextPageToken string     `json:"next_page_token,omitempty"`
}
