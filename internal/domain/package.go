package domain

// File names a package or project directory is recognised by.
const (
	PackageManifestFile = "publisher.json"
	ConnectionsFile     = "publisher.connections.json"
)

// PackageManifest is the content of a package's manifest file.
type PackageManifest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// DatabaseType distinguishes how a database file reached the package.
type DatabaseType string

// Database types.
const (
	DatabaseTypeEmbedded DatabaseType = "embedded"
)

// Database describes one embedded data file discovered under a package.
type Database struct {
	Resource string           `json:"resource"`
	Path     string           `json:"path"`
	Type     DatabaseType     `json:"type"`
	Info     TableDescription `json:"info"`
}

// PackageSummary is the list view of a package.
type PackageSummary struct {
	Resource    string `json:"resource"`
	ProjectName string `json:"projectName"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}
