package version

// Build information set by ldflags
var (
	Version = "dev"     // Set by goreleaser: -X github.com/lenstools/metacal/internal/version.Version={{.Version}}
	Commit  = "unknown" // Set by goreleaser: -X github.com/lenstools/metacal/internal/version.Commit={{.Commit}}
	Date    = "unknown" // Set by goreleaser: -X github.com/lenstools/metacal/internal/version.Date={{.Date}}
)
