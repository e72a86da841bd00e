package config

// ArchiveConfig holds what the evidence archive needs: a database, an
// embedding model and chunking parameters.
type ArchiveConfig struct {
	GoogleApiKey   string
	DatabaseURL    string
	EmbeddingModel string
	CollectionName string
	ChunkSize      int
	ChunkOverlap   int
}

// Archive returns the archive view of the configuration. Enabled is false when
// no database or no API key is configured.
func (c *Config) Archive() (ArchiveConfig, bool) {
	ac := ArchiveConfig{
		GoogleApiKey:   c.GoogleApiKey,
		DatabaseURL:    c.DatabaseURL,
		EmbeddingModel: c.EmbeddingModel,
		CollectionName: c.CollectionName,
		ChunkSize:      c.ChunkSize,
		ChunkOverlap:   c.ChunkOverlap,
	}
	if ac.ChunkSize <= 0 {
		ac.ChunkSize = 1000
	}
	if ac.ChunkOverlap < 0 || ac.ChunkOverlap >= ac.ChunkSize {
		ac.ChunkOverlap = ac.ChunkSize / 5
	}
	return ac, ac.DatabaseURL != "" && c.HasCredentials()
}
