package archive

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/mikeboe/deep-search/pkg/config"
	"github.com/mikeboe/deep-search/pkg/database"
	"github.com/mikeboe/deep-search/pkg/embeddings"
	"github.com/mikeboe/deep-search/pkg/splitter"
	"github.com/mikeboe/deep-search/pkg/vectorstore"
)

// Open prepares the archive table and wires the pgvector store, the Gemini
// embedder and the chunker.
func Open(ctx context.Context, cfg config.ArchiveConfig, db *database.PostgresDB, client *genai.Client, logger *slog.Logger) (*Archive, error) {
	if err := db.EnsureVectorExtension(ctx); err != nil {
		return nil, fmt.Errorf("failed to enable pgvector: %w", err)
	}
	store, err := vectorstore.NewPGVectorStore(db.Pool, cfg.CollectionName)
	if err != nil {
		return nil, err
	}
	if err := db.CreateEmbeddingsTable(ctx, cfg.CollectionName, embeddings.Dimension); err != nil {
		return nil, err
	}
	return New(
		store,
		embeddings.NewGoogleEmbedder(client, cfg.EmbeddingModel),
		splitter.NewRecursiveCharacterTextSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		logger,
	), nil
}
