package main

import (
	"context"
	"fmt"

	"qvrag/internal/config"
	"qvrag/internal/domain"
	"qvrag/internal/embedding"
	"qvrag/internal/embedding/hashing"
	"qvrag/internal/embedding/openai"
	"qvrag/internal/vectorstore/memory"
	"qvrag/internal/vectorstore/qdrant"
	"qvrag/internal/vectorstore/sqlite"
)

func buildEmbedder(cfg *config.AppConfig) (domain.Embedder, error) {
	var emb domain.Embedder
	switch cfg.Embedder.Type {
	case "hashing", "":
		emb = hashing.NewEmbedder(cfg.Embedder.Hashing.Dimensions)
	case "openai":
		oa := cfg.Embedder.OpenAI
		client, err := openai.NewClient(openai.Config{
			BaseURL:    oa.BaseURL,
			APIKeyEnv:  oa.APIKeyEnv,
			Model:      oa.Model,
			Dimensions: oa.Dimensions,
			BatchSize:  oa.BatchSize,
			Timeout:    cfg.OpenAITimeout(),
		})
		if err != nil {
			return nil, domain.WrapError(domain.ErrInvalidConfiguration, "openai embedder", "", err)
		}
		emb = client
	default:
		return nil, domain.Errorf(domain.ErrInvalidConfiguration, "build embedder", "", "unknown embedder: %s", cfg.Embedder.Type)
	}
	return embedding.NewCached(emb, cfg.Embedder.CacheSize), nil
}

func buildStore(ctx context.Context, cfg *config.AppConfig, emb domain.Embedder) (domain.VectorStore, error) {
	collection := cfg.Engine.CollectionName
	switch cfg.VectorStore.Type {
	case "memory", "":
		return memory.NewStorage(collection, emb), nil
	case "sqlite":
		sq := cfg.VectorStore.SQLite
		st, err := sqlite.Open(ctx, sqlite.Options{
			Path:       sq.Path,
			Collection: collection,
			M:          sq.HNSWM,
			EfSearch:   sq.HNSWEfSearch,
		}, emb)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return st, nil
	case "qdrant":
		qd := cfg.VectorStore.Qdrant
		return qdrant.NewStorage(qdrant.Config{
			URL:        qd.URL,
			APIKey:     qd.APIKey,
			Collection: collection,
			Timeout:    cfg.QdrantTimeout(),
		}, emb), nil
	default:
		return nil, domain.Errorf(domain.ErrInvalidConfiguration, "build store", "", "unknown vector store: %s", cfg.VectorStore.Type)
	}
}
