package preflight

import (
	"context"

	"vidintel/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}

	if cfg.Archive.Backend == config.ArchiveFS {
		results = append(results, CheckDirectoryAccess("Archive directory", cfg.Archive.Dir))
	}
	if cfg.Transport.Backend == config.TransportRedis {
		results = append(results, CheckRedis(ctx, cfg.Transport.RedisURL))
	}
	if cfg.Embeddings.Provider == config.EmbeddingsOllama {
		results = append(results, CheckEndpoint(ctx, "Embeddings endpoint", cfg.Embeddings.BaseURL))
	}
	if cfg.LLMConfigured() {
		results = append(results, CheckLLM(ctx, "LLM", cfg.GetLLM()))
	}
	return results
}
