package bancho

import (
	"io"
	"log/slog"

	"github.com/dungeongate/bancho/internal/collab"
	"github.com/dungeongate/bancho/pkg/config"
)

const testProtoVersion = 20120812

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testService builds a fully wired Service around an in-memory repository,
// with metrics disabled so tests never touch the global prometheus registry.
func testService() (*Service, *collab.MemoryRepository) {
	repo := collab.NewMemoryRepository()
	ranking := collab.NewMemoryRanking()
	var verifier collab.BcryptVerifier
	var geo collab.NullGeoResolver

	cfg := config.Default()
	cfg.Protocol.SupportedClientVersions = []int{testProtoVersion}

	svc := New(cfg, repo, ranking, verifier, geo, nil, testLogger())
	return svc, repo
}
