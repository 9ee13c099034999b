package main

import (
	"fmt"
	"log"
	"strconv"

	"github.com/sourcegraph/precise-code-intel-core/internal/env"
)

const envPrefix = "PRECISE_CODE_INTEL"

var (
	rawDatabaseURL              = envGet("DATABASE_URL", "", "Postgres connection string for the metadata store.")
	rawBundleDir                = envGet("BUNDLE_DIR", "/lsif-storage/dbs", "Root dir containing converted per-dump SQLite databases.")
	rawConnectionCacheCapacity  = envGet("CONNECTION_CACHE_CAPACITY", "100", "Number of per-dump SQLite connections that can be held open at once.")
	rawDocumentCacheCapacity    = envGet("DOCUMENT_CACHE_CAPACITY", "1000", "Maximum number of decoded documents that can be held in memory at once.")
	rawResultChunkCacheCapacity = envGet("RESULT_CHUNK_CACHE_CAPACITY", "1000", "Maximum number of decoded result chunks that can be held in memory at once.")
	rawRemotePageSize           = envGet("REMOTE_PAGE_SIZE", "20", "Number of remote dumps consulted per page while paginating references.")
	rawHTTPPort                 = envGet("HTTP_PORT", "3188", "Port the HTTP API is served on.")
)

func envGet(name, defaultValue, description string) string {
	return env.Get(fmt.Sprintf("%s_%s", envPrefix, name), defaultValue, description)
}

func mustGet(rawValue, name string) string {
	if rawValue == "" {
		log.Fatalf("invalid value %q for %s_%s: no value supplied", rawValue, envPrefix, name)
	}
	return rawValue
}

func mustParseInt(rawValue, name string) int {
	i, err := strconv.ParseInt(rawValue, 10, 64)
	if err != nil {
		log.Fatalf("invalid int %q for %s_%s: %s", rawValue, envPrefix, name, err)
	}
	return int(i)
}
