package main

import (
	"database/sql"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/inconshreveable/log15"
	_ "github.com/mattn/go-sqlite3"
	"github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apipkg "github.com/sourcegraph/precise-code-intel-core/internal/codeintel/api"
	"github.com/sourcegraph/precise-code-intel-core/internal/codeintel/cache"
	"github.com/sourcegraph/precise-code-intel-core/internal/codeintel/metadata"
	"github.com/sourcegraph/precise-code-intel-core/internal/env"
	"github.com/sourcegraph/precise-code-intel-core/internal/observation"
)

func main() {
	env.Lock()
	env.HandleHelpFlag()

	databaseURL := mustGet(rawDatabaseURL, "DATABASE_URL")
	connectionCacheCapacity := mustParseInt(rawConnectionCacheCapacity, "CONNECTION_CACHE_CAPACITY")
	documentCacheCapacity := mustParseInt(rawDocumentCacheCapacity, "DOCUMENT_CACHE_CAPACITY")
	resultChunkCacheCapacity := mustParseInt(rawResultChunkCacheCapacity, "RESULT_CHUNK_CACHE_CAPACITY")
	remotePageSize := mustParseInt(rawRemotePageSize, "REMOTE_PAGE_SIZE")
	bundleDir := mustGet(rawBundleDir, "BUNDLE_DIR")

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		log.Fatalf("precise-code-intel-core: failed to connect to database: %s", err)
	}

	connectionCache, err := cache.NewConnectionCache(connectionCacheCapacity)
	if err != nil {
		log.Fatalf("precise-code-intel-core: failed to construct connection cache: %s", err)
	}
	documentCache, err := cache.NewDocumentCache(documentCacheCapacity)
	if err != nil {
		log.Fatalf("precise-code-intel-core: failed to construct document cache: %s", err)
	}
	resultChunkCache, err := cache.NewResultChunkCache(resultChunkCacheCapacity)
	if err != nil {
		log.Fatalf("precise-code-intel-core: failed to construct result chunk cache: %s", err)
	}

	backend := apipkg.New(
		metadata.NewPostgres(db),
		connectionCache,
		documentCache,
		resultChunkCache,
		apipkg.Config{RemotePageSize: remotePageSize, BundleDir: bundleDir},
	)

	observationContext := &observation.Context{
		Logger:     log15.Root(),
		Tracer:     opentracing.GlobalTracer(),
		Registerer: prometheus.DefaultRegisterer,
	}
	observedAPI := apipkg.NewObserved(backend, observationContext)

	router := newHandler(observedAPI)
	mux := http.NewServeMux()
	mux.Handle("/", router)
	mux.Handle("/metrics", promhttp.Handler())

	host := ""
	if env.InsecureDev {
		host = "127.0.0.1"
	}
	addr := net.JoinHostPort(host, rawHTTPPort)
	srv := &http.Server{Addr: addr, Handler: mux}
	log15.Info("precise-code-intel-core: listening", "addr", srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	c := make(chan os.Signal, 2)
	signal.Notify(c, syscall.SIGINT, syscall.SIGHUP)
	<-c
	go func() {
		<-c
		os.Exit(0)
	}()

	srv.Close()
}
