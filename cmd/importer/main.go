// File: cmd/importer/main.go
//
// importer loads accounts, cards and proxies from plain text files into the
// job store and instrument pools. One record per line, '#' for comments; see
// the operator API import endpoints for the same formats over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"student-offer-automation/internal/config"
	pg "student-offer-automation/internal/infra/db/postgres"
	"student-offer-automation/internal/infra/logging"
	"student-offer-automation/internal/infra/security"
	"student-offer-automation/internal/usecase"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	jobsFile := flag.String("jobs", "", "accounts file (email----password[----recovery][----secret])")
	cardsFile := flag.String("cards", "", "cards file (number mm yyyy cvv [holder])")
	proxiesFile := flag.String("proxies", "", "proxies file (scheme://u:p@h:p | h:p:u:p | h:p)")
	separator := flag.String("separator", "----", "account field separator")
	maxUsage := flag.Int("max-usage", 1, "jobs per imported card")
	proxyType := flag.String("proxy-type", "socks5", "default proxy type")
	flag.Parse()

	if *jobsFile == "" && *cardsFile == "" && *proxiesFile == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, true)

	ctx := context.Background()
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	var cipher *security.Cipher
	if cfg.Security.EncryptionKey != "" {
		cipher, err = security.NewCipher(cfg.Security.EncryptionKey)
		if err != nil {
			logger.Fatal().Err(err).Msg("encryption key")
		}
	}

	uc := usecase.NewImportUseCase(
		pg.NewJobRepo(pool, cipher),
		pg.NewCardRepo(pool),
		pg.NewProxyRepo(pool),
		pg.NewOperationLogRepo(pool),
		pg.NewTxManager(pool),
		logger,
	)

	if *jobsFile != "" {
		text := readFile(*jobsFile)
		rep, err := uc.ImportJobs(ctx, text, *separator, "")
		if err != nil {
			logger.Fatal().Err(err).Msg("import jobs")
		}
		report("jobs", rep)
	}
	if *cardsFile != "" {
		text := readFile(*cardsFile)
		rep, err := uc.ImportCards(ctx, text, *maxUsage)
		if err != nil {
			logger.Fatal().Err(err).Msg("import cards")
		}
		report("cards", rep)
	}
	if *proxiesFile != "" {
		text := readFile(*proxiesFile)
		rep, err := uc.ImportProxies(ctx, text, *proxyType)
		if err != nil {
			logger.Fatal().Err(err).Msg("import proxies")
		}
		report("proxies", rep)
	}
}

func readFile(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("read %s: %v", path, err)
	}
	return string(b)
}

func report(kind string, rep usecase.ImportReport) {
	fmt.Printf("%s: imported %d, skipped %d\n", kind, rep.Imported, rep.Skipped)
	for _, e := range rep.Errors {
		fmt.Printf("  %s\n", e)
	}
}
