package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/yungbote/atelier-backend/internal/data/db"
	"github.com/yungbote/atelier-backend/internal/data/repos"
	"github.com/yungbote/atelier-backend/internal/platform/envutil"
	"github.com/yungbote/atelier-backend/internal/platform/logger"
	"github.com/yungbote/atelier-backend/internal/services"
)

type idList []string

func (l *idList) String() string { return strings.Join(*l, ",") }
func (l *idList) Set(v string) error {
	v = strings.TrimSpace(v)
	if v != "" {
		*l = append(*l, v)
	}
	return nil
}

// ledger_audit compares every stored paid balance with the sum of its
// transaction history and exits 2 when any user has drifted.
func main() {
	var users idList
	var asJSON bool
	flag.Var(&users, "user", "user id to audit (repeatable, default all)")
	flag.BoolVar(&asJSON, "json", false, "print drift rows as JSON")
	flag.Parse()

	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		fmt.Printf("init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	pg, err := db.NewPostgresService(log, db.PostgresConfigFromEnv())
	if err != nil {
		log.Error("postgres init failed", "error", err)
		os.Exit(1)
	}
	defer pg.Close()

	svc := services.NewCreditService(log, repos.NewCreditBalanceRepo(pg.DB(), log), repos.NewCreditTransactionRepo(pg.DB(), log))
	drift, err := svc.AuditBalances(context.Background(), users)
	if err != nil {
		log.Error("audit failed", "error", err)
		os.Exit(1)
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(drift)
	} else {
		for _, d := range drift {
			fmt.Printf("%s\tbalance=%d\ttransactions=%d\n", d.UserID, d.PaidCredits, d.TransactionSum)
		}
		fmt.Printf("audited, %d drifted\n", len(drift))
	}
	if len(drift) > 0 {
		log.Sync()
		pg.Close()
		os.Exit(2)
	}
}
