package main

import (
	"fmt"
	"os"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/perishables/internal/cache"
	"github.com/smallbiznis/perishables/internal/clock"
	"github.com/smallbiznis/perishables/internal/config"
	"github.com/smallbiznis/perishables/internal/locks"
	"github.com/smallbiznis/perishables/internal/migration"
	"github.com/smallbiznis/perishables/internal/observability"
	"github.com/smallbiznis/perishables/internal/server"
	"github.com/smallbiznis/perishables/pkg/db"
	"go.uber.org/fx"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := runTokenCommand(os.Args[2:], os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	// Prices go over the wire as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true

	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		cache.Module,
		locks.Module,
		migration.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
