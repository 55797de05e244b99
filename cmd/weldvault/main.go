package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/weldvault/weldvault/internal/clock"
	"github.com/weldvault/weldvault/internal/config"
	"github.com/weldvault/weldvault/internal/observability"
	"github.com/weldvault/weldvault/internal/server"
	"github.com/weldvault/weldvault/pkg/db"
	"github.com/weldvault/weldvault/pkg/kvstore"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		kvstore.Module,
		clock.Module,
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
