package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/m3rciful/topup/core/buildinfo"
	"github.com/m3rciful/topup/core/cmd"
	"github.com/m3rciful/topup/internal/app"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Println("topup " + buildinfo.String())
		return
	}

	err := cmd.Run(cmd.Options{
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (cmd.ConfigCarrier, error) {
			return app.Load(path)
		},
		Bootstrap: func(ctx context.Context, cfg cmd.ConfigCarrier) (cmd.App, error) {
			appCfg, ok := cfg.(*app.Config)
			if !ok {
				return nil, fmt.Errorf("unexpected config type %T", cfg)
			}
			return app.Bootstrap(ctx, appCfg)
		},
	})
	if err != nil {
		log.Fatal(err)
	}
}
