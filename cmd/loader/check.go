package main

import (
	"context"
	"time"

	"github.com/alim08/fin_quotes/pkg/logger"
	"go.uber.org/zap"
)

type prerequisite struct {
	name  string
	check func(context.Context) error
}

// checkPrerequisites runs every check and returns the process exit code.
func checkPrerequisites(ctx context.Context, prereqs []prerequisite) int {
	code := 0
	for _, p := range prereqs {
		cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := p.check(cctx)
		cancel()
		if err != nil {
			logger.Log.Error("prerequisite failed", zap.String("name", p.name), zap.Error(err))
			code = 1
			continue
		}
		logger.Log.Info("prerequisite ok", zap.String("name", p.name))
	}
	return code
}
