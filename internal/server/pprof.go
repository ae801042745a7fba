package server

import (
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// StartPprofServer exposes the pprof handlers on their own listener, kept off
// the public API port.
func StartPprofServer(addr string, logger *zap.Logger) {
	router := gin.New()
	pprof.Register(router)

	go func() {
		logger.Info("Profiling endpoint listening", zap.String("addr", addr))
		if err := router.Run(addr); err != nil {
			logger.Error("Profiling endpoint stopped", zap.Error(err))
		}
	}()
}
