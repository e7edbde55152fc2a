package gorawrgate

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Keksclan/goRawrGate/audit"
	"github.com/Keksclan/goRawrGate/cache"
	"github.com/Keksclan/goRawrGate/internal/core"
	"github.com/Keksclan/goRawrGate/policy"
	"github.com/Keksclan/goRawrGate/ratelimit"
	"github.com/Keksclan/goRawrGate/security"
)

// stage is a deferred gateway stage. Its forms are built once the shared
// components (audit log, policy resolver, limiter groups) exist, whatever
// order the options were passed in.
type stage struct {
	order int
	build func(g *Gateway) (core.HTTPMiddleware, grpcPair)
}

// config holds the internal configuration assembled via functional options.
type config struct {
	stages []stage

	log      *slog.Logger
	registry *prometheus.Registry
	cache    *cache.Store
	audit    *audit.Log
	clients  *security.ClientResolver
	groups   []*policy.GroupBuilder
	global   ratelimit.Limiter
	factory  ratelimit.Factory
}

func (c *config) add(order int, build func(g *Gateway) (core.HTTPMiddleware, grpcPair)) {
	c.stages = append(c.stages, stage{order: order, build: build})
}
