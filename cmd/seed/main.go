package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/example/carpool-match/internal/cache"
	"github.com/example/carpool-match/internal/config"
	"github.com/example/carpool-match/internal/logging"
	"github.com/example/carpool-match/internal/models"
	"github.com/example/carpool-match/internal/storage"
)

// cluster is a group of commuters sharing a neighbourhood and an office area.
type cluster struct {
	name    string
	start   models.Coord
	company models.Coord
	offset  float64
	count   int
	seed    int64
}

var clusters = []cluster{
	{name: "mission hill to downtown", start: models.Coord{Lat: 42.33, Lon: -71.1}, company: models.Coord{Lat: 42.35, Lon: -71.06}, offset: 0.03, count: 30, seed: 1},
	{name: "campus to waltham", start: models.Coord{Lat: 42.34, Lon: -71.09}, company: models.Coord{Lat: 42.4, Lon: -71.26}, offset: 0.03, count: 10, seed: 2},
	{name: "mission hill to cambridge", start: models.Coord{Lat: 42.32, Lon: -71.095}, company: models.Coord{Lat: 42.37, Lon: -71.1}, offset: 0.03, count: 15, seed: 3},
	{name: "brookline to fenway", start: models.Coord{Lat: 42.346, Lon: -71.127}, company: models.Coord{Lat: 42.344, Lon: -71.1}, offset: 0.03, count: 15, seed: 4},
}

func main() {
	dryRun := flag.Bool("dry-run", false, "print the generated commuters as JSON instead of storing them")
	flag.Parse()

	cfg, err := config.LoadServerConfig()
	logger := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	commuters, err := generate(clusters)
	if err != nil {
		logger.Error("generate commuters", "error", err)
		os.Exit(1)
	}

	if *dryRun {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(commuters); err != nil {
			logger.Error("encode commuters", "error", err)
			os.Exit(1)
		}
		return
	}

	if cfg.PGDSN == "" {
		logger.Error("PG_DSN is required unless -dry-run is set")
		os.Exit(1)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	ps, err := storage.NewPostgresStore(ctx, cfg.PGDSN, false)
	if err != nil {
		logger.Error("postgres unavailable", "error", err)
		os.Exit(1)
	}
	defer ps.Close()
	if err := ps.Migrate(ctx); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}

	var store storage.CommuterStore = ps
	if cfg.RedisAddr != "" {
		rc, err := cache.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, nil)
		if err != nil {
			logger.Warn("redis unavailable, cached pool may be stale", "error", err)
		} else {
			defer rc.Close()
			store = cache.NewCachedStore(ps, cache.NewPoolCache(rc, cfg.PoolCacheTTL), logger)
		}
	}

	for i := range commuters {
		if err := store.Upsert(ctx, &commuters[i]); err != nil {
			logger.Error("upsert commuter", "commuter_id", commuters[i].ID, "error", err)
			os.Exit(1)
		}
	}
	logger.Info("seeded commuters", "count", len(commuters), "clusters", len(clusters))
}

// generate builds every cluster's commuters with ids numbered from 0. Each
// cluster draws from its own seeded source so the output is reproducible.
func generate(cs []cluster) ([]models.Commuter, error) {
	var out []models.Commuter
	for _, cl := range cs {
		rnd := rand.New(rand.NewSource(cl.seed))
		for i := 0; i < cl.count; i++ {
			sk := models.Skeleton{
				ID:           strconv.Itoa(len(out)),
				Role:         models.RoleRider,
				StartCoord:   jitter(rnd, cl.start, cl.offset),
				CompanyCoord: jitter(rnd, cl.company, cl.offset),
				// 8:00-10:45 and 16:00-18:45 on quarter hours
				StartTime:   fmt.Sprintf("%d:%02d", 8+rnd.Intn(3), 15*rnd.Intn(4)),
				EndTime:     fmt.Sprintf("%d:%02d", 16+rnd.Intn(3), 15*rnd.Intn(4)),
				DaysWorking: randomWeek(rnd),
			}
			if rnd.Float64() < 0.5 {
				sk.Role = models.RoleDriver
				sk.SeatAvail = 1 + rnd.Intn(3)
			}
			c, err := models.NewCommuterFromSkeleton(sk)
			if err != nil {
				return nil, fmt.Errorf("cluster %q: %w", cl.name, err)
			}
			c.StartPOICoord = cl.start
			c.CompanyPOICoord = cl.company
			out = append(out, c)
		}
	}
	return out, nil
}

func jitter(rnd *rand.Rand, c models.Coord, offset float64) models.Coord {
	return models.Coord{
		Lat: c.Lat - offset + rnd.Float64()*2*offset,
		Lon: c.Lon - offset + rnd.Float64()*2*offset,
	}
}

func randomWeek(rnd *rand.Rand) string {
	days := make([]string, 7)
	for i := range days {
		days[i] = strconv.Itoa(rnd.Intn(2))
	}
	return strings.Join(days, ",")
}
