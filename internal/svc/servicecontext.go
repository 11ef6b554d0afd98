package svc

import (
	"log"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver
	"github.com/zeromicro/go-zero/core/stores/redis"
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	"vietmarket-api/internal/config"
	"vietmarket-api/internal/store"
)

type ServiceContext struct {
	Config config.Config

	DBConn sqlx.SqlConn
	Store  *store.Store
	// Redis backs the hot-endpoint response cache; nil disables caching.
	Redis *redis.Redis
}

func NewServiceContext(c config.Config) *ServiceContext {
	svc := &ServiceContext{Config: c}

	if c.Postgres.DSN == "" {
		log.Fatal("postgres dsn is required (Postgres.DSN or PG_URL)")
	}
	conn := sqlx.NewSqlConn("pgx", c.Postgres.DSN)
	svc.DBConn = conn
	svc.Store = store.New(conn)

	if c.Redis.Host != "" {
		rds, err := redis.NewRedis(c.Redis)
		if err != nil {
			log.Fatalf("connect redis: %v", err)
		}
		svc.Redis = rds
	}
	return svc
}
