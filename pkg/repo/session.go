package repo

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Result is the minimal interface needed from a neo4j result.
type Result interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
	Err() error
}

// Runner is the minimal interface needed from a neo4j session.
type Runner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (Result, error)
	Close(ctx context.Context) error
}

// Opener returns a fresh session. Tests substitute scripted runners.
type Opener func(ctx context.Context) Runner

// sessionAdapter adapts neo4j.SessionWithContext to the Runner interface.
type sessionAdapter struct {
	sess neo4j.SessionWithContext
}

func (a *sessionAdapter) Run(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	return a.sess.Run(ctx, cypher, params)
}

func (a *sessionAdapter) Close(ctx context.Context) error {
	return a.sess.Close(ctx)
}

// DriverOpener opens driver sessions with the given access mode.
func DriverOpener(driver neo4j.DriverWithContext, mode neo4j.AccessMode) Opener {
	return func(ctx context.Context) Runner {
		return &sessionAdapter{sess: driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode})}
	}
}

// Query runs cypher in a fresh session and hands each record to each.
func Query(ctx context.Context, open Opener, cypher string, params map[string]any, each func(*neo4j.Record) error) error {
	sess := open(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, cypher, params)
	if err != nil {
		return err
	}
	for res.Next(ctx) {
		if each == nil {
			continue
		}
		if err := each(res.Record()); err != nil {
			return err
		}
	}
	return res.Err()
}
