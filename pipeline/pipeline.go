// Package pipeline runs scripted scenarios against a database, one named
// stage at a time. It is the driver external test harnesses embed; the
// engine itself never logs, so all reporting lives here.
package pipeline

import (
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/K-rangeR/hashdb/core"
)

// Env is the database handle a pipeline runs against. Stages that reopen
// the database swap the handle in place, so later stages see the new one.
type Env struct {
	Dir  string
	Opts []core.Option
	DB   *core.DB
}

// OpenEnv opens the database in dir and wraps it for a pipeline run.
func OpenEnv(dir string, opts ...core.Option) (*Env, error) {
	db, err := core.Open(dir, opts...)
	if err != nil {
		return nil, err
	}
	return &Env{Dir: dir, Opts: opts, DB: db}, nil
}

// Reopen closes the database and opens it again from disk, exercising the
// recovery path mid-scenario.
func (e *Env) Reopen() error {
	closeErr := e.DB.Close()

	db, err := core.Open(e.Dir, e.Opts...)
	if err != nil {
		return multierr.Append(closeErr, err)
	}
	e.DB = db
	return closeErr
}

// Close releases the underlying database.
func (e *Env) Close() error { return e.DB.Close() }

// Stage is one named step of a scenario.
type Stage struct {
	Name string
	Run  func(*Env) error
}

// Pipeline executes stages in order and stops at the first failure.
type Pipeline struct {
	stages []Stage
	log    *zap.Logger
}

// New builds a pipeline over the given stages. A nil logger disables
// reporting.
func New(log *zap.Logger, stages ...Stage) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{stages: stages, log: log}
}

// Append adds stages to the end of the pipeline.
func (p *Pipeline) Append(stages ...Stage) {
	p.stages = append(p.stages, stages...)
}

// Run executes the stages against env. The first stage failure stops the
// run and is returned, wrapped with the stage name.
func (p *Pipeline) Run(env *Env) error {
	for i, s := range p.stages {
		start := time.Now()
		err := s.Run(env)
		elapsed := time.Since(start)

		if err != nil {
			p.log.Error("stage failed",
				zap.Int("stage", i+1),
				zap.String("name", s.Name),
				zap.Duration("elapsed", elapsed),
				zap.Error(err),
			)
			return fmt.Errorf("stage %q: %w", s.Name, err)
		}

		p.log.Info("stage passed",
			zap.Int("stage", i+1),
			zap.String("name", s.Name),
			zap.Duration("elapsed", elapsed),
		)
	}

	p.log.Info("pipeline done", zap.Int("stages", len(p.stages)))
	return nil
}
