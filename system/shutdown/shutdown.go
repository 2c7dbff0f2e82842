package shutdown

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ExitFunc is swapped out in tests.
var ExitFunc = os.Exit

// Timeout bounds the whole teardown.
var Timeout = 10 * time.Second

type hook struct {
	name string
	fn   func(ctx context.Context) error
}

var (
	mu    sync.Mutex
	hooks []hook
	once  sync.Once
)

// Register adds a teardown step. Steps run in reverse registration order.
func Register(name string, fn func(ctx context.Context) error) {
	mu.Lock()
	defer mu.Unlock()
	hooks = append(hooks, hook{name: name, fn: fn})
}

func Shutdown() {
	run()
	log.Info().Msg("Shutdown complete")
	ExitFunc(0)
}

func ShutdownWithError(err error, msg string) {
	log.Error().Err(err).Msg(msg)
	run()
	ExitFunc(1)
}

// Reset clears registered hooks.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	hooks = nil
	once = sync.Once{}
}

func run() {
	once.Do(func() {
		mu.Lock()
		steps := append([]hook(nil), hooks...)
		mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), Timeout)
		defer cancel()

		for i := len(steps) - 1; i >= 0; i-- {
			if err := steps[i].fn(ctx); err != nil {
				log.Warn().Err(err).Str("step", steps[i].name).Msg("Shutdown step failed")
				continue
			}
			log.Debug().Str("step", steps[i].name).Msg("Shutdown step done")
		}
	})
}
