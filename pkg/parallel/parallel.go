package parallel

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Workers normalise un nombre de workers (<= 0 : GOMAXPROCS).
func Workers(n int) int {
	if n <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return n
}

// Map exécute fn(ctx, i) pour i dans [0, n) sur au plus workers goroutines.
// Les résultats sont rangés par indice, pas par ordre de fin.
// La première erreur annule le contexte des tâches restantes.
func Map[T any](ctx context.Context, n, workers int, fn func(ctx context.Context, i int) (T, error)) ([]T, error) {
	out := make([]T, n)
	if n == 0 {
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(Workers(workers))
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			v, err := fn(gctx, i)
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Concat aplatit les résultats de Map.
func Concat[T any](parts [][]T) []T {
	size := 0
	for _, p := range parts {
		size += len(p)
	}
	out := make([]T, 0, size)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
