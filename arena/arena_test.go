package arena

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/dacapoday/arc/internal/abort"
	"github.com/dacapoday/arc/internal/refcount"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type tracked struct {
	val   int
	drops *atomic.Int32
}

func (t *tracked) Drop() {
	t.drops.Add(1)
}

func TestArenaScenario(t *testing.T) {
	var arena Arena[tracked]
	var drops atomic.Int32

	h0 := arena.New(tracked{drops: &drops})
	h1, err := arena.Clone(h0)
	require.NoError(t, err)
	h2, err := arena.Clone(h0)
	require.NoError(t, err)

	n, err := arena.Count(h0)
	require.NoError(t, err)
	require.EqualValues(t, 3, n)

	_, ok, err := arena.TryExclusive(h0)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, arena.Drop(h1))
	require.NoError(t, arena.Drop(h2))
	n, err = arena.Count(h0)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	val, ok, err := arena.TryExclusive(h0)
	require.NoError(t, err)
	require.True(t, ok)
	val.val = 42

	got, err := arena.Get(h0)
	require.NoError(t, err)
	require.Equal(t, 42, got.val)

	require.Zero(t, drops.Load())
	require.NoError(t, arena.Drop(h0))
	require.EqualValues(t, 1, drops.Load())
	require.Zero(t, arena.Len())
}

func TestArenaStale(t *testing.T) {
	var arena Arena[int]

	h := arena.New(1)
	require.NoError(t, arena.Drop(h))

	_, err := arena.Get(h)
	require.ErrorIs(t, err, ErrStale)
	_, err = arena.Clone(h)
	require.ErrorIs(t, err, ErrStale)
	_, err = arena.Count(h)
	require.ErrorIs(t, err, ErrStale)
	_, _, err = arena.TryExclusive(h)
	require.ErrorIs(t, err, ErrStale)
	err = arena.Drop(h)
	require.ErrorIs(t, err, ErrStale)
	require.EqualError(t, err, "arena.Drop: stale handle")

	_, err = arena.Get(Handle{})
	require.ErrorIs(t, err, ErrStale, "zero handle")
}

func TestArenaReuse(t *testing.T) {
	var arena Arena[string]

	old := arena.New("a")
	require.NoError(t, arena.Drop(old))

	h := arena.New("b")
	require.Equal(t, old.Index(), h.Index())
	require.NotEqual(t, old.Gen(), h.Gen())
	require.Equal(t, 1, arena.Cap())

	_, err := arena.Get(old)
	require.ErrorIs(t, err, ErrStale)

	val, err := arena.Get(h)
	require.NoError(t, err)
	require.Equal(t, "b", *val)
	require.NoError(t, arena.Drop(h))
}

func TestArenaOutOfRange(t *testing.T) {
	var arena Arena[int]

	_, err := arena.Get(Handle{index: 0, gen: 1})
	require.ErrorIs(t, err, ErrOutOfRange)

	h := arena.New(1)
	_, err = arena.Get(Handle{index: chunkSize, gen: 1})
	require.ErrorIs(t, err, ErrOutOfRange)

	_, err = arena.Get(Handle{index: 5, gen: 1})
	require.ErrorIs(t, err, ErrOutOfRange, "inside the first chunk, past size")
	require.EqualError(t, err, "arena.Get: out of range")
	err = arena.Drop(Handle{index: 1, gen: 1})
	require.ErrorIs(t, err, ErrOutOfRange)

	require.NoError(t, arena.Drop(h))
	_, err = arena.Get(h)
	require.ErrorIs(t, err, ErrStale, "freed slot below size is stale")
}

func TestArenaPointerPayloadDropper(t *testing.T) {
	var arena Arena[*tracked]
	var drops atomic.Int32

	h := arena.New(&tracked{drops: &drops})
	c, err := arena.Clone(h)
	require.NoError(t, err)
	require.NoError(t, arena.Drop(c))
	require.Zero(t, drops.Load())

	require.NoError(t, arena.Drop(h))
	require.EqualValues(t, 1, drops.Load())
}

func TestArenaGrow(t *testing.T) {
	var arena Arena[int]

	const n = chunkSize*3 + 7
	handles := make([]Handle, n)
	for i := range handles {
		handles[i] = arena.New(i)
	}
	require.Equal(t, n, arena.Len())
	require.Equal(t, n, arena.Cap())
	require.Len(t, arena.chunks, 4)

	for i, h := range handles {
		val, err := arena.Get(h)
		require.NoError(t, err)
		require.Equal(t, i, *val)
	}
	for _, h := range handles {
		require.NoError(t, arena.Drop(h))
	}
	require.Zero(t, arena.Len())
	require.Equal(t, n, arena.Cap())
	require.Len(t, arena.free, n)
}

func TestArenaNewFunc(t *testing.T) {
	var arena Arena[[]byte]
	var freed []byte

	h := arena.NewFunc([]byte("payload"), func(v *[]byte) { freed = *v })
	h2, err := arena.Clone(h)
	require.NoError(t, err)
	require.Equal(t, h, h2)

	require.NoError(t, arena.Drop(h))
	require.Nil(t, freed)
	require.NoError(t, arena.Drop(h2))
	require.Equal(t, []byte("payload"), freed)
}

func TestArenaCloneOverflow(t *testing.T) {
	var msg string
	defer abort.Hook(func(m string) { msg = m })()

	var arena Arena[int]
	h := arena.New(0)
	s, err := arena.slot(h)
	require.NoError(t, err)
	s.count.Store(refcount.Max + 1)

	_, err = arena.Clone(h)
	require.NoError(t, err)
	require.Equal(t, "arena.Clone: reference count overflow", msg)
}

func TestArenaConcurrent(t *testing.T) {
	const workers = 32
	const rounds = 100

	var arena Arena[tracked]
	var drops atomic.Int32

	var g errgroup.Group
	for range workers {
		g.Go(func() error {
			for range rounds {
				h := arena.New(tracked{drops: &drops})
				c, err := arena.Clone(h)
				if err != nil {
					return err
				}
				if _, ok, _ := arena.TryExclusive(h); ok {
					return errors.New("exclusive access while shared")
				}
				if err := arena.Drop(c); err != nil {
					return err
				}
				if _, ok, _ := arena.TryExclusive(h); !ok {
					return errors.New("no exclusive access while unique")
				}
				if err := arena.Drop(h); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.EqualValues(t, workers*rounds, drops.Load())
	require.Zero(t, arena.Len())
	require.LessOrEqual(t, arena.Cap(), workers)
}

func TestArenaConcurrentLastDrop(t *testing.T) {
	const workers = 32

	var arena Arena[tracked]
	var drops atomic.Int32

	origin := arena.New(tracked{drops: &drops})
	clones := make([]Handle, workers)
	for i := range clones {
		var err error
		clones[i], err = arena.Clone(origin)
		require.NoError(t, err)
	}
	require.NoError(t, arena.Drop(origin))

	var g errgroup.Group
	for _, h := range clones {
		g.Go(func() error { return arena.Drop(h) })
	}
	require.NoError(t, g.Wait())
	require.EqualValues(t, 1, drops.Load())
}
